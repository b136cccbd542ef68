package schema

import (
	"github.com/danmuck/cdrbridge/internal/protocol/cdr"
)

// Type names as they appear in ROS 2 interface definitions.
const (
	NameVector3            = "geometry_msgs/msg/Vector3"
	NameTwist              = "geometry_msgs/msg/Twist"
	NameString             = "std_msgs/msg/String"
	NameAddTwoIntsRequest  = "example_interfaces/srv/AddTwoInts_Request"
	NameAddTwoIntsResponse = "example_interfaces/srv/AddTwoInts_Response"
)

// Default transport keys used by the bundled programs.
const (
	TopicCmdVel       = "cmd_vel"
	ServiceAddTwoInts = "add_two_ints"
)

var (
	Vector3Schema = cdr.MustDefine(NameVector3,
		cdr.F("x", cdr.Float64),
		cdr.F("y", cdr.Float64),
		cdr.F("z", cdr.Float64),
	)

	TwistSchema = cdr.MustDefine(NameTwist,
		cdr.F("linear", cdr.Struct(Vector3Schema)),
		cdr.F("angular", cdr.Struct(Vector3Schema)),
	)

	StringSchema = cdr.MustDefine(NameString,
		cdr.F("data", cdr.String),
	)

	AddTwoIntsRequestSchema = cdr.MustDefine(NameAddTwoIntsRequest,
		cdr.F("a", cdr.Int64),
		cdr.F("b", cdr.Int64),
	)

	AddTwoIntsResponseSchema = cdr.MustDefine(NameAddTwoIntsResponse,
		cdr.F("sum", cdr.Int64),
	)
)

// Service pairs the request and response schemas of one service type.
type Service struct {
	Name     string
	Request  *cdr.Schema
	Response *cdr.Schema
}

var AddTwoInts = Service{
	Name:     "example_interfaces/srv/AddTwoInts",
	Request:  AddTwoIntsRequestSchema,
	Response: AddTwoIntsResponseSchema,
}

type Vector3 struct {
	X float64
	Y float64
	Z float64
}

type Twist struct {
	Linear  Vector3
	Angular Vector3
}

// String mirrors std_msgs/msg/String.
type String struct {
	Data string
}

type AddTwoIntsRequest struct {
	A int64
	B int64
}

type AddTwoIntsResponse struct {
	Sum int64
}

// NewTwist builds the forward/turn command the publisher sends: linear.x
// and angular.z set, everything else zero.
func NewTwist(linear, angular float64) Twist {
	return Twist{
		Linear:  Vector3{X: linear},
		Angular: Vector3{Z: angular},
	}
}

// Record forms for callers working with the untyped codec.

func (v Vector3) Record() cdr.Record {
	return cdr.Record{v.X, v.Y, v.Z}
}

func (t Twist) Record() cdr.Record {
	return cdr.Record{t.Linear.Record(), t.Angular.Record()}
}

func (r AddTwoIntsRequest) Record() cdr.Record {
	return cdr.Record{r.A, r.B}
}

func (r AddTwoIntsResponse) Record() cdr.Record {
	return cdr.Record{r.Sum}
}
