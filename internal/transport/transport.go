package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/danmuck/cdrbridge/internal/protocol/session"
)

var (
	ErrSessionClosed     = errors.New("transport: session closed")
	ErrQueryClosed       = errors.New("transport: query already finished")
	ErrInvalidKey        = errors.New("transport: invalid key")
	ErrUnsupportedScheme = errors.New("transport: unsupported endpoint scheme")
	ErrEndpointRequired  = errors.New("transport: endpoint required")
)

// Target selects which queryables receive a query.
type Target uint8

const (
	TargetBestMatching Target = iota
	TargetAll
)

func (t Target) String() string {
	switch t {
	case TargetAll:
		return "all"
	case TargetBestMatching:
		return "best_matching"
	default:
		return fmt.Sprintf("target(%d)", uint8(t))
	}
}

// DefaultQueryTimeout applies when GetOptions.Timeout is zero.
const DefaultQueryTimeout = 5 * time.Second

type Sample struct {
	Key     string
	Payload []byte
}

// Reply is one answer to a query. Err is a *ReplyError when the responder
// answered with an error instead of a payload.
type Reply struct {
	Payload []byte
	Err     error
}

// ReplyError carries a responder-side failure message.
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string {
	return "transport: error reply: " + e.Message
}

type GetOptions struct {
	Timeout time.Duration
	Target  Target
}

func (o GetOptions) WithDefaults() GetOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultQueryTimeout
	}
	return o
}

// Declaration is a live subscriber or queryable.
type Declaration interface {
	Key() string
	Undeclare() error
}

type Session interface {
	// NodeID is this session's identity as announced to peers.
	NodeID() string
	Put(ctx context.Context, key string, payload []byte) error
	Subscribe(key string, fn func(Sample)) (Declaration, error)
	Get(ctx context.Context, key string, payload []byte, opts GetOptions) (<-chan Reply, error)
	DeclareQueryable(key string, fn func(*Query)) (Declaration, error)
	Close() error
}

// Config selects and parameterizes a transport.
type Config struct {
	Endpoint string
	NodeID   string
	Session  session.Config
}

// ConnectionError reports a failure to open a session on an endpoint.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport: connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ValidateKey accepts non-empty keys without whitespace or empty segments.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidKey, key)
		}
	}
	return nil
}

// NewNodeID returns prefix followed by 8 random hex digits.
func NewNodeID(prefix string) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	if prefix == "" {
		prefix = "node"
	}
	return prefix + "-" + hex.EncodeToString(b[:])
}
