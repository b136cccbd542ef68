package schema

import (
	"context"
	"fmt"

	"github.com/danmuck/cdrbridge/internal/protocol/cdr"
)

// AddTwoIntsHandler answers an AddTwoInts request record. The sum wraps on
// int64 overflow.
func AddTwoIntsHandler(_ context.Context, req cdr.Record) (cdr.Record, error) {
	if len(req) != 2 {
		return nil, fmt.Errorf("schema: %s wants 2 fields, got %d", NameAddTwoIntsRequest, len(req))
	}
	a, okA := req[0].(int64)
	b, okB := req[1].(int64)
	if !okA || !okB {
		return nil, fmt.Errorf("schema: %s wants int64 fields, got %T and %T", NameAddTwoIntsRequest, req[0], req[1])
	}
	return AddTwoIntsResponse{Sum: a + b}.Record(), nil
}

// Add is the typed form of AddTwoIntsHandler.
func Add(req AddTwoIntsRequest) AddTwoIntsResponse {
	return AddTwoIntsResponse{Sum: req.A + req.B}
}
