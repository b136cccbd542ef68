package service

import (
	"errors"
	"fmt"
	"time"
)

var ErrNilHandler = errors.New("service: nil handler")

// TimeoutError reports a call that ended without a usable reply.
type TimeoutError struct {
	Service string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("service: %s: no reply within %s", e.Service, e.Timeout)
}

// ReplyFailedError reports a call whose replies all arrived unusable:
// undecodable payloads or error replies. Last is the final reply's error.
type ReplyFailedError struct {
	Service string
	Replies int
	Last    error
}

func (e *ReplyFailedError) Error() string {
	return fmt.Sprintf("service: %s: %d replies, none usable: %v", e.Service, e.Replies, e.Last)
}

func (e *ReplyFailedError) Unwrap() error {
	return e.Last
}
