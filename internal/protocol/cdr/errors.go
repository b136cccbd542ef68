package cdr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSchema = errors.New("cdr: invalid schema")

	// ErrEncoding marks values that do not conform to their schema. Seeing it
	// means the caller built a bad instance; it is never caused by peer input.
	ErrEncoding = errors.New("cdr: encoding error")

	ErrTruncatedBuffer   = errors.New("cdr: truncated buffer")
	ErrAlignmentOverrun  = errors.New("cdr: alignment overrun")
	ErrInvalidUTF8       = errors.New("cdr: invalid utf-8")
	ErrBadEncapsulation  = errors.New("cdr: unsupported encapsulation header")
	ErrBindMismatch      = errors.New("cdr: go value does not match schema")
	errTypeMismatch      = errors.New("value type mismatch")
	errArrayLength       = errors.New("fixed array length mismatch")
	errLengthOverflow    = errors.New("length exceeds uint32")
	errStringNotUTF8     = errors.New("string is not valid utf-8")
	errRecordFieldsCount = errors.New("record field count mismatch")
)

// EncodeError reports which field of which schema could not be encoded.
type EncodeError struct {
	Schema string
	Field  string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cdr: encode %s: %v", e.Schema, e.Err)
	}
	return fmt.Sprintf("cdr: encode %s.%s: %v", e.Schema, e.Field, e.Err)
}

func (e *EncodeError) Unwrap() []error {
	return []error{ErrEncoding, e.Err}
}

// DecodeError reports where in a buffer decoding stopped. Offset is the
// cursor position when the failure was detected and Len the buffer length.
type DecodeError struct {
	Schema string
	Field  string
	Offset int
	Len    int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf(
		"cdr: decode %s field=%q offset=%d len=%d: %v",
		e.Schema,
		e.Field,
		e.Offset,
		e.Len,
		e.Err,
	)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// fieldError carries the dotted path of a failing field while the
// recursive encoder and decoder unwind. at is the buffer index where a
// decode failure was detected.
type fieldError struct {
	path string
	at   int
	err  error
}

func (e *fieldError) Error() string {
	return e.path + ": " + e.err.Error()
}

func (e *fieldError) Unwrap() error {
	return e.err
}

func atField(name string, err error) error {
	var fe *fieldError
	if errors.As(err, &fe) {
		switch {
		case fe.path == "":
			fe.path = name
		case fe.path[0] == '[':
			fe.path = name + fe.path
		default:
			fe.path = name + "." + fe.path
		}
		return fe
	}
	return &fieldError{path: name, at: -1, err: err}
}

func atIndex(i int, err error) error {
	return atField(fmt.Sprintf("[%d]", i), err)
}

// splitFieldError recovers the path and cause from an unwound error.
func splitFieldError(err error) (string, int, error) {
	var fe *fieldError
	if errors.As(err, &fe) {
		return fe.path, fe.at, fe.err
	}
	return "", -1, err
}

func mismatch(t Type, v any) error {
	return fmt.Errorf("%w: want %s, got %T", errTypeMismatch, t, v)
}
