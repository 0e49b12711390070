package anchor

import (
	"errors"
	"fmt"
)

var (
	ErrCodec          = errors.New("anchor: malformed position")
	ErrUnresolvable   = errors.New("anchor: position unresolvable")
	ErrContentDeleted = fmt.Errorf("%w: anchored content deleted", ErrUnresolvable)
	ErrOutOfRange     = errors.New("anchor: resolved offset out of range")
	ErrShapeMismatch  = errors.New("anchor: fallback payload shape mismatch")
	ErrNoDocument     = errors.New("anchor: no tracked document")
	ErrOutOfBounds    = errors.New("anchor: range out of bounds")
)

// CodecError reports a stored position that does not decode.
type CodecError struct {
	Input  string
	Reason string
	Err    error
}

func (e *CodecError) Error() string {
	if e == nil {
		return ""
	}
	input := e.Input
	if len(input) > 32 {
		input = input[:32] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("anchor: decode %q: %s: %v", input, e.Reason, e.Err)
	}
	return fmt.Sprintf("anchor: decode %q: %s", input, e.Reason)
}

func (e *CodecError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCodec}
	}
	return []error{ErrCodec, e.Err}
}

func codecError(input, reason string, err error) *CodecError {
	return &CodecError{Input: input, Reason: reason, Err: err}
}
