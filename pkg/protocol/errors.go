package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMessage matches any *InvalidMessageError via errors.Is
	ErrInvalidMessage = errors.New("invalid message")
	// ErrMalformedMessage matches any *MalformedMessageError via errors.Is
	ErrMalformedMessage = errors.New("malformed message")
)

// InvalidMessageError is returned by MessageBuilder.Build when a required
// field is unset or a field cannot be framed on the wire.
type InvalidMessageError struct {
	Field  string
	Reason string
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("invalid message: %s %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidMessage) succeed
func (e *InvalidMessageError) Is(target error) bool {
	return target == ErrInvalidMessage
}

// MalformedMessageError is returned by Decode when a received datagram does
// not follow the wire framing.
type MalformedMessageError struct {
	Reason string
	Err    error // Underlying parse error, may be nil
}

func (e *MalformedMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed message: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed message: %s", e.Reason)
}

// Unwrap returns the underlying parse error
func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedMessage) succeed
func (e *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

func malformed(reason string, err error) error {
	return &MalformedMessageError{Reason: reason, Err: err}
}

func invalid(field, reason string) error {
	return &InvalidMessageError{Field: field, Reason: reason}
}
