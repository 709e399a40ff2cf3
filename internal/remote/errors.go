package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors of the control protocol.
var (
	ErrUnknownMessage  = errors.New("remote: unknown message type")
	ErrUnexpectedReply = errors.New("remote: unexpected reply")
	ErrPayloadTooLarge = errors.New("remote: payload too large")
)

// ParseError indicates a failure to parse a control message field. It
// wraps the underlying I/O or format error and records which field was
// being parsed when the error occurred.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("remote: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RemoteError is an error reported by the player in an ERROR reply.
type RemoteError struct {
	Code   uint64
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote: player error %d: %s", e.Code, e.Reason)
}
