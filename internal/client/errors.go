package client

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed  = errors.New("connection closed")
	ErrTimeout           = errors.New("timeout")
	ErrPeerUnavailable   = errors.New("peer unavailable")
	ErrUnexpectedMessage = errors.New("unexpected message")
	ErrServer            = errors.New("signaling server error")
)

// OpError records which client operation failed.
type OpError struct {
	Op      string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}
