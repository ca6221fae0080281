package schema

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ConnectError means the device was unreachable or refused the connection.
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError means the device rejected the supplied credentials.
type AuthError struct {
	Host string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authenticate %s: %v", e.Host, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ExpectTimeout means no expected pattern matched before the deadline.
type ExpectTimeout struct {
	Op   string
	Wait time.Duration
}

func (e *ExpectTimeout) Error() string {
	return fmt.Sprintf("%s: no expected pattern within %v", e.Op, e.Wait)
}

// RejectError means the device explicitly rejected a command or transition.
// Line is the zero-based index of the failing configuration line, or -1 when
// the rejection happened outside a config push.
type RejectError struct {
	Command  string
	Response string
	Line     int
}

func (e *RejectError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("device rejected line %d %q: %s", e.Line, e.Command, e.Response)
	}
	return fmt.Sprintf("device rejected %q: %s", e.Command, e.Response)
}

// ChannelError means the underlying channel failed unexpectedly, for example
// a reset mid-session.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// OutcomeFor classifies a session error into a Result outcome.
func OutcomeFor(err error) Outcome {
	if err == nil {
		return Success
	}
	var (
		connErr *ConnectError
		authErr *AuthError
		expTO   *ExpectTimeout
		rejErr  *RejectError
		chanErr *ChannelError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.As(err, &authErr):
		return AuthFailure
	case errors.As(err, &expTO):
		return Timeout
	case errors.As(err, &rejErr):
		return DeviceError
	case errors.As(err, &connErr), errors.As(err, &chanErr):
		return TransportFailure
	}
	return TransportFailure
}
