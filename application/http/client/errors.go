package client

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindInvalidArgument Kind = iota + 1
	KindTransport
	KindTimeout
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindTransport:
		return "transport error"
	case KindTimeout:
		return "timeout"
	case KindParse:
		return "parse error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by every operation of [Client] and [Builder].
// Use errors.Is with the sentinels below to check its kind,
// and errors.As / errors.Cause to reach the cause.
type Error struct {
	Kind  Kind
	cause error
}

var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrTransport       = &Error{Kind: KindTransport}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrParse           = &Error{Kind: KindParse}
)

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *Error) Cause() error  { return e.cause }
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func invalidArgument(format string, args ...any) error {
	return newError(KindInvalidArgument, errors.Errorf(format, args...))
}

// transportError classifies err from the transport as a timeout or a transport failure.
func transportError(err error) error {
	if isTimeout(err) {
		return newError(KindTimeout, err)
	}
	return newError(KindTransport, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
