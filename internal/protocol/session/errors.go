package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sajidur78/xedbg/internal/protocol/frame"
)

var (
	ErrConnection      = errors.New("session: connection failed")
	ErrCancelled       = errors.New("session: cancelled")
	ErrPayloadTooLarge = frame.ErrPayloadTooLarge
	ErrLineTooLong     = errors.New("session: line too long")
)

// ConnectionError reports a failed dial or greeting for Host.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: connect %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

func cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
		if deadlinePassed(ctx) {
			cause = context.DeadlineExceeded
		}
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// readInterrupted reports whether a read error came from ctx ending rather
// than from the connection. A socket deadline taken from ctx can expire a
// moment before ctx itself reports done.
func readInterrupted(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout() && deadlinePassed(ctx)
}

func deadlinePassed(ctx context.Context) bool {
	d, ok := ctx.Deadline()
	return ok && !time.Now().Before(d)
}
