package session

import (
	"context"
	"time"
)

// PingCommand is a cheap command every debug monitor answers.
const PingCommand = "dbgname"

// Ping runs PingCommand on its own goroutine under a scope bounded by timeout.
// It reports true only when the command completes in time with a success
// status, and never returns an error. A successful ping installs a fresh
// session scope.
func (s *Session) Ping(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.cfg.PingTimeout
	}
	scope, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		resp, err := s.sendCommand(ctx, scope, PingCommand, false)
		done <- err == nil && resp.Success()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ok := <-done:
		if ok {
			s.ResetScope()
		}
		return ok
	case <-timer.C:
		s.log.Debug().Dur("timeout", timeout).Msg("ping timed out")
		return false
	case <-ctx.Done():
		return false
	}
}
