// Package observability records what a session does: prometheus counters
// for commands and transfers, and progress logging.
package observability

import (
	"github.com/rs/zerolog"

	"github.com/sajidur78/xedbg/internal/protocol/session"
)

// ProgressLogger logs the first and last event of every transfer at debug
// level. Line transfers have no total and only log their first event.
type ProgressLogger struct {
	Logger zerolog.Logger
}

func (l ProgressLogger) OnRead(p session.TransferProgress) {
	l.log(p)
}

func (l ProgressLogger) OnWrite(p session.TransferProgress) {
	l.log(p)
}

func (l ProgressLogger) log(p session.TransferProgress) {
	done := p.Total > 0 && p.Transferred >= p.Total
	if !p.First && !done {
		return
	}
	ev := l.Logger.Debug().Str("direction", p.Direction.String()).Uint64("transferred", p.Transferred)
	if p.Total > 0 {
		ev = ev.Uint64("total", p.Total)
	}
	if done {
		ev.Msg("transfer complete")
		return
	}
	ev.Msg("transfer started")
}

// Tee fans every event out to each observer in order.
func Tee(observers ...session.Observer) session.Observer {
	return tee(observers)
}

type tee []session.Observer

func (t tee) OnRead(p session.TransferProgress) {
	for _, o := range t {
		o.OnRead(p)
	}
}

func (t tee) OnWrite(p session.TransferProgress) {
	for _, o := range t {
		o.OnWrite(p)
	}
}
