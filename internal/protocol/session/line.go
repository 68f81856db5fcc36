package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sajidur78/xedbg/internal/protocol/response"
)

// ReadLine reads one line without its terminator. It returns "" when the
// stream has nothing more to give.
func (s *Session) ReadLine(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return "", nil
	}
	line, _, err := s.readLine(ctx, s.currentScope())
	return line, err
}

// ReadLines reads body lines until an empty line, the "." terminator or a
// trailing status line. On cancellation the lines read so far are dropped.
func (s *Session) ReadLines(ctx context.Context, progress ProgressFunc) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, nil
	}
	return s.readLines(ctx, s.currentScope(), progress)
}

func (s *Session) readLines(ctx, scope context.Context, progress ProgressFunc) ([]string, error) {
	opCtx, release := bind(ctx, scope)
	defer release()
	stop := interruptOn(opCtx, s.conn)
	defer stop()

	var (
		lines []string
		read  uint64
	)
	for {
		if opCtx.Err() != nil {
			return nil, cancelled(opCtx)
		}
		line, n, err := s.readLineBound(opCtx)
		if err != nil {
			return nil, err
		}
		read += uint64(n)
		if line == "" || line == response.Terminator || response.IsStatusLine(line) {
			return lines, nil
		}
		lines = append(lines, line)
		s.emit(TransferProgress{
			Direction:   DirectionRead,
			First:       len(lines) == 1,
			Transferred: read,
		}, progress)
	}
}

func (s *Session) readLine(ctx, scope context.Context) (string, int, error) {
	opCtx, release := bind(ctx, scope)
	defer release()
	stop := interruptOn(opCtx, s.conn)
	defer stop()
	return s.readLineBound(opCtx)
}

// readLineBound reads one line under an already bound context.
func (s *Session) readLineBound(ctx context.Context) (string, int, error) {
	if err := s.setReadDeadline(ctx); err != nil {
		return "", 0, err
	}
	if ctx.Err() != nil {
		return "", 0, cancelled(ctx)
	}

	var b strings.Builder
	total := 0
	for {
		chunk, err := s.reader.ReadSlice('\n')
		total += len(chunk)
		if total > s.cfg.MaxLineBytes {
			return "", total, ErrLineTooLong
		}
		b.Write(chunk)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if readInterrupted(ctx, err) {
				return "", total, cancelled(ctx)
			}
			if errors.Is(err, io.EOF) {
				return strings.TrimRight(b.String(), "\r\n"), total, nil
			}
			return "", total, err
		}
		return strings.TrimRight(b.String(), "\r\n"), total, nil
	}
}

func (s *Session) setReadDeadline(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return s.conn.SetReadDeadline(deadline)
}
