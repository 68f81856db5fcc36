package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sajidur78/xedbg/internal/protocol/frame"
)

var copyBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, DefaultCopyBufferSize)
		return &b
	},
}

func getBuffer(size int) *[]byte {
	bp := copyBuffers.Get().(*[]byte)
	if cap(*bp) < size {
		b := make([]byte, size)
		return &b
	}
	*bp = (*bp)[:size]
	return bp
}

func putBuffer(bp *[]byte) {
	copyBuffers.Put(bp)
}

// BytesResult is delivered by ReadBytesAsync.
type BytesResult struct {
	Data []byte
	Err  error
}

// ReadDataSize reads the 4-byte length prefix of a binary response.
func (s *Session) ReadDataSize(ctx context.Context) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, nil
	}
	opCtx, release := bind(ctx, s.currentScope())
	defer release()
	stop := interruptOn(opCtx, s.conn)
	defer stop()
	return s.readDataSize(opCtx)
}

func (s *Session) readDataSize(ctx context.Context) (uint32, error) {
	if err := s.setReadDeadline(ctx); err != nil {
		return 0, err
	}
	if ctx.Err() != nil {
		return 0, cancelled(ctx)
	}
	n, err := frame.ReadSize(s.reader, s.cfg.SizePrefixOrder)
	if err != nil && readInterrupted(ctx, err) {
		return 0, cancelled(ctx)
	}
	return n, err
}

// ReadBytes reads one length-prefixed binary payload in chunks of at most
// ChunkSize bytes. If the stream ends early the bytes that did arrive are
// returned. On cancellation nothing is returned. A size above Config.Limits
// is refused and the session disconnects.
func (s *Session) ReadBytes(ctx context.Context, progress ProgressFunc) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, nil
	}
	opCtx, release := bind(ctx, s.currentScope())
	defer release()
	stop := interruptOn(opCtx, s.conn)
	defer stop()

	size, err := s.readDataSize(opCtx)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.Limits.Check(uint64(size)); err != nil {
		// The payload is still on the wire.
		s.closeLocked()
		return nil, err
	}
	buf := make([]byte, size)
	read := 0
	for read < len(buf) {
		if opCtx.Err() != nil {
			return nil, cancelled(opCtx)
		}
		if err := s.setReadDeadline(opCtx); err != nil {
			return nil, err
		}
		end := min(read+ChunkSize, len(buf))
		n, err := s.reader.Read(buf[read:end])
		if n > 0 {
			s.emit(TransferProgress{
				Direction:   DirectionRead,
				First:       read == 0,
				Transferred: uint64(read + n),
				Total:       uint64(size),
			}, progress)
			read += n
		}
		if err != nil {
			if readInterrupted(opCtx, err) {
				return nil, cancelled(opCtx)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	if read < len(buf) {
		s.log.Warn().Int("expected", len(buf)).Int("read", read).Msg("binary response truncated")
	}
	return buf[:read], nil
}

// ReadBytesAsync runs ReadBytes on its own goroutine.
func (s *Session) ReadBytesAsync(ctx context.Context, progress ProgressFunc) <-chan BytesResult {
	out := make(chan BytesResult, 1)
	go func() {
		data, err := s.ReadBytes(ctx, progress)
		out <- BytesResult{Data: data, Err: err}
	}()
	return out
}

// CopyTo streams one length-prefixed binary payload into dst through a pooled
// buffer. It returns the number of bytes written to dst.
func (s *Session) CopyTo(ctx context.Context, dst io.Writer, bufferSize int, progress ProgressFunc) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, nil
	}
	if bufferSize <= 0 {
		bufferSize = DefaultCopyBufferSize
	}
	opCtx, release := bind(ctx, s.currentScope())
	defer release()
	stop := interruptOn(opCtx, s.conn)
	defer stop()

	size, err := s.readDataSize(opCtx)
	if err != nil {
		return 0, err
	}
	bp := getBuffer(bufferSize)
	defer putBuffer(bp)
	buf := *bp

	var copied int64
	for copied < int64(size) {
		if opCtx.Err() != nil {
			return copied, cancelled(opCtx)
		}
		if err := s.setReadDeadline(opCtx); err != nil {
			return copied, err
		}
		want := min(int64(len(buf)), int64(ChunkSize), int64(size)-copied)
		n, err := s.reader.Read(buf[:want])
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return copied, werr
			}
			s.emit(TransferProgress{
				Direction:   DirectionRead,
				First:       copied == 0,
				Transferred: uint64(copied) + uint64(n),
				Total:       uint64(size),
			}, progress)
			copied += int64(n)
		}
		if err != nil {
			if readInterrupted(opCtx, err) {
				return copied, cancelled(opCtx)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return copied, err
		}
		if n == 0 {
			break
		}
	}
	return copied, nil
}

// WriteBytes sends data in chunks of at most ChunkSize bytes. It cannot be
// cancelled: a partial write would leave the server mid-payload.
func (s *Session) WriteBytes(data []byte, progress ProgressFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	if err := frame.CheckPayload(uint64(len(data))); err != nil {
		return err
	}

	written := 0
	for written < len(data) {
		end := min(written+ChunkSize, len(data))
		chunk := make([]byte, end-written)
		copy(chunk, data[written:end])
		if err := s.writeChunk(chunk); err != nil {
			return err
		}
		s.emit(TransferProgress{
			Direction:   DirectionWrite,
			First:       written == 0,
			Transferred: uint64(end),
			Total:       uint64(len(data)),
		}, progress)
		written = end
	}
	return nil
}

// WriteBytesAsync runs WriteBytes on its own goroutine.
func (s *Session) WriteBytesAsync(data []byte, progress ProgressFunc) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- s.WriteBytes(data, progress)
	}()
	return out
}

// CopyFrom streams src to the server through a pooled buffer until src is
// exhausted. Like WriteBytes it cannot be cancelled.
func (s *Session) CopyFrom(src io.Reader, bufferSize int, progress ProgressFunc) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, nil
	}
	if bufferSize <= 0 {
		bufferSize = DefaultCopyBufferSize
	}
	var total uint64
	if l, ok := src.(interface{ Len() int }); ok {
		total = uint64(l.Len())
		if err := frame.CheckPayload(total); err != nil {
			return 0, err
		}
	}

	bp := getBuffer(bufferSize)
	defer putBuffer(bp)
	buf := (*bp)[:min(len(*bp), ChunkSize)]

	var copied int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if werr := s.writeChunk(buf[:n]); werr != nil {
				return copied, werr
			}
			s.emit(TransferProgress{
				Direction:   DirectionWrite,
				First:       copied == 0,
				Transferred: uint64(copied) + uint64(n),
				Total:       total,
			}, progress)
			copied += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return copied, nil
		}
		if err != nil {
			return copied, err
		}
	}
}

func (s *Session) writeChunk(chunk []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err := s.conn.Write(chunk)
	return err
}
