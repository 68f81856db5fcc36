package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/sajidur78/xedbg/internal/protocol/response"
)

// Option customises a Session at construction.
type Option func(*Session)

// WithObserver subscribes obs to every read and write transfer.
func WithObserver(obs Observer) Option {
	return func(s *Session) {
		s.observer = obs
	}
}

// WithLogger replaces the session's component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// Session is one connection to a debug monitor. The zero value is not usable;
// call New.
type Session struct {
	cfg      Config
	observer Observer
	log      zerolog.Logger
	rng      *rand.Rand

	// mu serialises command cycles and streaming calls.
	mu     sync.Mutex
	host   string
	conn   net.Conn
	reader *bufio.Reader
	last   *response.Response

	scopeMu     sync.Mutex
	scope       context.Context
	cancelScope context.CancelFunc
}

func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg: cfg.WithDefaults(),
		log: log.Logger.With().Str("component", "session").Logger(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ResetScope()
	return s
}

func (s *Session) Config() Config {
	return s.cfg
}

// Connected reports whether the session currently owns a socket.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Session) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// LastResponse returns the response of the most recent command cycle.
func (s *Session) LastResponse() *response.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Connect opens a session to host. host may be an IP literal, a name, or
// either with an explicit ":port". When checkConnected is set and the session
// is already connected to the same host, Connect does nothing.
func (s *Session) Connect(ctx context.Context, host string, checkConnected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx, host, checkConnected)
}

func (s *Session) connectLocked(ctx context.Context, host string, checkConnected bool) error {
	if checkConnected && s.conn != nil && s.host == host {
		return nil
	}
	s.closeLocked()
	// Reconnect retries the most recently requested host, even after a failure.
	s.host = host

	addr, err := s.resolve(ctx, host)
	if err != nil {
		return &ConnectionError{Host: host, Err: err}
	}
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return &ConnectionError{Host: host, Err: err}
	}

	s.conn = conn
	s.reader = bufio.NewReaderSize(conn, ChunkSize*2)
	s.ResetScope()

	greeting, _, err := s.readLine(ctx, s.currentScope())
	if err != nil {
		s.closeLocked()
		return &ConnectionError{Host: host, Err: fmt.Errorf("read greeting: %w", err)}
	}
	s.last = nil
	s.log.Debug().Str("host", host).Str("addr", addr).Str("greeting", greeting).Msg("connected")
	return nil
}

func (s *Session) resolve(ctx context.Context, host string) (string, error) {
	name, port := host, strconv.Itoa(s.cfg.Port)
	if h, p, err := net.SplitHostPort(host); err == nil {
		name, port = h, p
	}
	if name == "" {
		return "", errors.New("empty host")
	}
	if ip := net.ParseIP(name); ip != nil {
		return net.JoinHostPort(ip.String(), port), nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	addrs, err := s.cfg.Resolver.LookupHost(lookupCtx, name)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses for %q", name)
	}
	picked := addrs[0]
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			picked = a
			break
		}
	}
	return net.JoinHostPort(picked, port), nil
}

func (s *Session) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newRetryPolicy(s.cfg.Backoff, s.rng), uint64(s.cfg.ConnectAttempts-1)),
		ctx,
	)

	var conn net.Conn
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, policy, func(err error, delay time.Duration) {
		s.log.Warn().Int("attempt", attempt).Str("addr", addr).Dur("retry_in", delay).Err(err).Msg("dial failed")
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Disconnect says goodbye to the server and releases the session.
func (s *Session) Disconnect(ctx context.Context) error {
	_, err := s.SendCommand(ctx, "bye", false)
	if err != nil {
		s.log.Debug().Err(err).Msg("bye failed")
	}
	return s.Close()
}

// Reconnect drops the socket and dials the same host again. Server-side state
// tied to the old connection is lost.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	host := s.host
	s.closeLocked()
	if host == "" {
		return &ConnectionError{Host: host, Err: errors.New("no previous host")}
	}
	return s.connectLocked(ctx, host, false)
}

// Close releases the socket. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	s.log.Debug().Str("host", s.host).Msg("disconnected")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Cancel sets the session scope; in-flight streaming reads stop at their
// next chunk.
func (s *Session) Cancel() {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	s.cancelScope()
}

// ResetScope installs a fresh, unset cancellation scope.
func (s *Session) ResetScope() {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	if s.cancelScope != nil {
		s.cancelScope()
	}
	s.scope, s.cancelScope = context.WithCancel(context.Background())
}

func (s *Session) currentScope() context.Context {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	return s.scope
}

// bind returns a context done when either ctx or scope is done.
func bind(ctx, scope context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(scope, func() {
		cancel(context.Cause(scope))
	})
	return merged, func() {
		stop()
		cancel(nil)
	}
}

// interruptOn forces a blocked read on conn to return once ctx is done.
func interruptOn(ctx context.Context, conn net.Conn) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
}

// SendCommand writes one command line and reads its response. It returns
// nil, nil when the session is not connected. A failure status is returned as
// a *protocol.ServerError when throwOnServerError is set; otherwise the
// caller inspects the response. If the reply cannot be read once the command
// has gone out, the session disconnects and later calls are no-ops until
// Connect or Reconnect.
func (s *Session) SendCommand(ctx context.Context, command string, throwOnServerError bool) (*response.Response, error) {
	return s.sendCommand(ctx, s.currentScope(), command, throwOnServerError)
}

func (s *Session) sendCommand(ctx, scope context.Context, command string, throwOnServerError bool) (*response.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(ctx)
	}
	if err := scope.Err(); err != nil {
		return nil, cancelled(scope)
	}

	line, err := encodeCommand(command)
	if err != nil {
		return nil, fmt.Errorf("session: encode command: %w", err)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return nil, err
	}
	if _, err := s.conn.Write([]byte(line)); err != nil {
		s.log.Warn().Str("command", command).Err(err).Msg("command write failed")
		s.closeLocked()
		return nil, err
	}

	resp, err := s.receive(ctx, scope)
	if err != nil {
		// The rest of the reply may still arrive; later reads would pair
		// it with the wrong command.
		s.log.Warn().Str("command", command).Err(err).Msg("command failed, dropping connection")
		s.closeLocked()
		return nil, err
	}
	s.last = resp
	s.log.Debug().Str("command", command).Int("status", int(resp.Status)).Int("rows", len(resp.Results)).Msg("command")

	if resp.IsBye() {
		s.closeLocked()
	}
	if throwOnServerError {
		if err := resp.Err(); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// encodeCommand renders command as one byte per character plus CRLF.
// Characters outside Latin-1 go out as '?'.
func encodeCommand(command string) (string, error) {
	t := transform.Chain(runes.Map(func(r rune) rune {
		if r > 0xFF {
			return '?'
		}
		return r
	}), charmap.ISO8859_1.NewEncoder())
	out, _, err := transform.String(t, command+"\r\n")
	return out, err
}

// receive performs one response cycle: the status line and, for multiline
// statuses, the body.
func (s *Session) receive(ctx, scope context.Context) (*response.Response, error) {
	line, _, err := s.readLine(ctx, scope)
	if err != nil {
		return nil, err
	}
	resp, err := response.Parse(line)
	if err != nil {
		return nil, err
	}
	if resp.Multiline() {
		rows, err := s.readLines(ctx, scope, nil)
		if err != nil {
			return nil, err
		}
		resp.Results = rows
	}
	return resp, nil
}
