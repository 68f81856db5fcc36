package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sajidur78/xedbg/internal/protocol"
	"github.com/sajidur78/xedbg/internal/protocol/frame"
	"github.com/sajidur78/xedbg/internal/testutil/fakexbdm"
	"github.com/sajidur78/xedbg/internal/testutil/testlog"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return cfg
}

func connect(t *testing.T, srv *fakexbdm.Server, opts ...Option) *Session {
	t.Helper()
	s := New(testConfig(), opts...)
	require.NoError(t, s.Connect(context.Background(), srv.Addr(), true))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitForRelease blocks a handler until the test ends.
func waitForRelease(t *testing.T) <-chan struct{} {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return release
}

func requireMonotonic(t *testing.T, events []TransferProgress, total uint64) {
	t.Helper()
	require.NotEmpty(t, events)
	require.True(t, events[0].First)
	var last uint64
	for i, ev := range events {
		require.GreaterOrEqual(t, ev.Transferred, last, "event %d", i)
		require.LessOrEqual(t, ev.Transferred-last, uint64(ChunkSize), "event %d", i)
		if i > 0 {
			require.False(t, ev.First, "event %d", i)
		}
		last = ev.Transferred
	}
	require.Equal(t, total, last)
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 2, rng)
	if got < 250*time.Millisecond || got > 750*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestRetryPolicyFollowsBackoffConfig(t *testing.T) {
	testlog.Start(t)
	p := newRetryPolicy(BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 3}, nil)
	require.Equal(t, 10*time.Millisecond, p.NextBackOff())
	require.Equal(t, 30*time.Millisecond, p.NextBackOff())
	p.Reset()
	require.Equal(t, 10*time.Millisecond, p.NextBackOff())
}

func TestDisconnectedOperationsAreNoops(t *testing.T) {
	testlog.Start(t)
	s := New(testConfig())
	ctx := context.Background()

	resp, err := s.SendCommand(ctx, "dbgname", true)
	require.NoError(t, err)
	require.Nil(t, resp)

	data, err := s.ReadBytes(ctx, nil)
	require.NoError(t, err)
	require.Nil(t, data)

	require.NoError(t, s.WriteBytes([]byte{1, 2, 3}, nil))

	line, err := s.ReadLine(ctx)
	require.NoError(t, err)
	require.Empty(t, line)

	lines, err := s.ReadLines(ctx, nil)
	require.NoError(t, err)
	require.Nil(t, lines)

	n, err := s.CopyTo(ctx, &bytes.Buffer{}, 0, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.CopyFrom(bytes.NewReader([]byte{1}), 0, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	size, err := s.ReadDataSize(ctx)
	require.NoError(t, err)
	require.Zero(t, size)

	require.False(t, s.Ping(ctx, 50*time.Millisecond))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestConnectSendCommand(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	s := connect(t, srv)

	require.True(t, s.Connected())
	require.Equal(t, srv.Addr(), s.Host())
	require.Nil(t, s.LastResponse())

	resp, err := s.SendCommand(context.Background(), "dbgname", true)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, resp.Status)
	require.Equal(t, fakexbdm.DebugName, resp.Message)
	require.Same(t, resp, s.LastResponse())
	require.Equal(t, []string{"dbgname"}, srv.Commands())
}

func TestWithLogger(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	var buf bytes.Buffer
	s := connect(t, srv, WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	_, err := s.SendCommand(context.Background(), "dbgname", true)
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"message":"connected"`)
	require.Contains(t, buf.String(), `"command":"dbgname"`)
}

func TestConnectSkipsWhenAlreadyConnected(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	s := connect(t, srv)

	require.NoError(t, s.Connect(context.Background(), srv.Addr(), true))
	require.Equal(t, 1, srv.Connections())

	require.NoError(t, s.Connect(context.Background(), srv.Addr(), false))
	require.Eventually(t, func() bool { return srv.Connections() == 2 }, time.Second, 10*time.Millisecond)
}

func TestConnectFailureIsConnectionError(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig()
	cfg.ConnectAttempts = 2
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1}
	s := New(cfg)
	err = s.Connect(context.Background(), addr, true)
	require.ErrorIs(t, err, ErrConnection)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, addr, connErr.Host)
	require.False(t, s.Connected())
}

func TestResolveHost(t *testing.T) {
	testlog.Start(t)
	s := New(testConfig())
	ctx := context.Background()

	addr, err := s.resolve(ctx, "192.168.1.20")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.20:"+strconv.Itoa(DefaultPort), addr)

	addr, err = s.resolve(ctx, "10.0.0.5:1234")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:1234", addr)

	_, err = s.resolve(ctx, ":730")
	require.Error(t, err)
}

func TestSendCommandServerError(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	s := connect(t, srv)
	ctx := context.Background()

	resp, err := s.SendCommand(ctx, "frobnicate", true)
	require.ErrorIs(t, err, protocol.ErrServer)
	status, ok := protocol.StatusOf(err)
	require.True(t, ok)
	require.Equal(t, protocol.StatusUnknownCommand, status)
	require.NotNil(t, resp)

	resp, err = s.SendCommand(ctx, "frobnicate", false)
	require.NoError(t, err)
	require.False(t, resp.Success())
	require.True(t, s.Connected())
}

func TestSendCommandEncodesOneBytePerCharacter(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	s := connect(t, srv)

	_, err := s.SendCommand(context.Background(), "echo é€", false)
	require.NoError(t, err)
	cmds := srv.Commands()
	require.Len(t, cmds, 1)
	require.Equal(t, "echo \xe9?", cmds[0])
}

func TestByeTearsDownSession(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	s := connect(t, srv)

	resp, err := s.SendCommand(context.Background(), "bye", true)
	require.NoError(t, err)
	require.True(t, resp.IsBye())
	require.False(t, s.Connected())

	resp, err = s.SendCommand(context.Background(), "dbgname", true)
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestDisconnectSendsBye(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	s := connect(t, srv)

	require.NoError(t, s.Disconnect(context.Background()))
	require.False(t, s.Connected())
	require.Equal(t, []string{"bye"}, srv.Commands())
	require.NoError(t, s.Disconnect(context.Background()))
}

func TestReconnectDialsSameHost(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	s := connect(t, srv)

	require.NoError(t, s.Reconnect(context.Background()))
	require.True(t, s.Connected())
	require.Equal(t, 2, srv.Connections())

	resp, err := s.SendCommand(context.Background(), "dbgname", true)
	require.NoError(t, err)
	require.True(t, resp.Success())

	fresh := New(testConfig())
	require.ErrorIs(t, fresh.Reconnect(context.Background()), ErrConnection)
}

func TestMultilineResponse(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	srv.Handle("walk", func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		return c.Multiline([]string{"row one", "row two", "row three"})
	})
	var events []TransferProgress
	s := connect(t, srv, WithObserver(ObserverFuncs{Read: func(p TransferProgress) {
		events = append(events, p)
	}}))

	resp, err := s.SendCommand(context.Background(), "walk", true)
	require.NoError(t, err)
	require.True(t, resp.Multiline())
	require.Equal(t, []string{"row one", "row two", "row three"}, resp.Results)

	require.Len(t, events, 3)
	require.True(t, events[0].First)
	for i, ev := range events {
		require.Equal(t, DirectionRead, ev.Direction)
		require.Zero(t, ev.Total)
		if i > 0 {
			require.Greater(t, ev.Transferred, events[i-1].Transferred)
		}
	}

	// the session stays in sync after the terminator
	resp, err = s.SendCommand(context.Background(), "dbgname", true)
	require.NoError(t, err)
	require.Equal(t, fakexbdm.DebugName, resp.Message)
}

func TestReadLinesStopsAtStatusLine(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	srv.Handle("dump", func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		if err := c.Status(protocol.StatusOK, "rows follow"); err != nil {
			return err
		}
		return c.Raw([]byte("alpha\r\nbeta\r\n200- done\r\n"))
	})
	s := connect(t, srv)
	ctx := context.Background()

	_, err := s.SendCommand(ctx, "dump", true)
	require.NoError(t, err)
	lines, err := s.ReadLines(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, lines)
}

func TestReadLinesCancelDropsPartialResult(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	release := waitForRelease(t)
	srv.Handle("slow", func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		if err := c.Status(protocol.StatusOK, "rows follow"); err != nil {
			return err
		}
		if err := c.Raw([]byte("first\r\nsecond\r\n")); err != nil {
			return err
		}
		<-release
		return nil
	})
	s := connect(t, srv)
	ctx := context.Background()

	_, err := s.SendCommand(ctx, "slow", true)
	require.NoError(t, err)

	lines, err := s.ReadLines(ctx, func(p TransferProgress) {
		if !p.First {
			s.Cancel()
		}
	})
	require.ErrorIs(t, err, ErrCancelled)
	require.Nil(t, lines)
}

func serveBinary(payload []byte) fakexbdm.Handler {
	return func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		return c.Binary(payload)
	}
}

func pattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i * 7)
	}
	return out
}

func TestReadBytesChunkedWithProgress(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	payload := pattern(3*ChunkSize + 123)
	srv.Handle("getfile", serveBinary(payload))

	var observed []TransferProgress
	s := connect(t, srv, WithObserver(ObserverFuncs{Read: func(p TransferProgress) {
		observed = append(observed, p)
	}}))
	ctx := context.Background()

	resp, err := s.SendCommand(ctx, "getfile name=\"x\"", true)
	require.NoError(t, err)
	require.True(t, resp.Binary())

	var events []TransferProgress
	data, err := s.ReadBytes(ctx, func(p TransferProgress) { events = append(events, p) })
	require.NoError(t, err)
	require.Equal(t, payload, data)
	requireMonotonic(t, events, uint64(len(payload)))
	require.Equal(t, events, observed)
	for _, ev := range events {
		require.Equal(t, uint64(len(payload)), ev.Total)
	}
}

func TestReadBytesBigEndianSizePrefix(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	srv.SetSizeOrder(binary.BigEndian)
	payload := pattern(300)
	srv.Handle("getfile", serveBinary(payload))

	cfg := testConfig()
	cfg.SizePrefixOrder = binary.BigEndian
	s := New(cfg)
	require.NoError(t, s.Connect(context.Background(), srv.Addr(), true))
	defer s.Close()

	_, err := s.SendCommand(context.Background(), "getfile", true)
	require.NoError(t, err)
	data, err := s.ReadBytes(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestReadBytesEarlyClose(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	srv.Handle("getfile", func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		if err := c.Status(protocol.StatusBinary, "binary response follows"); err != nil {
			return err
		}
		raw := binary.LittleEndian.AppendUint32(nil, 100)
		raw = append(raw, pattern(10)...)
		if err := c.Raw(raw); err != nil {
			return err
		}
		return c.HangUp()
	})
	s := connect(t, srv)

	_, err := s.SendCommand(context.Background(), "getfile", true)
	require.NoError(t, err)
	data, err := s.ReadBytes(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, pattern(10), data)
}

func TestReadBytesCancelledByScope(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	release := waitForRelease(t)
	srv.Handle("getfile", func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		if err := c.Status(protocol.StatusBinary, "binary response follows"); err != nil {
			return err
		}
		raw := binary.LittleEndian.AppendUint32(nil, 10000)
		raw = append(raw, pattern(100)...)
		if err := c.Raw(raw); err != nil {
			return err
		}
		<-release
		return nil
	})
	s := connect(t, srv)
	ctx := context.Background()

	_, err := s.SendCommand(ctx, "getfile", true)
	require.NoError(t, err)
	data, err := s.ReadBytes(ctx, func(TransferProgress) { s.Cancel() })
	require.ErrorIs(t, err, ErrCancelled)
	require.Nil(t, data)

	// a cancelled scope also stops later commands until it is reset
	_, err = s.SendCommand(ctx, "dbgname", true)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestReadBytesCancelledByContext(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	release := waitForRelease(t)
	srv.Handle("getfile", func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		if err := c.Status(protocol.StatusBinary, "binary response follows"); err != nil {
			return err
		}
		<-release
		return nil
	})
	s := connect(t, srv)

	_, err := s.SendCommand(context.Background(), "getfile", true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = s.ReadBytes(ctx, nil)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestReadBytesRefusesOversizedPayload(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	srv.Handle("getfile", serveBinary(pattern(5000)))
	cfg := testConfig()
	cfg.Limits = frame.Limits{MaxPayloadBytes: 4096}
	s := New(cfg)
	require.NoError(t, s.Connect(context.Background(), srv.Addr(), true))
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.SendCommand(context.Background(), "getfile", true)
	require.NoError(t, err)
	data, err := s.ReadBytes(context.Background(), nil)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	require.Nil(t, data)
	require.False(t, s.Connected())
}

func TestReadBytesAsync(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	payload := pattern(5000)
	srv.Handle("getfile", serveBinary(payload))
	s := connect(t, srv)

	_, err := s.SendCommand(context.Background(), "getfile", true)
	require.NoError(t, err)
	res := <-s.ReadBytesAsync(context.Background(), nil)
	require.NoError(t, res.Err)
	require.Equal(t, payload, res.Data)
}

func TestCopyToStreamsIntoSink(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	payload := pattern(2*ChunkSize + 17)
	srv.Handle("getfile", serveBinary(payload))
	s := connect(t, srv)

	_, err := s.SendCommand(context.Background(), "getfile", true)
	require.NoError(t, err)

	var sink bytes.Buffer
	var events []TransferProgress
	n, err := s.CopyTo(context.Background(), &sink, 1024, func(p TransferProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	require.Equal(t, payload, sink.Bytes())
	requireMonotonic(t, events, uint64(len(payload)))
	for i := 1; i < len(events); i++ {
		require.LessOrEqual(t, events[i].Transferred-events[i-1].Transferred, uint64(1024))
	}
}

// acceptUpload answers "sendfile length=N" with 204, reads N raw bytes and
// reports them on got.
func acceptUpload(got chan<- []byte) fakexbdm.Handler {
	return func(c *fakexbdm.Conn, cmd fakexbdm.Command) error {
		n, ok := cmd.Args.Uint32("length")
		if !ok {
			return c.Status(protocol.StatusUnexpectedError, "missing length")
		}
		if err := c.Status(protocol.StatusReadyForBinary, "send binary data"); err != nil {
			return err
		}
		data, err := c.ReadFull(int(n))
		if err != nil {
			return err
		}
		got <- data
		return c.Status(protocol.StatusOK, fmt.Sprintf("received %d bytes", n))
	}
}

func TestWriteBytesChunkedWithProgress(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	got := make(chan []byte, 1)
	srv.Handle("sendfile", acceptUpload(got))

	var observed []TransferProgress
	s := connect(t, srv, WithObserver(ObserverFuncs{Write: func(p TransferProgress) {
		observed = append(observed, p)
	}}))
	ctx := context.Background()
	payload := pattern(2*ChunkSize + 1)

	resp, err := s.SendCommand(ctx, fmt.Sprintf("sendfile length=%d", len(payload)), true)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusReadyForBinary, resp.Status)

	var events []TransferProgress
	require.NoError(t, s.WriteBytes(payload, func(p TransferProgress) { events = append(events, p) }))
	require.Equal(t, payload, <-got)
	requireMonotonic(t, events, uint64(len(payload)))
	require.Len(t, events, 3)
	require.Equal(t, events, observed)
	for _, ev := range events {
		require.Equal(t, DirectionWrite, ev.Direction)
	}

	line, err := s.ReadLine(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "200-"), line)
}

func TestWriteBytesIgnoresCancellation(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	got := make(chan []byte, 1)
	srv.Handle("sendfile", acceptUpload(got))
	s := connect(t, srv)
	payload := pattern(3 * ChunkSize)

	_, err := s.SendCommand(context.Background(), fmt.Sprintf("sendfile length=%d", len(payload)), true)
	require.NoError(t, err)
	err = <-s.WriteBytesAsync(payload, func(TransferProgress) { s.Cancel() })
	require.NoError(t, err)
	require.Equal(t, payload, <-got)
}

func TestCopyFromStreamsSource(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	got := make(chan []byte, 1)
	srv.Handle("sendfile", acceptUpload(got))
	s := connect(t, srv)
	payload := pattern(ChunkSize + 99)

	_, err := s.SendCommand(context.Background(), fmt.Sprintf("sendfile length=%d", len(payload)), true)
	require.NoError(t, err)

	var events []TransferProgress
	n, err := s.CopyFrom(bytes.NewReader(payload), 0, func(p TransferProgress) { events = append(events, p) })
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	require.Equal(t, payload, <-got)
	require.Len(t, events, 2)
	require.Equal(t, uint64(len(payload)), events[len(events)-1].Transferred)
}

func TestPing(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	s := connect(t, srv)
	ctx := context.Background()

	require.True(t, s.Ping(ctx, time.Second))

	s.Cancel()
	_, err := s.SendCommand(ctx, "dbgname", true)
	require.ErrorIs(t, err, ErrCancelled)

	// ping runs under its own scope and resets the session scope on success
	require.True(t, s.Ping(ctx, time.Second))
	resp, err := s.SendCommand(ctx, "dbgname", true)
	require.NoError(t, err)
	require.True(t, resp.Success())
}

func TestPingFailureStatus(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	srv.Handle("dbgname", func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		return c.Status(protocol.StatusNotDebuggable, "not debuggable")
	})
	s := connect(t, srv)
	require.False(t, s.Ping(context.Background(), time.Second))
}

func TestPingTimeout(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	release := waitForRelease(t)
	srv.Handle("dbgname", func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		<-release
		return nil
	})
	s := connect(t, srv)

	start := time.Now()
	require.False(t, s.Ping(context.Background(), 50*time.Millisecond))
	require.Less(t, time.Since(start), time.Second)
}

func TestPingTimeoutDropsLateReply(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	srv.Handle("dbgname", func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		time.Sleep(100 * time.Millisecond)
		return c.Status(protocol.StatusOK, "late-dbgname-reply")
	})
	s := connect(t, srv)
	ctx := context.Background()

	require.False(t, s.Ping(ctx, 30*time.Millisecond))
	time.Sleep(200 * time.Millisecond)

	resp, err := s.SendCommand(ctx, "frobnicate", false)
	require.NoError(t, err)
	require.Nil(t, resp)
	require.False(t, s.Connected())
	require.NotContains(t, srv.Commands(), "frobnicate")

	require.NoError(t, s.Reconnect(ctx))
	resp, err = s.SendCommand(ctx, "frobnicate", false)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusUnknownCommand, resp.Status)
}

func TestCancelledReplyDisconnects(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	release := waitForRelease(t)
	srv.Handle("walk", func(c *fakexbdm.Conn, _ fakexbdm.Command) error {
		if err := c.Status(protocol.StatusMultiline, "multiline response follows"); err != nil {
			return err
		}
		<-release
		return nil
	})
	s := connect(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.SendCommand(ctx, "walk", true)
	require.ErrorIs(t, err, ErrCancelled)
	require.False(t, s.Connected())
	require.Equal(t, srv.Addr(), s.Host())
}

func TestReconnectAfterFailedConnectUsesNewHost(t *testing.T) {
	testlog.Start(t)
	srv := fakexbdm.Start(t)
	s := connect(t, srv)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().String()
	require.NoError(t, ln.Close())

	require.ErrorIs(t, s.Connect(context.Background(), dead, true), ErrConnection)
	require.Equal(t, dead, s.Host())
	require.ErrorIs(t, s.Reconnect(context.Background()), ErrConnection)
	require.Equal(t, 1, srv.Connections())
}

func TestCancelledErrorCarriesCause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cancelled(ctx)
	require.True(t, errors.Is(err, ErrCancelled))
	require.True(t, errors.Is(err, context.Canceled))
}
