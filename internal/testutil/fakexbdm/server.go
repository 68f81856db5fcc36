// Package fakexbdm is an in-process debug monitor for tests. It speaks the
// line protocol, keeps a sparse memory map for getmem/setmem and answers a
// configurable module list.
package fakexbdm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/nettest"

	"github.com/sajidur78/xedbg/internal/protocol"
	"github.com/sajidur78/xedbg/internal/protocol/frame"
	"github.com/sajidur78/xedbg/internal/protocol/response"
)

// Command is one received command line.
type Command struct {
	Line string
	Name string
	Args response.Values
}

// Handler answers one command. Returning ErrHangUp closes the connection.
type Handler func(c *Conn, cmd Command) error

var ErrHangUp = errors.New("fakexbdm: hang up")

// Module is one entry of the "modules" reply.
type Module struct {
	Name string
	Base uint32
	Size uint32
}

type Server struct {
	ln     net.Listener
	Memory *Memory

	mu        sync.Mutex
	handlers  map[string]Handler
	commands  []string
	modules   []Module
	greeting  string
	sizeOrder binary.ByteOrder
	conns     map[net.Conn]struct{}
	accepted  int
	wg        sync.WaitGroup
}

// Start listens on a local port and serves until the test ends.
func Start(t *testing.T) *Server {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("fakexbdm listen: %v", err)
	}
	s := &Server{
		ln:        ln,
		Memory:    NewMemory(),
		handlers:  map[string]Handler{},
		greeting:  "201- connected",
		sizeOrder: binary.LittleEndian,
		conns:     map[net.Conn]struct{}{},
	}
	s.installDefaults()
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Handle replaces the handler for a command name (case-insensitive).
func (s *Server) Handle(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[strings.ToLower(name)] = h
}

func (s *Server) SetModules(mods ...Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules = append([]Module(nil), mods...)
}

func (s *Server) SetSizeOrder(order binary.ByteOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizeOrder = order
}

// Connections returns how many connections were accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Commands returns every command line received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// CountCommands returns how many received commands start with name.
func (s *Server) CountCommands(name string) int {
	n := 0
	for _, c := range s.Commands() {
		if strings.HasPrefix(strings.ToLower(c), strings.ToLower(name)) {
			n++
		}
	}
	return n
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.accepted++
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.mu.Lock()
	c := &Conn{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		writer:    bufio.NewWriter(conn),
		sizeOrder: s.sizeOrder,
	}
	greeting := s.greeting
	s.mu.Unlock()

	if err := c.Line(greeting); err != nil {
		return
	}
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := parseCommand(line)

		s.mu.Lock()
		s.commands = append(s.commands, line)
		h, ok := s.handlers[cmd.Name]
		s.mu.Unlock()

		if !ok {
			h = func(c *Conn, _ Command) error {
				return c.Status(protocol.StatusUnknownCommand, "unknown command")
			}
		}
		if err := h(c, cmd); err != nil {
			return
		}
	}
}

func parseCommand(line string) Command {
	name, rest, _ := strings.Cut(line, " ")
	return Command{
		Line: line,
		Name: strings.ToLower(name),
		Args: response.ParseValues(rest),
	}
}

// Conn is the server side of one client connection.
type Conn struct {
	conn      net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	sizeOrder binary.ByteOrder
}

// Line writes text plus CRLF and flushes.
func (c *Conn) Line(text string) error {
	if _, err := c.writer.WriteString(text + "\r\n"); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Conn) Status(status protocol.Status, message string) error {
	return c.Line(fmt.Sprintf("%03d- %s", int(status), message))
}

// Multiline writes a 202 status, the rows and the "." terminator.
func (c *Conn) Multiline(rows []string) error {
	if err := c.Status(protocol.StatusMultiline, "multiline response follows"); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := c.writer.WriteString(row + "\r\n"); err != nil {
			return err
		}
	}
	return c.Line(response.Terminator)
}

// Binary writes a 203 status followed by a length-prefixed payload.
func (c *Conn) Binary(payload []byte) error {
	if err := c.Status(protocol.StatusBinary, "binary response follows"); err != nil {
		return err
	}
	return c.Frame(payload)
}

// Frame writes a length-prefixed payload without a status line.
func (c *Conn) Frame(payload []byte) error {
	if err := frame.WriteFrame(c.writer, payload, c.sizeOrder); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Raw writes b as is.
func (c *Conn) Raw(b []byte) error {
	if _, err := c.writer.Write(b); err != nil {
		return err
	}
	return c.writer.Flush()
}

// ReadFull reads exactly n bytes sent by the client.
func (c *Conn) ReadFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(c.reader, buf)
	return buf, err
}

// HangUp closes the connection.
func (c *Conn) HangUp() error {
	_ = c.conn.Close()
	return ErrHangUp
}
