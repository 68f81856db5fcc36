package fakexbdm

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sajidur78/xedbg/internal/protocol"
)

// RowBytes is how many bytes one getmem row carries.
const RowBytes = 32

const DebugName = "fakexbox"

func (s *Server) installDefaults() {
	s.handlers["dbgname"] = func(c *Conn, _ Command) error {
		return c.Status(protocol.StatusOK, DebugName)
	}
	s.handlers["bye"] = func(c *Conn, _ Command) error {
		if err := c.Status(protocol.StatusOK, "bye"); err != nil {
			return err
		}
		return c.HangUp()
	}
	s.handlers["getmem"] = s.getmem
	s.handlers["setmem"] = s.setmem
	s.handlers["modules"] = s.listModules
}

func (s *Server) getmem(c *Conn, cmd Command) error {
	addr, ok := cmd.Args.Uint32("addr")
	if !ok {
		return c.Status(protocol.StatusUnexpectedError, "missing addr")
	}
	length, ok := cmd.Args.Uint32("length")
	if !ok {
		return c.Status(protocol.StatusUnexpectedError, "missing length")
	}

	var rows []string
	var row strings.Builder
	for i := uint32(0); i < length; i++ {
		if b, ok := s.Memory.Get(addr + i); ok {
			fmt.Fprintf(&row, "%02X", b)
		} else {
			row.WriteString("??")
		}
		if (i+1)%RowBytes == 0 {
			rows = append(rows, row.String())
			row.Reset()
		}
	}
	if row.Len() > 0 {
		rows = append(rows, row.String())
	}
	return c.Multiline(rows)
}

func (s *Server) setmem(c *Conn, cmd Command) error {
	addr, ok := cmd.Args.Uint32("addr")
	if !ok {
		return c.Status(protocol.StatusUnexpectedError, "missing addr")
	}
	data, err := hex.DecodeString(cmd.Args.String("data"))
	if err != nil {
		return c.Status(protocol.StatusUnexpectedError, "bad data")
	}
	set := 0
	for i, b := range data {
		if s.Memory.Set(addr+uint32(i), b) {
			set++
		}
	}
	if set == 0 && len(data) > 0 {
		return c.Status(protocol.StatusMemoryNotMapped, "memory not mapped")
	}
	return c.Status(protocol.StatusOK, fmt.Sprintf("set %d bytes", set))
}

func (s *Server) listModules(c *Conn, _ Command) error {
	s.mu.Lock()
	mods := append([]Module(nil), s.modules...)
	s.mu.Unlock()

	rows := make([]string, 0, len(mods))
	for _, m := range mods {
		rows = append(rows, fmt.Sprintf(`name="%s" base=0x%08x size=0x%08x check=0x00000000 timestamp=0x00000000`, m.Name, m.Base, m.Size))
	}
	return c.Multiline(rows)
}
