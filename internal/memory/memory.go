// Package memory reads, writes and scans target memory through the command
// channel of a session. It never touches the socket; every access is a
// getmem or setmem command.
//
// The target is big-endian. Typed reads and writes convert between the
// declared wire order and host order explicitly, see ToHost.
package memory

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sajidur78/xedbg/internal/logging"
	"github.com/sajidur78/xedbg/internal/modules"
	"github.com/sajidur78/xedbg/internal/protocol/response"
)

// Unmapped is the row a memory dump carries for a byte on an unmapped page.
const Unmapped = "??"

var (
	ErrBadDump     = errors.New("memory: malformed hex dump")
	ErrShortRead   = errors.New("memory: short read")
	ErrPatternMask = errors.New("memory: pattern and mask lengths differ")
	ErrSignature   = errors.New("memory: malformed signature")
	ErrNoModules   = errors.New("memory: no module resolver")
)

// Commander issues one command cycle. *session.Session satisfies it.
type Commander interface {
	SendCommand(ctx context.Context, command string, throwOnServerError bool) (*response.Response, error)
}

// ModuleResolver finds the image a signature scan runs over. An empty name
// selects the most recently enumerated module. *modules.Directory satisfies
// it.
type ModuleResolver interface {
	Resolve(ctx context.Context, name string) (modules.Module, error)
}

type Options struct {
	// Order is the declared byte order of typed values on the target.
	// Defaults to big-endian.
	Order   binary.ByteOrder
	Modules ModuleResolver
	Logger  *zerolog.Logger
}

// Client is the memory-access layer over one Commander.
type Client struct {
	cmd     Commander
	order   binary.ByteOrder
	modules ModuleResolver
	log     zerolog.Logger
}

func New(cmd Commander, opts Options) *Client {
	c := &Client{
		cmd:     cmd,
		order:   opts.Order,
		modules: opts.Modules,
		log:     logging.Component(log.Logger, "memory"),
	}
	if c.order == nil {
		c.order = binary.BigEndian
	}
	if opts.Logger != nil {
		c.log = *opts.Logger
	}
	return c
}

// Order returns the declared wire order used by typed reads and writes.
func (c *Client) Order() binary.ByteOrder {
	return c.order
}

// IsAccessible probes one byte at addr. It reports false when the reply has
// no rows or its only row is the unmapped marker.
func (c *Client) IsAccessible(ctx context.Context, addr uint32) (bool, error) {
	resp, err := c.cmd.SendCommand(ctx, getmemCommand(addr, 1), false)
	if err != nil {
		return false, err
	}
	if resp == nil || len(resp.Results) == 0 {
		return false, nil
	}
	if len(resp.Results) == 1 && strings.TrimSpace(resp.Results[0]) == Unmapped {
		return false, nil
	}
	return true, nil
}

// ReadBytes dumps length bytes at addr. Bytes on unmapped pages read as zero.
// A disconnected session yields nil.
func (c *Client) ReadBytes(ctx context.Context, addr uint32, length uint32) ([]byte, error) {
	resp, err := c.cmd.SendCommand(ctx, getmemCommand(addr, length), true)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	data, err := DecodeDump(resp.Joined())
	if err != nil {
		return nil, fmt.Errorf("getmem 0x%08X: %w", addr, err)
	}
	c.log.Debug().Uint32("addr", addr).Uint32("length", length).Int("read", len(data)).Msg("getmem")
	return data, nil
}

// WriteBytes sends data inline as hex in a single setmem command.
func (c *Client) WriteBytes(ctx context.Context, addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_, err := c.cmd.SendCommand(ctx, setmemCommand(addr, data), true)
	if err != nil {
		return err
	}
	c.log.Debug().Uint32("addr", addr).Int("length", len(data)).Msg("setmem")
	return nil
}

func getmemCommand(addr, length uint32) string {
	return fmt.Sprintf("getmem addr=0x%08X length=%d", addr, length)
}

func setmemCommand(addr uint32, data []byte) string {
	return fmt.Sprintf("setmem addr=0x%08X data=%s", addr, hex.EncodeToString(data))
}

// DecodeDump decodes concatenated getmem rows. Each "??" pair decodes as 0x00.
func DecodeDump(dump string) ([]byte, error) {
	dump = strings.TrimSpace(dump)
	if len(dump)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrBadDump, len(dump))
	}
	out := make([]byte, len(dump)/2)
	for i := range out {
		pair := dump[2*i : 2*i+2]
		if pair == Unmapped {
			continue
		}
		if _, err := hex.Decode(out[i:i+1], []byte(pair)); err != nil {
			return nil, fmt.Errorf("%w: %q at %d", ErrBadDump, pair, 2*i)
		}
	}
	return out, nil
}
