// Package modules enumerates the images loaded on the target with the
// "modules" command and resolves them by name.
package modules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sajidur78/xedbg/internal/protocol/response"
)

// Command lists loaded modules, one key=value row per image.
const Command = "modules"

var (
	ErrModuleNotFound = errors.New("modules: module not found")
	// ErrNotConnected is returned by Resolve when the listing got no reply.
	ErrNotConnected = errors.New("modules: not connected")
)

// Commander issues one command cycle.
type Commander interface {
	SendCommand(ctx context.Context, command string, throwOnServerError bool) (*response.Response, error)
}

// Module is one loaded image.
type Module struct {
	Name      string
	Base      uint32
	Size      uint32
	Checksum  uint32
	Timestamp uint32
	Flags     []string
}

// End returns the first address past the image.
func (m Module) End() uint64 {
	return uint64(m.Base) + uint64(m.Size)
}

// Contains reports whether addr falls inside the image.
func (m Module) Contains(addr uint32) bool {
	return addr >= m.Base && uint64(addr) < m.End()
}

var knownFields = map[string]struct{}{
	"name": {}, "base": {}, "size": {}, "check": {}, "timestamp": {},
}

// ParseModule decodes one row of the modules listing.
func ParseModule(row string) (Module, error) {
	v := response.ParseValues(row)
	name := v.String("name")
	if name == "" {
		return Module{}, fmt.Errorf("modules: row without name: %q", row)
	}
	base, ok := v.Uint32("base")
	if !ok {
		return Module{}, fmt.Errorf("modules: %s: missing base", name)
	}
	size, _ := v.Uint32("size")
	check, _ := v.Uint32("check")
	stamp, _ := v.Uint32("timestamp")

	var flags []string
	for k, val := range v {
		if _, known := knownFields[k]; known || val != "" {
			continue
		}
		flags = append(flags, k)
	}
	sort.Strings(flags)

	return Module{
		Name:      name,
		Base:      base,
		Size:      size,
		Checksum:  check,
		Timestamp: stamp,
		Flags:     flags,
	}, nil
}

// Directory caches the most recent enumeration.
type Directory struct {
	cmd Commander

	mu   sync.Mutex
	last []Module
}

func NewDirectory(cmd Commander) *Directory {
	return &Directory{cmd: cmd}
}

// Enumerate runs the modules command and replaces the cache. A disconnected
// session yields an empty list.
func (d *Directory) Enumerate(ctx context.Context) ([]Module, error) {
	mods, _, err := d.enumerate(ctx)
	return mods, err
}

// enumerate also reports whether the target answered at all.
func (d *Directory) enumerate(ctx context.Context) ([]Module, bool, error) {
	resp, err := d.cmd.SendCommand(ctx, Command, true)
	if err != nil {
		return nil, true, err
	}
	if resp == nil {
		return nil, false, nil
	}
	mods := make([]Module, 0, len(resp.Results))
	for _, row := range resp.Results {
		if strings.TrimSpace(row) == "" {
			continue
		}
		m, err := ParseModule(row)
		if err != nil {
			return nil, true, err
		}
		mods = append(mods, m)
	}

	d.mu.Lock()
	d.last = mods
	d.mu.Unlock()
	return append([]Module(nil), mods...), true, nil
}

// Cached returns the last enumeration without talking to the target.
func (d *Directory) Cached() []Module {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Module(nil), d.last...)
}

// Resolve finds a module by name (case-insensitive). An empty name selects
// the most recently enumerated module. The target is enumerated when nothing
// is cached or the name is not in the cache. ErrNotConnected means the
// enumeration got no reply.
func (d *Directory) Resolve(ctx context.Context, name string) (Module, error) {
	if m, ok := d.lookup(name); ok {
		return m, nil
	}
	_, answered, err := d.enumerate(ctx)
	if err != nil {
		return Module{}, err
	}
	if !answered {
		return Module{}, ErrNotConnected
	}
	if m, ok := d.lookup(name); ok {
		return m, nil
	}
	if name == "" {
		return Module{}, ErrModuleNotFound
	}
	return Module{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
}

func (d *Directory) lookup(name string) (Module, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.last) == 0 {
		return Module{}, false
	}
	if name == "" {
		return d.last[len(d.last)-1], true
	}
	for _, m := range d.last {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Module{}, false
}
