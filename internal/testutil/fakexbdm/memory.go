package fakexbdm

import (
	"sort"
	"sync"
)

// Memory is a sparse byte map. Addresses that were never mapped read as "??".
type Memory struct {
	mu    sync.Mutex
	bytes map[uint32]byte
}

func NewMemory() *Memory {
	return &Memory{bytes: map[uint32]byte{}}
}

// Map makes data readable and writable at base.
func (m *Memory) Map(base uint32, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range data {
		m.bytes[base+uint32(i)] = b
	}
}

func (m *Memory) Get(addr uint32) (byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bytes[addr]
	return b, ok
}

// Set writes b at addr if addr is mapped.
func (m *Memory) Set(addr uint32, b byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bytes[addr]; !ok {
		return false
	}
	m.bytes[addr] = b
	return true
}

// Snapshot returns length bytes at addr; unmapped bytes are zero.
func (m *Memory) Snapshot(addr uint32, length int) []byte {
	out := make([]byte, length)
	for i := range out {
		out[i], _ = m.Get(addr + uint32(i))
	}
	return out
}

// Addresses lists mapped addresses in order.
func (m *Memory) Addresses() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint32, 0, len(m.bytes))
	for a := range m.bytes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
