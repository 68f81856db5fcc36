package session

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/sajidur78/xedbg/internal/protocol/frame"
)

const (
	// DefaultPort is the debug monitor's well-known TCP port.
	DefaultPort = 730

	// ChunkSize caps every socket read or write in the streaming loops.
	ChunkSize = 4096

	// DefaultCopyBufferSize is the pooled buffer size for CopyTo/CopyFrom.
	DefaultCopyBufferSize = 81920

	DefaultPingTimeout = time.Second
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport/session defaults.
type Config struct {
	Port            int
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PingTimeout     time.Duration
	ConnectAttempts int
	MaxLineBytes    int
	// SizePrefixOrder decodes the 4-byte length ahead of binary payloads.
	SizePrefixOrder binary.ByteOrder
	// Limits caps the buffer ReadBytes allocates for one payload. CopyTo
	// streams and is not capped.
	Limits          frame.Limits
	Backoff         BackoffConfig
	Resolver        *net.Resolver
}

// DefaultConfig returns the defaults used against a stock debug monitor.
func DefaultConfig() Config {
	return Config{
		Port:            DefaultPort,
		ConnectTimeout:  5 * time.Second,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		PingTimeout:     DefaultPingTimeout,
		ConnectAttempts: 1,
		MaxLineBytes:    128 * 1024,
		SizePrefixOrder: binary.LittleEndian,
		Limits:          frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Port <= 0 {
		c.Port = d.Port
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = d.ConnectAttempts
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = d.MaxLineBytes
	}
	if c.SizePrefixOrder == nil {
		c.SizePrefixOrder = d.SizePrefixOrder
	}
	if c.Limits == (frame.Limits{}) {
		c.Limits = d.Limits
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	if c.Resolver == nil {
		c.Resolver = net.DefaultResolver
	}
	return c
}
