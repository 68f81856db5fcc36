package config

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sajidur78/xedbg/internal/memory"
	"github.com/sajidur78/xedbg/internal/protocol/session"
)

// Config is the resolved client configuration.
type Config struct {
	Hosts          []string
	Session        session.Config
	MemoryOrder    binary.ByteOrder
	StringEncoding memory.TextEncoding
}

func Default() Config {
	return Config{
		Hosts:          []string{},
		Session:        session.DefaultConfig(),
		MemoryOrder:    binary.BigEndian,
		StringEncoding: memory.UTF8,
	}
}

type backoffFile struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

type fileConfig struct {
	Hosts           []string    `toml:"hosts"`
	Port            int         `toml:"port"`
	ConnectTimeout  string      `toml:"connect_timeout"`
	ReadTimeout     string      `toml:"read_timeout"`
	WriteTimeout    string      `toml:"write_timeout"`
	PingTimeout     string      `toml:"ping_timeout"`
	ConnectAttempts int         `toml:"connect_attempts"`
	MaxLineBytes    int         `toml:"max_line_bytes"`
	MaxReadBytes    uint64      `toml:"max_read_bytes"`
	SizePrefixOrder string      `toml:"size_prefix_order"`
	MemoryOrder     string      `toml:"memory_order"`
	StringEncoding  string      `toml:"string_encoding"`
	Backoff         backoffFile `toml:"backoff"`
}

// Load layers the keys present in the TOML file at path over Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("hosts") {
		cfg.Hosts = normalizeHosts(raw.Hosts)
	}
	if meta.IsDefined("port") {
		cfg.Session.Port = raw.Port
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"ping_timeout", raw.PingTimeout, &cfg.Session.PingTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("connect_attempts") {
		cfg.Session.ConnectAttempts = raw.ConnectAttempts
	}
	if meta.IsDefined("max_line_bytes") {
		cfg.Session.MaxLineBytes = raw.MaxLineBytes
	}
	if meta.IsDefined("max_read_bytes") {
		cfg.Session.Limits.MaxPayloadBytes = raw.MaxReadBytes
	}
	if meta.IsDefined("size_prefix_order") {
		order, err := ParseByteOrder(raw.SizePrefixOrder)
		if err != nil {
			return Config{}, fmt.Errorf("parse size_prefix_order: %w", err)
		}
		cfg.Session.SizePrefixOrder = order
	}
	if meta.IsDefined("memory_order") {
		order, err := ParseByteOrder(raw.MemoryOrder)
		if err != nil {
			return Config{}, fmt.Errorf("parse memory_order: %w", err)
		}
		cfg.MemoryOrder = order
	}
	if meta.IsDefined("string_encoding") {
		enc, err := memory.LookupEncoding(strings.TrimSpace(raw.StringEncoding))
		if err != nil {
			return Config{}, fmt.Errorf("parse string_encoding: %w", err)
		}
		cfg.StringEncoding = enc
	}

	if meta.IsDefined("backoff", "initial_delay") {
		d, err := ParseDuration(raw.Backoff.InitialDelay)
		if err != nil {
			return Config{}, fmt.Errorf("parse backoff.initial_delay: %w", err)
		}
		cfg.Session.Backoff.InitialDelay = d
	}
	if meta.IsDefined("backoff", "max_delay") {
		d, err := ParseDuration(raw.Backoff.MaxDelay)
		if err != nil {
			return Config{}, fmt.Errorf("parse backoff.max_delay: %w", err)
		}
		cfg.Session.Backoff.MaxDelay = d
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Session.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Session.Backoff.Jitter = raw.Backoff.Jitter
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	s := cfg.Session
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("config port out of range: %d", s.Port)
	}
	if s.ConnectAttempts < 1 {
		return fmt.Errorf("config connect_attempts must be at least 1")
	}
	if s.ConnectTimeout <= 0 || s.ReadTimeout <= 0 || s.WriteTimeout <= 0 || s.PingTimeout <= 0 {
		return fmt.Errorf("config timeouts must be positive")
	}
	if s.Backoff.Multiplier < 1 {
		return fmt.Errorf("config backoff.multiplier must be >= 1")
	}
	for i, h := range cfg.Hosts {
		if strings.HasPrefix(h, ":") {
			return fmt.Errorf("host[%d] %q: address required", i, h)
		}
	}
	return nil
}

func normalizeHosts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		v := strings.TrimSpace(h)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
