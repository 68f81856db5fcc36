package config

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// ParseByteOrder accepts "big"/"be"/"big-endian" and the little-endian
// equivalents.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "big", "be", "big-endian", "bigendian":
		return binary.BigEndian, nil
	case "little", "le", "little-endian", "littleendian":
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order: %q", s)
	}
}

// OrderName renders a byte order the way ParseByteOrder reads it.
func OrderName(order binary.ByteOrder) string {
	if order == binary.BigEndian {
		return "big"
	}
	return "little"
}

func ParseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(s))
}
