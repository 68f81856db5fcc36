package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// SizeLen is the width of the length prefix ahead of every binary payload.
const SizeLen = 4

// MaxPayload is the largest payload a 32-bit length prefix can describe.
const MaxPayload uint64 = math.MaxUint32

var (
	ErrShortSize       = errors.New("frame: short length prefix")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Limits caps how much a reader allocates for one payload.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 256 * 1024 * 1024,
	}
}

// Check rejects a payload of n bytes above the cap. A zero cap allows any
// size a length prefix can describe.
func (l Limits) Check(n uint64) error {
	if l.MaxPayloadBytes > 0 && n > l.MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, n, l.MaxPayloadBytes)
	}
	return CheckPayload(n)
}

// ReadSize reads the 4-byte length prefix in the given byte order.
func ReadSize(r io.Reader, order binary.ByteOrder) (uint32, error) {
	var b [SizeLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, ErrShortSize
		}
		return 0, err
	}
	return order.Uint32(b[:]), nil
}

func WriteSize(w io.Writer, n uint32, order binary.ByteOrder) error {
	var b [SizeLen]byte
	order.PutUint32(b[:], n)
	_, err := w.Write(b[:])
	return err
}

// CheckPayload rejects payloads a length prefix cannot describe.
func CheckPayload(n uint64) error {
	if n > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	return nil
}

func WriteFrame(w io.Writer, payload []byte, order binary.ByteOrder) error {
	if err := CheckPayload(uint64(len(payload))); err != nil {
		return err
	}
	if err := WriteSize(w, uint32(len(payload)), order); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
