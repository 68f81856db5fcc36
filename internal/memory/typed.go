package memory

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"slices"
)

// Fixed is a scalar with a fixed wire size.
type Fixed interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// sameOrder compares byte orders by behaviour rather than identity so that
// binary.NativeEndian matches the explicit order it stands for.
func sameOrder(a, b binary.ByteOrder) bool {
	probe := []byte{1, 2}
	return a.Uint16(probe) == b.Uint16(probe)
}

// ToHost returns the bytes of one scalar laid out in wire order as host-order
// bytes. They are reversed exactly when wire and host order differ.
func ToHost(b []byte, wire binary.ByteOrder) []byte {
	out := slices.Clone(b)
	if !sameOrder(wire, binary.NativeEndian) {
		slices.Reverse(out)
	}
	return out
}

// FromHost is the inverse of ToHost.
func FromHost(b []byte, wire binary.ByteOrder) []byte {
	return ToHost(b, wire)
}

// Decode reinterprets wire-order bytes as T.
func Decode[T Fixed](b []byte, wire binary.ByteOrder) (T, error) {
	var v T
	if len(b) < binary.Size(v) {
		return v, fmt.Errorf("%w: %d of %d bytes", ErrShortRead, len(b), binary.Size(v))
	}
	host := ToHost(b[:binary.Size(v)], wire)
	_, err := binary.Decode(host, binary.NativeEndian, &v)
	return v, err
}

// Encode renders v as wire-order bytes.
func Encode[T Fixed](v T, wire binary.ByteOrder) ([]byte, error) {
	host, err := binary.Append(nil, binary.NativeEndian, v)
	if err != nil {
		return nil, err
	}
	return FromHost(host, wire), nil
}

// Read reads one T at addr in the client's declared order. It returns the
// zero value when nothing came back.
func Read[T Fixed](ctx context.Context, c *Client, addr uint32) (T, error) {
	var zero T
	b, err := c.ReadBytes(ctx, addr, uint32(binary.Size(zero)))
	if err != nil || len(b) == 0 {
		return zero, err
	}
	return Decode[T](b, c.order)
}

// Write stores v at addr in the same declared order Read uses, so a Write
// followed by a Read returns v.
func Write[T Fixed](ctx context.Context, c *Client, addr uint32, v T) error {
	b, err := Encode(v, c.order)
	if err != nil {
		return err
	}
	return c.WriteBytes(ctx, addr, b)
}

// ReadInto fills v, a pointer to a fixed-size value or struct, from addr
// using the declared order field by field.
func (c *Client) ReadInto(ctx context.Context, addr uint32, v any) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("memory: %T has no fixed size", v)
	}
	b, err := c.ReadBytes(ctx, addr, uint32(size))
	if err != nil || len(b) == 0 {
		return err
	}
	if len(b) < size {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortRead, len(b), size)
	}
	return binary.Read(bytes.NewReader(b), c.order, v)
}

// WriteFrom stores v, a fixed-size value or struct, at addr in the declared
// order.
func (c *Client) WriteFrom(ctx context.Context, addr uint32, v any) error {
	b, err := binary.Append(nil, c.order, v)
	if err != nil {
		return err
	}
	return c.WriteBytes(ctx, addr, b)
}

// DereferencePointer follows count 32-bit pointers starting at addr and
// returns the final address. count 0 returns addr.
func (c *Client) DereferencePointer(ctx context.Context, addr uint32, count int) (uint32, error) {
	for range count {
		next, err := Read[uint32](ctx, c, addr)
		if err != nil {
			return 0, err
		}
		addr = next
	}
	return addr, nil
}
