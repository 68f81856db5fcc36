package memory

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// TextEncoding pairs a character encoding with its code unit width.
type TextEncoding struct {
	Name     string
	Encoding encoding.Encoding
	Unit     int
}

var (
	UTF8    = TextEncoding{Name: "utf-8", Encoding: unicode.UTF8, Unit: 1}
	Latin1  = TextEncoding{Name: "latin-1", Encoding: charmap.ISO8859_1, Unit: 1}
	UTF16BE = TextEncoding{Name: "utf-16be", Encoding: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), Unit: 2}
	UTF16LE = TextEncoding{Name: "utf-16le", Encoding: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), Unit: 2}
)

var textEncodings = []TextEncoding{UTF8, Latin1, UTF16BE, UTF16LE}

// LookupEncoding finds a TextEncoding by name, ignoring case.
func LookupEncoding(name string) (TextEncoding, error) {
	for _, enc := range textEncodings {
		if strings.EqualFold(enc.Name, name) {
			return enc, nil
		}
	}
	return TextEncoding{}, fmt.Errorf("memory: unknown encoding %q", name)
}

// ReadStringNullTerminated reads one code unit at a time from addr until a
// zero unit, which is not included, and decodes the units with enc. A zero
// TextEncoding means UTF8. Reading also stops when a read comes back empty.
func (c *Client) ReadStringNullTerminated(ctx context.Context, addr uint32, enc TextEncoding) (string, error) {
	if enc.Encoding == nil {
		enc = UTF8
	}
	unit := max(enc.Unit, 1)
	zero := make([]byte, unit)

	var raw []byte
	for {
		b, err := c.ReadBytes(ctx, addr, uint32(unit))
		if err != nil {
			return "", err
		}
		if len(b) < unit || bytes.Equal(b, zero) {
			break
		}
		raw = append(raw, b...)
		addr += uint32(unit)
	}

	out, err := enc.Encoding.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("memory: decode %s: %w", enc.Name, err)
	}
	return string(out), nil
}
