package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sajidur78/xedbg/internal/modules"
)

// Wildcard marks a mask position that matches any byte. Any other mask
// character requires an exact match.
const Wildcard = '?'

// ScanSignature searches a module image for pattern under mask and returns
// absolute addresses. moduleName picks the image; empty picks the most
// recently enumerated one. When buf is nil the whole image is downloaded
// first; otherwise buf is taken to start at the module base. With firstOnly
// the search stops at the first hit. A disconnected session yields nil.
func (c *Client) ScanSignature(ctx context.Context, buf, pattern []byte, mask, moduleName string, firstOnly bool) ([]uint32, error) {
	if len(pattern) == 0 {
		return nil, nil
	}
	if len(mask) != len(pattern) {
		return nil, fmt.Errorf("%w: pattern %d, mask %d", ErrPatternMask, len(pattern), len(mask))
	}
	if c.modules == nil {
		return nil, ErrNoModules
	}
	mod, err := c.modules.Resolve(ctx, moduleName)
	if errors.Is(err, modules.ErrNotConnected) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if buf == nil {
		buf, err = c.ReadBytes(ctx, mod.Base, mod.Size)
		if err != nil {
			return nil, err
		}
	}

	offsets := FindPattern(buf, pattern, mask, firstOnly)
	out := make([]uint32, len(offsets))
	for i, off := range offsets {
		out[i] = mod.Base + uint32(off)
	}
	c.log.Debug().Str("module", mod.Name).Int("scanned", len(buf)).Int("hits", len(out)).Msg("signature scan")
	return out, nil
}

// FindPattern returns the offsets in buf where pattern matches under mask.
// Matches may overlap. A pattern running past the end of buf never matches.
func FindPattern(buf, pattern []byte, mask string, firstOnly bool) []int {
	if len(pattern) == 0 || len(mask) != len(pattern) {
		return nil
	}
	var hits []int
	for i := range buf {
		j := 0
		for ; j < len(mask) && i+j < len(buf); j++ {
			if mask[j] != Wildcard && pattern[j] != buf[i+j] {
				break
			}
		}
		if j != len(mask) {
			continue
		}
		hits = append(hits, i)
		if firstOnly {
			return hits
		}
	}
	return hits
}

// ParseSignature turns "48 8B ?? 05" into a pattern and an x/? mask. A
// token of "?" or "??" is a wildcard.
func ParseSignature(sig string) ([]byte, string, error) {
	fields := strings.Fields(sig)
	if len(fields) == 0 {
		return nil, "", fmt.Errorf("%w: empty", ErrSignature)
	}
	pattern := make([]byte, len(fields))
	var mask strings.Builder
	for i, f := range fields {
		if f == "?" || f == Unmapped {
			mask.WriteByte(Wildcard)
			continue
		}
		b, err := strconv.ParseUint(f, 16, 8)
		if err != nil || len(f) > 2 {
			return nil, "", fmt.Errorf("%w: token %q", ErrSignature, f)
		}
		pattern[i] = byte(b)
		mask.WriteByte('x')
	}
	return pattern, mask.String(), nil
}
