package response

import (
	"strconv"
	"strings"
)

// Values is one result row split into key=value pairs. Bare words are stored
// with an empty value.
type Values map[string]string

// ParseValues splits a row such as
//
//	name="xam.xex" base=0x81000000 size=0x00100000 tls
//
// into its fields. Quoted values may contain spaces.
func ParseValues(row string) Values {
	out := Values{}
	i := 0
	for i < len(row) {
		for i < len(row) && row[i] == ' ' {
			i++
		}
		if i >= len(row) {
			break
		}
		start := i
		for i < len(row) && row[i] != '=' && row[i] != ' ' {
			i++
		}
		key := strings.ToLower(row[start:i])
		if i >= len(row) || row[i] == ' ' {
			out[key] = ""
			continue
		}
		i++ // '='
		if i < len(row) && row[i] == '"' {
			i++
			start = i
			for i < len(row) && row[i] != '"' {
				i++
			}
			out[key] = row[start:i]
			if i < len(row) {
				i++
			}
			continue
		}
		start = i
		for i < len(row) && row[i] != ' ' {
			i++
		}
		out[key] = row[start:i]
	}
	return out
}

func (v Values) String(key string) string {
	return v[strings.ToLower(key)]
}

func (v Values) Has(key string) bool {
	_, ok := v[strings.ToLower(key)]
	return ok
}

// Uint32 parses a decimal or 0x-prefixed hexadecimal field.
func (v Values) Uint32(key string) (uint32, bool) {
	raw, ok := v[strings.ToLower(key)]
	if !ok || raw == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
