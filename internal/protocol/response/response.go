// Package response parses debug monitor replies: one status line, optionally
// followed by result rows collected by the session.
package response

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sajidur78/xedbg/internal/protocol"
)

// Terminator ends a multiline body.
const Terminator = "."

// Response is one parsed reply.
type Response struct {
	Status  protocol.Status
	Message string
	Results []string
}

// Parse builds a Response from a status line. Result rows are attached by the
// caller once the body has been read.
func Parse(line string) (*Response, error) {
	status, message, err := ParseStatusLine(line)
	if err != nil {
		return nil, err
	}
	return &Response{Status: status, Message: message}, nil
}

// ParseStatusLine splits "NNN- message" into its code and message.
func ParseStatusLine(line string) (protocol.Status, string, error) {
	line = strings.TrimRight(line, "\r\n")
	if !IsStatusLine(line) {
		return 0, "", fmt.Errorf("%w: %q", protocol.ErrMalformedStatus, line)
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", protocol.ErrMalformedStatus, line)
	}
	return protocol.Status(code), strings.TrimSpace(line[4:]), nil
}

// IsStatusLine reports whether line looks like "NNN-...". Multiline bodies use
// it to tell payload rows from a trailing status line.
func IsStatusLine(line string) bool {
	if len(line) < 4 || line[3] != '-' {
		return false
	}
	for i := 0; i < 3; i++ {
		if line[i] < '0' || line[i] > '9' {
			return false
		}
	}
	return true
}

func (r *Response) Success() bool {
	return r != nil && r.Status.Success()
}

func (r *Response) Multiline() bool {
	return r != nil && r.Status.Multiline()
}

func (r *Response) Binary() bool {
	return r != nil && r.Status.Binary()
}

// Err returns a *protocol.ServerError for failure statuses and nil otherwise.
func (r *Response) Err() error {
	if r == nil || r.Status.Success() {
		return nil
	}
	return &protocol.ServerError{Status: r.Status, Message: r.Message}
}

// IsBye reports whether the server acknowledged session teardown.
func (r *Response) IsBye() bool {
	return r != nil && strings.EqualFold(r.Message, "bye")
}

// Joined concatenates all result rows.
func (r *Response) Joined() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Results, "")
}
