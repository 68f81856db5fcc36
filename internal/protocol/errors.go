package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrServer          = errors.New("protocol: server reported failure")
	ErrMalformedStatus = errors.New("protocol: malformed status line")
)

// ServerError carries a failure status returned by the debug monitor.
type ServerError struct {
	Status  Status
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("protocol: server error %d (%s)", int(e.Status), e.Status)
	}
	return fmt.Sprintf("protocol: server error %d (%s): %s", int(e.Status), e.Status, e.Message)
}

func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

// StatusOf reports the status carried by a ServerError anywhere in err's chain.
func StatusOf(err error) (Status, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}
