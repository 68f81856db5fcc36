package protocol

import "strconv"

// Status is the three digit code leading every response.
type Status int

const (
	StatusOK                  Status = 200
	StatusConnected           Status = 201
	StatusMultiline           Status = 202
	StatusBinary              Status = 203
	StatusReadyForBinary      Status = 204
	StatusConnectionDedicated Status = 205

	StatusUnexpectedError     Status = 400
	StatusMaxConnections      Status = 401
	StatusFileNotFound        Status = 402
	StatusNoSuchModule        Status = 403
	StatusMemoryNotMapped     Status = 404
	StatusNoSuchThread        Status = 405
	StatusClockNotSet         Status = 406
	StatusUnknownCommand      Status = 407
	StatusNotStopped          Status = 408
	StatusFileMustBeCopied    Status = 409
	StatusFileAlreadyExists   Status = 410
	StatusDirectoryNotEmpty   Status = 411
	StatusBadFilename         Status = 412
	StatusFileCannotBeCreated Status = 413
	StatusAccessDenied        Status = 414
	StatusNoRoomOnDevice      Status = 415
	StatusNotDebuggable       Status = 416
	StatusTypeInvalid         Status = 417
	StatusDataNotAvailable    Status = 418
	StatusBoxNotLocked        Status = 420
	StatusKeyExchangeRequired Status = 421
	StatusDedicatedRequired   Status = 422
)

var statusNames = map[Status]string{
	StatusOK:                  "ok",
	StatusConnected:           "connected",
	StatusMultiline:           "multiline response follows",
	StatusBinary:              "binary response follows",
	StatusReadyForBinary:      "send binary data",
	StatusConnectionDedicated: "connection dedicated",
	StatusUnexpectedError:     "unexpected error",
	StatusMaxConnections:      "max number of connections exceeded",
	StatusFileNotFound:        "file not found",
	StatusNoSuchModule:        "no such module",
	StatusMemoryNotMapped:     "memory not mapped",
	StatusNoSuchThread:        "no such thread",
	StatusClockNotSet:         "clock not set",
	StatusUnknownCommand:      "unknown command",
	StatusNotStopped:          "not stopped",
	StatusFileMustBeCopied:    "file must be copied",
	StatusFileAlreadyExists:   "file already exists",
	StatusDirectoryNotEmpty:   "directory not empty",
	StatusBadFilename:         "filename is invalid",
	StatusFileCannotBeCreated: "file cannot be created",
	StatusAccessDenied:        "access denied",
	StatusNoRoomOnDevice:      "no room on device",
	StatusNotDebuggable:       "not debuggable",
	StatusTypeInvalid:         "type invalid",
	StatusDataNotAvailable:    "data not available",
	StatusBoxNotLocked:        "box not locked",
	StatusKeyExchangeRequired: "key exchange required",
	StatusDedicatedRequired:   "dedicated connection required",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status " + strconv.Itoa(int(s))
}

// Success reports whether s is in the 2xx range.
func (s Status) Success() bool {
	return s >= 200 && s < 300
}

// Multiline reports whether a '.'-terminated body follows the status line.
func (s Status) Multiline() bool {
	return s == StatusMultiline
}

// Binary reports whether a length-prefixed binary frame follows the status line.
func (s Status) Binary() bool {
	return s == StatusBinary
}
