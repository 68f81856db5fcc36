// Package session owns the debug monitor command session.
//
// Ownership boundary:
// - connect/disconnect/reconnect and host resolution
// - the command/response cycle and line reader
// - length-prefixed binary reads and chunked writes with progress
// - the cancellation scope shared by streaming reads
//
// One command is in flight at a time; a per-session mutex enforces it.
// Streaming reads stop at chunk granularity once the scope or the caller
// context is done. Writes always run to completion because the wire has no
// abort signal.
package session
