// Package protocol owns the debug monitor wire contract.
//
// Ownership boundary:
// - status code taxonomy
// - server error type
// - response parsing (response/)
// - length-prefixed binary frames (frame/)
// - the command session (session/)
package protocol
