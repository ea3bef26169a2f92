// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The server owns the socket lifecycle and converts daemon and engine state
// into the DTOs in types.go. The client maps engine sentinel errors back from
// their wire text so callers can test them with errors.Is.
package ipc
