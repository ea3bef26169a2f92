// Package daemon coordinates the long-running Tally process.
//
// It wires configuration, the state database, the checkpoint and session
// stores, the processing engine and the recovery coordinator into a single
// lifecycle with flock-based locking to prevent multiple instances. The
// daemon exposes the operator commands (select, pause, resume, stop, clear)
// and saves in-flight progress when it shuts down. Finished runs are announced
// through the notifications service.
//
// Keep orchestration logic here: ingestion itself lives in the engine while
// the daemon focuses on startup, shutdown and command routing.
package daemon
