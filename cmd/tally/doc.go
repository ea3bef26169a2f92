// Package main hosts the tally CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the daemon: selecting a ledger file, pausing, resuming and stopping
// the run, inspecting progress and balances, and clearing saved progress. It
// also launches and shuts down the daemon process, tails its log, and
// scaffolds the configuration file.
package main
