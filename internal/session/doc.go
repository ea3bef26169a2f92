// Package session tracks the coarse-grained ledger state: which file is
// registered, whether it is being processed, and a denormalized copy of its
// balances for status displays.
//
// Service is constructed once per daemon and handed to the engine and the
// command surface. Observers subscribe for copies of the state and never
// mutate it. State is persisted immediately on every transition and on a
// fixed interval while processing.
package session
