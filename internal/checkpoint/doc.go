// Package checkpoint persists fine-grained progress snapshots keyed by file
// identity.
//
// A ProgressCheckpoint records exactly how far a run got and the balances
// accumulated up to that offset. Lookups return a Lookup variant rather than a
// nilable record so callers switch over every outcome. Tracker wraps the store
// for a single run and applies the autosave throttle and milestone saves.
//
// Checkpoints older than the configured maximum age are stale and discarded
// when looked up.
package checkpoint
