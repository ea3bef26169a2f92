// Package ledger folds currency/amount records into per-currency aggregates.
//
// Balances is the running aggregate map. Scanner recognizes records in a
// stream of byte chunks and keeps the unconsumed tail of each chunk so a
// record straddling a chunk boundary is counted exactly once. MergeBalances
// reconciles a displayed balance set with an incoming progress tick.
package ledger
