// Package engine runs the chunked ingestion loop for one ledger file at a
// time.
//
// A run reads the file sequentially from a start offset, feeds each chunk
// through a ledger.Scanner, and publishes progress to subscribers, the
// session service and the checkpoint tracker after every chunk. Pause, Resume,
// Stop and Terminate are delivered to the run goroutine as commands and take
// effect between chunks, so every forced checkpoint pairs an offset with the
// balances folded up to exactly that offset.
package engine
