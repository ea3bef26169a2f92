package checkpoint

import (
	"time"

	"tally/internal/fileid"
	"tally/internal/ledger"
)

// SchemaVersion is bumped whenever ProgressCheckpoint changes shape.
const SchemaVersion = 1

// ProgressCheckpoint is a resumable snapshot of one run.
type ProgressCheckpoint struct {
	Identity       fileid.Identity          `json:"identity"`
	FileName       string                   `json:"file_name"`
	FileSize       int64                    `json:"file_size"`
	Percent        float64                  `json:"percent"`
	BytesProcessed int64                    `json:"bytes_processed"`
	Balances       []ledger.CurrencyBalance `json:"balances"`
	SavedAt        time.Time                `json:"saved_at"`
	SchemaVersion  int                      `json:"schema_version"`
}

// Lookup is the outcome of loading a checkpoint. It is one of NoCheckpoint,
// ValidCheckpoint, StaleCheckpoint or IdentityMismatch.
type Lookup interface {
	lookup()
}

// NoCheckpoint means nothing usable was stored for the identity.
type NoCheckpoint struct{}

// ValidCheckpoint carries a checkpoint safe to resume from.
type ValidCheckpoint struct {
	Checkpoint ProgressCheckpoint
}

// StaleCheckpoint means a checkpoint existed but exceeded the maximum age and
// has been discarded.
type StaleCheckpoint struct {
	SavedAt time.Time
	Age     time.Duration
}

// IdentityMismatch means checkpoints exist for a file of the same name but a
// different identity, typically because the file changed.
type IdentityMismatch struct {
	StoredKeys []string
}

func (NoCheckpoint) lookup()     {}
func (ValidCheckpoint) lookup()  {}
func (StaleCheckpoint) lookup()  {}
func (IdentityMismatch) lookup() {}

// Percent computes completion for offset within size.
func Percent(offset, size int64) float64 {
	if size <= 0 {
		return 100
	}
	return float64(offset) / float64(size) * 100
}
