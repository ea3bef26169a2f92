package recovery

import (
	"time"

	"tally/internal/checkpoint"
	"tally/internal/fileid"
	"tally/internal/ledger"
)

// Source names where a Plan's offset and balances came from.
type Source string

const (
	SourceLive       Source = "live"
	SourceCheckpoint Source = "checkpoint"
	SourceSession    Source = "session"
	SourceFresh      Source = "fresh"
)

// Plan is the starting point chosen for a file.
type Plan struct {
	Source   Source
	Identity fileid.Identity
	Offset   int64
	Percent  float64
	Balances []ledger.CurrencyBalance

	// RunID is set for SourceLive.
	RunID string
	// SavedAt is the checkpoint or session sync time, when known.
	SavedAt time.Time
	// Skipped holds a checkpoint lookup that was not usable, such as a stale
	// or mismatched entry, for reporting.
	Skipped checkpoint.Lookup
}

// Resumes reports whether the plan continues earlier progress.
func (p Plan) Resumes() bool {
	return p.Source != SourceFresh
}
