package session

import (
	"slices"
	"time"

	"tally/internal/ledger"
)

// State is the singleton session ledger.
type State struct {
	FileName       string                   `json:"file_name"`
	FileSize       int64                    `json:"file_size"`
	ModTime        int64                    `json:"mod_time"`
	IdentityKey    string                   `json:"identity_key"`
	BytesProcessed int64                    `json:"bytes_processed"`
	TotalBytes     int64                    `json:"total_bytes"`
	Percent        float64                  `json:"percent"`
	IsComplete     bool                     `json:"is_complete"`
	IsProcessing   bool                     `json:"is_processing"`
	PausedAt       *time.Time               `json:"paused_at,omitempty"`
	LastError      string                   `json:"last_error,omitempty"`
	Balances       []ledger.CurrencyBalance `json:"balances"`
	LastSync       time.Time                `json:"last_sync"`
}

func (s State) clone() State {
	s.Balances = slices.Clone(s.Balances)
	if s.PausedAt != nil {
		at := *s.PausedAt
		s.PausedAt = &at
	}
	return s
}

// MatchesFile reports whether the state references a file of the given name
// and size.
func (s State) MatchesFile(name string, size int64) bool {
	return s.FileName == name && s.FileSize == size
}

// Resumable reports whether the state describes unfinished work.
func (s State) Resumable() bool {
	return !s.IsComplete && s.BytesProcessed > 0 && s.BytesProcessed < s.TotalBytes
}
