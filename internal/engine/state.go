package engine

import (
	"errors"
	"time"

	"tally/internal/fileid"
	"tally/internal/ledger"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StatePaused     State = "paused"
	StateCompleted  State = "completed"
	StateStopped    State = "stopped"
)

// Active reports whether a run goroutine owns the state.
func (s State) Active() bool {
	return s == StateProcessing || s == StatePaused
}

var (
	// ErrBusy is returned when Start is called while a run is active.
	ErrBusy = errors.New("engine: a file is already being processed")
	// ErrNotRunning is returned by run commands when no run is active.
	ErrNotRunning = errors.New("engine: no active run")
	// ErrNotPaused is returned by Resume when the run is not paused.
	ErrNotPaused = errors.New("engine: run is not paused")
	// ErrConfirmRequired is returned by Stop without confirmation.
	ErrConfirmRequired = errors.New("engine: stop requires confirmation")
)

// ProgressFunc receives progress after every chunk. Balances is a copy.
type ProgressFunc func(percent float64, balances []ledger.CurrencyBalance)

// FinishFunc receives the final status of a run that completed or failed.
type FinishFunc func(Status)

// Status is a point-in-time view of the engine.
type Status struct {
	State          State
	RunID          string
	Path           string
	Identity       fileid.Identity
	StartOffset    int64
	BytesProcessed int64
	FileSize       int64
	Percent        float64
	ChunkSize      int
	Records        int64
	Balances       []ledger.CurrencyBalance
	StartedAt      time.Time
	PausedAt       *time.Time
	LastError      string
}

// StartRequest describes a run. Offset and Seed come from recovery.
type StartRequest struct {
	Path     string
	Identity fileid.Identity
	Offset   int64
	Seed     []ledger.CurrencyBalance
}
