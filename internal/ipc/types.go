package ipc

import (
	"time"

	"tally/internal/checkpoint"
	"tally/internal/ledger"
	"tally/internal/session"
)

// CheckpointInfo summarizes a stored checkpoint.
type CheckpointInfo = checkpoint.Summary

// SessionInfo is the persisted session ledger.
type SessionInfo = session.State

// SelectRequest selects a ledger file for processing.
type SelectRequest struct {
	Path  string `json:"path"`
	Fresh bool   `json:"fresh"`
}

// SelectResponse reports where processing began.
type SelectResponse struct {
	RunID      string                   `json:"run_id"`
	Source     string                   `json:"source"`
	Offset     int64                    `json:"offset"`
	Percent    float64                  `json:"percent"`
	Reattached bool                     `json:"reattached"`
	Skipped    string                   `json:"skipped,omitempty"`
	Balances   []ledger.CurrencyBalance `json:"balances"`
}

// PauseRequest pauses the active run.
type PauseRequest struct{}

// PauseResponse reports the offset the run paused at.
type PauseResponse struct {
	BytesProcessed int64   `json:"bytes_processed"`
	Percent        float64 `json:"percent"`
}

// ResumeRequest resumes a paused run.
type ResumeRequest struct{}

// ResumeResponse indicates the run resumed.
type ResumeResponse struct {
	Resumed bool `json:"resumed"`
}

// StopRequest stops the active run. Confirm must be set.
type StopRequest struct {
	Confirm bool `json:"confirm"`
}

// StopResponse reports the offset saved for the stopped run.
type StopResponse struct {
	Stopped        bool  `json:"stopped"`
	BytesProcessed int64 `json:"bytes_processed"`
}

// ClearCheckpointRequest removes one checkpoint by identity key.
type ClearCheckpointRequest struct {
	Key string `json:"key"`
}

// ClearCheckpointResponse indicates the checkpoint was removed.
type ClearCheckpointResponse struct {
	Cleared bool `json:"cleared"`
}

// ClearBalancesRequest empties session balances and every checkpoint.
type ClearBalancesRequest struct{}

// ClearBalancesResponse reports how many checkpoints were removed.
type ClearBalancesResponse struct {
	Removed int64 `json:"removed"`
}

// ResetRequest forgets the session state.
type ResetRequest struct{}

// ResetResponse indicates the session was reset.
type ResetResponse struct {
	Reset bool `json:"reset"`
}

// CheckpointListRequest lists stored checkpoints.
type CheckpointListRequest struct{}

// CheckpointListResponse contains stored checkpoints.
type CheckpointListResponse struct {
	Checkpoints []CheckpointInfo `json:"checkpoints"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon, engine and session status.
type StatusResponse struct {
	Running        bool                     `json:"running"`
	PID            int                      `json:"pid"`
	State          string                   `json:"state"`
	RunID          string                   `json:"run_id"`
	File           string                   `json:"file"`
	Path           string                   `json:"path"`
	IdentityKey    string                   `json:"identity_key"`
	BytesProcessed int64                    `json:"bytes_processed"`
	FileSize       int64                    `json:"file_size"`
	Percent        float64                  `json:"percent"`
	Records        int64                    `json:"records"`
	ChunkSize      int                      `json:"chunk_size"`
	StartedAt      time.Time                `json:"started_at"`
	PausedAt       *time.Time               `json:"paused_at,omitempty"`
	LastError      string                   `json:"last_error"`
	Balances       []ledger.CurrencyBalance `json:"balances"`
	Session        *SessionInfo             `json:"session,omitempty"`
	NeedsRecovery  bool                     `json:"needs_recovery"`
	Checkpoints    []CheckpointInfo         `json:"checkpoints"`
	DBPath         string                   `json:"db_path"`
	LockPath       string                   `json:"lock_path"`
	LogPath        string                   `json:"log_path"`
}
