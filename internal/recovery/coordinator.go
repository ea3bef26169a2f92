package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"tally/internal/checkpoint"
	"tally/internal/engine"
	"tally/internal/fileid"
	"tally/internal/logging"
	"tally/internal/session"
)

// LiveRuns exposes the in-process run, if any. *engine.Engine satisfies it.
type LiveRuns interface {
	Status() engine.Status
}

// Coordinator picks resume points.
type Coordinator struct {
	live        LiveRuns
	checkpoints *checkpoint.Store
	sessions    *session.Service
	logger      *slog.Logger
}

// NewCoordinator wires the coordinator. live and sessions may be nil.
func NewCoordinator(live LiveRuns, checkpoints *checkpoint.Store, sessions *session.Service, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		live:        live,
		checkpoints: checkpoints,
		sessions:    sessions,
		logger:      logging.NewComponentLogger(logger, "recovery"),
	}
}

// Plan decides where processing of id starts. An error is returned only when
// the checkpoint store cannot be read; stale or mismatched checkpoints fall
// through to the next source.
func (c *Coordinator) Plan(ctx context.Context, id fileid.Identity) (Plan, error) {
	logger := c.logger.With(logging.String(logging.FieldFile, id.Name))

	if plan, ok := c.fromLive(id); ok {
		logger.Info("reattaching to live run", logging.String("run_id", plan.RunID))
		return plan, nil
	}

	var skipped checkpoint.Lookup
	if c.checkpoints != nil {
		lookup, err := c.checkpoints.LoadProgress(ctx, id)
		if err != nil {
			return Plan{}, fmt.Errorf("recovery: load checkpoint: %w", err)
		}
		switch v := lookup.(type) {
		case checkpoint.ValidCheckpoint:
			cp := v.Checkpoint
			logger.Info("resuming from checkpoint",
				logging.String(logging.FieldEventType, "recovery_checkpoint"),
				logging.Int64("offset", cp.BytesProcessed),
				logging.Float64("percent", cp.Percent),
			)
			return Plan{
				Source:   SourceCheckpoint,
				Identity: id,
				Offset:   cp.BytesProcessed,
				Percent:  cp.Percent,
				Balances: slices.Clone(cp.Balances),
				SavedAt:  cp.SavedAt,
			}, nil
		case checkpoint.StaleCheckpoint:
			logger.Info("stale checkpoint discarded", logging.Duration("age", v.Age))
			skipped = v
		case checkpoint.IdentityMismatch:
			logger.Info("checkpoint belongs to a different file", logging.Int("stored", len(v.StoredKeys)))
			skipped = v
		case checkpoint.NoCheckpoint:
		}
	}

	if plan, ok := c.fromSession(id); ok {
		plan.Skipped = skipped
		logger.Info("resuming from session state",
			logging.String(logging.FieldEventType, "recovery_session"),
			logging.Int64("offset", plan.Offset),
		)
		return plan, nil
	}

	logger.Info("starting fresh", logging.String(logging.FieldEventType, "recovery_fresh"))
	return Plan{Source: SourceFresh, Identity: id, Skipped: skipped}, nil
}

func (c *Coordinator) fromLive(id fileid.Identity) (Plan, bool) {
	if c.live == nil {
		return Plan{}, false
	}
	st := c.live.Status()
	if !st.State.Active() || !st.Identity.Equal(id) {
		return Plan{}, false
	}
	return Plan{
		Source:   SourceLive,
		Identity: id,
		Offset:   st.BytesProcessed,
		Percent:  st.Percent,
		Balances: st.Balances,
		RunID:    st.RunID,
	}, true
}

// fromSession accepts the singleton when it names a file of the same name
// and size with unfinished progress.
func (c *Coordinator) fromSession(id fileid.Identity) (Plan, bool) {
	if c.sessions == nil {
		return Plan{}, false
	}
	st, ok := c.sessions.Snapshot()
	if !ok || !st.MatchesFile(id.Name, id.Size) || !st.Resumable() {
		return Plan{}, false
	}
	return Plan{
		Source:   SourceSession,
		Identity: id,
		Offset:   st.BytesProcessed,
		Percent:  st.Percent,
		Balances: st.Balances,
		SavedAt:  st.LastSync,
	}, true
}

// Info summarizes unfinished work found at startup.
type Info struct {
	Session     *session.State
	Checkpoints []checkpoint.Summary
}

// NeedsRecovery reports whether an unfinished session or a non-stale
// checkpoint exists.
func (c *Coordinator) NeedsRecovery(ctx context.Context) (Info, bool, error) {
	var info Info
	if c.sessions != nil {
		if st, ok := c.sessions.Snapshot(); ok && st.Resumable() {
			info.Session = &st
		}
	}
	if c.checkpoints != nil {
		summaries, err := c.checkpoints.List(ctx)
		if err != nil {
			return Info{}, false, err
		}
		for _, s := range summaries {
			if !s.Stale {
				info.Checkpoints = append(info.Checkpoints, s)
			}
		}
	}
	return info, info.Session != nil || len(info.Checkpoints) > 0, nil
}
