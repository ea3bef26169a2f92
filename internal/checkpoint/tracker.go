package checkpoint

import (
	"context"
	"math"
	"time"

	"tally/internal/config"
	"tally/internal/fileid"
	"tally/internal/ledger"
)

// Throttle configures Tracker.AutoSave and milestone saves.
type Throttle struct {
	PercentStep      float64
	MinInterval      time.Duration
	MilestonePercent float64
}

// ThrottleFromConfig reads the [checkpoint] throttle settings.
func ThrottleFromConfig(cfg *config.Config) Throttle {
	return Throttle{
		PercentStep:      cfg.Checkpoint.AutosavePercentStep,
		MinInterval:      cfg.AutosaveMinInterval(),
		MilestonePercent: float64(cfg.Checkpoint.MilestonePercent),
	}
}

// Tracker saves checkpoints for one run of one file.
type Tracker struct {
	store    *Store
	identity fileid.Identity
	throttle Throttle
	now      func() time.Time

	lastPercent   float64
	lastCount     int
	lastSave      time.Time
	lastMilestone int
}

// Track starts a tracker for a run of id beginning at startOffset with the
// seeded balances.
func (s *Store) Track(id fileid.Identity, startOffset int64, seeded []ledger.CurrencyBalance, throttle Throttle) *Tracker {
	s.BeginRun(id, startOffset)
	start := Percent(startOffset, id.Size)
	return &Tracker{
		store:         s,
		identity:      id,
		throttle:      throttle,
		now:           s.now,
		lastPercent:   start,
		lastCount:     len(seeded),
		lastMilestone: milestoneIndex(start, throttle.MilestonePercent),
	}
}

// AutoSave persists only when progress advanced by at least PercentStep or the
// number of currencies changed, and MinInterval has elapsed since the last save.
func (t *Tracker) AutoSave(ctx context.Context, percent float64, bytesProcessed int64, balances []ledger.CurrencyBalance) (bool, error) {
	advanced := percent-t.lastPercent >= t.throttle.PercentStep
	changed := len(balances) != t.lastCount
	if !advanced && !changed {
		return false, nil
	}
	if !t.lastSave.IsZero() && t.now().Sub(t.lastSave) < t.throttle.MinInterval {
		return false, nil
	}
	return t.persist(ctx, percent, bytesProcessed, balances)
}

// ForceSave persists regardless of throttling.
func (t *Tracker) ForceSave(ctx context.Context, percent float64, bytesProcessed int64, balances []ledger.CurrencyBalance) error {
	_, err := t.persist(ctx, percent, bytesProcessed, balances)
	return err
}

// Milestone forces a save the first time percent crosses each milestone boundary.
func (t *Tracker) Milestone(ctx context.Context, percent float64, bytesProcessed int64, balances []ledger.CurrencyBalance) (bool, error) {
	idx := milestoneIndex(percent, t.throttle.MilestonePercent)
	if idx <= t.lastMilestone {
		return false, nil
	}
	saved, err := t.persist(ctx, percent, bytesProcessed, balances)
	if err != nil {
		return false, err
	}
	t.lastMilestone = idx
	return saved, nil
}

func (t *Tracker) persist(ctx context.Context, percent float64, bytesProcessed int64, balances []ledger.CurrencyBalance) (bool, error) {
	saved, err := t.store.save(ctx, ProgressCheckpoint{
		Identity:       t.identity,
		FileName:       t.identity.Name,
		FileSize:       t.identity.Size,
		Percent:        percent,
		BytesProcessed: bytesProcessed,
		Balances:       balances,
	})
	if err != nil {
		return false, err
	}
	t.lastPercent = percent
	t.lastCount = len(balances)
	t.lastSave = t.now()
	return saved, nil
}

// Clear removes the run's checkpoint.
func (t *Tracker) Clear(ctx context.Context) error {
	return t.store.Clear(ctx, t.identity)
}

func milestoneIndex(percent, step float64) int {
	if step <= 0 {
		return 0
	}
	return int(math.Floor(percent / step))
}
