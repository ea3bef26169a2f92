package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"tally/internal/config"
	"tally/internal/fileid"
	"tally/internal/kvstore"
	"tally/internal/ledger"
	"tally/internal/logging"
)

const stateKey = "session/ledger"

// Service owns the session ledger state.
type Service struct {
	kv           kvstore.KV
	codec        kvstore.Codec
	logger       *slog.Logger
	syncInterval time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       *State
	dirty       bool
	subscribers map[int]func(State)
	nextSubID   int
}

// NewService constructs the session service. Call Load before use.
func NewService(kv kvstore.KV, syncInterval time.Duration, compress bool, logger *slog.Logger) *Service {
	if syncInterval <= 0 {
		syncInterval = 10 * time.Second
	}
	return &Service{
		kv:           kv,
		codec:        kvstore.Codec{Compress: compress},
		logger:       logging.NewComponentLogger(logger, "session"),
		syncInterval: syncInterval,
		now:          time.Now,
		subscribers:  make(map[int]func(State)),
	}
}

// NewFromConfig builds a Service from the [checkpoint] settings.
func NewFromConfig(cfg *config.Config, kv kvstore.KV, logger *slog.Logger) *Service {
	return NewService(kv, cfg.SessionSyncInterval(), cfg.Checkpoint.Compress, logger)
}

// Load restores persisted state. A state left processing by a previous
// process is marked idle since no run survives a restart.
func (s *Service) Load(ctx context.Context) error {
	data, err := s.kv.Get(ctx, stateKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session state: %w", err)
	}
	var st State
	if err := s.codec.Unmarshal(data, &st); err != nil {
		logging.WarnWithContext(s.logger, "session state unreadable; starting empty", "session_state_corrupt",
			logging.Error(err),
			logging.String(logging.FieldImpact, "coarse resume information lost; checkpoints unaffected"))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &st
	if st.IsProcessing {
		st.IsProcessing = false
		return s.persistLocked(ctx)
	}
	return nil
}

// Snapshot returns a copy of the current state and whether a file is registered.
func (s *Service) Snapshot() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return State{}, false
	}
	return s.state.clone(), true
}

// Subscribe registers fn to receive a copy of the state after every change.
// The returned function removes the subscription.
func (s *Service) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Register records id as the active file, seeded with the balances recovered
// for offset. A different file replaces the previous state.
func (s *Service) Register(ctx context.Context, id fileid.Identity, offset int64, balances []ledger.CurrencyBalance) error {
	return s.transition(ctx, func(st *State) {
		if st.IdentityKey != id.Key() {
			*st = State{}
		}
		st.FileName = id.Name
		st.FileSize = id.Size
		st.ModTime = id.ModTime
		st.IdentityKey = id.Key()
		st.TotalBytes = id.Size
		st.BytesProcessed = offset
		st.Percent = percent(offset, id.Size)
		st.IsComplete = false
		st.LastError = ""
		st.Balances = slices.Clone(balances)
	})
}

// Tick records engine progress without persisting; the sync loop flushes it.
func (s *Service) Tick(bytesProcessed int64, pct float64, balances []ledger.CurrencyBalance) {
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return
	}
	s.state.BytesProcessed = bytesProcessed
	s.state.Percent = pct
	s.state.Balances = ledger.MergeBalances(s.state.Balances, balances)
	s.dirty = true
	snapshot := s.state.clone()
	subs := s.subscriberList()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// MarkProcessing records that a run started or resumed.
func (s *Service) MarkProcessing(ctx context.Context) error {
	return s.transition(ctx, func(st *State) {
		st.IsProcessing = true
		st.PausedAt = nil
		st.LastError = ""
	})
}

// MarkPaused records a pause at the given time.
func (s *Service) MarkPaused(ctx context.Context, at time.Time) error {
	return s.transition(ctx, func(st *State) {
		st.IsProcessing = false
		st.PausedAt = &at
	})
}

// MarkStopped records that the run ended without completing.
func (s *Service) MarkStopped(ctx context.Context) error {
	return s.transition(ctx, func(st *State) {
		st.IsProcessing = false
		st.PausedAt = nil
	})
}

// MarkFailed records a run that halted on an error.
func (s *Service) MarkFailed(ctx context.Context, cause error) error {
	return s.transition(ctx, func(st *State) {
		st.IsProcessing = false
		st.LastError = cause.Error()
	})
}

// MarkComplete records a finished run, keeping its final balances.
func (s *Service) MarkComplete(ctx context.Context, balances []ledger.CurrencyBalance) error {
	return s.transition(ctx, func(st *State) {
		st.IsProcessing = false
		st.IsComplete = true
		st.PausedAt = nil
		st.BytesProcessed = st.TotalBytes
		st.Percent = 100
		st.Balances = ledger.MergeBalances(st.Balances, balances)
	})
}

// ClearBalances empties the balances and rewinds progress to the start of the
// file. The registration is kept but is no longer resumable.
func (s *Service) ClearBalances(ctx context.Context) error {
	return s.transition(ctx, func(st *State) {
		st.Balances = nil
		st.BytesProcessed = 0
		st.Percent = 0
		st.IsComplete = false
		st.IsProcessing = false
		st.PausedAt = nil
	})
}

// Reset forgets the registered file.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.state = nil
	s.dirty = false
	subs := s.subscriberList()
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, stateKey); err != nil {
		return fmt.Errorf("reset session state: %w", err)
	}
	for _, fn := range subs {
		fn(State{})
	}
	return nil
}

// Sync persists pending ticks while a run is processing.
func (s *Service) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil || !s.dirty || !s.state.IsProcessing {
		return nil
	}
	return s.persistLocked(ctx)
}

// Run persists the state every sync interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(s.logger, "session sync failed", "session_sync_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "status may lag until the next sync"))
			}
		}
	}
}

func (s *Service) transition(ctx context.Context, mutate func(*State)) error {
	s.mu.Lock()
	if s.state == nil {
		s.state = &State{}
	}
	mutate(s.state)
	err := s.persistLocked(ctx)
	snapshot := s.state.clone()
	subs := s.subscriberList()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return err
}

func (s *Service) persistLocked(ctx context.Context) error {
	s.state.LastSync = s.now().UTC()
	data, err := s.codec.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if err := s.kv.Put(ctx, stateKey, data); err != nil {
		return fmt.Errorf("persist session state: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *Service) subscriberList() []func(State) {
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func percent(offset, size int64) float64 {
	if size <= 0 {
		return 100
	}
	return float64(offset) / float64(size) * 100
}
