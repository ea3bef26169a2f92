package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tally/internal/config"
	"tally/internal/fileid"
	"tally/internal/kvstore"
	"tally/internal/ledger"
	"tally/internal/logging"
)

const (
	progressPrefix = "progress/"
	profilePrefix  = "profile/"
)

// Options tunes a Store.
type Options struct {
	MaxAge   time.Duration
	Compress bool
	Now      func() time.Time
}

// Store persists progress checkpoints in a KV.
type Store struct {
	kv     kvstore.KV
	codec  kvstore.Codec
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	highWater map[string]int64
}

// Summary describes a stored checkpoint for listings.
type Summary struct {
	Key            string    `json:"key"`
	FileName       string    `json:"file_name"`
	FileSize       int64     `json:"file_size"`
	BytesProcessed int64     `json:"bytes_processed"`
	Percent        float64   `json:"percent"`
	Currencies     int       `json:"currencies"`
	SavedAt        time.Time `json:"saved_at"`
	Stale          bool      `json:"stale"`
}

// NewStore wraps kv.
func NewStore(kv kvstore.KV, opts Options, logger *slog.Logger) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * 24 * time.Hour
	}
	return &Store{
		kv:        kv,
		codec:     kvstore.Codec{Compress: opts.Compress},
		maxAge:    opts.MaxAge,
		now:       opts.Now,
		logger:    logging.NewComponentLogger(logger, "checkpoint"),
		highWater: make(map[string]int64),
	}
}

// NewFromConfig builds a Store using the [checkpoint] settings.
func NewFromConfig(cfg *config.Config, kv kvstore.KV, logger *slog.Logger) *Store {
	return NewStore(kv, Options{
		MaxAge:   cfg.CheckpointMaxAge(),
		Compress: cfg.Checkpoint.Compress,
	}, logger)
}

func progressKey(id fileid.Identity) string {
	return progressPrefix + id.Key()
}

func profileKey(profileID string) string {
	return profilePrefix + profileID
}

// SaveProgress persists a full checkpoint for id. A checkpoint behind one
// already written during the current run is ignored.
func (s *Store) SaveProgress(ctx context.Context, id fileid.Identity, percent float64, bytesProcessed int64, balances []ledger.CurrencyBalance) error {
	_, err := s.save(ctx, ProgressCheckpoint{
		Identity:       id,
		FileName:       id.Name,
		FileSize:       id.Size,
		Percent:        percent,
		BytesProcessed: bytesProcessed,
		Balances:       balances,
	})
	return err
}

func (s *Store) save(ctx context.Context, cp ProgressCheckpoint) (bool, error) {
	key := progressKey(cp.Identity)

	s.mu.Lock()
	defer s.mu.Unlock()
	if hw, ok := s.highWater[key]; ok && cp.BytesProcessed < hw {
		s.logger.Debug("checkpoint behind high-water mark skipped",
			logging.Int64("bytes_processed", cp.BytesProcessed),
			logging.Int64("high_water", hw))
		return false, nil
	}

	cp.SavedAt = s.now().UTC()
	cp.SchemaVersion = SchemaVersion
	data, err := s.codec.Marshal(cp)
	if err != nil {
		return false, fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := s.kv.Put(ctx, key, data); err != nil {
		return false, fmt.Errorf("persist checkpoint: %w", err)
	}
	s.highWater[key] = cp.BytesProcessed
	return true, nil
}

// BeginRun resets the high-water mark for id to the run's starting offset.
func (s *Store) BeginRun(id fileid.Identity, startOffset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highWater[progressKey(id)] = startOffset
}

// LoadProgress looks up the checkpoint for id. Stale or unreadable entries are
// deleted. Only store failures are returned as errors.
func (s *Store) LoadProgress(ctx context.Context, id fileid.Identity) (Lookup, error) {
	key := progressKey(id)
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return s.lookupByName(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return s.classify(ctx, key, data, &id), nil
}

func (s *Store) classify(ctx context.Context, key string, data []byte, want *fileid.Identity) Lookup {
	var cp ProgressCheckpoint
	if err := s.codec.Unmarshal(data, &cp); err != nil {
		s.discard(ctx, key, "unreadable checkpoint discarded", logging.Error(err))
		return NoCheckpoint{}
	}
	if cp.SchemaVersion != SchemaVersion {
		s.discard(ctx, key, "checkpoint from another schema discarded", logging.Int("schema_version", cp.SchemaVersion))
		return NoCheckpoint{}
	}
	if want != nil && !cp.Identity.Equal(*want) {
		return IdentityMismatch{StoredKeys: []string{cp.Identity.Key()}}
	}
	if age := s.now().Sub(cp.SavedAt); age > s.maxAge {
		s.discard(ctx, key, "stale checkpoint discarded", logging.Duration("age", age))
		return StaleCheckpoint{SavedAt: cp.SavedAt, Age: age}
	}
	if cp.BytesProcessed < 0 || cp.BytesProcessed > cp.FileSize {
		s.discard(ctx, key, "checkpoint offset out of range discarded", logging.Int64("bytes_processed", cp.BytesProcessed))
		return NoCheckpoint{}
	}
	return ValidCheckpoint{Checkpoint: cp}
}

func (s *Store) lookupByName(ctx context.Context, id fileid.Identity) (Lookup, error) {
	entries, err := s.kv.List(ctx, progressPrefix)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var keys []string
	var stale Lookup
	for _, entry := range entries {
		identityKey := strings.TrimPrefix(entry.Key, progressPrefix)
		if nameFromKey(identityKey) != id.Name {
			continue
		}
		data, err := s.kv.Get(ctx, entry.Key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		// classify deletes stale, unreadable and out-of-range entries.
		switch found := s.classify(ctx, entry.Key, data, nil).(type) {
		case ValidCheckpoint:
			keys = append(keys, identityKey)
		case StaleCheckpoint:
			stale = found
		}
	}
	if len(keys) > 0 {
		return IdentityMismatch{StoredKeys: keys}, nil
	}
	if stale != nil {
		return stale, nil
	}
	return NoCheckpoint{}, nil
}

// nameFromKey extracts the file name from an identity key of the form
// "<digest|meta>-<size>-<mtime>-<name>".
func nameFromKey(key string) string {
	parts := strings.SplitN(key, "-", 4)
	if len(parts) != 4 {
		return ""
	}
	return parts[3]
}

func (s *Store) discard(ctx context.Context, key, msg string, attrs ...logging.Attr) {
	attrs = append(attrs, logging.String("key", key))
	s.logger.Info(msg, logging.Args(attrs...)...)
	if err := s.kv.Delete(ctx, key); err != nil {
		logging.WarnWithContext(s.logger, "checkpoint cleanup failed", "checkpoint_cleanup_failed",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale entry will be retried on next lookup"))
	}
}

// Clear removes the checkpoint for id.
func (s *Store) Clear(ctx context.Context, id fileid.Identity) error {
	return s.ClearKey(ctx, id.Key())
}

// ClearKey removes the checkpoint stored under an identity key.
func (s *Store) ClearKey(ctx context.Context, identityKey string) error {
	key := progressPrefix + identityKey
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	s.mu.Lock()
	delete(s.highWater, key)
	s.mu.Unlock()
	return nil
}

// ClearAll removes every progress checkpoint and returns how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	removed, err := s.kv.DeletePrefix(ctx, progressPrefix)
	if err != nil {
		return 0, fmt.Errorf("clear checkpoints: %w", err)
	}
	s.mu.Lock()
	clear(s.highWater)
	s.mu.Unlock()
	return removed, nil
}

// List summarizes every stored progress checkpoint.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	entries, err := s.kv.List(ctx, progressPrefix)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		data, err := s.kv.Get(ctx, entry.Key)
		if err != nil {
			continue
		}
		var cp ProgressCheckpoint
		if err := s.codec.Unmarshal(data, &cp); err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			Key:            strings.TrimPrefix(entry.Key, progressPrefix),
			FileName:       cp.FileName,
			FileSize:       cp.FileSize,
			BytesProcessed: cp.BytesProcessed,
			Percent:        cp.Percent,
			Currencies:     len(cp.Balances),
			SavedAt:        cp.SavedAt,
			Stale:          s.now().Sub(cp.SavedAt) > s.maxAge,
		})
	}
	return summaries, nil
}

// HasProgress reports whether any progress checkpoint is stored.
func (s *Store) HasProgress(ctx context.Context) (bool, error) {
	entries, err := s.kv.List(ctx, progressPrefix)
	if err != nil {
		return false, fmt.Errorf("list checkpoints: %w", err)
	}
	return len(entries) > 0, nil
}

// SaveProfile stores cp under a named profile slot, independent of identity.
func (s *Store) SaveProfile(ctx context.Context, profileID string, cp ProgressCheckpoint) error {
	if strings.TrimSpace(profileID) == "" {
		return errors.New("profile id is required")
	}
	cp.SavedAt = s.now().UTC()
	cp.SchemaVersion = SchemaVersion
	data, err := s.codec.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode profile checkpoint: %w", err)
	}
	if err := s.kv.Put(ctx, profileKey(profileID), data); err != nil {
		return fmt.Errorf("persist profile checkpoint: %w", err)
	}
	return nil
}

// LoadProfile returns the checkpoint stored in a profile slot.
func (s *Store) LoadProfile(ctx context.Context, profileID string) (Lookup, error) {
	key := profileKey(profileID)
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return NoCheckpoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile checkpoint: %w", err)
	}
	return s.classify(ctx, key, data, nil), nil
}

// ClearProfile removes a profile slot.
func (s *Store) ClearProfile(ctx context.Context, profileID string) error {
	if err := s.kv.Delete(ctx, profileKey(profileID)); err != nil {
		return fmt.Errorf("clear profile checkpoint: %w", err)
	}
	return nil
}
