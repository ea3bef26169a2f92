package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tally/internal/checkpoint"
	"tally/internal/config"
	"tally/internal/engine"
	"tally/internal/fileid"
	"tally/internal/kvstore"
	"tally/internal/logging"
	"tally/internal/notifications"
	"tally/internal/preflight"
	"tally/internal/recovery"
	"tally/internal/session"
)

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another tally daemon instance is already running")

// shutdownTimeout bounds the terminate save during Stop.
const shutdownTimeout = 10 * time.Second

// Daemon coordinates the ingestion services and enforces single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *kvstore.Store
	checkpoints *checkpoint.Store
	sessions    *session.Service
	engine      *engine.Engine
	recovery    *recovery.Coordinator
	notifier    notifications.Service
	logPath     string
	unobserve   []func()

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	notifyWG sync.WaitGroup
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithRecorder routes engine measurements to r.
func WithRecorder(r engine.Recorder) Option {
	return func(d *Daemon) {
		d.engine.SetRecorder(r)
	}
}

// WithNotifier replaces the ntfy publisher built from configuration.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithSessionObserver calls fn with a copy of the session ledger after every change.
func WithSessionObserver(fn func(session.State)) Option {
	return func(d *Daemon) {
		d.unobserve = append(d.unobserve, d.sessions.Subscribe(fn))
	}
}

// WithLogPath records the log file reported by Status.
func WithLogPath(path string) Option {
	return func(d *Daemon) {
		d.logPath = path
	}
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Engine        engine.Status
	Session       *session.State
	Checkpoints   []checkpoint.Summary
	NeedsRecovery bool
	DBPath        string
	LockFilePath  string
	LogPath       string
}

// Selection describes the outcome of SelectFile.
type Selection struct {
	RunID      string
	Plan       recovery.Plan
	Reattached bool
}

// SelectOptions tunes SelectFile.
type SelectOptions struct {
	// Fresh ignores saved progress and starts at offset zero.
	Fresh bool
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *kvstore.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	checkpoints := checkpoint.NewFromConfig(cfg, store, logger)
	sessions := session.NewFromConfig(cfg, store, logger)
	eng := engine.NewFromConfig(cfg, checkpoints, sessions, logger)
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		store:       store,
		checkpoints: checkpoints,
		sessions:    sessions,
		engine:      eng,
		recovery:    recovery.NewCoordinator(eng, checkpoints, sessions, logger),
		notifier:    notifications.NewService(cfg),
		logPath:     filepath.Join(cfg.Paths.LogDir, "tally.log"),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	eng.OnFinish(d.announce)
	return d, nil
}

// Start acquires the daemon lock, restores session state and starts the
// session sync loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if err := d.sessions.Load(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("load session state: %w", err)
	}
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "checkpoints may not persist"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.sessions.Run(d.ctx, &d.wg)

	d.running.Store(true)
	d.logger.Info("tally daemon started", logging.String("lock", d.lockPath))

	if info, needed, err := d.recovery.NeedsRecovery(ctx); err != nil {
		d.logger.Warn("recovery scan failed", logging.Error(err))
	} else if needed {
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "recovery_available"),
			logging.Int("checkpoints", len(info.Checkpoints)),
		}
		if info.Session != nil {
			attrs = append(attrs,
				logging.String(logging.FieldFile, info.Session.FileName),
				logging.Float64("percent", info.Session.Percent),
			)
		}
		d.logger.Info("unfinished work found; select the file again to resume", logging.Args(attrs...)...)
	}
	return nil
}

// Stop saves in-flight progress, stops the sync loop and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.engine.Terminate(ctx); err != nil {
		logging.ErrorWithContext(d.logger, "final checkpoint failed", "shutdown_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "progress since the last checkpoint will be re-read"),
		)
	}
	d.engine.Wait()
	d.notifyWG.Wait()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.sessions.Sync(ctx); err != nil {
		d.logger.Warn("final session sync failed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("tally daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	for _, unsubscribe := range d.unobserve {
		unsubscribe()
	}
	d.unobserve = nil
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// SelectFile identifies path, asks the recovery coordinator where to begin
// and starts the engine there. Selecting the file of a live run reattaches.
func (d *Daemon) SelectFile(ctx context.Context, path string, opts SelectOptions) (Selection, error) {
	if !d.running.Load() {
		return Selection{}, errors.New("daemon not running")
	}
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Selection{}, errors.New("file path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return Selection{}, fmt.Errorf("resolve file path: %w", err)
	}
	if check := preflight.CheckLedgerFile(absPath); !check.Passed {
		return Selection{}, fmt.Errorf("ledger file unusable: %s", check.Detail)
	}

	id, err := fileid.Compute(ctx, absPath)
	if err != nil {
		return Selection{}, err
	}
	plan, err := d.recovery.Plan(ctx, id)
	if err != nil {
		return Selection{}, err
	}
	if plan.Source == recovery.SourceLive {
		return Selection{RunID: plan.RunID, Plan: plan, Reattached: true}, nil
	}
	if opts.Fresh && plan.Resumes() {
		d.logger.Info("discarding saved progress on request",
			logging.String(logging.FieldFile, id.Name),
			logging.String("source", string(plan.Source)),
		)
		plan = recovery.Plan{Source: recovery.SourceFresh, Identity: id}
	}

	runID, err := d.engine.Start(ctx, engine.StartRequest{
		Path:     absPath,
		Identity: id,
		Offset:   plan.Offset,
		Seed:     plan.Balances,
	})
	if err != nil {
		return Selection{}, err
	}
	return Selection{RunID: runID, Plan: plan}, nil
}

// Pause pauses the active run.
func (d *Daemon) Pause(ctx context.Context) error {
	return d.engine.Pause(ctx)
}

// Resume resumes a paused run.
func (d *Daemon) Resume(ctx context.Context) error {
	return d.engine.Resume(ctx)
}

// StopRun ends the active run; confirm must be true.
func (d *Daemon) StopRun(ctx context.Context, confirm bool) error {
	return d.engine.Stop(ctx, confirm)
}

// ClearCheckpoint removes the checkpoint stored under identityKey.
func (d *Daemon) ClearCheckpoint(ctx context.Context, identityKey string) error {
	key := strings.TrimSpace(identityKey)
	if key == "" {
		return errors.New("identity key is required")
	}
	if st := d.engine.Status(); st.State.Active() && st.Identity.Key() == key {
		return engine.ErrBusy
	}
	return d.checkpoints.ClearKey(ctx, key)
}

// ClearAllBalances empties the session balances and removes every checkpoint.
func (d *Daemon) ClearAllBalances(ctx context.Context) (int64, error) {
	if d.engine.Status().State.Active() {
		return 0, engine.ErrBusy
	}
	removed, err := d.checkpoints.ClearAll(ctx)
	if err != nil {
		return 0, err
	}
	if _, ok := d.sessions.Snapshot(); ok {
		if err := d.sessions.ClearBalances(ctx); err != nil {
			return removed, err
		}
	}
	d.logger.Info("balances cleared",
		logging.String(logging.FieldEventType, "balances_cleared"),
		logging.Int64("checkpoints_removed", removed),
	)
	return removed, nil
}

// Reset forgets the session state. Checkpoints are kept.
func (d *Daemon) Reset(ctx context.Context) error {
	if d.engine.Status().State.Active() {
		return engine.ErrBusy
	}
	return d.sessions.Reset(ctx)
}

// Checkpoints lists stored checkpoints.
func (d *Daemon) Checkpoints(ctx context.Context) ([]checkpoint.Summary, error) {
	return d.checkpoints.List(ctx)
}

// Engine exposes the processing engine for progress subscriptions.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Engine:       d.engine.Status(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
	}
	if st, ok := d.sessions.Snapshot(); ok {
		status.Session = &st
	}
	info, needed, err := d.recovery.NeedsRecovery(ctx)
	if err != nil {
		d.logger.Warn("failed to list checkpoints", logging.Error(err))
	}
	status.Checkpoints = info.Checkpoints
	status.NeedsRecovery = needed && !status.Engine.State.Active()
	return status
}
