package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/checkpoint"
	"tally/internal/config"
	"tally/internal/ledger"
	"tally/internal/logging"
	"tally/internal/session"
)

// Options tunes the chunk loop.
type Options struct {
	ChunkSize      int
	AdaptiveChunks bool
	Yield          time.Duration
	Currencies     []string
	Throttle       checkpoint.Throttle
}

// OptionsFromConfig reads the [ingest] and [checkpoint] settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ChunkSize:      cfg.ChunkSize(),
		AdaptiveChunks: cfg.Ingest.AdaptiveChunks,
		Yield:          cfg.Yield(),
		Currencies:     slices.Clone(cfg.Ingest.Currencies),
		Throttle:       checkpoint.ThrottleFromConfig(cfg),
	}
}

// Engine processes one file at a time.
type Engine struct {
	opts        Options
	checkpoints *checkpoint.Store
	sessions    *session.Service
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	status   Status
	run      *run
	recorder Recorder
	subs     map[int]ProgressFunc
	finish   FinishFunc
	nextSub  int
	wg       sync.WaitGroup
}

// New constructs an Engine. sessions may be nil.
func New(opts Options, checkpoints *checkpoint.Store, sessions *session.Service, logger *slog.Logger) *Engine {
	return &Engine{
		opts:        opts,
		checkpoints: checkpoints,
		sessions:    sessions,
		logger:      logging.NewComponentLogger(logger, "engine"),
		now:         time.Now,
		status:      Status{State: StateIdle},
		recorder:    nopRecorder{},
		subs:        make(map[int]ProgressFunc),
	}
}

// NewFromConfig builds an Engine from configuration.
func NewFromConfig(cfg *config.Config, checkpoints *checkpoint.Store, sessions *session.Service, logger *slog.Logger) *Engine {
	return New(OptionsFromConfig(cfg), checkpoints, sessions, logger)
}

// SetRecorder installs a measurement sink. A nil recorder disables measurements.
func (e *Engine) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	e.mu.Lock()
	e.recorder = r
	e.mu.Unlock()
}

// OnProgress registers fn for per-chunk progress and returns an unsubscribe func.
func (e *Engine) OnProgress(fn ProgressFunc) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// OnFinish installs fn to run on the run goroutine after a run completes or
// fails. Stopped and terminated runs do not finish.
func (e *Engine) OnFinish(fn FinishFunc) {
	e.mu.Lock()
	e.finish = fn
	e.mu.Unlock()
}

func (e *Engine) finished() {
	e.mu.Lock()
	fn := e.finish
	st := e.status.clone()
	e.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// Status returns a copy of the current engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.clone()
}

// Start opens req.Path and begins processing at req.Offset with req.Seed as
// the initial balances. It returns the run ID once the run goroutine is
// started. ctx scopes startup only; the run lasts until it completes, fails,
// or receives Stop or Terminate.
func (e *Engine) Start(ctx context.Context, req StartRequest) (string, error) {
	e.mu.Lock()
	if e.run != nil {
		e.mu.Unlock()
		return "", ErrBusy
	}
	// Reserve the slot while the file is opened.
	e.run = &run{}
	e.mu.Unlock()

	r, err := e.prepare(ctx, req)
	if err != nil {
		e.mu.Lock()
		e.run = nil
		e.mu.Unlock()
		return "", err
	}

	runCtx := logging.WithRunID(context.WithoutCancel(ctx), r.id)
	r.logger = logging.WithContext(runCtx, e.logger).With(logging.String(logging.FieldFile, req.Identity.Name))

	if e.sessions != nil {
		if err := e.sessions.Register(runCtx, req.Identity, req.Offset, req.Seed); err != nil {
			r.logger.Warn("session register failed", logging.Error(err))
		}
		if err := e.sessions.MarkProcessing(runCtx); err != nil {
			r.logger.Warn("session transition failed", logging.Error(err))
		}
	}

	e.mu.Lock()
	e.run = r
	e.status = Status{
		State:          StateProcessing,
		RunID:          r.id,
		Path:           req.Path,
		Identity:       req.Identity,
		StartOffset:    req.Offset,
		BytesProcessed: req.Offset,
		FileSize:       r.size,
		Percent:        checkpoint.Percent(req.Offset, r.size),
		ChunkSize:      r.chunkSize,
		Balances:       r.balances.Snapshot(),
		StartedAt:      e.now(),
	}
	recorder := e.recorder
	e.wg.Add(1)
	e.mu.Unlock()

	recorder.StateChanged(string(StateProcessing))
	r.logger.Info("ingestion started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int64("offset", req.Offset),
		logging.Int64("size", r.size),
		logging.Int("chunk_size", r.chunkSize),
	)

	go e.loop(runCtx, r)
	return r.id, nil
}

func (e *Engine) prepare(ctx context.Context, req StartRequest) (*run, error) {
	if e.checkpoints == nil {
		return nil, errors.New("engine: checkpoint store not configured")
	}
	file, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", req.Path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", req.Path, err)
	}
	size := info.Size()
	if req.Identity.Size != size {
		file.Close()
		return nil, fmt.Errorf("engine: %s changed size since identification (%d != %d)", req.Path, size, req.Identity.Size)
	}
	if req.Offset < 0 || req.Offset > size {
		file.Close()
		return nil, fmt.Errorf("engine: start offset %d outside file of %d bytes", req.Offset, size)
	}

	scanner := ledger.NewScanner(e.opts.Currencies)
	if req.Offset > 0 {
		var prev [1]byte
		if _, err := file.ReadAt(prev[:], req.Offset-1); err != nil {
			file.Close()
			return nil, fmt.Errorf("read boundary byte: %w", err)
		}
		scanner.SetBoundary(prev[0])
	}
	if _, err := file.Seek(req.Offset, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek %s: %w", req.Path, err)
	}
	if err := adviseSequential(file, req.Offset); err != nil {
		e.logger.Debug("fadvise unavailable", logging.Error(err))
	}

	chunkSize := chunkSizeFor(e.opts.ChunkSize, e.opts.AdaptiveChunks, size)
	return &run{
		id:         uuid.NewString(),
		path:       req.Path,
		identity:   req.Identity,
		file:       file,
		size:       size,
		chunkSize:  chunkSize,
		readOffset: req.Offset,
		scanner:    scanner,
		balances:   ledger.FromSnapshot(req.Seed),
		tracker:    e.checkpoints.Track(req.Identity, req.Offset, req.Seed, e.opts.Throttle),
		commands:   make(chan command),
		done:       make(chan struct{}),
		sampler:    logging.NewProgressSampler(5),
	}, nil
}

// Pause suspends reads after the current chunk and forces a checkpoint save.
// The save error, if any, is returned; the run stays paused either way.
func (e *Engine) Pause(ctx context.Context) error {
	return e.send(ctx, cmdPause)
}

// Resume continues a paused run from where it stopped.
func (e *Engine) Resume(ctx context.Context) error {
	if e.Status().State != StatePaused {
		if e.activeRun() == nil {
			return ErrNotRunning
		}
		return ErrNotPaused
	}
	return e.send(ctx, cmdResume)
}

// Stop ends the run after a forced checkpoint save. confirm must be true.
func (e *Engine) Stop(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrConfirmRequired
	}
	return e.send(ctx, cmdStop)
}

// Terminate force-saves progress ahead of process shutdown and ends the run.
// It is a no-op when nothing is running.
func (e *Engine) Terminate(ctx context.Context) error {
	err := e.send(ctx, cmdTerminate)
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	return err
}

// Wait blocks until the active run goroutine, if any, has exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) activeRun() *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil || e.run.done == nil {
		return nil
	}
	return e.run
}

func (e *Engine) send(ctx context.Context, kind commandKind) error {
	r := e.activeRun()
	if r == nil {
		return ErrNotRunning
	}
	cmd := command{kind: kind, reply: make(chan error, 1)}
	select {
	case r.commands <- cmd:
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-r.done:
		// The reply is sent before done closes.
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrNotRunning
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) setState(state State, mutate func(*Status)) {
	e.mu.Lock()
	e.status.State = state
	if mutate != nil {
		mutate(&e.status)
	}
	recorder := e.recorder
	e.mu.Unlock()
	recorder.StateChanged(string(state))
}

func (e *Engine) publish(r *run, percent float64, balances []ledger.CurrencyBalance) {
	e.mu.Lock()
	e.status.BytesProcessed = r.consumed
	e.status.Percent = percent
	e.status.Records = r.records
	e.status.Balances = balances
	subs := make([]ProgressFunc, 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(percent, slices.Clone(balances))
	}
	if e.sessions != nil {
		e.sessions.Tick(r.consumed, percent, balances)
	}
}

func (e *Engine) release(r *run) {
	if err := r.file.Close(); err != nil {
		r.logger.Debug("close ledger file", logging.Error(err))
	}
	e.mu.Lock()
	if e.run == r {
		e.run = nil
	}
	e.mu.Unlock()
	close(r.done)
	e.wg.Done()
}

func (s Status) clone() Status {
	out := s
	out.Balances = slices.Clone(s.Balances)
	if s.PausedAt != nil {
		at := *s.PausedAt
		out.PausedAt = &at
	}
	return out
}
