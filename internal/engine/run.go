package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"tally/internal/checkpoint"
	"tally/internal/fileid"
	"tally/internal/ledger"
	"tally/internal/logging"
)

type commandKind int

const (
	cmdPause commandKind = iota + 1
	cmdResume
	cmdStop
	cmdTerminate
)

type command struct {
	kind  commandKind
	reply chan error
}

// run is owned by the loop goroutine; only commands and done are shared.
type run struct {
	id        string
	path      string
	identity  fileid.Identity
	file      *os.File
	size      int64
	chunkSize int

	readOffset int64
	consumed   int64
	records    int64
	scanner    *ledger.Scanner
	balances   ledger.Balances
	tracker    *checkpoint.Tracker

	commands chan command
	done     chan struct{}

	logger  *slog.Logger
	sampler *logging.ProgressSampler
}

func (e *Engine) loop(ctx context.Context, r *run) {
	defer e.release(r)
	r.consumed = r.readOffset
	buf := make([]byte, r.chunkSize)
	for {
		eof, err := e.step(ctx, r, buf)
		if err != nil {
			e.fail(ctx, r, err)
			e.finished()
			return
		}
		if eof {
			e.complete(ctx, r)
			e.finished()
			return
		}
		if !e.between(ctx, r) {
			return
		}
	}
}

// step reads and folds one chunk, then publishes progress.
func (e *Engine) step(ctx context.Context, r *run, buf []byte) (bool, error) {
	want := min(int64(len(buf)), r.size-r.readOffset)
	n, err := io.ReadFull(r.file, buf[:want])
	if err != nil && !(errors.Is(err, io.EOF) && want == 0) {
		return false, fmt.Errorf("read %s at offset %d: %w", r.path, r.readOffset, err)
	}

	now := e.now()
	folded := r.scanner.Feed(buf[:n], r.balances, now)
	r.readOffset += int64(n)
	eof := r.readOffset >= r.size
	if eof {
		folded += r.scanner.Flush(r.balances, now)
	}
	r.records += int64(folded)
	r.consumed = r.readOffset - int64(r.scanner.Pending())

	pct := checkpoint.Percent(r.consumed, r.size)
	balances := r.balances.Snapshot()

	recorder := e.currentRecorder()
	recorder.ChunkProcessed(n)
	recorder.RecordsFolded(folded)
	recorder.Progress(pct)

	e.publish(r, pct, balances)
	e.autosave(ctx, r, pct, balances)

	if r.sampler.ShouldLog(pct, "ingest") {
		r.logger.Info("ingestion progress",
			logging.String(logging.FieldEventType, "run_progress"),
			logging.Float64("percent", pct),
			logging.Int64("bytes_processed", r.consumed),
			logging.Int64("records", r.records),
		)
	}
	return eof, nil
}

// autosave applies the milestone rule first, then the throttled rule. Save
// failures are logged and retried on a later chunk.
func (e *Engine) autosave(ctx context.Context, r *run, pct float64, balances []ledger.CurrencyBalance) {
	recorder := e.currentRecorder()
	saved, err := r.tracker.Milestone(ctx, pct, r.consumed, balances)
	if err != nil {
		recorder.CheckpointFailed(SaveMilestone)
		logging.WarnWithContext(r.logger, "milestone checkpoint failed", "checkpoint_save_failed",
			logging.Error(err),
			logging.Float64("percent", pct),
			logging.String(logging.FieldImpact, "checkpoint retried on next chunk"),
		)
	} else if saved {
		recorder.CheckpointSaved(SaveMilestone)
		return
	}

	saved, err = r.tracker.AutoSave(ctx, pct, r.consumed, balances)
	switch {
	case err != nil:
		recorder.CheckpointFailed(SaveAuto)
		logging.WarnWithContext(r.logger, "checkpoint autosave failed", "checkpoint_save_failed",
			logging.Error(err),
			logging.Float64("percent", pct),
			logging.String(logging.FieldImpact, "checkpoint retried on next chunk"),
		)
	case saved:
		recorder.CheckpointSaved(SaveAuto)
	}
}

// between yields before the next chunk and handles at most one command. It
// reports whether the loop should continue.
func (e *Engine) between(ctx context.Context, r *run) bool {
	if e.opts.Yield <= 0 {
		select {
		case cmd := <-r.commands:
			return e.handle(ctx, r, cmd)
		default:
			return true
		}
	}
	timer := time.NewTimer(e.opts.Yield)
	defer timer.Stop()
	select {
	case cmd := <-r.commands:
		return e.handle(ctx, r, cmd)
	case <-timer.C:
		return true
	}
}

func (e *Engine) handle(ctx context.Context, r *run, cmd command) bool {
	switch cmd.kind {
	case cmdPause:
		cmd.reply <- e.pause(ctx, r)
		return e.paused(ctx, r)
	case cmdResume:
		cmd.reply <- ErrNotPaused
		return true
	case cmdStop:
		cmd.reply <- e.stop(ctx, r)
		return false
	case cmdTerminate:
		cmd.reply <- e.terminate(ctx, r)
		return false
	default:
		cmd.reply <- fmt.Errorf("engine: unknown command %d", cmd.kind)
		return true
	}
}

// paused blocks until the run is resumed, stopped or terminated.
func (e *Engine) paused(ctx context.Context, r *run) bool {
	for cmd := range r.commands {
		switch cmd.kind {
		case cmdPause:
			cmd.reply <- nil
		case cmdResume:
			cmd.reply <- e.resume(ctx, r)
			return true
		default:
			return e.handle(ctx, r, cmd)
		}
	}
	return false
}

func (e *Engine) pause(ctx context.Context, r *run) error {
	at := e.now()
	e.setState(StatePaused, func(s *Status) { s.PausedAt = &at })
	err := e.forceSave(ctx, r)
	if e.sessions != nil {
		if serr := e.sessions.MarkPaused(ctx, at); serr != nil {
			r.logger.Warn("session transition failed", logging.Error(serr))
		}
	}
	r.logger.Info("ingestion paused",
		logging.String(logging.FieldEventType, "run_paused"),
		logging.Int64("bytes_processed", r.consumed),
	)
	return err
}

func (e *Engine) resume(ctx context.Context, r *run) error {
	e.setState(StateProcessing, func(s *Status) { s.PausedAt = nil })
	if e.sessions != nil {
		if err := e.sessions.MarkProcessing(ctx); err != nil {
			r.logger.Warn("session transition failed", logging.Error(err))
		}
	}
	r.logger.Info("ingestion resumed",
		logging.String(logging.FieldEventType, "run_resumed"),
		logging.Int64("bytes_processed", r.consumed),
	)
	return nil
}

func (e *Engine) stop(ctx context.Context, r *run) error {
	err := e.forceSave(ctx, r)
	e.setState(StateStopped, func(s *Status) { s.PausedAt = nil })
	if e.sessions != nil {
		if serr := e.sessions.MarkStopped(ctx); serr != nil {
			r.logger.Warn("session transition failed", logging.Error(serr))
		}
	}
	r.logger.Info("ingestion stopped",
		logging.String(logging.FieldEventType, "run_stopped"),
		logging.Int64("bytes_processed", r.consumed),
	)
	return err
}

// terminate saves progress for shutdown. The session is left paused so the
// next process offers to resume.
func (e *Engine) terminate(ctx context.Context, r *run) error {
	err := e.forceSave(ctx, r)
	at := e.now()
	e.setState(StateStopped, func(s *Status) { s.PausedAt = nil })
	if e.sessions != nil {
		if serr := e.sessions.MarkPaused(ctx, at); serr != nil {
			r.logger.Warn("session transition failed", logging.Error(serr))
		}
	}
	r.logger.Info("ingestion terminated",
		logging.String(logging.FieldEventType, "run_terminated"),
		logging.Int64("bytes_processed", r.consumed),
	)
	return err
}

func (e *Engine) forceSave(ctx context.Context, r *run) error {
	recorder := e.currentRecorder()
	pct := checkpoint.Percent(r.consumed, r.size)
	if err := r.tracker.ForceSave(ctx, pct, r.consumed, r.balances.Snapshot()); err != nil {
		recorder.CheckpointFailed(SaveForced)
		logging.ErrorWithContext(r.logger, "forced checkpoint failed", "checkpoint_save_failed",
			logging.Error(err),
			logging.Float64("percent", pct),
			logging.String(logging.FieldErrorHint, "check the state database is writable"),
		)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	recorder.CheckpointSaved(SaveForced)
	return nil
}

// fail returns the engine to idle. The last good checkpoint stays in place.
func (e *Engine) fail(ctx context.Context, r *run, cause error) {
	e.setState(StateIdle, func(s *Status) {
		s.PausedAt = nil
		s.LastError = cause.Error()
	})
	if e.sessions != nil {
		if err := e.sessions.MarkFailed(ctx, cause); err != nil {
			r.logger.Warn("session transition failed", logging.Error(err))
		}
	}
	logging.ErrorWithContext(r.logger, "ingestion failed", "run_failed",
		logging.Error(cause),
		logging.Int64("bytes_processed", r.consumed),
		logging.String(logging.FieldErrorHint, "check the file is readable and retry; progress resumes from the last checkpoint"),
	)
}

func (e *Engine) complete(ctx context.Context, r *run) {
	balances := r.balances.Snapshot()
	if err := r.tracker.Clear(ctx); err != nil {
		logging.WarnWithContext(r.logger, "checkpoint clear failed", "checkpoint_clear_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a completed checkpoint remains until cleared"),
		)
	}
	if e.sessions != nil {
		if err := e.sessions.MarkComplete(ctx, balances); err != nil {
			r.logger.Warn("session transition failed", logging.Error(err))
		}
	}
	e.setState(StateCompleted, func(s *Status) {
		s.BytesProcessed = r.size
		s.Percent = 100
		s.Balances = balances
	})
	r.logger.Info("ingestion complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int64("records", r.records),
		logging.Int("currencies", len(balances)),
	)
}

func (e *Engine) currentRecorder() Recorder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorder
}
