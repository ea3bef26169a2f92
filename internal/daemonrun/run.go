package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"tally/internal/config"
	"tally/internal/daemon"
	"tally/internal/ipc"
	"tally/internal/kvstore"
	"tally/internal/logging"
	"tally/internal/metrics"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// PIDFileName is written next to the daemon log while the daemon runs.
const PIDFileName = "tally.pid"

// Run starts the tally daemon and blocks until SIGINT/SIGTERM or ctx ends.
// Shutdown terminates the active run with a final checkpoint.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("tally-%s.log", runID))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("daemon_session", uuid.NewString()))

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update tally.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.LogDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logConfigSnapshot(logger, cfg)

	store, err := kvstore.Open(cfg)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}

	daemonOpts := []daemon.Option{daemon.WithLogPath(filepath.Join(cfg.Paths.LogDir, "tally.log"))}
	if cfg.Metrics.Bind != "" {
		m := metrics.New()
		metricsServer, err := metrics.Listen(cfg.Metrics.Bind, m, logger)
		if err != nil {
			_ = store.Close()
			return fmt.Errorf("start metrics endpoint: %w", err)
		}
		metricsServer.Serve()
		defer closeMetrics(logger, metricsServer)
		daemonOpts = append(daemonOpts, daemon.WithRecorder(m), daemon.WithSessionObserver(m.ObserveSession))
	}

	d, err := daemon.New(cfg, store, logger, daemonOpts...)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another running daemon and database access"),
		)
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("tally daemon shutting down")
	return nil
}

func closeMetrics(logger *slog.Logger, srv *metrics.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Close(ctx); err != nil {
		logger.Warn("metrics endpoint shutdown failed", logging.Error(err))
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "tally.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("db_path", cfg.Paths.DBPath),
		logging.String("socket", cfg.Paths.SocketPath),
		logging.String("chunk_size", humanize.IBytes(uint64(cfg.ChunkSize()))),
		logging.Bool("adaptive_chunks", cfg.Ingest.AdaptiveChunks),
		logging.Duration("yield", cfg.Yield()),
		logging.Int("currencies", len(cfg.Ingest.Currencies)),
		logging.Duration("checkpoint_max_age", cfg.CheckpointMaxAge()),
		logging.Bool("checkpoint_compress", cfg.Checkpoint.Compress),
		logging.Bool("metrics_enabled", cfg.Metrics.Bind != ""),
	)
}
