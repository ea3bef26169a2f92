package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"tally/internal/checkpoint"
	"tally/internal/fileid"
	"tally/internal/kvstore"
	"tally/internal/testsupport"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tally.pid")
	if got := readPID(path); got != 0 {
		t.Fatalf("missing pid file should read as 0, got %d", got)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(4242)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if got := readPID(path); got != 4242 {
		t.Fatalf("readPID = %d, want 4242", got)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if got := readPID(path); got != 0 {
		t.Fatalf("garbage pid file should read as 0, got %d", got)
	}
}

func TestPIDPathUsesLogDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	want := filepath.Join(cfg.Paths.LogDir, "tally.pid")
	if got := PIDPath(cfg); got != want {
		t.Fatalf("PIDPath = %q, want %q", got, want)
	}
	if got := PIDPath(nil); got != "" {
		t.Fatalf("PIDPath(nil) = %q, want empty", got)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := StopAndTerminate(filepath.Join(t.TempDir(), "absent.sock"), cfg, 100*time.Millisecond)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()
	socket := filepath.Join(t.TempDir(), "absent.sock")

	resp, err := BuildStatusSnapshot(ctx, socket, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if resp.Running || resp.State != "offline" || resp.NeedsRecovery {
		t.Fatalf("expected offline snapshot without recovery, got %+v", resp)
	}

	store, err := kvstore.Open(cfg)
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	id := fileid.Identity{Digest: 9, Size: 1000, ModTime: 1, Name: "offline.dat"}
	if err := checkpoint.NewFromConfig(cfg, store, nil).SaveProgress(ctx, id, 40, 400, nil); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	resp, err = BuildStatusSnapshot(ctx, socket, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if !resp.NeedsRecovery || len(resp.Checkpoints) != 1 {
		t.Fatalf("expected one recoverable checkpoint, got %+v", resp)
	}
	if resp.Checkpoints[0].FileName != "offline.dat" || resp.Checkpoints[0].BytesProcessed != 400 {
		t.Fatalf("unexpected checkpoint summary %+v", resp.Checkpoints[0])
	}
}
