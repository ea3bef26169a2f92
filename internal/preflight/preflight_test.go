package preflight

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"tally/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLedgerFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "ledger.txt")
	if err := os.WriteFile(f, []byte("USD 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckLedgerFile(f); !r.Passed {
		t.Fatalf("expected pass, got: %s", r.Detail)
	}
	if r := CheckLedgerFile(dir); r.Passed {
		t.Fatal("expected failure for directory")
	}
	if r := CheckLedgerFile(filepath.Join(dir, "missing.txt")); r.Passed {
		t.Fatal("expected failure for missing file")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("tmp", dir, 1); !r.Passed {
		t.Fatalf("expected pass, got: %s", r.Detail)
	}
	if r := CheckFreeSpace("tmp", dir, math.MaxUint64); r.Passed {
		t.Fatal("expected failure for impossible requirement")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "data", "tally.sock")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected data, log and volume checks, got %d: %v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed)
	}

	cfg.Paths.SocketPath = filepath.Join(base, "run", "tally.sock")
	results = RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected socket directory check, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 1 || failed[0].Name != "Socket directory" {
		t.Fatalf("expected missing socket dir to fail, got %v", failed)
	}
}
