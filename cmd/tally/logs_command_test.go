package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tally/internal/testsupport"
)

func TestLogsPrintsTrailingLines(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := filepath.Join(base, "tally.toml")
	writeTestConfig(t, configPath, cfg)
	socket := filepath.Join(base, "missing.sock")

	out, _, err := runCLI(t, []string{"logs"}, socket, configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "No log output")

	logPath := filepath.Join(cfg.Paths.LogDir, "tally.log")
	if err := os.WriteFile(logPath, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, _, err = runCLI(t, []string{"logs", "-n", "2"}, socket, configPath)
	if err != nil {
		t.Fatalf("logs -n 2: %v", err)
	}
	if strings.TrimSpace(out) != "two\nthree" {
		t.Fatalf("unexpected output %q", out)
	}

	if _, _, err := runCLI(t, []string{"logs", "-n", "-1"}, socket, configPath); err == nil {
		t.Fatal("expected negative --lines to fail")
	}
}
