package preflight

import (
	"context"
	"path/filepath"

	"tally/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	_ = ctx

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	// The socket usually lives in the data directory; only check it when it does not.
	if dir := filepath.Dir(cfg.Paths.SocketPath); dir != filepath.Clean(cfg.Paths.DataDir) {
		results = append(results, CheckDirectoryAccess("Socket directory", dir))
	}
	results = append(results, CheckFreeSpace("State volume", cfg.Paths.DataDir, MinFreeBytes))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
