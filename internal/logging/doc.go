// Package logging assembles structured slog loggers and formatting helpers used
// across tally services.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context helpers so engine code tags log lines with the active run
// identifier. A no-op logger is provided for tests and wiring code that cannot
// fail.
package logging
