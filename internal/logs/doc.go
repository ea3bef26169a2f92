// Package logs reads the daemon log for `tally logs`: the last N lines, then
// optionally new lines as they are appended.
package logs
