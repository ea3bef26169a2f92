// Package preflight provides readiness checks for the filesystem paths that
// Tally depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs failures, and calls
//     CheckLedgerFile before a selected file is identified.
//   - The CLI "tally status" command renders RunAll results as a table.
package preflight
