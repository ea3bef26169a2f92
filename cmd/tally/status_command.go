package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tally/internal/daemonctl"
	"tally/internal/ipc"
	"tally/internal/ledger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, run and balance status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			stdout := cmd.OutOrStdout()
			renderStatus(stdout, status, shouldColorize(stdout))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}

func renderStatus(w io.Writer, status *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(w, line)
	}
	for _, line := range daemonLines(status, colorize) {
		fmt.Fprintln(w, line)
	}

	if status.Running && status.State != "idle" {
		fmt.Fprintln(w)
		for _, line := range renderSectionHeader("Run", colorize) {
			fmt.Fprintln(w, line)
		}
		fmt.Fprint(w, renderTable(runTable(status)))
	}

	balances := status.Balances
	if len(balances) == 0 && status.Session != nil {
		balances = status.Session.Balances
	}
	fmt.Fprintln(w)
	for _, line := range renderSectionHeader("Balances", colorize) {
		fmt.Fprintln(w, line)
	}
	if len(balances) == 0 {
		fmt.Fprintln(w, "No balances recorded")
	} else {
		fmt.Fprint(w, renderTable(balanceTable(balances)))
	}

	if len(status.Checkpoints) > 0 {
		fmt.Fprintln(w)
		for _, line := range renderSectionHeader("Checkpoints", colorize) {
			fmt.Fprintln(w, line)
		}
		fmt.Fprint(w, renderTable(checkpointTable(status.Checkpoints)))
	}
}

func daemonLines(status *ipc.StatusResponse, colorize bool) []string {
	lines := make([]string, 0, 4)
	if !status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "Not running (run `tally start`)", colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
		detail := status.State
		if status.File != "" && status.State != "idle" {
			detail = fmt.Sprintf("%s %s at %s", status.State, status.File, formatPercent(status.Percent))
		}
		lines = append(lines, renderStatusLine("Run", stateKind(status.State), detail, colorize))
	}
	if msg := strings.TrimSpace(status.LastError); msg != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, msg, colorize))
	}
	if status.NeedsRecovery {
		hint := "Unfinished work found; select the file again to resume"
		if s := status.Session; s != nil && s.FileName != "" {
			hint = fmt.Sprintf("%s stopped at %s; select it again to resume", s.FileName, formatPercent(s.Percent))
		}
		lines = append(lines, renderStatusLine("Recovery", statusWarn, hint, colorize))
	}
	return lines
}

func runTable(status *ipc.StatusResponse) tableSpec {
	rows := [][]string{
		{"File", status.File},
		{"State", status.State},
		{"Processed", formatProgress(status.BytesProcessed, status.FileSize)},
		{"Percent", formatPercent(status.Percent)},
		{"Records", formatCount(status.Records)},
		{"Chunk size", formatBytes(int64(status.ChunkSize))},
		{"Started", formatAge(status.StartedAt)},
	}
	if status.PausedAt != nil {
		rows = append(rows, []string{"Paused", formatAge(*status.PausedAt)})
	}
	return tableSpec{headers: []string{"Field", "Value"}, rows: rows}
}

func balanceTable(balances []ledger.CurrencyBalance) tableSpec {
	rows := make([][]string, 0, len(balances))
	var records int64
	for _, b := range balances {
		records += b.Count
		account := b.AccountLabel
		if account == "" {
			account = ledger.AccountLabel(b.Currency)
		}
		rows = append(rows, []string{
			b.Currency,
			account,
			formatAmount(b.Currency, b.Total),
			formatCount(b.Count),
			formatAmount(b.Currency, b.Largest),
			formatAmount(b.Currency, b.Smallest),
			formatAmount(b.Currency, b.Average()),
		})
	}
	return tableSpec{
		headers: []string{"Currency", "Account", "Total", "Records", "Largest", "Smallest", "Average"},
		rows:    rows,
		aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
		footer:  []string{"", "", "", formatCount(records)},
	}
}

func checkpointTable(list []ipc.CheckpointInfo) tableSpec {
	rows := make([][]string, 0, len(list))
	for _, cp := range list {
		rows = append(rows, []string{
			cp.FileName,
			formatProgress(cp.BytesProcessed, cp.FileSize),
			formatPercent(cp.Percent),
			formatAge(cp.SavedAt),
			yesNo(cp.Stale),
			cp.Key,
		})
	}
	return tableSpec{
		headers: []string{"File", "Processed", "Percent", "Saved", "Stale", "Key"},
		rows:    rows,
		aligns:  []columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	}
}
