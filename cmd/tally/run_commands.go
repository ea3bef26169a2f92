package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"tally/internal/config"
	"tally/internal/engine"
	"tally/internal/ipc"
)

func newRunCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSelectCommand(ctx),
		newPauseCommand(ctx),
		newResumeCommand(ctx),
		newStopCommand(ctx),
	}
}

func newSelectCommand(ctx *commandContext) *cobra.Command {
	var fresh bool
	var wait bool
	var pollInterval time.Duration
	cmd := &cobra.Command{
		Use:   "select <file>",
		Short: "Process a ledger file, resuming saved progress when available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Select(ipc.SelectRequest{Path: path, Fresh: fresh})
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintln(stdout, describeSelection(resp))
				if resp.Skipped != "" {
					fmt.Fprintf(stdout, "Ignored %s\n", resp.Skipped)
				}
				if !wait {
					return nil
				}
				return followRun(cmd, client, resp.RunID, pollInterval)
			})
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Ignore saved progress and start from the beginning")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Report progress until the run ends")
	cmd.Flags().DurationVar(&pollInterval, "interval", time.Second, "Progress polling interval with --wait")
	return cmd
}

func describeSelection(resp *ipc.SelectResponse) string {
	switch {
	case resp.Reattached:
		return fmt.Sprintf("Already processing (run %s, %s)", resp.RunID, formatPercent(resp.Percent))
	case resp.Source == "fresh":
		return fmt.Sprintf("Processing from the beginning (run %s)", resp.RunID)
	default:
		return fmt.Sprintf("Resuming from %s at %s (offset %s, run %s)",
			resp.Source, formatPercent(resp.Percent), formatCount(resp.Offset), resp.RunID)
	}
}

// followRun polls status until the run identified by runID leaves the
// processing and paused states.
func followRun(cmd *cobra.Command, client *ipc.Client, runID string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	stdout := cmd.OutOrStdout()
	lastBucket := -1
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := client.Status()
		if err != nil {
			return err
		}
		if status.RunID != runID {
			fmt.Fprintln(stdout, "Run replaced by another selection")
			return nil
		}
		switch status.State {
		case "processing", "paused":
			if bucket := int(status.Percent); bucket != lastBucket {
				lastBucket = bucket
				fmt.Fprintf(stdout, "%s  %s  %s records\n", formatPercent(status.Percent),
					formatProgress(status.BytesProcessed, status.FileSize), formatCount(status.Records))
			}
		case "completed":
			fmt.Fprintf(stdout, "Completed %s: %s records\n", status.File, formatCount(status.Records))
			fmt.Fprint(stdout, renderTable(balanceTable(status.Balances)))
			return nil
		default:
			if status.LastError != "" {
				return fmt.Errorf("run ended: %s", status.LastError)
			}
			fmt.Fprintf(stdout, "Run %s\n", status.State)
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the active run and save a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause()
				if errors.Is(err, engine.ErrNotRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing is processing")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Paused at %s (%s)\n", formatPercent(resp.Percent), formatBytes(resp.BytesProcessed))
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				_, err := client.Resume()
				switch {
				case errors.Is(err, engine.ErrNotPaused):
					fmt.Fprintln(cmd.OutOrStdout(), "Run is not paused")
					return nil
				case errors.Is(err, engine.ErrNotRunning):
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to resume; select the file again to continue from its checkpoint")
					return nil
				case err != nil:
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Resumed")
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the active run after saving a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				confirm := yes
				if !confirm && interactive(cmd.InOrStdin()) {
					confirm = promptYesNo(cmd.InOrStdin(), cmd.OutOrStdout(), "Stop the active run?")
				}
				resp, err := client.Stop(confirm)
				switch {
				case errors.Is(err, engine.ErrConfirmRequired):
					return errors.New("stop not confirmed; pass --yes to stop the run")
				case errors.Is(err, engine.ErrNotRunning):
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing is processing")
					return nil
				case err != nil:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped; progress saved at %s\n", formatBytes(resp.BytesProcessed))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm stopping the run")
	return cmd
}

func interactive(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func promptYesNo(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
