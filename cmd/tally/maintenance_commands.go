package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tally/internal/engine"
	"tally/internal/ipc"
)

func newCheckpointCommand(ctx *commandContext) *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect and clear saved progress",
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Checkpoints()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Checkpoints)
				}
				if len(resp.Checkpoints) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints saved")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(checkpointTable(resp.Checkpoints)))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Print checkpoints as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear <key>",
		Short: "Remove the checkpoint stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ClearCheckpoint(key); err != nil {
					if errors.Is(err, engine.ErrBusy) {
						return errors.New("checkpoint belongs to the active run; stop it first")
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared checkpoint %s\n", key)
				return nil
			})
		},
	}

	checkpointCmd.AddCommand(listCmd, clearCmd)
	return checkpointCmd
}

func newBalancesCommand(ctx *commandContext) *cobra.Command {
	balancesCmd := &cobra.Command{
		Use:   "balances",
		Short: "Manage accumulated balances",
	}
	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty accumulated balances and remove every checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm := yes
			if !confirm && interactive(cmd.InOrStdin()) {
				confirm = promptYesNo(cmd.InOrStdin(), cmd.OutOrStdout(), "Clear all balances and checkpoints?")
			}
			if !confirm {
				return errors.New("clear not confirmed; pass --yes to clear balances")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ClearBalances()
				if errors.Is(err, engine.ErrBusy) {
					return errors.New("a run is active; stop it before clearing balances")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Balances cleared (%s checkpoints removed)\n", formatCount(resp.Removed))
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing balances")
	balancesCmd.AddCommand(clearCmd)
	return balancesCmd
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the session state (checkpoints are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Reset(); err != nil {
					if errors.Is(err, engine.ErrBusy) {
						return errors.New("a run is active; stop it before resetting")
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Session reset")
				return nil
			})
		},
	}
}
