// Package checkpointcmder provides the checkpoint command for snapshotting
// and restoring a project.
package checkpointcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/cmd/chronicle/project"
	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/world"
)

const checkpointLongDesc string = `Manage checkpoints.

A checkpoint captures the whole world and both semantic indices at the
current tick. Restoring one first takes an automatic safety checkpoint of
the current state, so a restore can always be undone.

Use subcommands to create, list, restore or delete checkpoints:
  chronicle checkpoint create -m "before the storm"
  chronicle checkpoint list
  chronicle checkpoint restore ckpt_002
  chronicle checkpoint delete ckpt_003`

const checkpointShortDesc string = "Manage checkpoints"

func NewCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: checkpointShortDesc,
		Long:  checkpointLongDesc,
	}

	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}

func newCreateCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Checkpoint the current tick",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := project.Open(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			cp, err := p.Engine.CreateCheckpoint(cmd.Context(), message)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Created %s at tick %d\n", cliui.SuccessMark, cliui.IDStyle.Render(cp.ID), cp.Tick)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Checkpoint message")
	project.AddFlags(cmd)

	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := project.Open(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			printList(cmd.OutOrStdout(), p.Engine.Checkpoints())
			return nil
		},
	}

	project.AddFlags(cmd)

	return cmd
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := project.Open(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()
			var safety *world.Checkpoint
			if err := cliui.Step(out, "Restoring "+args[0], func() error {
				var restoreErr error
				safety, restoreErr = p.Engine.RestoreCheckpoint(cmd.Context(), args[0])
				return restoreErr
			}); err != nil {
				return err
			}

			fmt.Fprintf(out, "  %s World is back at tick %d. Undo with: chronicle checkpoint restore %s\n",
				cliui.SuccessMark,
				p.Engine.Reader().Tick(),
				cliui.IDStyle.Render(safety.ID),
			)
			return nil
		},
	}

	project.AddFlags(cmd)

	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a checkpoint and its bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := project.Open(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.Engine.DeleteCheckpoint(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted %s\n", cliui.SuccessMark, cliui.IDStyle.Render(args[0]))
			return nil
		},
	}

	project.AddFlags(cmd)

	return cmd
}

func printList(w io.Writer, cps []*world.Checkpoint) {
	if len(cps) == 0 {
		fmt.Fprintln(w, "No checkpoints.")
		return
	}
	for _, cp := range cps {
		fmt.Fprintf(w, "  %s  %s  %s  %s\n",
			cliui.IDStyle.Render(cp.ID),
			cliui.KeyStyle.Render(fmt.Sprintf("tick %-4d", cp.Tick)),
			cliui.DimStyle.Render(cp.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			cliui.ValueStyle.Render(cp.Message),
		)
	}
}
