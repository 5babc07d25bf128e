package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sortition/internal/store"
)

// CheckpointOptions holds flags shared by the checkpoint subcommands.
type CheckpointOptions struct {
	*RootOptions
	Database string
}

// NewCheckpointCommand creates the checkpoint command group.
func NewCheckpointCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckpointOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect persisted distribution counters",
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite checkpoint database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newCheckpointListCommand(opts))
	cmd.AddCommand(newCheckpointDeleteCommand(opts))

	return cmd
}

func newCheckpointListCommand(opts *CheckpointOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List persisted checkpoints",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointList(opts, cmd)
		},
	}
}

func newCheckpointDeleteCommand(opts *CheckpointOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <key>",
		Short:         "Delete one checkpoint by configuration key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointDelete(opts, cmd, args[0])
		},
	}
}

func runCheckpointList(opts *CheckpointOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	infos, err := st.ListCheckpoints(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list checkpoints", err)
	}

	if opts.Format == "json" {
		return formatter.Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(formatter.Writer, "no checkpoints")
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%-64s %8s %8s  %s\n", "key", "total", "regions", "updated")
	for _, info := range infos {
		fmt.Fprintf(formatter.Writer, "%-64s %8d %8d  %s\n",
			info.Key, info.Total, info.Regions, info.UpdatedAt)
	}
	return nil
}

func runCheckpointDelete(opts *CheckpointOptions, cmd *cobra.Command, key string) error {
	setupLogging(opts.Verbose)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.DeleteCheckpoint(commandContext(cmd), key); err != nil {
		return WrapExitError(ExitFailure, "failed to delete checkpoint", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
