package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/workbench/internal/cli/output"
	"github.com/leapstack-labs/workbench/internal/config"
	"github.com/leapstack-labs/workbench/internal/history"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Search      string
	Environment string
	Status      string
	Limit       int
	Offset      int
}

// NewHistoryCommand creates the history command and its delete subcommand.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List executed queries",
		Example: `  workbench history --limit 10
  workbench history --search orders --status error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Search, "search", "", "Only entries whose SQL contains this text")
	cmd.Flags().StringVar(&opts.Environment, "environment", "", "Only entries of this environment")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Only success or error entries")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum number of entries")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Entries to skip")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(config.GetConfig(cmd.Context()).History.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.FromContext(cmd.Context()).Muted("deleted %s", args[0])
			return nil
		},
	})
	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	switch opts.Status {
	case "", history.StatusSuccess, history.StatusError:
	default:
		return fmt.Errorf("unknown status %q (success|error)", opts.Status)
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return fmt.Errorf("limit and offset must not be negative")
	}

	store, err := history.Open(config.GetConfig(cmd.Context()).History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	page, err := store.List(cmd.Context(), core.HistoryFilter{
		Search:        opts.Search,
		EnvironmentID: opts.Environment,
		Status:        opts.Status,
		Limit:         opts.Limit,
		Offset:        opts.Offset,
	})
	if err != nil {
		return err
	}
	return output.FromContext(cmd.Context()).History(page)
}
