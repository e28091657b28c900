package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/workbench/internal/cli/output"
	"github.com/leapstack-labs/workbench/internal/config"
	"github.com/leapstack-labs/workbench/internal/workbench"
)

// ExecOptions holds options for the exec command.
type ExecOptions struct {
	File    string
	Profile bool
}

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	opts := &ExecOptions{}

	cmd := &cobra.Command{
		Use:   "exec [sql]",
		Short: "Execute SQL or a model file once",
		Long: `Execute a SQL statement, or a project file with --file, in the
configured workspace. Model files are compiled first. The execution is
recorded in the query history.`,
		Example: `  workbench exec "select 1"
  workbench exec --file models/marts/revenue.sql --env prod
  workbench exec --profile "select * from orders" -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Project file to execute")
	cmd.Flags().BoolVar(&opts.Profile, "profile", false, "Include the query plan")
	return cmd
}

func runExec(cmd *cobra.Command, args []string, opts *ExecOptions) error {
	if (len(args) == 0) == (opts.File == "") {
		return errors.New("pass either a SQL statement or --file")
	}
	cfg := config.GetConfig(cmd.Context())
	r := output.FromContext(cmd.Context())

	st, err := OpenStack(cfg, config.GetLogger(cmd.Context()))
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	m := st.NewManager(cfg.Workspace)
	defer m.Flush()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var tabID string
	if opts.File != "" {
		res, err := m.LoadFileIntoTab(ctx, opts.File)
		if err != nil {
			return err
		}
		tabID = res.TabID
	} else {
		text := args[0]
		res, err := m.OpenTab(workbench.OpenOptions{Title: "exec", Text: &text, ForceNew: true})
		if err != nil {
			return fmt.Errorf("failed to open tab: %w", err)
		}
		tabID = res.TabID
	}

	rt, err := m.Execute(ctx, workbench.ExecuteOptions{TabID: tabID, IncludeProfiling: opts.Profile})
	if err != nil {
		return err
	}
	return r.Result(&rt.Result)
}
