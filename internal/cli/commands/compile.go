package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/workbench/internal/cli/output"
	"github.com/leapstack-labs/workbench/internal/config"
	"github.com/leapstack-labs/workbench/internal/workbench"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <file>",
		Short: "Print the compiled SQL of a model file",
		Example: `  workbench compile models/marts/revenue.sql
  workbench compile models/marts/revenue.sql --env prod -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig(cmd.Context())
			r := output.FromContext(cmd.Context())

			st, err := OpenStack(cfg, config.GetLogger(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			m := st.NewManager(cfg.Workspace)
			defer m.Flush()

			res, err := m.LoadFileIntoTab(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			compiled, err := m.ResolveCompiled(cmd.Context(), res.TabID, workbench.ResolveOptions{Force: true})
			if err != nil {
				return err
			}
			if r.IsJSON() {
				return r.JSON(compiled)
			}
			_, _ = fmt.Fprintln(r.Writer(), compiled.CompiledSQL)
			return nil
		},
	}
}
