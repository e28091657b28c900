package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/workbench/internal/cli/output"
	"github.com/leapstack-labs/workbench/internal/config"
)

// NewEnvsCommand creates the envs command.
func NewEnvsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List the configured environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetConfig(cmd.Context())
			r := output.FromContext(cmd.Context())
			envs := cfg.BackendEnvironments()
			if r.IsJSON() {
				return r.JSON(envs)
			}

			t := table.NewWriter()
			t.SetOutputMirror(r.Writer())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"", "ID", "Name", "Driver", "Schema"})
			for _, e := range envs {
				marker := ""
				if e.ID == cfg.DefaultEnvironment {
					marker = "*"
				}
				t.AppendRow(table.Row{marker, e.ID, e.Name, e.Driver, e.Schema})
			}
			t.Render()
			return nil
		},
	}
}
