package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/workbench/internal/cli/output"
	"github.com/leapstack-labs/workbench/internal/config"
	"github.com/leapstack-labs/workbench/internal/filetree"
	"github.com/leapstack-labs/workbench/internal/project"
)

// NewTreeCommand creates the tree command.
func NewTreeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [query]",
		Short: "Show the project file tree",
		Long: `Show the project files as a tree. With a query only matching files
are listed, together with the folders leading to them.`,
		Example: `  workbench tree
  workbench tree orders`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig(cmd.Context())
			p, err := project.Open(project.Config{
				Root:      cfg.ProjectDir,
				ModelsDir: cfg.ModelsDir,
				MacrosDir: cfg.MacrosDir,
				Logger:    config.GetLogger(cmd.Context()),
			})
			if err != nil {
				return err
			}
			records, err := p.ListFiles(cmd.Context())
			if err != nil {
				return err
			}

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			tree, _ := filetree.Filter(filetree.BuildTree(records), query)
			return output.FromContext(cmd.Context()).Tree(filetree.Flatten(tree, filetree.ExpandedSet(filetree.CollectFolderPaths(tree))))
		},
	}
}

