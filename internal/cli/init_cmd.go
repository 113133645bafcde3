package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scbrown/storyrun/internal/catalog"
	"github.com/scbrown/storyrun/internal/story"
)

var initTemplates string

// initCmd prepares the data directory and optionally seeds the catalog.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory and an empty story tree",
	Long: `Init creates the data directory and writes an empty story tree with a
single root folder. Running it again leaves existing data alone.

Use --templates to import a template catalog in the same step.`,
	Example: `  sr init
  sr init --templates templates.yaml
  sr init --store sqlite --data-dir ./qa`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			root, err := svc.Init(ctx)
			if err != nil {
				return err
			}

			imported := 0
			if initTemplates != "" {
				f, err := os.Open(initTemplates)
				if err != nil {
					return fmt.Errorf("open %s: %w", initTemplates, err)
				}
				defer f.Close()
				ts, err := svc.ImportTemplates(ctx, f, catalog.FormatFromPath(initTemplates))
				if err != nil {
					return err
				}
				imported = len(ts)
			}

			if jsonOutput {
				return printJSON(map[string]any{
					"status":    "initialized",
					"data_dir":  dataDir,
					"root":      root.ID,
					"templates": imported,
				})
			}
			fmt.Printf("Initialized storyrun in %s\n", dataDir)
			if imported > 0 {
				fmt.Printf("Imported %d templates\n", imported)
			}
			fmt.Println("Create a story with: sr story add <title>")
			return nil
		})
	},
}

func init() {
	initCmd.Flags().StringVar(&initTemplates, "templates", "", "template file to import (JSON or YAML)")
	rootCmd.AddCommand(initCmd)
}
