package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scbrown/storyrun/internal/story"
)

var testTitle string

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Add or remove tests on a story",
}

var testAddCmd = &cobra.Command{
	Use:   "add <story-id> <template-id>",
	Short: "Add a test built from a template",
	Long: `Add a test to a story. The test gets one section per template section,
all starting not_tested. The title defaults to the template name.`,
	Example: `  sr test add <story-id> login-flow
  sr test add <story-id> login-flow --title "Login as admin"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			t, err := svc.AddTest(ctx, args[0], args[1], testTitle)
			if err != nil {
				return notFoundHint(ctx, svc, err)
			}
			if jsonOutput {
				return printJSON(t)
			}
			fmt.Printf("Added test %s (%s) with %d sections\n", t.ID, t.Title, len(t.Sections))
			return nil
		})
	},
}

var testRemoveCmd = &cobra.Command{
	Use:     "remove <story-id> <test-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a test from a story",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			if err := svc.RemoveTest(ctx, args[0], args[1]); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]string{"status": "removed", "test": args[1]})
			}
			fmt.Printf("Removed test %s\n", args[1])
			return nil
		})
	},
}

func init() {
	testAddCmd.Flags().StringVar(&testTitle, "title", "", "test title (default: template name)")
	testCmd.AddCommand(testAddCmd, testRemoveCmd)
	rootCmd.AddCommand(testCmd)
}
