package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scbrown/storyrun/internal/model"
	"github.com/scbrown/storyrun/internal/status"
	"github.com/scbrown/storyrun/internal/story"
)

var folderParent string

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the folder tree with story statuses",
	Long: `Print every folder and story. Folders show a summary over all the tests
beneath them; stories show their derived status and pass rate.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			root, err := svc.Tree(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(root)
			}
			printTree(os.Stdout, root, 0, isTTY(os.Stdout))
			return nil
		})
	},
}

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage story folders",
}

var folderAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a folder",
	Example: `  sr folder add Web
  sr folder add Checkout --parent <folder-id>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			f, err := svc.AddFolder(ctx, folderParent, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(f)
			}
			fmt.Printf("Created folder %s: %s\n", f.ID, f.Name)
			return nil
		})
	},
}

func init() {
	folderAddCmd.Flags().StringVar(&folderParent, "parent", "", "parent folder id (default: root)")
	folderCmd.AddCommand(folderAddCmd)
	rootCmd.AddCommand(treeCmd, folderCmd)
}

func printTree(w io.Writer, f model.StoryFolder, depth int, color bool) {
	pad := strings.Repeat("  ", depth)
	sum := status.SummarizeFolder(f)
	fmt.Fprintf(w, "%s%s/ (%s)  %s  %d tests, %d%% passed\n",
		pad, bold(f.Name, color), f.ID, statusText(sum.Status, color), sum.Total, sum.PassRate)
	for _, s := range f.Stories {
		ss := status.Summarize(s)
		fmt.Fprintf(w, "%s  %s (%s)  %s  %d%%\n", pad, s.Title, s.ID, statusText(ss.Status, color), ss.PassRate)
	}
	for _, sub := range f.Subfolders {
		printTree(w, sub, depth+1, color)
	}
}
