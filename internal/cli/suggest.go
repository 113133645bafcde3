package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scbrown/storyrun/internal/catalog"
	"github.com/scbrown/storyrun/internal/story"
)

var (
	suggestThreshold float64
	suggestTopN      int
)

// suggestCmd finds templates whose id or name resembles a query.
var suggestCmd = &cobra.Command{
	Use:   "suggest <query>",
	Short: "Find templates by approximate id or name",
	Long: `Suggest ranks templates by string similarity between the query and each
template's id and name. An exact id match is reported on its own.`,
	Example: `  sr template suggest "login flw"
  sr template suggest checkout --threshold 0.3 --top 3
  sr template suggest login --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]
		w := cmd.OutOrStdout()

		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			templates, err := svc.Templates(ctx)
			if err != nil {
				return fmt.Errorf("list templates: %w", err)
			}

			for _, t := range templates {
				if strings.EqualFold(t.ID, query) {
					exact := []catalog.Suggestion{{ID: t.ID, Name: t.Name, Score: 1}}
					if jsonOutput {
						return writeSuggestJSON(w, query, exact)
					}
					fmt.Fprintf(w, "Template %s: %s\n", t.ID, t.Name)
					return nil
				}
			}

			threshold := suggestThreshold
			if threshold == 0 {
				threshold = catalog.DefaultThreshold
			}
			suggestions := catalog.SuggestN(query, templates, suggestTopN, threshold)

			if jsonOutput {
				return writeSuggestJSON(w, query, suggestions)
			}
			writeSuggestTable(w, query, suggestions)
			return nil
		})
	},
}

func init() {
	suggestCmd.Flags().Float64Var(&suggestThreshold, "threshold", 0, "minimum similarity score (default 0.5)")
	suggestCmd.Flags().IntVar(&suggestTopN, "top", 5, "maximum number of suggestions")
	templateCmd.AddCommand(suggestCmd)
}

// suggestOutput is the JSON structure for suggest results.
type suggestOutput struct {
	Query       string               `json:"query"`
	Suggestions []catalog.Suggestion `json:"suggestions"`
}

// writeSuggestJSON writes suggestions as JSON.
func writeSuggestJSON(w io.Writer, query string, suggestions []catalog.Suggestion) error {
	if suggestions == nil {
		suggestions = []catalog.Suggestion{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(suggestOutput{Query: query, Suggestions: suggestions})
}

// writeSuggestTable writes suggestions as an aligned text table.
func writeSuggestTable(w io.Writer, query string, suggestions []catalog.Suggestion) {
	if len(suggestions) == 0 {
		fmt.Fprintf(w, "No templates resemble %q\n", query)
		return
	}
	tbl := NewTable(w, "RANK", "ID", "NAME", "SCORE")
	for i, s := range suggestions {
		tbl.Row(fmt.Sprint(i+1), s.ID, s.Name, fmt.Sprintf("%.2f", s.Score))
	}
	tbl.Flush()
}
