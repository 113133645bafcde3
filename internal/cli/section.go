package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/scbrown/storyrun/internal/model"
	"github.com/scbrown/storyrun/internal/note"
	"github.com/scbrown/storyrun/internal/story"
)

var (
	notesLegacy  bool
	notesReplace string
	notesClear   bool
)

var sectionCmd = &cobra.Command{
	Use:   "section",
	Short: "Record section results and notes",
	Long: `Sections are addressed by story id, test id and zero-based index, as
listed by sr story show.`,
}

var sectionStatusCmd = &cobra.Command{
	Use:   "status <story-id> <test-id> <section> <status>",
	Short: "Set a section's status",
	Long: `Set a section's status to not_tested, passed or failed. The test status
is recomputed: failed if any section failed, passed if all passed,
otherwise not_tested.`,
	Example: `  sr section status <story-id> <test-id> 0 passed`,
	Args:    cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseSectionIndex(args[2])
		if err != nil {
			return err
		}
		st, err := model.ParseStatus(args[3])
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			t, err := svc.SetSectionStatus(ctx, args[0], args[1], idx, st)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(t)
			}
			color := isTTY(os.Stdout)
			fmt.Printf("%s: %s\n", t.Sections[idx].Name, statusText(st, color))
			fmt.Printf("Test %s is %s\n", t.ID, statusText(t.Status, color))
			return nil
		})
	},
}

var sectionNoteCmd = &cobra.Command{
	Use:     "note <story-id> <test-id> <section> <text>",
	Short:   "Append a note to a section's history",
	Example: `  sr section note <story-id> <test-id> 1 "redirected to dashboard"`,
	Args:    cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseSectionIndex(args[2])
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			n, err := svc.AddSectionNote(ctx, args[0], args[1], idx, args[3])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(n)
			}
			fmt.Printf("Saved note %s\n", n.ID)
			return nil
		})
	},
}

var sectionNotesCmd = &cobra.Command{
	Use:   "notes <story-id> <test-id> <section>",
	Short: "Show or replace a section's note history",
	Long: `Show a section's note history, oldest first. --legacy prints the history
in the single-string encoding:

  [Section: <name>] [<timestamp>] <author>: <content>

--replace overwrites the whole history with one note and --clear empties it.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseSectionIndex(args[2])
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			if notesClear || notesReplace != "" {
				text := notesReplace
				if notesClear {
					text = ""
				}
				if _, err := svc.SetSectionNotes(ctx, args[0], args[1], idx, text); err != nil {
					return err
				}
			}
			sec, err := findSection(ctx, svc, args[0], args[1], idx)
			if err != nil {
				return err
			}
			return printNotes(sec)
		})
	},
}

func init() {
	sectionNotesCmd.Flags().BoolVar(&notesLegacy, "legacy", false, "print the history in the single-string encoding")
	sectionNotesCmd.Flags().StringVar(&notesReplace, "replace", "", "replace the history with one note")
	sectionNotesCmd.Flags().BoolVar(&notesClear, "clear", false, "remove every note")
	sectionNotesCmd.MarkFlagsMutuallyExclusive("replace", "clear")

	sectionCmd.AddCommand(sectionStatusCmd, sectionNoteCmd, sectionNotesCmd)
	rootCmd.AddCommand(sectionCmd)
}

func parseSectionIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: section index %q is not a number", model.ErrInvalidInput, s)
	}
	return n, nil
}

func findSection(ctx context.Context, svc *story.Service, storyID, testID string, idx int) (model.Section, error) {
	st, err := svc.GetStory(ctx, storyID)
	if err != nil {
		return model.Section{}, err
	}
	if st == nil {
		return model.Section{}, model.NotFound("story", storyID)
	}
	for _, t := range st.Tests {
		if t.ID != testID {
			continue
		}
		if idx < 0 || idx >= len(t.Sections) {
			return model.Section{}, model.NotFound("section", fmt.Sprintf("%s[%d]", testID, idx))
		}
		return t.Sections[idx], nil
	}
	return model.Section{}, model.NotFound("test", testID)
}

func printNotes(sec model.Section) error {
	entries := note.Entries(sec)
	if jsonOutput {
		if entries == nil {
			entries = []note.Entry{}
		}
		return printJSON(struct {
			Section string       `json:"section"`
			Notes   []model.Note `json:"notes"`
			Entries []note.Entry `json:"entries"`
		}{sec.Name, sec.Notes, entries})
	}
	if notesLegacy {
		if v := note.LegacyView(sec); v != "" {
			fmt.Println(v)
		}
		return nil
	}
	if len(entries) == 0 {
		fmt.Printf("No notes on %s\n", sec.Name)
		return nil
	}
	for _, e := range entries {
		fmt.Println(entryLine(e))
	}
	return nil
}
