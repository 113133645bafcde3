package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/scbrown/storyrun/internal/catalog"
	"github.com/scbrown/storyrun/internal/model"
	"github.com/scbrown/storyrun/internal/note"
	"github.com/scbrown/storyrun/internal/status"
	"github.com/scbrown/storyrun/internal/story"
	"github.com/scbrown/storyrun/internal/tree"
)

var (
	storyFolder      string
	storyDescription string
	finishNotes      string
	failureFlags     []string
)

var storyCmd = &cobra.Command{
	Use:   "story",
	Short: "Create, inspect and run stories",
}

var storyAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create an empty story",
	Example: `  sr story add "Checkout"
  sr story add "Guest checkout" --folder <folder-id> --description "no account"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			st, err := svc.AddStory(ctx, storyFolder, args[0], storyDescription)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(st)
			}
			fmt.Printf("Created story %s: %s\n", st.ID, st.Title)
			return nil
		})
	},
}

var storyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stories with their derived status",
	Long: `List every story in tree order with the folder path, derived status,
number of tests, pass rate and when it was last run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			entries, err := svc.ListStories(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				if entries == nil {
					entries = []tree.Entry{}
				}
				return printJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Println("No stories yet. Create one with: sr story add <title>")
				return nil
			}
			tbl := NewTable(os.Stdout, "ID", "TITLE", "FOLDER", "STATUS", "TESTS", "PASS", "LAST RUN")
			titleWidth := tbl.Width() / 3
			for _, e := range entries {
				sum := status.Summarize(e.Story)
				tbl.Row(
					e.Story.ID,
					truncate(e.Story.Title, titleWidth),
					e.Path,
					tbl.Status(sum.Status),
					strconv.Itoa(sum.Total),
					fmt.Sprintf("%d%%", sum.PassRate),
					lastRun(e.Story),
				)
			}
			return tbl.Flush()
		})
	},
}

var storyShowCmd = &cobra.Command{
	Use:   "show <story-id>",
	Short: "Show a story's tests, sections and notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			st, err := svc.GetStory(ctx, args[0])
			if err != nil {
				return err
			}
			if st == nil {
				return model.NotFound("story", args[0])
			}
			if jsonOutput {
				return printJSON(st)
			}
			printStory(os.Stdout, *st)
			return nil
		})
	},
}

var storyRunCmd = &cobra.Command{
	Use:   "run <story-id>",
	Short: "Prepare a story for execution",
	Long: `Run loads a story for execution. Every test that has no sections yet is
filled from its template; tests that already have sections keep them and
their recorded results. A test whose template no longer exists is reported
as a warning and stays in the story with no sections.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			st, warnings, err := svc.LoadForExecution(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				if warnings == nil {
					warnings = []story.Warning{}
				}
				return printJSON(struct {
					Story    model.Story     `json:"story"`
					Warnings []story.Warning `json:"warnings"`
				}{st, warnings})
			}
			for _, w := range warnings {
				fmt.Fprintf(os.Stderr, "warning: test %s: template %q not found", w.TestID, w.TemplateID)
				if len(w.Suggestions) > 0 {
					fmt.Fprintf(os.Stderr, " (did you mean %s?)", strings.Join(w.Suggestions, ", "))
				}
				fmt.Fprintln(os.Stderr)
			}
			printStory(os.Stdout, st)
			return nil
		})
	},
}

var storyReportCmd = &cobra.Command{
	Use:   "report <story-id>",
	Short: "Summarize a story's results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			sum, err := svc.Report(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(sum)
			}
			color := isTTY(os.Stdout)
			fmt.Printf("Status:      %s\n", statusText(sum.Status, color))
			fmt.Printf("Tests:       %d\n", sum.Total)
			fmt.Printf("Passed:      %d\n", sum.Passed)
			fmt.Printf("Failed:      %d\n", sum.Failed)
			fmt.Printf("Not tested:  %d\n", sum.NotTested)
			fmt.Printf("Pass rate:   %d%%\n", sum.PassRate)
			return nil
		})
	},
}

var storyCompleteCmd = &cobra.Command{
	Use:   "complete <story-id>",
	Short: "Record that a story run completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			c, err := svc.CompleteStory(ctx, args[0], finishNotes)
			if err != nil {
				return err
			}
			return printCompletion(c)
		})
	},
}

var storyFailCmd = &cobra.Command{
	Use:   "fail <story-id>",
	Short: "Record that a story run failed",
	Long: `Fail records a failed run together with the tests that caused it. Each
--failure names a test, optionally a section, and a reason:

  --failure <test-id>=<reason>
  --failure <test-id>/<section>=<reason>

The record is an audit trail; it does not change any test or section status.`,
	Example: `  sr story fail <story-id> --notes "checkout broken" --failure t1=500 on submit`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failures, err := parseFailures(failureFlags)
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			c, err := svc.FailStory(ctx, args[0], finishNotes, failures)
			if err != nil {
				return err
			}
			return printCompletion(c)
		})
	},
}

func init() {
	storyAddCmd.Flags().StringVar(&storyFolder, "folder", "", "folder id to create the story in (default: root)")
	storyAddCmd.Flags().StringVar(&storyDescription, "description", "", "what the story covers")
	storyCompleteCmd.Flags().StringVar(&finishNotes, "notes", "", "notes for the run")
	storyFailCmd.Flags().StringVar(&finishNotes, "notes", "", "notes for the run")
	storyFailCmd.Flags().StringArrayVar(&failureFlags, "failure", nil, "failing test as <test-id>[/<section>]=<reason> (repeatable)")

	storyCmd.AddCommand(storyAddCmd, storyListCmd, storyShowCmd, storyRunCmd, storyReportCmd, storyCompleteCmd, storyFailCmd)
	rootCmd.AddCommand(storyCmd)
}

// parseFailures reads --failure values of the form test[/section]=reason.
func parseFailures(vals []string) ([]model.Failure, error) {
	var out []model.Failure
	for _, v := range vals {
		target, reason, _ := strings.Cut(v, "=")
		testID, section, _ := strings.Cut(target, "/")
		testID = strings.TrimSpace(testID)
		if testID == "" {
			return nil, fmt.Errorf("%w: --failure %q has no test id", model.ErrInvalidInput, v)
		}
		out = append(out, model.Failure{
			TestID:    testID,
			SectionID: strings.TrimSpace(section),
			Reason:    strings.TrimSpace(reason),
		})
	}
	return out, nil
}

func printCompletion(c model.Completion) error {
	if jsonOutput {
		return printJSON(c)
	}
	fmt.Printf("Recorded %s run %s\n", c.Outcome, c.ID)
	for _, f := range c.Failures {
		target := f.TestID
		if f.SectionID != "" {
			target += "/" + f.SectionID
		}
		fmt.Printf("  %s: %s\n", target, f.Reason)
	}
	return nil
}

// lastRun describes the most recent completion, e.g. "failed 2 hours ago".
func lastRun(st model.Story) string {
	if len(st.Completions) == 0 {
		return "never"
	}
	c := st.Completions[len(st.Completions)-1]
	return fmt.Sprintf("%s %s", c.Outcome, humanize.Time(c.CreatedAt))
}

// printStory renders a story with every test, section and note. Notes
// longer than the configured line limit are truncated for display.
func printStory(w io.Writer, st model.Story) {
	color := isTTY(w)
	sum := status.Summarize(st)
	fmt.Fprintf(w, "Story:       %s (%s)\n", bold(st.Title, color), st.ID)
	fmt.Fprintf(w, "Status:      %s  %d tests, %d%% passed\n", statusText(sum.Status, color), sum.Total, sum.PassRate)
	if st.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", st.Description)
	}
	if !st.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:     %s\n", humanize.Time(st.CreatedAt))
	}
	for _, t := range st.Tests {
		fmt.Fprintf(w, "\n%s %s  %s  [%s]\n", bold("Test", color), t.ID, t.Title, statusText(t.Status, color))
		if len(t.Sections) == 0 {
			fmt.Fprintf(w, "  (no sections; template %s)\n", t.TemplateID)
			continue
		}
		for i, sec := range t.Sections {
			fmt.Fprintf(w, "  %d. %s  [%s]\n", i, sec.Name, statusText(sec.Status, color))
			for _, e := range note.Entries(sec) {
				fmt.Fprintf(w, "     %s\n", indent(entryLine(e), "     "))
			}
		}
	}
}

// entryLine renders one history entry without its section tag, with the
// content truncated for display.
func entryLine(e note.Entry) string {
	e.Section = ""
	e.Content = note.Display(e.Content, noteMaxLines)
	return note.Format(e)
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}

// notFoundHint adds template suggestions to a missing-template error.
func notFoundHint(ctx context.Context, svc *story.Service, err error) error {
	var nf *model.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "template" {
		return err
	}
	templates, lerr := svc.Templates(ctx)
	if lerr != nil {
		return err
	}
	var ids []string
	for _, s := range catalog.Suggest(nf.ID, templates) {
		ids = append(ids, s.ID)
	}
	if len(ids) == 0 {
		return err
	}
	return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(ids, ", "))
}
