// Package mcp implements the Model Context Protocol server for storyrun.
//
// It exposes the story mutation API as MCP tools over stdio so an agent can
// walk a story's checklist, record section results and notes, and finish
// the run.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/scbrown/storyrun/internal/catalog"
	"github.com/scbrown/storyrun/internal/model"
	"github.com/scbrown/storyrun/internal/note"
	"github.com/scbrown/storyrun/internal/status"
	"github.com/scbrown/storyrun/internal/story"
)

// NewServer returns an MCP server with every storyrun tool registered.
// Notes longer than maxLines are truncated in rendered stories; a
// non-positive maxLines selects note.DefaultMaxLines.
func NewServer(svc *story.Service, version string, maxLines int) *server.MCPServer {
	srv := server.NewMCPServer(
		"storyrun",
		version,
		server.WithToolCapabilities(true),
	)

	registerTools(srv, svc, maxLines)
	return srv
}

func registerTools(srv *server.MCPServer, svc *story.Service, maxLines int) {
	srv.AddTool(
		mcp.NewTool("story_list",
			mcp.WithDescription("List every story with its folder path and current status."),
		),
		handleStoryList(svc),
	)

	srv.AddTool(
		mcp.NewTool("story_show",
			mcp.WithDescription("Show a story's tests, their sections, statuses and notes."),
			mcp.WithString("story_id",
				mcp.Required(),
				mcp.Description("Story id"),
			),
		),
		handleStoryShow(svc, maxLines),
	)

	srv.AddTool(
		mcp.NewTool("story_add",
			mcp.WithDescription("Create an empty story."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Story title"),
			),
			mcp.WithString("description",
				mcp.Description("What the story covers"),
			),
			mcp.WithString("folder_id",
				mcp.Description("Folder to create the story in (default: root)"),
			),
		),
		handleStoryAdd(svc),
	)

	srv.AddTool(
		mcp.NewTool("story_run",
			mcp.WithDescription("Prepare a story for execution. Tests with no sections are filled from their templates. Call this before recording results."),
			mcp.WithString("story_id",
				mcp.Required(),
				mcp.Description("Story id"),
			),
		),
		handleStoryRun(svc, maxLines),
	)

	srv.AddTool(
		mcp.NewTool("story_report",
			mcp.WithDescription("Summarize a story: derived status, per-status counts and pass rate."),
			mcp.WithString("story_id",
				mcp.Required(),
				mcp.Description("Story id"),
			),
		),
		handleStoryReport(svc),
	)

	srv.AddTool(
		mcp.NewTool("test_add",
			mcp.WithDescription("Add a test to a story, seeded from a template's sections."),
			mcp.WithString("story_id",
				mcp.Required(),
				mcp.Description("Story id"),
			),
			mcp.WithString("template_id",
				mcp.Required(),
				mcp.Description("Template id (see template_list)"),
			),
			mcp.WithString("title",
				mcp.Description("Test title (default: template name)"),
			),
		),
		handleTestAdd(svc),
	)

	srv.AddTool(
		mcp.NewTool("test_remove",
			mcp.WithDescription("Remove a test from a story."),
			mcp.WithString("story_id", mcp.Required(), mcp.Description("Story id")),
			mcp.WithString("test_id", mcp.Required(), mcp.Description("Test id")),
		),
		handleTestRemove(svc),
	)

	srv.AddTool(
		mcp.NewTool("section_status",
			mcp.WithDescription("Record a section result. The test status is recomputed from its sections."),
			mcp.WithString("story_id", mcp.Required(), mcp.Description("Story id")),
			mcp.WithString("test_id", mcp.Required(), mcp.Description("Test id")),
			mcp.WithNumber("section",
				mcp.Required(),
				mcp.Description("Zero-based section index"),
			),
			mcp.WithString("status",
				mcp.Required(),
				mcp.Description("One of: not_tested, passed, failed"),
			),
		),
		handleSectionStatus(svc),
	)

	srv.AddTool(
		mcp.NewTool("section_note",
			mcp.WithDescription("Append a note to a section's history."),
			mcp.WithString("story_id", mcp.Required(), mcp.Description("Story id")),
			mcp.WithString("test_id", mcp.Required(), mcp.Description("Test id")),
			mcp.WithNumber("section",
				mcp.Required(),
				mcp.Description("Zero-based section index"),
			),
			mcp.WithString("note",
				mcp.Required(),
				mcp.Description("Note text"),
			),
		),
		handleSectionNote(svc),
	)

	srv.AddTool(
		mcp.NewTool("story_complete",
			mcp.WithDescription("Record that a story run completed."),
			mcp.WithString("story_id", mcp.Required(), mcp.Description("Story id")),
			mcp.WithString("notes", mcp.Description("Completion notes")),
		),
		handleStoryComplete(svc),
	)

	srv.AddTool(
		mcp.NewTool("story_fail",
			mcp.WithDescription("Record that a story run failed, with the tests that caused it. This is an audit record and does not change statuses."),
			mcp.WithString("story_id", mcp.Required(), mcp.Description("Story id")),
			mcp.WithString("notes", mcp.Description("Failure notes")),
			mcp.WithString("failures",
				mcp.Description(`JSON array of {"testId", "sectionId", "reason"} objects`),
			),
		),
		handleStoryFail(svc),
	)

	srv.AddTool(
		mcp.NewTool("template_list",
			mcp.WithDescription("List templates in the catalog."),
			mcp.WithString("category", mcp.Description("Only templates in this category")),
		),
		handleTemplateList(svc),
	)

	srv.AddTool(
		mcp.NewTool("template_import",
			mcp.WithDescription("Import templates from a JSON or YAML array of {name, category, sections: [{name, description}]} records. Import is additive."),
			mcp.WithString("content", mcp.Required(), mcp.Description("The JSON or YAML document")),
			mcp.WithString("format", mcp.Description("json or yaml (default: detect)")),
		),
		handleTemplateImport(svc),
	)
}

func handleStoryList(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries, err := svc.ListStories(ctx)
		if err != nil {
			return toolError("List stories", err), nil
		}
		if len(entries) == 0 {
			return mcp.NewToolResultText("No stories yet. Create one with story_add."), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d stories:\n\n", len(entries))
		for _, e := range entries {
			rep := status.Summarize(e.Story)
			fmt.Fprintf(&b, "- %s  %s  [%s, %d tests, %d%%]  (%s)\n",
				e.Story.ID, e.Story.Title, rep.Status, rep.Total, rep.PassRate, e.Path)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleStoryShow(svc *story.Service, maxLines int) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := stringArg(req, "story_id")
		st, err := svc.GetStory(ctx, id)
		if err != nil {
			return toolError("Show story", err), nil
		}
		if st == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Story %q not found. Use story_list to see ids.", id)), nil
		}
		return mcp.NewToolResultText(renderStory(*st, maxLines)), nil
	}
}

func handleStoryAdd(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := svc.AddStory(ctx, stringArg(req, "folder_id"), stringArg(req, "title"), stringArg(req, "description"))
		if err != nil {
			return toolError("Add story", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Created story %s: %s", st.ID, st.Title)), nil
	}
}

func handleStoryRun(svc *story.Service, maxLines int) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, warnings, err := svc.LoadForExecution(ctx, stringArg(req, "story_id"))
		if err != nil {
			return toolError("Run story", err), nil
		}
		var b strings.Builder
		for _, w := range warnings {
			fmt.Fprintf(&b, "WARNING: test %s references missing template %s", w.TestID, w.TemplateID)
			if len(w.Suggestions) > 0 {
				fmt.Fprintf(&b, " (did you mean %s?)", strings.Join(w.Suggestions, ", "))
			}
			b.WriteString("\n")
		}
		if len(warnings) > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderStory(st, maxLines))
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleStoryReport(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rep, err := svc.Report(ctx, stringArg(req, "story_id"))
		if err != nil {
			return toolError("Report", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Status: %s\nTests: %d (passed %d, failed %d, not tested %d)\nPass rate: %d%%",
			rep.Status, rep.Total, rep.Passed, rep.Failed, rep.NotTested, rep.PassRate)), nil
	}
}

func handleTestAdd(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		templateID := stringArg(req, "template_id")
		t, err := svc.AddTest(ctx, stringArg(req, "story_id"), templateID, stringArg(req, "title"))
		if err != nil {
			var nf *model.NotFoundError
			if errors.As(err, &nf) && nf.Kind == "template" {
				return missingTemplate(ctx, svc, templateID), nil
			}
			return toolError("Add test", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Added test %s (%s) with %d sections", t.ID, t.Title, len(t.Sections))), nil
	}
}

func handleTestRemove(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		testID := stringArg(req, "test_id")
		if err := svc.RemoveTest(ctx, stringArg(req, "story_id"), testID); err != nil {
			return toolError("Remove test", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Removed test %s", testID)), nil
	}
}

func handleSectionStatus(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := model.ParseStatus(stringArg(req, "status"))
		if err != nil {
			return toolError("Section status", err), nil
		}
		idx := intArg(req, "section", -1)
		t, err := svc.SetSectionStatus(ctx, stringArg(req, "story_id"), stringArg(req, "test_id"), idx, st)
		if err != nil {
			return toolError("Section status", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Section %d (%s) is %s; test %s is now %s",
			idx, t.Sections[idx].Name, st, t.ID, t.Status)), nil
	}
}

func handleSectionNote(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := svc.AddSectionNote(ctx, stringArg(req, "story_id"), stringArg(req, "test_id"), intArg(req, "section", -1), stringArg(req, "note"))
		if err != nil {
			return toolError("Section note", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Saved note %s", n.ID)), nil
	}
}

func handleStoryComplete(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c, err := svc.CompleteStory(ctx, stringArg(req, "story_id"), stringArg(req, "notes"))
		if err != nil {
			return toolError("Complete story", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Recorded completion %s", c.ID)), nil
	}
}

func handleStoryFail(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var failures []model.Failure
		if raw := stringArg(req, "failures"); strings.TrimSpace(raw) != "" {
			if err := json.Unmarshal([]byte(raw), &failures); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failures must be a JSON array: %s", err)), nil
			}
		}
		c, err := svc.FailStory(ctx, stringArg(req, "story_id"), stringArg(req, "notes"), failures)
		if err != nil {
			return toolError("Fail story", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Recorded failure %s with %d failing tests", c.ID, len(c.Failures))), nil
	}
}

func handleTemplateList(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		templates, err := svc.Templates(ctx)
		if err != nil {
			return toolError("List templates", err), nil
		}
		templates = catalog.InCategory(templates, stringArg(req, "category"))
		if len(templates) == 0 {
			return mcp.NewToolResultText("No templates. Import some with template_import."), nil
		}
		var b strings.Builder
		for _, t := range templates {
			names := make([]string, len(t.Sections))
			for i, s := range t.Sections {
				names[i] = s.Name
			}
			fmt.Fprintf(&b, "- %s  %s  [%s]\n", t.ID, t.Name, strings.Join(names, ", "))
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleTemplateImport(svc *story.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		format, err := catalog.ParseFormat(stringArg(req, "format"))
		if err != nil {
			return toolError("Import", err), nil
		}
		imported, err := svc.ImportTemplates(ctx, strings.NewReader(stringArg(req, "content")), format)
		if err != nil {
			return toolError("Import", err), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Imported %d templates:\n", len(imported))
		for _, t := range imported {
			fmt.Fprintf(&b, "- %s  %s\n", t.ID, t.Name)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

// missingTemplate reports an unknown template id with close matches.
func missingTemplate(ctx context.Context, svc *story.Service, id string) *mcp.CallToolResult {
	msg := fmt.Sprintf("Template %q not found.", id)
	if templates, err := svc.Templates(ctx); err == nil {
		if sugg := catalog.Suggest(id, templates); len(sugg) > 0 {
			ids := make([]string, len(sugg))
			for i, s := range sugg {
				ids[i] = fmt.Sprintf("%s (%s)", s.ID, s.Name)
			}
			msg += " Did you mean: " + strings.Join(ids, ", ") + "?"
		}
	}
	return mcp.NewToolResultError(msg)
}

func renderStory(st model.Story, maxLines int) string {
	var b strings.Builder
	rep := status.Summarize(st)
	fmt.Fprintf(&b, "%s  %s  [%s, %d%% passed]\n", st.ID, st.Title, rep.Status, rep.PassRate)
	if st.Description != "" {
		fmt.Fprintf(&b, "%s\n", st.Description)
	}
	for _, t := range st.Tests {
		fmt.Fprintf(&b, "\n  test %s  %s  (%s)  [%s]\n", t.ID, t.Title, t.Template, t.Status)
		for i, sec := range t.Sections {
			fmt.Fprintf(&b, "    %d. %s  [%s]\n", i, sec.Name, sec.Status)
			for _, e := range note.Entries(sec) {
				fmt.Fprintf(&b, "       - [%s] %s: %s\n", e.Timestamp, e.Author, note.Display(e.Content, maxLines))
			}
		}
	}
	return b.String()
}

func stringArg(req mcp.CallToolRequest, key string) string {
	v, _ := req.GetArguments()[key].(string)
	return v
}

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func toolError(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s error: %s", action, err))
}
