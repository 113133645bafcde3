package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/scbrown/storyrun/internal/catalog"
	"github.com/scbrown/storyrun/internal/model"
	"github.com/scbrown/storyrun/internal/note"
	"github.com/scbrown/storyrun/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

// newTestService returns a Service over a fresh file store with
// deterministic ids (id-1, id-2, ...) and a fixed clock.
func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	n := 0
	svc := New(st,
		WithClock(func() time.Time { return testNow }),
		WithIDs(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		WithAuthor("alice"),
	)
	return svc, st
}

// seedTemplate stores template T1 with sections A and B.
func seedTemplate(t *testing.T, st store.Store) {
	t.Helper()
	err := st.AddTemplates(context.Background(), []model.Template{{
		ID:   "T1",
		Name: "Login Flow",
		Sections: []model.TemplateSection{
			{Name: "A", Description: "open the page"},
			{Name: "B", Description: "submit the form"},
		},
	}})
	if err != nil {
		t.Fatalf("AddTemplates: %v", err)
	}
}

func mustStory(t *testing.T, svc *Service) model.Story {
	t.Helper()
	st, err := svc.AddStory(context.Background(), "", "Login", "user logs in")
	if err != nil {
		t.Fatalf("AddStory: %v", err)
	}
	return st
}

func TestAddTestBuildsFromTemplate(t *testing.T) {
	svc, st := newTestService(t)
	seedTemplate(t, st)
	ctx := context.Background()
	story := mustStory(t, svc)

	got, err := svc.AddTest(ctx, story.ID, "T1", "")
	if err != nil {
		t.Fatalf("AddTest: %v", err)
	}
	want := model.Test{
		ID:         got.ID,
		Title:      "Login Flow",
		Template:   "Login Flow",
		TemplateID: "T1",
		Status:     model.StatusNotTested,
		Sections: []model.Section{
			{Name: "A", Description: "open the page", Status: model.StatusNotTested, Notes: []model.Note{}},
			{Name: "B", Description: "submit the form", Status: model.StatusNotTested, Notes: []model.Note{}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AddTest (-want +got):\n%s", diff)
	}

	saved, err := svc.GetStory(ctx, story.ID)
	if err != nil || saved == nil {
		t.Fatalf("GetStory = %v, %v", saved, err)
	}
	if len(saved.Tests) != 1 || saved.Tests[0].ID != got.ID {
		t.Errorf("saved tests = %+v", saved.Tests)
	}
}

func TestAddTestMissingTemplate(t *testing.T) {
	svc, _ := newTestService(t)
	story := mustStory(t, svc)
	_, err := svc.AddTest(context.Background(), story.ID, "nope", "x")
	var nf *model.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "template" {
		t.Errorf("err = %v, want template NotFoundError", err)
	}
}

// Template T1 [A, B]; a test with no sections is merged at execution
// time, then driven through section edits.
func TestExecutionScenario(t *testing.T) {
	svc, st := newTestService(t)
	seedTemplate(t, st)
	ctx := context.Background()
	story := mustStory(t, svc)

	// Insert an unpopulated test directly, as an older document would
	// hold it.
	root, _ := st.LoadTree(ctx)
	root.Stories[0].Tests = append(root.Stories[0].Tests, model.Test{ID: "t", Title: "t", TemplateID: "T1"})
	if err := st.SaveTree(ctx, root); err != nil {
		t.Fatal(err)
	}

	loaded, warnings, err := svc.LoadForExecution(ctx, story.ID)
	if err != nil {
		t.Fatalf("LoadForExecution: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %+v", warnings)
	}
	tst := loaded.Tests[0]
	if tst.Status != model.StatusNotTested {
		t.Errorf("status after merge = %q", tst.Status)
	}
	var names []string
	for _, sec := range tst.Sections {
		names = append(names, sec.Name)
		if sec.Status != model.StatusNotTested || len(sec.Notes) != 0 {
			t.Errorf("section %s = %+v, want not_tested with no notes", sec.Name, sec)
		}
	}
	if strings.Join(names, ",") != "A,B" {
		t.Errorf("sections = %v, want [A B]", names)
	}

	steps := []struct {
		section int
		status  model.Status
		want    model.Status
	}{
		{0, model.StatusPassed, model.StatusNotTested},
		{1, model.StatusFailed, model.StatusFailed},
		{1, model.StatusPassed, model.StatusPassed},
		{0, model.StatusNotTested, model.StatusNotTested},
	}
	for _, step := range steps {
		got, err := svc.SetSectionStatus(ctx, story.ID, "t", step.section, step.status)
		if err != nil {
			t.Fatalf("SetSectionStatus(%d, %s): %v", step.section, step.status, err)
		}
		if got.Status != step.want {
			t.Errorf("after section %d = %s: test status = %s, want %s", step.section, step.status, got.Status, step.want)
		}
		saved, _ := svc.GetStory(ctx, story.ID)
		if saved.Tests[0].Status != step.want {
			t.Errorf("persisted status = %s, want %s", saved.Tests[0].Status, step.want)
		}
	}
}

func TestLoadForExecutionKeepsRecordedResults(t *testing.T) {
	svc, st := newTestService(t)
	seedTemplate(t, st)
	ctx := context.Background()
	story := mustStory(t, svc)
	tst, _ := svc.AddTest(ctx, story.ID, "T1", "")
	if _, err := svc.SetSectionStatus(ctx, story.ID, tst.ID, 0, model.StatusPassed); err != nil {
		t.Fatal(err)
	}

	// The template changes after the test was created.
	if err := st.AddTemplates(ctx, []model.Template{{ID: "T2", Name: "Other"}}); err != nil {
		t.Fatal(err)
	}
	before, _ := svc.GetStory(ctx, story.ID)
	loaded, warnings, err := svc.LoadForExecution(ctx, story.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %+v", warnings)
	}
	if diff := cmp.Diff(*before, loaded); diff != "" {
		t.Errorf("populated story changed on load (-before +after):\n%s", diff)
	}
}

func TestLoadForExecutionMissingTemplate(t *testing.T) {
	svc, st := newTestService(t)
	seedTemplate(t, st)
	ctx := context.Background()
	story := mustStory(t, svc)

	root, _ := st.LoadTree(ctx)
	root.Stories[0].Tests = []model.Test{
		{ID: "gone", Title: "gone", TemplateID: "T9"},
		{ID: "ok", Title: "ok", TemplateID: "T1"},
	}
	if err := st.SaveTree(ctx, root); err != nil {
		t.Fatal(err)
	}

	loaded, warnings, err := svc.LoadForExecution(ctx, story.ID)
	if err != nil {
		t.Fatalf("LoadForExecution: %v", err)
	}
	if len(warnings) != 1 || warnings[0].TestID != "gone" || warnings[0].TemplateID != "T9" {
		t.Fatalf("warnings = %+v, want one for test gone", warnings)
	}
	if len(warnings[0].Suggestions) == 0 || warnings[0].Suggestions[0] != "T1" {
		t.Errorf("suggestions = %v, want T1", warnings[0].Suggestions)
	}
	if loaded.Tests[0].Sections == nil || len(loaded.Tests[0].Sections) != 0 {
		t.Errorf("missing-template test sections = %#v, want empty list", loaded.Tests[0].Sections)
	}
	if loaded.Tests[0].Status != model.StatusNotTested {
		t.Errorf("missing-template status = %q", loaded.Tests[0].Status)
	}
	if len(loaded.Tests[1].Sections) != 2 {
		t.Errorf("second test should still merge, got %+v", loaded.Tests[1])
	}
}

func TestPassRateScenario(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	err := st.AddTemplates(ctx, []model.Template{{ID: "one", Name: "One", Sections: []model.TemplateSection{{Name: "only"}}}})
	if err != nil {
		t.Fatal(err)
	}
	story := mustStory(t, svc)
	results := []model.Status{model.StatusPassed, model.StatusPassed, model.StatusPassed, model.StatusFailed}
	for _, r := range results {
		tst, err := svc.AddTest(ctx, story.ID, "one", "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := svc.SetSectionStatus(ctx, story.ID, tst.ID, 0, r); err != nil {
			t.Fatal(err)
		}
	}
	rep, err := svc.Report(ctx, story.ID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.PassRate != 75 || rep.Total != 4 || rep.Passed != 3 || rep.Failed != 1 {
		t.Errorf("Report = %+v, want 3/4 passed at 75%%", rep)
	}
	if rep.Status != model.StatusFailed {
		t.Errorf("story status = %q, want failed", rep.Status)
	}
}

func TestWritesOnMissingTargetsSaveNothing(t *testing.T) {
	svc, st := newTestService(t)
	seedTemplate(t, st)
	ctx := context.Background()
	story := mustStory(t, svc)
	tst, _ := svc.AddTest(ctx, story.ID, "T1", "")
	before, _ := st.LoadTree(ctx)

	tests := []struct {
		name string
		kind string
		call func() error
	}{
		{"status on missing story", "story", func() error {
			_, err := svc.SetSectionStatus(ctx, "nope", tst.ID, 0, model.StatusPassed)
			return err
		}},
		{"status on missing test", "test", func() error {
			_, err := svc.SetSectionStatus(ctx, story.ID, "nope", 0, model.StatusPassed)
			return err
		}},
		{"status on missing section", "section", func() error {
			_, err := svc.SetSectionStatus(ctx, story.ID, tst.ID, 5, model.StatusPassed)
			return err
		}},
		{"negative section", "section", func() error {
			_, err := svc.AddSectionNote(ctx, story.ID, tst.ID, -1, "x")
			return err
		}},
		{"remove missing test", "test", func() error {
			return svc.RemoveTest(ctx, story.ID, "nope")
		}},
		{"add test to missing story", "story", func() error {
			_, err := svc.AddTest(ctx, "nope", "T1", "")
			return err
		}},
		{"complete missing story", "story", func() error {
			_, err := svc.CompleteStory(ctx, "nope", "done")
			return err
		}},
		{"notes on missing test", "test", func() error {
			_, err := svc.SetSectionNotes(ctx, story.ID, "nope", 0, "x")
			return err
		}},
		{"report missing story", "story", func() error {
			_, err := svc.Report(ctx, "nope")
			return err
		}},
		{"folder under missing parent", "folder", func() error {
			_, err := svc.AddFolder(ctx, "nope", "Web")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var nf *model.NotFoundError
			if !errors.As(err, &nf) || nf.Kind != tt.kind {
				t.Fatalf("err = %v, want %s NotFoundError", err, tt.kind)
			}
			after, _ := st.LoadTree(ctx)
			if diff := cmp.Diff(before, after); diff != "" {
				t.Errorf("tree changed on failed write (-before +after):\n%s", diff)
			}
		})
	}
}

func TestInvalidInput(t *testing.T) {
	svc, st := newTestService(t)
	seedTemplate(t, st)
	ctx := context.Background()
	story := mustStory(t, svc)
	tst, _ := svc.AddTest(ctx, story.ID, "T1", "")

	checks := map[string]error{}
	_, checks["bad status"] = svc.SetSectionStatus(ctx, story.ID, tst.ID, 0, "skipped")
	_, checks["empty note"] = svc.AddSectionNote(ctx, story.ID, tst.ID, 0, "  ")
	_, checks["empty title"] = svc.AddStory(ctx, "", " ", "")
	_, checks["empty folder"] = svc.AddFolder(ctx, "", "")
	_, checks["failure without test"] = svc.FailStory(ctx, story.ID, "x", []model.Failure{{Reason: "r"}})
	for name, err := range checks {
		if !errors.Is(err, model.ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestSectionNotes(t *testing.T) {
	svc, st := newTestService(t)
	seedTemplate(t, st)
	ctx := context.Background()
	story := mustStory(t, svc)
	tst, _ := svc.AddTest(ctx, story.ID, "T1", "")

	first, err := svc.AddSectionNote(ctx, story.ID, tst.ID, 0, "worked")
	if err != nil {
		t.Fatalf("AddSectionNote: %v", err)
	}
	if first.CreatedBy != "alice" || !first.CreatedAt.Equal(testNow) {
		t.Errorf("note = %+v", first)
	}
	if _, err := svc.AddSectionNote(ctx, story.ID, tst.ID, 0, "still works"); err != nil {
		t.Fatal(err)
	}

	saved, _ := svc.GetStory(ctx, story.ID)
	sec := saved.Tests[0].Sections[0]
	if len(sec.Notes) != 2 || sec.Notes[0].Note != "worked" || sec.Notes[1].Note != "still works" {
		t.Fatalf("notes = %+v, want two appended records", sec.Notes)
	}
	entries := note.ForSection(note.Split(note.LegacyView(sec)), "A")
	if len(entries) != 2 || entries[0].Author != "alice" || entries[0].Content != "worked" {
		t.Errorf("legacy view entries = %+v", entries)
	}

	// Overwrite replaces the history with one record.
	got, err := svc.SetSectionNotes(ctx, story.ID, tst.ID, 0, "rewritten")
	if err != nil {
		t.Fatal(err)
	}
	if n := got.Sections[0].Notes; len(n) != 1 || n[0].Note != "rewritten" {
		t.Errorf("after SetSectionNotes notes = %+v", n)
	}
	got, err = svc.SetSectionNotes(ctx, story.ID, tst.ID, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if n := got.Sections[0].Notes; n == nil || len(n) != 0 {
		t.Errorf("clearing notes = %#v, want empty list", n)
	}
	if got.Sections[1].Notes == nil {
		t.Error("other sections should be untouched")
	}
}

func TestRemoveTest(t *testing.T) {
	svc, st := newTestService(t)
	seedTemplate(t, st)
	ctx := context.Background()
	story := mustStory(t, svc)
	a, _ := svc.AddTest(ctx, story.ID, "T1", "a")
	b, _ := svc.AddTest(ctx, story.ID, "T1", "b")
	c, _ := svc.AddTest(ctx, story.ID, "T1", "c")
	if _, err := svc.SetSectionStatus(ctx, story.ID, c.ID, 0, model.StatusFailed); err != nil {
		t.Fatal(err)
	}

	if err := svc.RemoveTest(ctx, story.ID, b.ID); err != nil {
		t.Fatalf("RemoveTest: %v", err)
	}
	saved, _ := svc.GetStory(ctx, story.ID)
	if len(saved.Tests) != 2 || saved.Tests[0].ID != a.ID || saved.Tests[1].ID != c.ID {
		t.Fatalf("tests after removal = %+v", saved.Tests)
	}
	if saved.Tests[1].Status != model.StatusFailed {
		t.Errorf("remaining test status = %q, want failed", saved.Tests[1].Status)
	}
}

func TestCompleteAndFailStory(t *testing.T) {
	svc, st := newTestService(t)
	seedTemplate(t, st)
	ctx := context.Background()
	story := mustStory(t, svc)
	tst, _ := svc.AddTest(ctx, story.ID, "T1", "")
	if _, err := svc.SetSectionStatus(ctx, story.ID, tst.ID, 0, model.StatusPassed); err != nil {
		t.Fatal(err)
	}

	done, err := svc.CompleteStory(ctx, story.ID, "all good")
	if err != nil {
		t.Fatalf("CompleteStory: %v", err)
	}
	if done.Outcome != model.OutcomeCompleted || done.Notes != "all good" || done.CreatedBy != "alice" {
		t.Errorf("completion = %+v", done)
	}

	failures := []model.Failure{{TestID: tst.ID, SectionID: "B", Reason: "button missing"}}
	failed, err := svc.FailStory(ctx, story.ID, "regression", failures)
	if err != nil {
		t.Fatalf("FailStory: %v", err)
	}
	if diff := cmp.Diff(failures, failed.Failures); diff != "" {
		t.Errorf("failures (-want +got):\n%s", diff)
	}

	saved, _ := svc.GetStory(ctx, story.ID)
	if len(saved.Completions) != 2 {
		t.Fatalf("completions = %d, want 2", len(saved.Completions))
	}
	if saved.Completions[1].Outcome != model.OutcomeFailed {
		t.Errorf("second completion = %+v", saved.Completions[1])
	}
	// The failure list is an audit trail only.
	if saved.Tests[0].Status != model.StatusNotTested || saved.Tests[0].Sections[1].Status != model.StatusNotTested {
		t.Errorf("FailStory changed statuses: %+v", saved.Tests[0])
	}
}

func TestFoldersAndListing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	web, err := svc.AddFolder(ctx, "", "Web")
	if err != nil {
		t.Fatalf("AddFolder: %v", err)
	}
	if web.ParentID == nil || *web.ParentID != "root" {
		t.Errorf("ParentID = %v, want root", web.ParentID)
	}
	checkout, err := svc.AddFolder(ctx, web.ID, "Checkout")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddStory(ctx, "", "Smoke", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddStory(ctx, checkout.ID, "Pay", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddStory(ctx, web.ID, "Login", ""); err != nil {
		t.Fatal(err)
	}

	entries, err := svc.ListStories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Path+":"+e.Story.Title)
	}
	want := []string{"Stories:Smoke", "Stories/Web:Login", "Stories/Web/Checkout:Pay"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListStories (-want +got):\n%s", diff)
	}

	if s, err := svc.GetStory(ctx, "missing"); err != nil || s != nil {
		t.Errorf("GetStory(missing) = %v, %v; want nil, nil", s, err)
	}
}

func TestImportExportTemplates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	input := `[{"name":"Login","category":"auth","sections":[{"name":"A"},{"name":"B"}]},{"name":"Login","sections":[]}]`

	imported, err := svc.ImportTemplates(ctx, strings.NewReader(input), "")
	if err != nil {
		t.Fatalf("ImportTemplates: %v", err)
	}
	if len(imported) != 2 || imported[0].ID == imported[1].ID {
		t.Fatalf("imported = %+v, want two templates with distinct ids", imported)
	}
	// Additive: a second import appends.
	if _, err := svc.ImportTemplates(ctx, strings.NewReader(input), catalog.FormatJSON); err != nil {
		t.Fatal(err)
	}
	all, err := svc.Templates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("catalog size = %d, want 4", len(all))
	}

	var out strings.Builder
	if err := svc.ExportTemplates(ctx, &out, catalog.FormatYAML); err != nil {
		t.Fatalf("ExportTemplates: %v", err)
	}
	if !strings.Contains(out.String(), "name: Login") || strings.Contains(out.String(), "id-") {
		t.Errorf("yaml export =\n%s", out.String())
	}

	if _, err := svc.ImportTemplates(ctx, strings.NewReader(`[{"sections":[]}]`), ""); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("nameless import err = %v, want ErrInvalidInput", err)
	}
}

func TestInitWritesRootOnce(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	root, err := svc.Init(ctx)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if root.ID != "root" || root.ParentID != nil {
		t.Fatalf("root = %+v", root)
	}
	if _, err := svc.AddStory(ctx, "", "Smoke", ""); err != nil {
		t.Fatal(err)
	}

	again, err := svc.Init(ctx)
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if len(again.Stories) != 1 {
		t.Fatalf("second Init dropped stories: %+v", again.Stories)
	}
	stored, err := st.LoadTree(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(again, stored); diff != "" {
		t.Errorf("stored tree mismatch (-init +stored):\n%s", diff)
	}
}
