// Package story is the mutation API over the story tree. Every write is a
// single read-modify-write cycle: load the tree, locate the target, mutate
// a copy, recompute derived status, replace the story and save. Nothing is
// saved when the target cannot be located.
package story

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scbrown/storyrun/internal/catalog"
	"github.com/scbrown/storyrun/internal/model"
	"github.com/scbrown/storyrun/internal/status"
	"github.com/scbrown/storyrun/internal/store"
	"github.com/scbrown/storyrun/internal/tree"
)

// Service composes the tree repository, status aggregator and template
// merge engine into the operations consumers call.
type Service struct {
	store  store.Store
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
	author string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock sets the time source used for createdAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs sets the id generator. The default is uuid.NewString.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// DefaultAuthor is recorded on notes when no author is configured.
const DefaultAuthor = "unknown"

// WithAuthor sets the name recorded on notes and completions. An empty
// author keeps DefaultAuthor.
func WithAuthor(author string) Option {
	return func(s *Service) {
		if author != "" {
			s.author = author
		}
	}
}

// New returns a Service backed by st.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		log:    zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
		author: DefaultAuthor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Warning is a non-fatal problem found while preparing a story for
// execution.
type Warning struct {
	TestID      string   `json:"testId"`
	TemplateID  string   `json:"templateId"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Tree returns the whole story tree.
func (s *Service) Tree(ctx context.Context) (model.StoryFolder, error) {
	return s.store.LoadTree(ctx)
}

// Init makes sure the store holds a tree document, writing an empty root
// folder when it has none. An existing tree is written back unchanged.
func (s *Service) Init(ctx context.Context) (model.StoryFolder, error) {
	root, err := s.store.LoadTree(ctx)
	if err != nil {
		return model.StoryFolder{}, err
	}
	if err := s.store.SaveTree(ctx, root); err != nil {
		return model.StoryFolder{}, err
	}
	s.log.Debug("tree initialized", zap.String("root_id", root.ID))
	return root, nil
}

// GetStory returns the story with id, or nil if there is none.
func (s *Service) GetStory(ctx context.Context, id string) (*model.Story, error) {
	root, err := s.store.LoadTree(ctx)
	if err != nil {
		return nil, err
	}
	st, ok := tree.FindStory(root, id)
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// ListStories returns every story in traversal order with its folder path.
func (s *Service) ListStories(ctx context.Context) ([]tree.Entry, error) {
	root, err := s.store.LoadTree(ctx)
	if err != nil {
		return nil, err
	}
	return tree.ListStories(root), nil
}

// Report summarizes the test statuses of a story.
func (s *Service) Report(ctx context.Context, storyID string) (status.Summary, error) {
	st, err := s.mustStory(ctx, storyID)
	if err != nil {
		return status.Summary{}, err
	}
	return status.Summarize(st), nil
}

// AddFolder creates a folder under parentID. An empty parentID means the
// root folder.
func (s *Service) AddFolder(ctx context.Context, parentID, name string) (model.StoryFolder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.StoryFolder{}, fmt.Errorf("%w: folder name is required", model.ErrInvalidInput)
	}
	root, err := s.store.LoadTree(ctx)
	if err != nil {
		return model.StoryFolder{}, err
	}
	if parentID == "" {
		parentID = root.ID
	}
	folder := model.StoryFolder{
		ID:         s.newID(),
		Name:       name,
		CreatedAt:  s.now().UTC(),
		Stories:    []model.Story{},
		Subfolders: []model.StoryFolder{},
	}
	root, err = tree.AddFolder(root, parentID, folder)
	if err != nil {
		return model.StoryFolder{}, err
	}
	if err := s.store.SaveTree(ctx, root); err != nil {
		return model.StoryFolder{}, err
	}
	added, _ := tree.FindFolder(root, folder.ID)
	s.log.Debug("folder added", zap.String("folder_id", folder.ID), zap.String("parent_id", parentID))
	return added, nil
}

// AddStory creates an empty story in folderID. An empty folderID means the
// root folder.
func (s *Service) AddStory(ctx context.Context, folderID, title, description string) (model.Story, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Story{}, fmt.Errorf("%w: story title is required", model.ErrInvalidInput)
	}
	root, err := s.store.LoadTree(ctx)
	if err != nil {
		return model.Story{}, err
	}
	if folderID == "" {
		folderID = root.ID
	}
	st := model.Story{
		ID:          s.newID(),
		Title:       title,
		Description: description,
		Tests:       []model.Test{},
		CreatedAt:   s.now().UTC(),
	}
	root, err = tree.AddStory(root, folderID, st)
	if err != nil {
		return model.Story{}, err
	}
	if err := s.store.SaveTree(ctx, root); err != nil {
		return model.Story{}, err
	}
	s.log.Debug("story added", zap.String("story_id", st.ID), zap.String("folder_id", folderID))
	return st, nil
}

// LoadForExecution prepares a story to be run. Each test with no sections
// is filled from its template; tests that already have sections are left
// alone. A test whose template is gone keeps an empty section list and is
// reported as a Warning. The tree is saved only if a test changed.
func (s *Service) LoadForExecution(ctx context.Context, storyID string) (model.Story, []Warning, error) {
	root, err := s.store.LoadTree(ctx)
	if err != nil {
		return model.Story{}, nil, err
	}
	st, ok := tree.FindStory(root, storyID)
	if !ok {
		return model.Story{}, nil, model.NotFound("story", storyID)
	}

	var warnings []Warning
	var known []model.Template
	changed := false
	for i, t := range st.Tests {
		if len(t.Sections) > 0 {
			continue
		}
		tmpl, err := s.store.GetTemplate(ctx, t.TemplateID)
		if err != nil {
			return model.Story{}, nil, fmt.Errorf("loading template %q: %w", t.TemplateID, err)
		}
		merged, mergeErr := catalog.AttachTemplate(t, tmpl)
		if mergeErr != nil {
			if known == nil {
				if known, err = s.store.ListTemplates(ctx); err != nil {
					return model.Story{}, nil, err
				}
			}
			w := Warning{TestID: t.ID, TemplateID: t.TemplateID, Message: mergeErr.Error()}
			for _, sg := range catalog.Suggest(t.TemplateID, known) {
				w.Suggestions = append(w.Suggestions, sg.ID)
			}
			warnings = append(warnings, w)
			s.log.Warn("missing template",
				zap.String("story_id", storyID),
				zap.String("test_id", t.ID),
				zap.String("template_id", t.TemplateID))
		}
		if len(merged.Sections) > 0 || merged.Status != t.Status || merged.Template != t.Template {
			changed = true
		}
		st.Tests[i] = merged
	}

	if changed {
		root, err = tree.ReplaceStory(root, st)
		if err != nil {
			return model.Story{}, nil, err
		}
		if err := s.store.SaveTree(ctx, root); err != nil {
			return model.Story{}, nil, err
		}
		s.log.Debug("story prepared for execution", zap.String("story_id", storyID))
	}
	return st, warnings, nil
}

// AddTest appends a test built from templateID to the story. Every section
// starts not_tested. An empty title defaults to the template name.
func (s *Service) AddTest(ctx context.Context, storyID, templateID, title string) (model.Test, error) {
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return model.Test{}, err
	}
	if tmpl == nil {
		return model.Test{}, model.NotFound("template", templateID)
	}
	t := catalog.NewTest(s.newID(), strings.TrimSpace(title), *tmpl)
	_, err = s.updateStory(ctx, storyID, func(st *model.Story) error {
		st.Tests = append(st.Tests, t)
		return nil
	})
	if err != nil {
		return model.Test{}, err
	}
	s.log.Debug("test added",
		zap.String("story_id", storyID),
		zap.String("test_id", t.ID),
		zap.String("template_id", templateID))
	return t, nil
}

// RemoveTest splices a test out of its story. Other tests are untouched.
func (s *Service) RemoveTest(ctx context.Context, storyID, testID string) error {
	_, err := s.updateStory(ctx, storyID, func(st *model.Story) error {
		i := testIndex(*st, testID)
		if i < 0 {
			return model.NotFound("test", testID)
		}
		st.Tests = append(st.Tests[:i], st.Tests[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Debug("test removed", zap.String("story_id", storyID), zap.String("test_id", testID))
	return nil
}

// SetSectionStatus sets one section's status and recomputes the test
// status.
func (s *Service) SetSectionStatus(ctx context.Context, storyID, testID string, section int, st model.Status) (model.Test, error) {
	if !st.Valid() {
		return model.Test{}, fmt.Errorf("%w: invalid status %q", model.ErrInvalidInput, st)
	}
	t, err := s.updateSection(ctx, storyID, testID, section, func(sec *model.Section) error {
		sec.Status = st
		return nil
	})
	if err != nil {
		return model.Test{}, err
	}
	s.log.Debug("section status set",
		zap.String("story_id", storyID),
		zap.String("test_id", testID),
		zap.Int("section", section),
		zap.String("status", string(st)),
		zap.String("test_status", string(t.Status)))
	return t, nil
}

// AddSectionNote appends a note record to a section's history.
func (s *Service) AddSectionNote(ctx context.Context, storyID, testID string, section int, text string) (model.Note, error) {
	if strings.TrimSpace(text) == "" {
		return model.Note{}, fmt.Errorf("%w: note text is required", model.ErrInvalidInput)
	}
	n := s.note(text)
	_, err := s.updateSection(ctx, storyID, testID, section, func(sec *model.Section) error {
		sec.Notes = append(sec.Notes, n)
		return nil
	})
	if err != nil {
		return model.Note{}, err
	}
	s.log.Debug("section note added",
		zap.String("story_id", storyID),
		zap.String("test_id", testID),
		zap.Int("section", section))
	return n, nil
}

// SetSectionNotes overwrites a section's history with a single record
// holding text, or clears it when text is empty.
func (s *Service) SetSectionNotes(ctx context.Context, storyID, testID string, section int, text string) (model.Test, error) {
	t, err := s.updateSection(ctx, storyID, testID, section, func(sec *model.Section) error {
		if strings.TrimSpace(text) == "" {
			sec.Notes = []model.Note{}
			return nil
		}
		sec.Notes = []model.Note{s.note(text)}
		return nil
	})
	if err != nil {
		return model.Test{}, err
	}
	s.log.Debug("section notes replaced",
		zap.String("story_id", storyID),
		zap.String("test_id", testID),
		zap.Int("section", section))
	return t, nil
}

// CompleteStory records a completed run on the story.
func (s *Service) CompleteStory(ctx context.Context, storyID, notes string) (model.Completion, error) {
	return s.finish(ctx, storyID, model.OutcomeCompleted, notes, nil)
}

// FailStory records a failed run together with the tests (and optionally
// sections) that caused it. The failure list is an audit trail and does
// not change any status.
func (s *Service) FailStory(ctx context.Context, storyID, notes string, failures []model.Failure) (model.Completion, error) {
	for i, f := range failures {
		if f.TestID == "" {
			return model.Completion{}, fmt.Errorf("%w: failure %d has no test id", model.ErrInvalidInput, i)
		}
	}
	return s.finish(ctx, storyID, model.OutcomeFailed, notes, failures)
}

func (s *Service) finish(ctx context.Context, storyID string, outcome model.Outcome, notes string, failures []model.Failure) (model.Completion, error) {
	c := model.Completion{
		ID:        s.newID(),
		Outcome:   outcome,
		Notes:     notes,
		CreatedAt: s.now().UTC(),
		CreatedBy: s.author,
	}
	if len(failures) > 0 {
		c.Failures = append([]model.Failure(nil), failures...)
	}
	_, err := s.updateStory(ctx, storyID, func(st *model.Story) error {
		st.Completions = append(st.Completions, c)
		return nil
	})
	if err != nil {
		return model.Completion{}, err
	}
	s.log.Info("story finished",
		zap.String("story_id", storyID),
		zap.String("outcome", string(outcome)),
		zap.Int("failures", len(failures)))
	return c, nil
}

// Templates returns the template catalog.
func (s *Service) Templates(ctx context.Context) ([]model.Template, error) {
	return s.store.ListTemplates(ctx)
}

// Template returns the template with id, or nil.
func (s *Service) Template(ctx context.Context, id string) (*model.Template, error) {
	return s.store.GetTemplate(ctx, id)
}

// ImportTemplates reads template records from r and appends them to the
// catalog. Each template is written on its own, so a failure part way
// through keeps what was already imported; those templates are returned
// along with the error.
func (s *Service) ImportTemplates(ctx context.Context, r io.Reader, format catalog.Format) ([]model.Template, error) {
	parsed, err := catalog.Import(r, catalog.ImportOpts{Format: format, NewID: s.newID, Now: s.now})
	if err != nil {
		return nil, err
	}
	imported := make([]model.Template, 0, len(parsed))
	for _, t := range parsed {
		if err := s.store.AddTemplates(ctx, []model.Template{t}); err != nil {
			return imported, fmt.Errorf("importing template %q: %w", t.Name, err)
		}
		imported = append(imported, t)
	}
	s.log.Info("templates imported", zap.Int("count", len(imported)))
	return imported, nil
}

// ExportTemplates writes the catalog to w.
func (s *Service) ExportTemplates(ctx context.Context, w io.Writer, format catalog.Format) error {
	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return err
	}
	return catalog.Export(w, templates, format)
}

// mustStory loads the story with id or returns a NotFound error.
func (s *Service) mustStory(ctx context.Context, id string) (model.Story, error) {
	root, err := s.store.LoadTree(ctx)
	if err != nil {
		return model.Story{}, err
	}
	st, ok := tree.FindStory(root, id)
	if !ok {
		return model.Story{}, model.NotFound("story", id)
	}
	return st, nil
}

// updateStory runs one read-modify-write cycle. fn receives a copy of the
// story; if it returns an error nothing is saved.
func (s *Service) updateStory(ctx context.Context, storyID string, fn func(*model.Story) error) (model.Story, error) {
	root, err := s.store.LoadTree(ctx)
	if err != nil {
		return model.Story{}, err
	}
	st, ok := tree.FindStory(root, storyID)
	if !ok {
		return model.Story{}, model.NotFound("story", storyID)
	}
	if err := fn(&st); err != nil {
		return model.Story{}, err
	}
	root, err = tree.ReplaceStory(root, st)
	if err != nil {
		return model.Story{}, err
	}
	if err := s.store.SaveTree(ctx, root); err != nil {
		return model.Story{}, err
	}
	return st, nil
}

// updateTest applies fn to one test and recomputes its status before the
// story is saved.
func (s *Service) updateTest(ctx context.Context, storyID, testID string, fn func(*model.Test) error) (model.Test, error) {
	var out model.Test
	_, err := s.updateStory(ctx, storyID, func(st *model.Story) error {
		i := testIndex(*st, testID)
		if i < 0 {
			return model.NotFound("test", testID)
		}
		t := &st.Tests[i]
		if err := fn(t); err != nil {
			return err
		}
		t.Status = status.DeriveTestStatus(t.Sections)
		out = tree.CloneTest(*t)
		return nil
	})
	return out, err
}

func (s *Service) updateSection(ctx context.Context, storyID, testID string, section int, fn func(*model.Section) error) (model.Test, error) {
	return s.updateTest(ctx, storyID, testID, func(t *model.Test) error {
		if section < 0 || section >= len(t.Sections) {
			return model.NotFound("section", fmt.Sprintf("%s[%d]", testID, section))
		}
		return fn(&t.Sections[section])
	})
}

func (s *Service) note(text string) model.Note {
	return model.Note{
		ID:        s.newID(),
		Note:      text,
		CreatedAt: s.now().UTC(),
		CreatedBy: s.author,
	}
}

func testIndex(st model.Story, testID string) int {
	for i := range st.Tests {
		if st.Tests[i].ID == testID {
			return i
		}
	}
	return -1
}
