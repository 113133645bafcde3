// Package server provides an HTTP server that wraps the story service and
// the store.Store interface, enabling remote access to story data over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scbrown/storyrun/internal/catalog"
	"github.com/scbrown/storyrun/internal/model"
	"github.com/scbrown/storyrun/internal/note"
	"github.com/scbrown/storyrun/internal/store"
	"github.com/scbrown/storyrun/internal/story"
	"github.com/scbrown/storyrun/internal/tree"
)

// AuthorHeader names the request header carrying the note author.
const AuthorHeader = "X-Sr-Author"

// Server wraps a store.Store and exposes it over HTTP.
type Server struct {
	store   store.Store
	mux     *http.ServeMux
	srv     *http.Server
	log     *zap.Logger
	svcOpts []story.Option
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithServiceOptions passes options to the story service used for
// mutations.
func WithServiceOptions(opts ...story.Option) Option {
	return func(s *Server) { s.svcOpts = append(s.svcOpts, opts...) }
}

// New creates a Server that delegates to the given store.
func New(st store.Store, opts ...Option) *Server {
	srv := &Server{store: st, mux: http.NewServeMux(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(srv)
	}
	srv.routes()
	srv.srv = &http.Server{
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	// Document-level endpoints used by store.RemoteStore.
	s.mux.HandleFunc("GET /api/v1/tree", s.handleGetTree)
	s.mux.HandleFunc("PUT /api/v1/tree", s.handlePutTree)
	s.mux.HandleFunc("GET /api/v1/templates", s.handleListTemplates)
	s.mux.HandleFunc("POST /api/v1/templates", s.handleAddTemplates)
	s.mux.HandleFunc("GET /api/v1/templates/{id}", s.handleGetTemplate)
	s.mux.HandleFunc("POST /api/v1/templates/import", s.handleImportTemplates)
	s.mux.HandleFunc("GET /api/v1/templates/export", s.handleExportTemplates)
	s.mux.HandleFunc("GET /api/v1/categories", s.handleCategories)

	// Mutation API.
	s.mux.HandleFunc("POST /api/v1/folders", s.handleAddFolder)
	s.mux.HandleFunc("GET /api/v1/stories", s.handleListStories)
	s.mux.HandleFunc("POST /api/v1/stories", s.handleAddStory)
	s.mux.HandleFunc("GET /api/v1/stories/{id}", s.handleGetStory)
	s.mux.HandleFunc("GET /api/v1/stories/{id}/report", s.handleReport)
	s.mux.HandleFunc("POST /api/v1/stories/{id}/run", s.handleRun)
	s.mux.HandleFunc("POST /api/v1/stories/{id}/complete", s.handleComplete)
	s.mux.HandleFunc("POST /api/v1/stories/{id}/fail", s.handleFail)
	s.mux.HandleFunc("POST /api/v1/stories/{id}/tests", s.handleAddTest)
	s.mux.HandleFunc("DELETE /api/v1/stories/{id}/tests/{test}", s.handleRemoveTest)
	s.mux.HandleFunc("PUT /api/v1/stories/{id}/tests/{test}/sections/{section}/status", s.handleSetStatus)
	s.mux.HandleFunc("GET /api/v1/stories/{id}/tests/{test}/sections/{section}/notes", s.handleGetNotes)
	s.mux.HandleFunc("POST /api/v1/stories/{id}/tests/{test}/sections/{section}/notes", s.handleAddNote)
	s.mux.HandleFunc("PUT /api/v1/stories/{id}/tests/{test}/sections/{section}/notes", s.handleSetNotes)
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on the given listener until Shutdown is
// called, in which case it returns nil.
func (s *Server) Serve(ln net.Listener) error {
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler returns the HTTP handler for use with httptest.Server or custom listeners.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// service builds the story service for one request, recording the
// request's author on notes and completions.
func (s *Server) service(r *http.Request) *story.Service {
	opts := append([]story.Option{story.WithLogger(s.log)}, s.svcOpts...)
	if author := strings.TrimSpace(r.Header.Get(AuthorHeader)); author != "" {
		opts = append(opts, story.WithAuthor(author))
	}
	return story.New(s.store, opts...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	root, err := s.store.LoadTree(r.Context())
	if err != nil {
		writeError(w, "loading tree", err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

func (s *Server) handlePutTree(w http.ResponseWriter, r *http.Request) {
	var root model.StoryFolder
	if err := json.NewDecoder(r.Body).Decode(&root); err != nil {
		writeErr(w, http.StatusBadRequest, model.ErrorKind(model.ErrInvalidInput), "invalid request body: %v", err)
		return
	}
	if err := s.store.SaveTree(r.Context(), root); err != nil {
		writeError(w, "saving tree", err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates(r.Context())
	if err != nil {
		writeError(w, "listing templates", err)
		return
	}
	templates = catalog.InCategory(templates, r.URL.Query().Get("category"))
	if templates == nil {
		templates = []model.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleAddTemplates(w http.ResponseWriter, r *http.Request) {
	var templates []model.Template
	if err := json.NewDecoder(r.Body).Decode(&templates); err != nil {
		writeErr(w, http.StatusBadRequest, model.ErrorKind(model.ErrInvalidInput), "invalid request body: %v", err)
		return
	}
	if err := s.store.AddTemplates(r.Context(), templates); err != nil {
		writeError(w, "adding templates", err)
		return
	}
	writeJSON(w, http.StatusCreated, templates)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.GetTemplate(r.Context(), id)
	if err != nil {
		writeError(w, "getting template", err)
		return
	}
	if t == nil {
		writeError(w, "getting template", model.NotFound("template", id))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleImportTemplates(w http.ResponseWriter, r *http.Request) {
	format, err := parseFormat(r)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	imported, err := s.service(r).ImportTemplates(r.Context(), r.Body, format)
	if err != nil {
		writeError(w, "importing templates", err)
		return
	}
	writeJSON(w, http.StatusCreated, imported)
}

func (s *Server) handleExportTemplates(w http.ResponseWriter, r *http.Request) {
	format, err := parseFormat(r)
	if err != nil {
		writeError(w, "export", err)
		return
	}
	var buf bytes.Buffer
	if err := s.service(r).ExportTemplates(r.Context(), &buf, format); err != nil {
		writeError(w, "exporting templates", err)
		return
	}
	if format == catalog.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates(r.Context())
	if err != nil {
		writeError(w, "listing categories", err)
		return
	}
	writeJSON(w, http.StatusOK, catalog.Categories(templates))
}

func (s *Server) handleAddFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParentID string `json:"parentId"`
		Name     string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	f, err := s.service(r).AddFolder(r.Context(), req.ParentID, req.Name)
	if err != nil {
		writeError(w, "adding folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service(r).ListStories(r.Context())
	if err != nil {
		writeError(w, "listing stories", err)
		return
	}
	if entries == nil {
		entries = []tree.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderID    string `json:"folderId"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	st, err := s.service(r).AddStory(r.Context(), req.FolderID, req.Title, req.Description)
	if err != nil {
		writeError(w, "adding story", err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := s.service(r).GetStory(r.Context(), id)
	if err != nil {
		writeError(w, "getting story", err)
		return
	}
	if st == nil {
		writeError(w, "getting story", model.NotFound("story", id))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.service(r).Report(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	st, warnings, err := s.service(r).LoadForExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "loading story", err)
		return
	}
	if warnings == nil {
		warnings = []story.Warning{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"story": st, "warnings": warnings})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := s.service(r).CompleteStory(r.Context(), r.PathValue("id"), req.Notes)
	if err != nil {
		writeError(w, "completing story", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes    string          `json:"notes"`
		Failures []model.Failure `json:"failures"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := s.service(r).FailStory(r.Context(), r.PathValue("id"), req.Notes, req.Failures)
	if err != nil {
		writeError(w, "failing story", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleAddTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"templateId"`
		Title      string `json:"title"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.TemplateID == "" {
		writeErr(w, http.StatusBadRequest, model.ErrorKind(model.ErrInvalidInput), "templateId is required")
		return
	}
	t, err := s.service(r).AddTest(r.Context(), r.PathValue("id"), req.TemplateID, req.Title)
	if err != nil {
		writeError(w, "adding test", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleRemoveTest(w http.ResponseWriter, r *http.Request) {
	if err := s.service(r).RemoveTest(r.Context(), r.PathValue("id"), r.PathValue("test")); err != nil {
		writeError(w, "removing test", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	idx, err := parseSection(r)
	if err != nil {
		writeError(w, "section", err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	st, err := model.ParseStatus(req.Status)
	if err != nil {
		writeError(w, "status", err)
		return
	}
	t, err := s.service(r).SetSectionStatus(r.Context(), r.PathValue("id"), r.PathValue("test"), idx, st)
	if err != nil {
		writeError(w, "setting status", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// notesView is the read model for a section's note history.
type notesView struct {
	Section string       `json:"section"`
	Notes   []model.Note `json:"notes"`
	Entries []note.Entry `json:"entries"`
	Legacy  string       `json:"legacy"`
}

func (s *Server) handleGetNotes(w http.ResponseWriter, r *http.Request) {
	idx, err := parseSection(r)
	if err != nil {
		writeError(w, "section", err)
		return
	}
	maxLines, err := parseInt(r, "max_lines")
	if err != nil {
		writeError(w, "max_lines", fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
		return
	}
	storyID, testID := r.PathValue("id"), r.PathValue("test")
	st, err := s.service(r).GetStory(r.Context(), storyID)
	if err != nil {
		writeError(w, "getting story", err)
		return
	}
	if st == nil {
		writeError(w, "getting story", model.NotFound("story", storyID))
		return
	}
	sec, err := findSection(*st, testID, idx)
	if err != nil {
		writeError(w, "getting notes", err)
		return
	}
	view := notesView{Section: sec.Name, Notes: sec.Notes, Entries: []note.Entry{}, Legacy: note.LegacyView(sec)}
	if view.Notes == nil {
		view.Notes = []model.Note{}
	}
	for _, e := range note.Entries(sec) {
		if parseBool(r, "truncate") {
			e.Content = note.Display(e.Content, maxLines)
		}
		view.Entries = append(view.Entries, e)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	idx, err := parseSection(r)
	if err != nil {
		writeError(w, "section", err)
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}
	n, err := s.service(r).AddSectionNote(r.Context(), r.PathValue("id"), r.PathValue("test"), idx, req.Note)
	if err != nil {
		writeError(w, "adding note", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleSetNotes(w http.ResponseWriter, r *http.Request) {
	idx, err := parseSection(r)
	if err != nil {
		writeError(w, "section", err)
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if !decode(w, r, &req) {
		return
	}
	t, err := s.service(r).SetSectionNotes(r.Context(), r.PathValue("id"), r.PathValue("test"), idx, req.Notes)
	if err != nil {
		writeError(w, "setting notes", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func findSection(st model.Story, testID string, idx int) (model.Section, error) {
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

// decode reads a JSON request body into dst, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErr(w, http.StatusBadRequest, model.ErrorKind(model.ErrInvalidInput), "invalid request body: %v", err)
		return false
	}
	return true
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// writeErr writes a JSON error response.
func writeErr(w http.ResponseWriter, status int, kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	body := map[string]string{"error": msg}
	if kind != "" {
		body["kind"] = kind
	}
	writeJSON(w, status, body)
}

// writeError maps err onto a status code by its taxonomy sentinel.
func writeError(w http.ResponseWriter, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	writeErr(w, status, model.ErrorKind(err), "%s: %v", action, err)
}
