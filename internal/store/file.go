package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scbrown/storyrun/internal/model"
)

const (
	treeFile      = "tree.json"
	templatesFile = "templates.json"
)

// FileStore implements Store with two JSON documents in a directory:
// tree.json holds the story tree and templates.json the catalog.
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFile opens a file store rooted at dir, creating the directory if
// needed.
func NewFile(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

// LoadTree reads tree.json.
func (s *FileStore) LoadTree(ctx context.Context) (model.StoryFolder, error) {
	if err := ctx.Err(); err != nil {
		return model.StoryFolder{}, err
	}
	data, err := s.read(treeFile)
	if err != nil {
		return model.StoryFolder{}, err
	}
	return decodeTree(data, s.now())
}

// SaveTree atomically replaces tree.json.
func (s *FileStore) SaveTree(ctx context.Context, root model.StoryFolder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeTree(root)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(treeFile, data)
}

// GetTemplate returns the template with id, or nil.
func (s *FileStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	templates, err := s.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	return findTemplate(templates, id), nil
}

// ListTemplates reads templates.json. A missing file is an empty catalog.
func (s *FileStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadTemplates()
}

// AddTemplates appends to templates.json.
func (s *FileStore) AddTemplates(ctx context.Context, templates []model.Template) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkTemplates(templates); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadTemplates()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t.ID] = true
	}
	now := s.now().UTC()
	for _, t := range templates {
		if seen[t.ID] {
			return fmt.Errorf("%w: template id %q already exists", model.ErrInvalidInput, t.ID)
		}
		seen[t.ID] = true
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		existing = append(existing, t)
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding templates: %w", err)
	}
	return s.write(templatesFile, data)
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// loadTemplates must be called with s.mu held.
func (s *FileStore) loadTemplates() ([]model.Template, error) {
	data, err := s.read(templatesFile)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []model.Template{}, nil
	}
	var templates []model.Template
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("%w: decoding templates: %v", model.ErrCorruptState, err)
	}
	return templates, nil
}

// read returns the file contents, or nil if the file does not exist.
func (s *FileStore) read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// write replaces the file via a temp file and rename so readers never see
// a partial document.
func (s *FileStore) write(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
