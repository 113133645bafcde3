// Package store defines persistence for the story tree and the template
// catalog.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scbrown/storyrun/internal/model"
	"github.com/scbrown/storyrun/internal/tree"
)

// TreeStore persists the story tree as a single document. Saves are
// last-write-wins; callers load immediately before mutating.
type TreeStore interface {
	// LoadTree returns the persisted root folder. A store with no document
	// yields a fresh root. A document that fails structural validation
	// yields an error wrapping model.ErrCorruptState.
	LoadTree(ctx context.Context) (model.StoryFolder, error)

	// SaveTree replaces the persisted document with root.
	SaveTree(ctx context.Context, root model.StoryFolder) error
}

// TemplateCatalog is read-mostly reference data for template merges.
type TemplateCatalog interface {
	// GetTemplate returns the template with id, or nil if there is none.
	GetTemplate(ctx context.Context, id string) (*model.Template, error)

	// ListTemplates returns every template in insertion order.
	ListTemplates(ctx context.Context) ([]model.Template, error)

	// AddTemplates appends templates to the catalog. It never de-duplicates.
	AddTemplates(ctx context.Context, templates []model.Template) error
}

// Store is the full persistence interface used by the service layer.
type Store interface {
	TreeStore
	TemplateCatalog

	// Close releases any resources held by the store.
	Close() error
}

// Mode selects a Store implementation.
type Mode string

const (
	ModeFile   Mode = "file"
	ModeSQLite Mode = "sqlite"
	ModeRemote Mode = "remote"
)

// ParseMode validates a store mode name. Empty means ModeFile.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFile:
		return ModeFile, nil
	case ModeSQLite, ModeRemote:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: unknown store mode %q (valid: file, sqlite, remote)", model.ErrInvalidInput, s)
}

// decodeTree parses and validates a persisted tree document. An empty
// document means nothing has been saved yet.
func decodeTree(data []byte, now time.Time) (model.StoryFolder, error) {
	if len(data) == 0 {
		return tree.NewRoot(now), nil
	}
	var root model.StoryFolder
	if err := json.Unmarshal(data, &root); err != nil {
		return model.StoryFolder{}, fmt.Errorf("%w: decoding tree: %v", model.ErrCorruptState, err)
	}
	if err := tree.Validate(root); err != nil {
		return model.StoryFolder{}, err
	}
	return root, nil
}

// encodeTree validates root before it is written so a bad tree never
// reaches disk.
func encodeTree(root model.StoryFolder) ([]byte, error) {
	if err := tree.Validate(root); err != nil {
		return nil, fmt.Errorf("refusing to save: %w", err)
	}
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tree: %w", err)
	}
	return data, nil
}

// findTemplate returns a copy of the template with id, or nil.
func findTemplate(templates []model.Template, id string) *model.Template {
	for i := range templates {
		if templates[i].ID == id {
			t := templates[i]
			return &t
		}
	}
	return nil
}

// checkTemplates rejects templates that cannot be stored.
func checkTemplates(templates []model.Template) error {
	for i, t := range templates {
		if t.ID == "" {
			return fmt.Errorf("%w: template %d has no id", model.ErrInvalidInput, i)
		}
		if t.Name == "" {
			return fmt.Errorf("%w: template %q has no name", model.ErrInvalidInput, t.ID)
		}
	}
	return nil
}
