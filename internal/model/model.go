// Package model defines core types for storyrun: the story folder tree,
// story-scoped test instances with their sections, reusable templates, and
// the note history attached to sections.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the execution state of a section, test, or story.
type Status string

const (
	StatusNotTested Status = "not_tested"
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotTested, StatusPassed, StatusFailed:
		return true
	}
	return false
}

// ParseStatus converts user input into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: status must be %q, %q or %q, got %q",
			ErrInvalidInput, StatusNotTested, StatusPassed, StatusFailed, s)
	}
	return st, nil
}

// StoryFolder is a grouping node in the tree. It exclusively owns its
// stories and subfolders. The root folder has a nil ParentID.
type StoryFolder struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	CreatedAt  time.Time     `json:"createdAt"`
	ParentID   *string       `json:"parentId"`
	Stories    []Story       `json:"stories"`
	Subfolders []StoryFolder `json:"subfolders"`
}

// Story is a named collection of test instances executed together.
type Story struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Tests       []Test       `json:"tests"`
	CreatedAt   time.Time    `json:"createdAt"`
	Completions []Completion `json:"completions,omitempty"`
}

// Test is a story-scoped instance of a template. Status is always derived
// from Sections and is never set directly.
type Test struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Template   string    `json:"template"`
	TemplateID string    `json:"templateId"`
	Sections   []Section `json:"sections"`
	Status     Status    `json:"status"`
}

// Section is one checklist item within a test. Its identity is its index
// within the owning test.
type Section struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	Notes       []Note `json:"notes"`
}

// LegacyNoteID identifies a note converted from the old single-string
// notes field.
const LegacyNoteID = "legacy"

// UnmarshalJSON accepts both the note list and the legacy single-string
// notes field. A non-empty legacy string becomes one opaque note.
func (s *Section) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Status      Status          `json:"status"`
		Notes       json.RawMessage `json:"notes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.Description = raw.Description
	s.Status = raw.Status
	s.Notes = nil

	if len(raw.Notes) == 0 || string(raw.Notes) == "null" {
		return nil
	}
	if raw.Notes[0] == '"' {
		var legacy string
		if err := json.Unmarshal(raw.Notes, &legacy); err != nil {
			return fmt.Errorf("parsing legacy notes: %w", err)
		}
		if legacy != "" {
			s.Notes = []Note{{ID: LegacyNoteID, Note: legacy}}
		}
		return nil
	}
	if err := json.Unmarshal(raw.Notes, &s.Notes); err != nil {
		return fmt.Errorf("parsing notes: %w", err)
	}
	return nil
}

// Note is one entry in a section's note history.
type Note struct {
	ID        string    `json:"id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

// Template is a reusable schema of named sections. It carries no status.
type Template struct {
	ID        string            `json:"id" yaml:"id,omitempty"`
	Name      string            `json:"name" yaml:"name"`
	Category  string            `json:"category,omitempty" yaml:"category,omitempty"`
	Sections  []TemplateSection `json:"sections" yaml:"sections"`
	CreatedAt time.Time         `json:"createdAt,omitempty" yaml:"-"`
}

// TemplateSection is the schema of one section in a template.
type TemplateSection struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description,omitempty"`
}

// Outcome is the terminal result recorded when a story run ends.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Completion is an audit record of a story run ending. It never feeds back
// into derived statuses.
type Completion struct {
	ID        string    `json:"id"`
	Outcome   Outcome   `json:"outcome"`
	Notes     string    `json:"notes"`
	Failures  []Failure `json:"failures,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

// Failure names a test (and optionally a section) that caused a story to fail.
type Failure struct {
	TestID    string `json:"testId"`
	SectionID string `json:"sectionId,omitempty"`
	Reason    string `json:"reason"`
}
