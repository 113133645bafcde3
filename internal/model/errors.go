package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a story, test, section, folder, or
	// template id has no match.
	ErrNotFound = errors.New("not found")

	// ErrCorruptState is returned when a persisted tree fails structural
	// validation.
	ErrCorruptState = errors.New("corrupt state")

	// ErrMissingTemplate marks a test whose template no longer exists.
	// It is a warning: the test stays usable with no sections.
	ErrMissingTemplate = errors.New("missing template")

	// ErrInvalidInput is returned for rejected user input such as an
	// unknown status or an empty note.
	ErrInvalidInput = errors.New("invalid input")
)

// NotFoundError identifies what could not be located.
type NotFoundError struct {
	Kind string // "story", "test", "section", "folder", "template"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Unwrap lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

var kinds = []struct {
	name string
	err  error
}{
	{"not_found", ErrNotFound},
	{"invalid_input", ErrInvalidInput},
	{"corrupt_state", ErrCorruptState},
	{"missing_template", ErrMissingTemplate},
}

// ErrorKind names the taxonomy sentinel err wraps, or "" if none.
func ErrorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// ErrorForKind is the inverse of ErrorKind. It returns nil for an unknown kind.
func ErrorForKind(kind string) error {
	for _, k := range kinds {
		if k.name == kind {
			return k.err
		}
	}
	return nil
}
