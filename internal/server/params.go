package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/scbrown/storyrun/internal/catalog"
	"github.com/scbrown/storyrun/internal/model"
)

func parseInt(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, s, err)
	}
	return n, nil
}

func parseBool(r *http.Request, key string) bool {
	s := r.URL.Query().Get(key)
	return s == "true" || s == "1"
}

// parseSection reads the {section} path value as a zero-based index.
func parseSection(r *http.Request) (int, error) {
	s := r.PathValue("section")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: section index %q is not a number", model.ErrInvalidInput, s)
	}
	return n, nil
}

// parseFormat reads the format query parameter. Empty means auto-detect
// on import and JSON on export.
func parseFormat(r *http.Request) (catalog.Format, error) {
	return catalog.ParseFormat(r.URL.Query().Get("format"))
}
