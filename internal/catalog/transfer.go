package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scbrown/storyrun/internal/model"
	"gopkg.in/yaml.v3"
)

// Format is a template transfer encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a user-supplied format name. An empty string means
// auto-detect on import and JSON on export.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "":
		return "", nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: unsupported format %q (use json or yaml)", model.ErrInvalidInput, s)
}

// FormatFromPath picks a format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// record is the transfer shape of a template: a name and its section
// schema. Ids are local to a catalog and are not carried across.
type record struct {
	Name     string                  `json:"name" yaml:"name"`
	Category string                  `json:"category,omitempty" yaml:"category,omitempty"`
	Sections []model.TemplateSection `json:"sections" yaml:"sections"`
}

// ImportOpts controls Import.
type ImportOpts struct {
	Format Format           // empty means detect from content
	NewID  func() string    // defaults to uuid.NewString
	Now    func() time.Time // defaults to time.Now
}

// Import reads an array of template records. Every template gets a fresh
// id, so importing the same file twice yields two copies; import is
// additive and never de-duplicates by name.
//
// Only name is required on a template, and only name on a section.
func Import(r io.Reader, opts ImportOpts) ([]model.Template, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	format := opts.Format
	if format == "" {
		format = detect(raw)
	}

	var records []record
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("%w: parsing JSON templates: %v", model.ErrInvalidInput, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("%w: parsing YAML templates: %v", model.ErrInvalidInput, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", model.ErrInvalidInput, format)
	}

	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	out := make([]model.Template, 0, len(records))
	for i, rec := range records {
		if strings.TrimSpace(rec.Name) == "" {
			return nil, fmt.Errorf("%w: template %d: missing required field: name", model.ErrInvalidInput, i)
		}
		for j, s := range rec.Sections {
			if strings.TrimSpace(s.Name) == "" {
				return nil, fmt.Errorf("%w: template %q section %d: missing required field: name", model.ErrInvalidInput, rec.Name, j)
			}
		}
		secs := rec.Sections
		if secs == nil {
			secs = []model.TemplateSection{}
		}
		out = append(out, model.Template{
			ID:        newID(),
			Name:      rec.Name,
			Category:  rec.Category,
			Sections:  secs,
			CreatedAt: now().UTC(),
		})
	}
	return out, nil
}

// Export writes templates as an array of transfer records.
func Export(w io.Writer, templates []model.Template, format Format) error {
	records := make([]record, len(templates))
	for i, t := range templates {
		secs := t.Sections
		if secs == nil {
			secs = []model.TemplateSection{}
		}
		records[i] = record{Name: t.Name, Category: t.Category, Sections: secs}
	}

	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: unsupported format %q", model.ErrInvalidInput, format)
}

// detect treats input whose first non-blank byte opens a JSON array as
// JSON and everything else as YAML.
func detect(raw []byte) Format {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] == '[' {
		return FormatJSON
	}
	return FormatYAML
}
