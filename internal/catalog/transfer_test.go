package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/scbrown/storyrun/internal/model"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tpl-%d", n)
	}
}

func fixedNow() time.Time { return time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC) }

func TestImport(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		format  Format
		wantErr string
		check   func(t *testing.T, got []model.Template)
	}{
		{
			name:  "json array",
			input: `[{"name":"Login","sections":[{"name":"A","description":"enter creds"},{"name":"B"}]}]`,
			check: func(t *testing.T, got []model.Template) {
				if len(got) != 1 {
					t.Fatalf("got %d templates, want 1", len(got))
				}
				if got[0].ID != "tpl-1" || got[0].Name != "Login" {
					t.Errorf("template = %+v", got[0])
				}
				want := []model.TemplateSection{{Name: "A", Description: "enter creds"}, {Name: "B"}}
				if diff := cmp.Diff(want, got[0].Sections); diff != "" {
					t.Errorf("sections (-want +got):\n%s", diff)
				}
				if !got[0].CreatedAt.Equal(fixedNow()) {
					t.Errorf("CreatedAt = %v", got[0].CreatedAt)
				}
			},
		},
		{
			name:  "input ids are replaced",
			input: `[{"id":"keep-me","name":"X","sections":[]},{"name":"Y"}]`,
			check: func(t *testing.T, got []model.Template) {
				if got[0].ID != "tpl-1" || got[1].ID != "tpl-2" {
					t.Errorf("ids = %q, %q", got[0].ID, got[1].ID)
				}
				if got[1].Sections == nil {
					t.Error("missing sections should become an empty list")
				}
			},
		},
		{
			name:  "yaml detected",
			input: "- name: Search\n  category: web\n  sections:\n    - name: Query\n      description: type a term\n",
			check: func(t *testing.T, got []model.Template) {
				if len(got) != 1 || got[0].Name != "Search" || got[0].Category != "web" {
					t.Fatalf("got %+v", got)
				}
				if got[0].Sections[0].Description != "type a term" {
					t.Errorf("section = %+v", got[0].Sections[0])
				}
			},
		},
		{
			name:   "explicit yaml accepts json",
			input:  `[{"name":"J"}]`,
			format: FormatYAML,
			check: func(t *testing.T, got []model.Template) {
				if len(got) != 1 || got[0].Name != "J" {
					t.Errorf("got %+v", got)
				}
			},
		},
		{
			name:  "empty array",
			input: `[]`,
			check: func(t *testing.T, got []model.Template) {
				if len(got) != 0 {
					t.Errorf("got %d templates", len(got))
				}
			},
		},
		{
			name:    "missing template name",
			input:   `[{"sections":[]}]`,
			wantErr: "missing required field: name",
		},
		{
			name:    "missing section name",
			input:   `[{"name":"T","sections":[{"description":"d"}]}]`,
			wantErr: "section 0: missing required field: name",
		},
		{
			name:    "not an array",
			input:   `{"name":"T"}`,
			format:  FormatJSON,
			wantErr: "parsing JSON templates",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Import(strings.NewReader(tt.input), ImportOpts{Format: tt.format, NewID: seqIDs(), Now: fixedNow})
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %q, want it to contain %q", err, tt.wantErr)
				}
				if !errors.Is(err, model.ErrInvalidInput) {
					t.Errorf("err should wrap ErrInvalidInput: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	in := []model.Template{
		{ID: "a", Name: "Login", Category: "auth", Sections: []model.TemplateSection{{Name: "A", Description: "x"}, {Name: "B"}}},
		{ID: "b", Name: "Empty"},
	}
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Export(&buf, in, format); err != nil {
				t.Fatalf("Export: %v", err)
			}
			got, err := Import(&buf, ImportOpts{Format: format, NewID: seqIDs(), Now: fixedNow})
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			if len(got) != len(in) {
				t.Fatalf("got %d templates, want %d", len(got), len(in))
			}
			for i := range in {
				if got[i].Name != in[i].Name || got[i].Category != in[i].Category {
					t.Errorf("template %d = %+v", i, got[i])
				}
				wantSecs := in[i].Sections
				if wantSecs == nil {
					wantSecs = []model.TemplateSection{}
				}
				if diff := cmp.Diff(wantSecs, got[i].Sections); diff != "" {
					t.Errorf("template %d sections (-want +got):\n%s", i, diff)
				}
			}
		})
	}
}

func TestExportJSONShape(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(&buf, []model.Template{{ID: "a", Name: "T"}}, FormatJSON); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, `"id"`) {
		t.Errorf("export should not carry catalog ids: %s", out)
	}
	if !strings.Contains(out, `"sections": []`) {
		t.Errorf("export should write an empty sections list: %s", out)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", "", false},
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{
		"t.json":        FormatJSON,
		"t.yaml":        FormatYAML,
		"dir/t.YML":     FormatYAML,
		"no-extension":  FormatJSON,
		"templates.txt": FormatJSON,
	} {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
