// Package catalog handles templates: seeding test instances from a
// template's section schema, bulk import and export of template records,
// and name suggestions for lookups that miss.
package catalog

import (
	"fmt"

	"github.com/scbrown/storyrun/internal/model"
	"github.com/scbrown/storyrun/internal/status"
	"github.com/scbrown/storyrun/internal/tree"
)

// AttachTemplate fills an empty test from its template.
//
// A test that already has sections is returned unchanged, so recorded
// results are never overwritten and repeated calls are idempotent. When
// tmpl is nil the test is returned with no sections and a not_tested
// status, together with an error wrapping model.ErrMissingTemplate. That
// error is a warning: the returned test is still usable.
func AttachTemplate(t model.Test, tmpl *model.Template) (model.Test, error) {
	out := tree.CloneTest(t)
	if len(out.Sections) > 0 {
		return out, nil
	}
	if tmpl == nil {
		out.Sections = []model.Section{}
		out.Status = model.StatusNotTested
		return out, fmt.Errorf("%w: test %q references template %q", model.ErrMissingTemplate, t.ID, t.TemplateID)
	}
	out.Sections = sectionsFrom(*tmpl)
	if out.Template == "" {
		out.Template = tmpl.Name
	}
	out.Status = status.DeriveTestStatus(out.Sections)
	return out, nil
}

// NewTest builds a test instance from a template, with every section
// not_tested and no notes. An empty title defaults to the template name.
func NewTest(id, title string, tmpl model.Template) model.Test {
	if title == "" {
		title = tmpl.Name
	}
	secs := sectionsFrom(tmpl)
	return model.Test{
		ID:         id,
		Title:      title,
		Template:   tmpl.Name,
		TemplateID: tmpl.ID,
		Sections:   secs,
		Status:     status.DeriveTestStatus(secs),
	}
}

func sectionsFrom(tmpl model.Template) []model.Section {
	secs := make([]model.Section, len(tmpl.Sections))
	for i, ts := range tmpl.Sections {
		secs[i] = model.Section{
			Name:        ts.Name,
			Description: ts.Description,
			Status:      model.StatusNotTested,
			Notes:       []model.Note{},
		}
	}
	return secs
}
