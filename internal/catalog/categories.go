package catalog

import (
	"sort"

	"github.com/scbrown/storyrun/internal/model"
)

// Uncategorized is reported for templates with no category.
const Uncategorized = "uncategorized"

// CategoryCount pairs a category with how many templates carry it.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Categories returns the distinct template categories sorted by name.
func Categories(templates []model.Template) []CategoryCount {
	counts := make(map[string]int)
	for _, t := range templates {
		c := t.Category
		if c == "" {
			c = Uncategorized
		}
		counts[c]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, CategoryCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// InCategory filters templates by category. An empty category keeps all of
// them.
func InCategory(templates []model.Template, category string) []model.Template {
	if category == "" {
		return templates
	}
	var out []model.Template
	for _, t := range templates {
		c := t.Category
		if c == "" {
			c = Uncategorized
		}
		if c == category {
			out = append(out, t)
		}
	}
	return out
}
