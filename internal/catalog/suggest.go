package catalog

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/scbrown/storyrun/internal/model"
)

// Suggestion pairs a template with its similarity to a query (0-1, higher
// is better).
type Suggestion struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// DefaultThreshold is the minimum similarity score for a suggestion.
const DefaultThreshold = 0.5

// DefaultTopN is the maximum number of suggestions returned.
const DefaultTopN = 3

// Suggest returns templates whose id or name resembles query, best first.
func Suggest(query string, templates []model.Template) []Suggestion {
	return SuggestN(query, templates, DefaultTopN, DefaultThreshold)
}

// SuggestN returns up to topN templates scoring at least threshold. A
// template scores the better of its id and name similarity.
func SuggestN(query string, templates []model.Template, topN int, threshold float64) []Suggestion {
	if query == "" || len(templates) == 0 {
		return nil
	}
	q := normalize(query)

	var results []Suggestion
	for _, t := range templates {
		score := similarity(q, normalize(t.Name))
		if idScore := similarity(q, normalize(t.ID)); idScore > score {
			score = idScore
		}
		if score >= threshold {
			results = append(results, Suggestion{ID: t.ID, Name: t.Name, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results
}

// similarity combines normalized edit distance with a small shared-prefix
// bonus, capped at 1.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	lev := 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)

	prefix := 0
	for prefix < len(ra) && prefix < len(rb) && ra[prefix] == rb[prefix] {
		prefix++
	}
	score := lev + 0.1*float64(prefix)/float64(maxLen)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// normalize lowercases s, splits camelCase, and folds underscores, hyphens
// and runs of spaces into single spaces.
func normalize(s string) string {
	runes := []rune(s)
	var parts []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			parts = append(parts, string(current))
			current = current[:0]
		}
	}
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r):
			if i > 0 && unicode.IsLower(runes[i-1]) {
				flush()
			}
			current = append(current, unicode.ToLower(r))
		default:
			current = append(current, r)
		}
	}
	flush()
	return strings.Join(parts, " ")
}
