// Package status derives aggregate statuses from section and test results.
// Every function is pure.
package status

import (
	"math"

	"github.com/scbrown/storyrun/internal/model"
)

// DeriveTestStatus computes a test's status from its sections.
//
// The all-passed check runs before the any-failed check: an empty list is
// not_tested, [passed, failed] is failed, and [passed, not_tested] is
// not_tested.
func DeriveTestStatus(sections []model.Section) model.Status {
	statuses := make([]model.Status, len(sections))
	for i, s := range sections {
		statuses[i] = s.Status
	}
	return derive(statuses)
}

// DeriveStoryStatus applies the same rules over a story's tests.
func DeriveStoryStatus(tests []model.Test) model.Status {
	statuses := make([]model.Status, len(tests))
	for i, t := range tests {
		statuses[i] = t.Status
	}
	return derive(statuses)
}

func derive(statuses []model.Status) model.Status {
	if len(statuses) == 0 {
		return model.StatusNotTested
	}
	allPassed := true
	for _, s := range statuses {
		if s != model.StatusPassed {
			allPassed = false
			break
		}
	}
	if allPassed {
		return model.StatusPassed
	}
	for _, s := range statuses {
		if s == model.StatusFailed {
			return model.StatusFailed
		}
	}
	return model.StatusNotTested
}

// PassRate returns passed tests over total tests as a whole percent,
// rounded to nearest. Zero tests yields 0.
func PassRate(tests []model.Test) int {
	if len(tests) == 0 {
		return 0
	}
	passed := 0
	for _, t := range tests {
		if t.Status == model.StatusPassed {
			passed++
		}
	}
	return rate(passed, len(tests))
}

func rate(passed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(passed) * 100 / float64(total)))
}

// Summary holds counts for a story or a whole folder.
type Summary struct {
	Status    model.Status `json:"status"`
	Total     int          `json:"total"`
	Passed    int          `json:"passed"`
	Failed    int          `json:"failed"`
	NotTested int          `json:"notTested"`
	PassRate  int          `json:"passRate"`
}

// Summarize reports on one story's tests.
func Summarize(s model.Story) Summary {
	sum := Summary{Status: DeriveStoryStatus(s.Tests)}
	for _, t := range s.Tests {
		sum.add(t.Status)
	}
	sum.PassRate = PassRate(s.Tests)
	return sum
}

// SummarizeFolder reports on every test in a folder and its subfolders.
// Status follows the same rules applied to all tests at once.
func SummarizeFolder(f model.StoryFolder) Summary {
	var statuses []model.Status
	collect(f, &statuses)

	sum := Summary{Status: derive(statuses)}
	for _, st := range statuses {
		sum.add(st)
	}
	sum.PassRate = rate(sum.Passed, sum.Total)
	return sum
}

func collect(f model.StoryFolder, out *[]model.Status) {
	for _, s := range f.Stories {
		for _, t := range s.Tests {
			*out = append(*out, t.Status)
		}
	}
	for _, sub := range f.Subfolders {
		collect(sub, out)
	}
}

func (s *Summary) add(st model.Status) {
	s.Total++
	switch st {
	case model.StatusPassed:
		s.Passed++
	case model.StatusFailed:
		s.Failed++
	default:
		s.NotTested++
	}
}
