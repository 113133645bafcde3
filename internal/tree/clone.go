package tree

import "github.com/scbrown/storyrun/internal/model"

// Clone deep-copies a folder. Nil slices stay nil so a clone compares
// deep-equal to its source.
func Clone(f model.StoryFolder) model.StoryFolder {
	out := f
	if f.ParentID != nil {
		pid := *f.ParentID
		out.ParentID = &pid
	}
	if f.Stories != nil {
		out.Stories = make([]model.Story, len(f.Stories))
		for i, s := range f.Stories {
			out.Stories[i] = CloneStory(s)
		}
	}
	if f.Subfolders != nil {
		out.Subfolders = make([]model.StoryFolder, len(f.Subfolders))
		for i, sub := range f.Subfolders {
			out.Subfolders[i] = Clone(sub)
		}
	}
	return out
}

// CloneStory deep-copies a story.
func CloneStory(s model.Story) model.Story {
	out := s
	if s.Tests != nil {
		out.Tests = make([]model.Test, len(s.Tests))
		for i, t := range s.Tests {
			out.Tests[i] = CloneTest(t)
		}
	}
	if s.Completions != nil {
		out.Completions = make([]model.Completion, len(s.Completions))
		for i, c := range s.Completions {
			out.Completions[i] = c
			if c.Failures != nil {
				out.Completions[i].Failures = make([]model.Failure, len(c.Failures))
				copy(out.Completions[i].Failures, c.Failures)
			}
		}
	}
	return out
}

// CloneTest deep-copies a test.
func CloneTest(t model.Test) model.Test {
	out := t
	if t.Sections != nil {
		out.Sections = make([]model.Section, len(t.Sections))
		for i, sec := range t.Sections {
			out.Sections[i] = sec
			if sec.Notes != nil {
				out.Sections[i].Notes = make([]model.Note, len(sec.Notes))
				copy(out.Sections[i].Notes, sec.Notes)
			}
		}
	}
	return out
}
