package tree

import (
	"fmt"

	"github.com/scbrown/storyrun/internal/model"
)

// Validate checks that root is a well-formed tree. A serialized tree can
// only express a cycle by repeating a folder id or by a parentId that
// disagrees with the enclosing folder, so both are rejected. All errors
// wrap model.ErrCorruptState.
func Validate(root model.StoryFolder) error {
	if root.ParentID != nil {
		return corrupt("root folder %q has parentId %q", root.ID, *root.ParentID)
	}
	v := validator{
		folders: make(map[string]bool),
		stories: make(map[string]bool),
	}
	return v.folder(root, nil)
}

type validator struct {
	folders map[string]bool
	stories map[string]bool
}

func (v *validator) folder(f model.StoryFolder, parentID *string) error {
	if f.ID == "" {
		return corrupt("folder missing id")
	}
	if f.Name == "" {
		return corrupt("folder %q missing name", f.ID)
	}
	if v.folders[f.ID] {
		return corrupt("folder %q appears more than once", f.ID)
	}
	v.folders[f.ID] = true

	if parentID != nil {
		if f.ParentID == nil || *f.ParentID != *parentID {
			return corrupt("folder %q parentId does not match enclosing folder %q", f.ID, *parentID)
		}
	}

	for _, s := range f.Stories {
		if err := v.story(s); err != nil {
			return err
		}
	}
	for _, sub := range f.Subfolders {
		if err := v.folder(sub, &f.ID); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) story(s model.Story) error {
	if s.ID == "" {
		return corrupt("story missing id")
	}
	if s.Title == "" {
		return corrupt("story %q missing title", s.ID)
	}
	if v.stories[s.ID] {
		return corrupt("story %q appears more than once", s.ID)
	}
	v.stories[s.ID] = true

	tests := make(map[string]bool, len(s.Tests))
	for _, t := range s.Tests {
		if t.ID == "" {
			return corrupt("story %q has a test with no id", s.ID)
		}
		if tests[t.ID] {
			return corrupt("story %q has duplicate test %q", s.ID, t.ID)
		}
		tests[t.ID] = true
		if t.TemplateID == "" {
			return corrupt("test %q in story %q missing templateId", t.ID, s.ID)
		}
		if t.Status != "" && !t.Status.Valid() {
			return corrupt("test %q has invalid status %q", t.ID, t.Status)
		}
		for i, sec := range t.Sections {
			if sec.Status != "" && !sec.Status.Valid() {
				return corrupt("test %q section %d has invalid status %q", t.ID, i, sec.Status)
			}
		}
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrCorruptState, fmt.Sprintf(format, args...))
}
