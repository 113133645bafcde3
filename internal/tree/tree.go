// Package tree provides pure, copy-on-write navigation over the story
// folder tree. Every function that returns a tree returns a new one; the
// input is never mutated.
//
// Traversal is depth-first pre-order: a folder's stories are checked before
// its subfolders, and subfolders are visited in list order.
package tree

import (
	"fmt"
	"strings"
	"time"

	"github.com/scbrown/storyrun/internal/model"
)

// RootID and RootName describe the folder created for an empty store.
const (
	RootID   = "root"
	RootName = "Stories"
)

// NewRoot returns an empty root folder.
func NewRoot(now time.Time) model.StoryFolder {
	return model.StoryFolder{
		ID:         RootID,
		Name:       RootName,
		CreatedAt:  now,
		Stories:    []model.Story{},
		Subfolders: []model.StoryFolder{},
	}
}

// FindStory returns a copy of the first story with the given id.
func FindStory(root model.StoryFolder, storyID string) (model.Story, bool) {
	s := findStory(&root, storyID)
	if s == nil {
		return model.Story{}, false
	}
	return CloneStory(*s), true
}

func findStory(f *model.StoryFolder, storyID string) *model.Story {
	for i := range f.Stories {
		if f.Stories[i].ID == storyID {
			return &f.Stories[i]
		}
	}
	for i := range f.Subfolders {
		if s := findStory(&f.Subfolders[i], storyID); s != nil {
			return s
		}
	}
	return nil
}

// ReplaceStory returns a new tree in which the story with updated.ID is
// replaced at the same position in its owning folder. When no story
// matches, the returned tree equals root and the error wraps
// model.ErrNotFound.
func ReplaceStory(root model.StoryFolder, updated model.Story) (model.StoryFolder, error) {
	out := Clone(root)
	s := findStory(&out, updated.ID)
	if s == nil {
		return root, model.NotFound("story", updated.ID)
	}
	*s = CloneStory(updated)
	return out, nil
}

// FindFolder returns a copy of the folder with the given id.
func FindFolder(root model.StoryFolder, folderID string) (model.StoryFolder, bool) {
	f := findFolder(&root, folderID)
	if f == nil {
		return model.StoryFolder{}, false
	}
	return Clone(*f), true
}

func findFolder(f *model.StoryFolder, folderID string) *model.StoryFolder {
	if f.ID == folderID {
		return f
	}
	for i := range f.Subfolders {
		if found := findFolder(&f.Subfolders[i], folderID); found != nil {
			return found
		}
	}
	return nil
}

// AddFolder appends folder to the subfolders of parentID and sets its
// ParentID.
func AddFolder(root model.StoryFolder, parentID string, folder model.StoryFolder) (model.StoryFolder, error) {
	if folder.ID == "" || folder.Name == "" {
		return root, fmt.Errorf("%w: folder id and name are required", model.ErrInvalidInput)
	}
	if findFolder(&root, folder.ID) != nil {
		return root, fmt.Errorf("%w: folder %q already exists", model.ErrInvalidInput, folder.ID)
	}
	out := Clone(root)
	parent := findFolder(&out, parentID)
	if parent == nil {
		return root, model.NotFound("folder", parentID)
	}
	child := Clone(folder)
	pid := parent.ID
	child.ParentID = &pid
	parent.Subfolders = append(parent.Subfolders, child)
	return out, nil
}

// AddStory appends story to the stories of folderID. Story ids are unique
// tree-wide, so a duplicate id is rejected.
func AddStory(root model.StoryFolder, folderID string, story model.Story) (model.StoryFolder, error) {
	if story.ID == "" || story.Title == "" {
		return root, fmt.Errorf("%w: story id and title are required", model.ErrInvalidInput)
	}
	if findStory(&root, story.ID) != nil {
		return root, fmt.Errorf("%w: story %q already exists", model.ErrInvalidInput, story.ID)
	}
	out := Clone(root)
	folder := findFolder(&out, folderID)
	if folder == nil {
		return root, model.NotFound("folder", folderID)
	}
	folder.Stories = append(folder.Stories, CloneStory(story))
	return out, nil
}

// Entry is a story together with the folder that owns it.
type Entry struct {
	FolderID string      `json:"folderId"`
	Path     string      `json:"path"`
	Story    model.Story `json:"story"`
}

// ListStories returns every story in traversal order. Path is the
// slash-joined chain of folder names from the root.
func ListStories(root model.StoryFolder) []Entry {
	var out []Entry
	Walk(root, func(path []string, f model.StoryFolder) {
		p := strings.Join(path, "/")
		for _, s := range f.Stories {
			out = append(out, Entry{FolderID: f.ID, Path: p, Story: CloneStory(s)})
		}
	})
	return out
}

// Walk calls fn for every folder in pre-order with the names of the
// folders leading to it, including its own.
func Walk(root model.StoryFolder, fn func(path []string, f model.StoryFolder)) {
	walk(root, nil, fn)
}

func walk(f model.StoryFolder, parent []string, fn func([]string, model.StoryFolder)) {
	path := append(append([]string(nil), parent...), f.Name)
	fn(path, f)
	for _, sub := range f.Subfolders {
		walk(sub, path, fn)
	}
}
