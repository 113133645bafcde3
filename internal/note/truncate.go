package note

import (
	"fmt"
	"strings"
)

// DefaultMaxLines is the display threshold above which note content is
// truncated.
const DefaultMaxLines = 20

// Truncate returns at most maxLines lines of content and the number of
// lines it left out. It only shapes what is shown; stored notes are never
// touched. A maxLines of zero or less means DefaultMaxLines.
func Truncate(content string, maxLines int) (string, int) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	lines := strings.Split(content, "\n")
	if len(lines) <= maxLines {
		return content, 0
	}
	return strings.Join(lines[:maxLines], "\n"), len(lines) - maxLines
}

// Display is Truncate followed by a "more lines" marker when anything was
// hidden.
func Display(content string, maxLines int) string {
	shown, hidden := Truncate(content, maxLines)
	if hidden == 0 {
		return shown
	}
	word := "lines"
	if hidden == 1 {
		word = "line"
	}
	return fmt.Sprintf("%s\n… %d more %s", shown, hidden, word)
}
