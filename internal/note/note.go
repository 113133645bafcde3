// Package note parses and renders the bracketed note history encoding:
//
//	[<timestamp>] <author>: <content>
//	[Section: <name>] [<timestamp>] <author>: <content>
//
// Parsing never fails loudly. Input that does not match is reported as
// unparsed and callers treat it as opaque text.
package note

import (
	"regexp"
	"strings"
	"time"

	"github.com/scbrown/storyrun/internal/model"
)

// Entry is a structured note history line.
type Entry struct {
	Section   string `json:"section,omitempty"`
	Timestamp string `json:"timestamp"`
	Author    string `json:"author"`
	Content   string `json:"content"`
}

const sectionPrefix = "Section: "

var (
	scopedRe = regexp.MustCompile(`(?s)^\[Section: ([^\]\n]+)\] \[([^\]\n]+)\] ([^:\n]+): (.*)$`)
	plainRe  = regexp.MustCompile(`(?s)^\[([^\]\n]+)\] ([^:\n]+): (.*)$`)

	// headerRe matches a line that opens a new entry in a note log.
	headerRe = regexp.MustCompile(`^(\[Section: [^\]\n]+\] )?\[[^\]\n]+\] [^:\n]+: `)
)

// Parse decodes raw. The second result is false when raw does not match
// the encoding.
func Parse(raw string) (Entry, bool) {
	if m := scopedRe.FindStringSubmatch(raw); m != nil {
		return Entry{Section: m[1], Timestamp: m[2], Author: m[3], Content: m[4]}, true
	}
	if m := plainRe.FindStringSubmatch(raw); m != nil {
		return Entry{Timestamp: m[1], Author: m[2], Content: m[3]}, true
	}
	return Entry{}, false
}

// Format renders e in the canonical encoding. For any e where Valid
// reports true, Parse(Format(e)) == e.
func Format(e Entry) string {
	var b strings.Builder
	if e.Section != "" {
		b.WriteString("[")
		b.WriteString(sectionPrefix)
		b.WriteString(e.Section)
		b.WriteString("] ")
	}
	b.WriteString("[")
	b.WriteString(e.Timestamp)
	b.WriteString("] ")
	b.WriteString(e.Author)
	b.WriteString(": ")
	b.WriteString(e.Content)
	return b.String()
}

// Valid reports whether e can be formatted and parsed back unchanged.
// Timestamp and author are required single-line values; the timestamp may
// not contain ']' or look like a section tag, and the author may not
// contain ':'. Content is unrestricted.
func Valid(e Entry) bool {
	if e.Timestamp == "" || e.Author == "" {
		return false
	}
	if strings.ContainsAny(e.Timestamp, "]\n") || strings.HasPrefix(e.Timestamp, sectionPrefix) {
		return false
	}
	if strings.ContainsAny(e.Author, ":\n") || strings.HasPrefix(e.Author, "[") {
		return false
	}
	if e.Section != "" && strings.ContainsAny(e.Section, "]\n") {
		return false
	}
	return true
}

// ForSection parses raws and keeps only entries tagged with section.
// Untagged and unparsed lines are dropped.
func ForSection(raws []string, section string) []Entry {
	var out []Entry
	for _, raw := range raws {
		e, ok := Parse(raw)
		if !ok || e.Section == "" || e.Section != section {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Split breaks a note log into its encoded entries. Every line that opens
// with an entry header starts a new entry; other lines continue the entry
// above them. Text ahead of the first header is returned as its own
// element, which Parse reports as unparsed.
func Split(raw string) []string {
	if raw == "" {
		return nil
	}
	var out, cur []string
	for _, line := range strings.Split(raw, "\n") {
		if len(cur) > 0 && headerRe.MatchString(line) {
			out = append(out, strings.Join(cur, "\n"))
			cur = nil
		}
		cur = append(cur, line)
	}
	return append(out, strings.Join(cur, "\n"))
}

// Entries returns a section's note history, oldest first. Stored records
// are tagged with the section name. A legacy log is split into its entries
// and only those tagged for this section are kept.
func Entries(sec model.Section) []Entry {
	var out []Entry
	for _, n := range sec.Notes {
		if n.ID == model.LegacyNoteID {
			out = append(out, ForSection(Split(n.Note), sec.Name)...)
			continue
		}
		out = append(out, FromNote(n, sec.Name))
	}
	return out
}

// FromNote converts a stored note record into an Entry tagged with the
// section name. Timestamps are rendered as RFC 3339 in UTC.
func FromNote(n model.Note, section string) Entry {
	return Entry{
		Section:   section,
		Timestamp: n.CreatedAt.UTC().Format(time.RFC3339),
		Author:    n.CreatedBy,
		Content:   n.Note,
	}
}

// LegacyView renders a section's notes as the legacy single-string field,
// one encoded entry per note, oldest first. Notes converted from the
// legacy field are emitted verbatim.
func LegacyView(section model.Section) string {
	lines := make([]string, 0, len(section.Notes))
	for _, n := range section.Notes {
		if n.ID == model.LegacyNoteID {
			lines = append(lines, n.Note)
			continue
		}
		lines = append(lines, Format(FromNote(n, section.Name)))
	}
	return strings.Join(lines, "\n")
}
