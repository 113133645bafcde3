package note

import (
	"fmt"
	"strings"
	"testing"
)

func lines(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(out, "\n")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		max        int
		wantLines  int
		wantHidden int
	}{
		{"under default", lines(5), 0, 5, 0},
		{"at default", lines(20), 0, 20, 0},
		{"over default", lines(25), 0, 20, 5},
		{"custom limit", lines(10), 3, 3, 7},
		{"single line", "one", 1, 1, 0},
		{"empty", "", 5, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.content
			got, hidden := Truncate(tt.content, tt.max)
			if hidden != tt.wantHidden {
				t.Errorf("hidden = %d, want %d", hidden, tt.wantHidden)
			}
			if n := len(strings.Split(got, "\n")); n != tt.wantLines {
				t.Errorf("shown %d lines, want %d", n, tt.wantLines)
			}
			if tt.content != original {
				t.Error("Truncate modified its input")
			}
		})
	}
}

func TestDisplay(t *testing.T) {
	if got := Display("short", 20); got != "short" {
		t.Errorf("Display(short) = %q", got)
	}
	got := Display(lines(22), 20)
	if !strings.HasSuffix(got, "… 2 more lines") {
		t.Errorf("Display = %q, want more-lines marker", got)
	}
	if !strings.HasPrefix(got, "line 1\n") {
		t.Errorf("Display should start with the first line: %q", got)
	}
	if got := Display(lines(4), 3); !strings.HasSuffix(got, "… 1 more line") {
		t.Errorf("Display singular = %q", got)
	}
}
