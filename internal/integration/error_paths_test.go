//go:build integration

package integration

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// exitCode extracts the process exit code from an exec error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// TestErrorExitCodes verifies user errors exit 1 with an sr: prefixed
// message on stderr and nothing on stdout.
func TestErrorExitCodes(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	sid, tid := e.seed()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown story", []string{"story", "show", "nope"}, `story "nope" not found`},
		{"unknown test", []string{"section", "status", sid, "nope", "0", "passed"}, `test "nope" not found`},
		{"section out of range", []string{"section", "status", sid, tid, "9", "passed"}, "not found"},
		{"bad status", []string{"section", "status", sid, tid, "0", "skipped"}, "invalid input"},
		{"empty note", []string{"section", "note", sid, tid, "0", ""}, "note text is required"},
		{"unknown template", []string{"test", "add", sid, "nope"}, `template "nope" not found`},
		{"bad failure flag", []string{"story", "fail", sid, "--failure", "=x"}, "test id"},
		{"unknown command", []string{"frobnicate"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, err := e.run(nil, tt.args...)
			if code := exitCode(err); code != 1 {
				t.Fatalf("exit code = %d, want 1 (stderr: %q)", code, stderr)
			}
			if !strings.HasPrefix(stderr, "sr: ") || !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr = %q, want sr: prefix and %q", stderr, tt.want)
			}
			if stdout != "" {
				t.Errorf("unexpected stdout: %q", stdout)
			}
		})
	}
}

// TestCorruptTreeRefused verifies a tree.json that fails validation is
// reported rather than silently replaced.
func TestCorruptTreeRefused(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	tree := `{"id":"root","name":"Stories","parentId":null,"stories":[{"id":"s1","title":""}],"subfolders":[]}`
	if err := os.WriteFile(filepath.Join(e.dataDir, "tree.json"), []byte(tree), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := e.run(nil, "story", "list")
	if exitCode(err) != 1 || !strings.Contains(stderr, "corrupt state") {
		t.Fatalf("err = %v, stderr = %q", err, stderr)
	}
	data, _ := os.ReadFile(filepath.Join(e.dataDir, "tree.json"))
	if string(data) != tree {
		t.Error("corrupt tree.json was rewritten")
	}
}

// TestMissingDataDirCreated verifies the first write creates the data
// directory on demand.
func TestMissingDataDirCreated(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	dir := filepath.Join(e.home, "nested", "qa")

	e.mustRun(nil, "story", "add", "Checkout", "--data-dir", dir)
	if _, err := os.Stat(filepath.Join(dir, "tree.json")); err != nil {
		t.Fatalf("tree.json not created under %s: %v", dir, err)
	}
}

// TestMalformedTemplateFile reports a parse error for a broken catalog.
func TestMalformedTemplateFile(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	path := filepath.Join(e.home, "bad.json")
	if err := os.WriteFile(path, []byte(`[{"name":`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, stderr, err := e.run(nil, "template", "import", path)
	if exitCode(err) != 1 || stderr == "" {
		t.Errorf("err = %v, stderr = %q", err, stderr)
	}
}
