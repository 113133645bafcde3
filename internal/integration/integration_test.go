//go:build integration

// Package integration provides end-to-end tests that exercise the compiled sr
// binary. Tests in this package are excluded from normal `go test ./...` runs
// and require the build tag: go test -tags integration ./internal/integration/
//
// TestMain builds the sr binary once into a temporary directory and makes it
// available via srBin for all tests. Each test creates an isolated srEnv with
// its own HOME, config, and data directory so tests can run in parallel.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// srBin holds the path to the compiled sr binary, set once in TestMain.
var srBin string

// TestMain builds the sr binary and runs all integration tests.
func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "sr-integration-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration: create temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmp)

	bin := filepath.Join(tmp, "sr")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/sr")
	cmd.Dir = modRoot()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "integration: build sr binary: %v\n", err)
		os.Exit(1)
	}

	srBin = bin
	os.Exit(m.Run())
}

// modRoot returns the module root directory by walking up from the package
// directory until go.mod is found.
func modRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		panic(fmt.Sprintf("integration: getwd: %v", err))
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			panic("integration: could not find go.mod in any parent directory")
		}
		dir = parent
	}
}

// srEnv is an isolated test environment for running sr commands. Each
// instance has its own HOME, so sr's default paths (~/.sr/) are sandboxed.
type srEnv struct {
	t       *testing.T
	home    string // isolated HOME directory
	dataDir string // ~/.sr
	cfgPath string // ~/.sr/config.toml
}

func newEnv(t *testing.T) *srEnv {
	t.Helper()
	home := t.TempDir()
	dataDir := filepath.Join(home, ".sr")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("create .sr dir: %v", err)
	}
	return &srEnv{
		t:       t,
		home:    home,
		dataDir: dataDir,
		cfgPath: filepath.Join(dataDir, "config.toml"),
	}
}

// command prepares `sr <args>` with the sandboxed environment.
func (e *srEnv) command(args ...string) *exec.Cmd {
	cmd := exec.Command(srBin, args...)
	cmd.Env = append(os.Environ(),
		"HOME="+e.home,
		"USER=integration",
	)
	return cmd
}

// run executes `sr <args>` and returns stdout, stderr, and any error. stdin
// can be provided as a byte slice (nil for no input).
func (e *srEnv) run(stdin []byte, args ...string) (stdout, stderr string, err error) {
	e.t.Helper()
	cmd := e.command(args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// mustRun is like run but calls t.Fatal if the command fails.
func (e *srEnv) mustRun(stdin []byte, args ...string) (stdout, stderr string) {
	e.t.Helper()
	stdout, stderr, err := e.run(stdin, args...)
	if err != nil {
		e.t.Fatalf("sr %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout, stderr)
	}
	return stdout, stderr
}

// mustJSON runs `sr <args> --json` and decodes stdout into dst.
func (e *srEnv) mustJSON(dst any, args ...string) {
	e.t.Helper()
	stdout, _ := e.mustRun(nil, append(args, "--json")...)
	if err := json.Unmarshal([]byte(stdout), dst); err != nil {
		e.t.Fatalf("sr %s: parse JSON: %v\noutput: %s", strings.Join(args, " "), err, stdout)
	}
}

// writeConfig writes config.toml with the given content.
func (e *srEnv) writeConfig(content string) {
	e.t.Helper()
	if err := os.WriteFile(e.cfgPath, []byte(content), 0o644); err != nil {
		e.t.Fatalf("write config: %v", err)
	}
}

// templateFile is a two-template YAML catalog.
const templateFile = `- name: Login Flow
  category: auth
  sections:
    - name: Open page
    - name: Submit form
- name: Search
  sections:
    - name: Type query
`

// writeTemplates writes templateFile into the environment and returns its
// path.
func (e *srEnv) writeTemplates() string {
	e.t.Helper()
	path := filepath.Join(e.home, "templates.yaml")
	if err := os.WriteFile(path, []byte(templateFile), 0o644); err != nil {
		e.t.Fatalf("write templates: %v", err)
	}
	return path
}

// idOf extracts the "id" field from a JSON object.
func idOf(t *testing.T, raw string) string {
	t.Helper()
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil || v.ID == "" {
		t.Fatalf("no id in %q: %v", raw, err)
	}
	return v.ID
}

// seed imports the catalog and creates a story holding one Login Flow test.
// It returns the story and test ids.
func (e *srEnv) seed() (storyID, testID string) {
	e.t.Helper()
	var imported []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	e.mustJSON(&imported, "template", "import", e.writeTemplates())
	if len(imported) != 2 {
		e.t.Fatalf("imported %d templates, want 2", len(imported))
	}
	out, _ := e.mustRun(nil, "story", "add", "Checkout", "--json")
	storyID = idOf(e.t, out)
	out, _ = e.mustRun(nil, "test", "add", storyID, imported[0].ID, "--json")
	return storyID, idOf(e.t, out)
}
