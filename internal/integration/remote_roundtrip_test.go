//go:build integration

package integration

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scbrown/storyrun/internal/server"
	"github.com/scbrown/storyrun/internal/store"
)

// newRemoteEnv creates an srEnv configured in remote mode. It starts an
// httptest.Server backed by a real SQLite store and points the sr binary at
// it via store_mode=remote and remote_url.
func newRemoteEnv(t *testing.T) (*srEnv, store.Store) {
	t.Helper()
	e := newEnv(t)

	s, err := store.New(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open server store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(server.New(s).Handler())
	t.Cleanup(ts.Close)

	e.writeConfig("store_mode = \"remote\"\nremote_url = \"" + ts.URL + "\"\n")
	return e, s
}

// TestRemoteStoryRoundTrip runs a story through the CLI against the remote
// store and checks the server-side store holds the result.
func TestRemoteStoryRoundTrip(t *testing.T) {
	t.Parallel()
	e, backend := newRemoteEnv(t)
	sid, tid := e.seed()

	e.mustRun(nil, "section", "status", sid, tid, "0", "failed")
	e.mustRun(nil, "section", "note", sid, tid, "0", "blank page")

	root, err := backend.LoadTree(context.Background())
	if err != nil {
		t.Fatalf("load server tree: %v", err)
	}
	if len(root.Stories) != 1 {
		t.Fatalf("server tree has %d stories, want 1", len(root.Stories))
	}
	sec := root.Stories[0].Tests[0].Sections[0]
	if sec.Status != "failed" || len(sec.Notes) != 1 || sec.Notes[0].CreatedBy != "integration" {
		t.Errorf("server section = %+v", sec)
	}

	if _, err := os.Stat(filepath.Join(e.dataDir, "tree.json")); !os.IsNotExist(err) {
		t.Errorf("remote mode wrote a local tree: %v", err)
	}
}

// TestRemoteTemplates verifies template import and suggestions through the
// remote store.
func TestRemoteTemplates(t *testing.T) {
	t.Parallel()
	e, _ := newRemoteEnv(t)
	e.mustRun(nil, "template", "import", e.writeTemplates())

	stdout, _ := e.mustRun(nil, "template", "suggest", "serch")
	if !strings.Contains(stdout, "Search") {
		t.Errorf("remote suggest missing Search:\n%s", stdout)
	}
}

// TestRemoteServerDown reports a connection error instead of hanging.
func TestRemoteServerDown(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.writeConfig("store_mode = \"remote\"\nremote_url = \"http://127.0.0.1:1\"\n")

	_, stderr, err := e.run(nil, "story", "list")
	if err == nil {
		t.Fatal("expected an error with the server down")
	}
	if !strings.HasPrefix(stderr, "sr: ") {
		t.Errorf("stderr = %q, want sr: prefix", stderr)
	}
}
