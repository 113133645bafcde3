package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scbrown/storyrun/internal/model"

	_ "modernc.org/sqlite"
)

const schemaVersion = 2

// treeDocument is the documents row holding the story tree.
const treeDocument = "tree"

// SQLiteStore implements Store using a local SQLite database. The story
// tree is kept as one JSON document row so load/save keep single-document
// semantics; templates get a row each.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) a SQLite database at dbPath.
// It auto-creates the parent directory (e.g. ~/.sr/) and runs
// schema migrations to ensure the database is up to date.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for WAL mode simplicity.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate runs schema migrations up to the current version.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	var ver int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&ver)
	if err == sql.ErrNoRows {
		ver = 0
	} else if err != nil {
		return fmt.Errorf("read version: %w", err)
	}

	if ver < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	if ver < 2 {
		if err := s.migrateV2(); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStore) migrateV1() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			name       TEXT PRIMARY KEY,
			body       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS templates (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL,
			sections   TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`INSERT OR REPLACE INTO schema_version (version) VALUES (1)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrateV2() error {
	stmts := []string{
		`ALTER TABLE templates ADD COLUMN category TEXT`,
		`CREATE INDEX IF NOT EXISTS idx_templates_category ON templates(category)`,
		`UPDATE schema_version SET version = 2`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate v2: %w", err)
		}
	}
	return nil
}

// LoadTree reads the tree document.
func (s *SQLiteStore) LoadTree(ctx context.Context) (model.StoryFolder, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE name = ?`, treeDocument,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return decodeTree(nil, s.now())
	}
	if err != nil {
		return model.StoryFolder{}, fmt.Errorf("load tree: %w", err)
	}
	return decodeTree([]byte(body), s.now())
}

// SaveTree replaces the tree document in one statement.
func (s *SQLiteStore) SaveTree(ctx context.Context, root model.StoryFolder) error {
	data, err := encodeTree(root)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (name, body, updated_at) VALUES (?, ?, ?)`,
		treeDocument, string(data), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save tree: %w", err)
	}
	return nil
}

// GetTemplate returns the template with id, or nil if not found.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, category, sections, created_at FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

// ListTemplates returns every template in insertion order.
func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, sections, created_at FROM templates ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []model.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// AddTemplates inserts templates in one transaction.
func (s *SQLiteStore) AddTemplates(ctx context.Context, templates []model.Template) error {
	if err := checkTemplates(templates); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	for _, t := range templates {
		sections := t.Sections
		if sections == nil {
			sections = []model.TemplateSection{}
		}
		data, err := json.Marshal(sections)
		if err != nil {
			return fmt.Errorf("encoding sections: %w", err)
		}
		created := t.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO templates (id, name, category, sections, created_at) VALUES (?, ?, ?, ?, ?)`,
			t.ID, t.Name, nullableString(t.Category), string(data), created.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return fmt.Errorf("%w: template id %q already exists", model.ErrInvalidInput, t.ID)
			}
			return fmt.Errorf("insert template: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (model.Template, error) {
	var t model.Template
	var category sql.NullString
	var sections, createdAt string
	if err := row.Scan(&t.ID, &t.Name, &category, &sections, &createdAt); err != nil {
		return t, err
	}
	t.Category = category.String
	if err := json.Unmarshal([]byte(sections), &t.Sections); err != nil {
		return t, fmt.Errorf("%w: template %q sections: %v", model.ErrCorruptState, t.ID, err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return t, nil
}

// nullableString returns nil for empty strings, otherwise the string value.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
