// Package storeref provides minimal sqlite-backed reference
// implementations of the external store interfaces (spec section 6), for
// local testing. These are not the canonical
// schema — callers own that; this package exists so the core can be
// exercised end-to-end without a caller-supplied store.
package storeref

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/google/uuid"

	"github.com/nostrband/keep.ai-sub004/internal/external"
	"github.com/nostrband/keep.ai-sub004/internal/logging"
)

// Store bundles the sqlite-backed WorkflowStore, EventSink, and LogSink
// reference implementations behind one connection, grounded on the
// teacher's NewLocalStore sqlite-init idiom (single connection, WAL mode,
// busy timeout, synchronous=NORMAL).
type Store struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if absent) a sqlite-backed reference store at path.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "storeref.New")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("storeref: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("storeref: failed to open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("storeref: failed to apply %q: %w", p, err)
		}
	}

	s := &Store{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.StoreDebug("opened reference store at %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS log_lines (
		id TEXT PRIMARY KEY,
		line TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("storeref: migration failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SeedWorkflow inserts or updates a workflow's status, for test setup.
func (s *Store) SeedWorkflow(ctx context.Context, id string, status external.WorkflowStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, status) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status`, id, string(status))
	return err
}

// Get implements external.WorkflowStore.
func (s *Store) Get(ctx context.Context, workflowID string) (*external.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT status FROM workflows WHERE id = ?`, workflowID)
	var status string
	if err := row.Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storeref: workflow lookup failed: %w", err)
	}
	return &external.Workflow{ID: workflowID, Status: external.WorkflowStatus(status)}, nil
}

// CreateEvent implements execctx.EventSink.
func (s *Store) CreateEvent(eventType string, payload map[string]any) {
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO events (id, type, payload) VALUES (?, ?, ?)`,
		id, eventType, fmt.Sprintf("%v", payload))
	if err != nil {
		logging.StoreError("failed to record event %s: %v", eventType, err)
	}
}

// OnLog implements execctx.LogSink.
func (s *Store) OnLog(line string) {
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO log_lines (id, line) VALUES (?, ?)`, id, line)
	if err != nil {
		logging.StoreError("failed to record log line: %v", err)
	}
}

// EventCount returns the number of events recorded, for test assertions.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`)
	var n int
	err := row.Scan(&n)
	return n, err
}
