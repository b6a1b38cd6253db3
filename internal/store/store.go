// Package store is the relational record of scraped interfaces: applications
// own elements and screens, elements own commands, and everything below an
// application is removed by cascade when it is. All primary keys are content
// hashes or stable identifiers, never handles.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mkjhawar/NewAvanues-sub007/internal/logging"
)

var (
	// ErrNotFound is returned when a hash-keyed lookup matches nothing
	ErrNotFound = errors.New("store: not found")
	// ErrParentMissing is returned when a dependent write references a row
	// that is not there yet; callers defer these instead of dropping them
	ErrParentMissing = errors.New("store: parent row missing")
)

// DBTX is the shared surface of *sql.DB and *sql.Tx, so the same write
// helpers run standalone or inside a coordinator transaction.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store wraps the unified SQLite database
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the unified store and migrates it forward
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN, so contention shows up
	// as a retryable busy error instead of a mid-transaction upgrade failure
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the write coordinator
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

const baseSchema = `
CREATE TABLE IF NOT EXISTS applications (
	app_id TEXT PRIMARY KEY,
	package_name TEXT NOT NULL UNIQUE,
	app_name TEXT DEFAULT '',
	version_name TEXT DEFAULT '',
	version_code INTEGER DEFAULT 0,
	build_hash TEXT DEFAULT '',
	scrape_count INTEGER DEFAULT 0,
	exploration_count INTEGER DEFAULT 0,
	auto_scrape BOOLEAN DEFAULT 1,
	exploration_json TEXT,
	first_seen DATETIME NOT NULL,
	last_scraped DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS elements (
	element_hash TEXT PRIMARY KEY,
	app_id TEXT NOT NULL REFERENCES applications(app_id) ON DELETE CASCADE,
	class_name TEXT DEFAULT '',
	resource_id TEXT DEFAULT '',
	text TEXT DEFAULT '',
	label TEXT DEFAULT '',
	bounds TEXT DEFAULT '',
	clickable BOOLEAN DEFAULT 0,
	long_clickable BOOLEAN DEFAULT 0,
	editable BOOLEAN DEFAULT 0,
	scrollable BOOLEAN DEFAULT 0,
	checkable BOOLEAN DEFAULT 0,
	checked BOOLEAN DEFAULT 0,
	focusable BOOLEAN DEFAULT 0,
	enabled BOOLEAN DEFAULT 1,
	depth INTEGER DEFAULT 0,
	sibling_index INTEGER DEFAULT 0,
	semantic_role TEXT DEFAULT 'unknown',
	input_type TEXT DEFAULT '',
	form_group_id TEXT DEFAULT '',
	hash_version INTEGER DEFAULT 2,
	first_seen DATETIME NOT NULL,
	last_seen DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_elements_app ON elements(app_id);
CREATE INDEX IF NOT EXISTS idx_elements_resource ON elements(resource_id);

CREATE TABLE IF NOT EXISTS commands (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	element_hash TEXT NOT NULL REFERENCES elements(element_hash) ON DELETE CASCADE,
	command_text TEXT NOT NULL,
	action_type TEXT NOT NULL,
	confidence REAL DEFAULT 0,
	usage_count INTEGER DEFAULT 0,
	approved BOOLEAN DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(element_hash, command_text)
);
CREATE INDEX IF NOT EXISTS idx_commands_element ON commands(element_hash);
CREATE INDEX IF NOT EXISTS idx_commands_text ON commands(command_text);

CREATE TABLE IF NOT EXISTS command_aliases (
	command_id INTEGER NOT NULL REFERENCES commands(id) ON DELETE CASCADE,
	alias TEXT NOT NULL,
	UNIQUE(command_id, alias)
);
CREATE INDEX IF NOT EXISTS idx_aliases_alias ON command_aliases(alias);

CREATE TABLE IF NOT EXISTS screens (
	screen_hash TEXT PRIMARY KEY,
	app_id TEXT NOT NULL REFERENCES applications(app_id) ON DELETE CASCADE,
	package_name TEXT NOT NULL,
	stable_title TEXT DEFAULT '',
	activity TEXT DEFAULT '',
	screen_type TEXT DEFAULT 'unknown',
	primary_action TEXT DEFAULT '',
	element_count INTEGER DEFAULT 0,
	visit_count INTEGER DEFAULT 0,
	first_seen DATETIME NOT NULL,
	last_seen DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_screens_app ON screens(app_id);

CREATE TABLE IF NOT EXISTS screen_transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_screen TEXT NOT NULL REFERENCES screens(screen_hash) ON DELETE CASCADE,
	to_screen TEXT NOT NULL REFERENCES screens(screen_hash) ON DELETE CASCADE,
	transition_count INTEGER DEFAULT 1,
	avg_transition_ms REAL DEFAULT 0,
	last_transition DATETIME NOT NULL,
	UNIQUE(from_screen, to_screen)
);

CREATE TABLE IF NOT EXISTS element_relationships (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_element TEXT NOT NULL REFERENCES elements(element_hash) ON DELETE CASCADE,
	to_element TEXT NOT NULL REFERENCES elements(element_hash) ON DELETE CASCADE,
	relation TEXT NOT NULL,
	confidence REAL DEFAULT 0,
	source TEXT DEFAULT 'scrape',
	created_at DATETIME NOT NULL,
	UNIQUE(from_element, to_element, relation)
);

CREATE TABLE IF NOT EXISTS interactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	element_hash TEXT NOT NULL REFERENCES elements(element_hash) ON DELETE CASCADE,
	screen_hash TEXT REFERENCES screens(screen_hash) ON DELETE CASCADE,
	action TEXT NOT NULL,
	success BOOLEAN DEFAULT 1,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_element ON interactions(element_hash);

CREATE TABLE IF NOT EXISTS state_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	element_hash TEXT NOT NULL REFERENCES elements(element_hash) ON DELETE CASCADE,
	attribute TEXT NOT NULL,
	old_value TEXT DEFAULT '',
	new_value TEXT DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_state_element ON state_history(element_hash);

CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// migrations are forward-only statements applied above the base schema.
// Each entry preserves existing rows; nothing here drops data.
var migrations = []struct {
	version int
	stmts   []string
}{
	{2, []string{
		`CREATE INDEX IF NOT EXISTS idx_elements_role ON elements(semantic_role)`,
	}},
	{3, []string{
		`CREATE INDEX IF NOT EXISTS idx_transitions_from ON screen_transitions(from_screen)`,
		`CREATE INDEX IF NOT EXISTS idx_state_attr ON state_history(attribute)`,
	}},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(baseSchema); err != nil {
		return fmt.Errorf("base schema: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 1) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.stmts {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("migration v%d: %w", m.version, err)
			}
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		logging.Info("store", "applied schema migration v%d", m.version)
	}
	return nil
}

// GetMeta reads a key from the meta table ("" when absent)
func (s *Store) GetMeta(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// SetMeta upserts a key in the meta table
func (s *Store) SetMeta(key, value string) error {
	return SetMetaTx(s.db, key, value)
}

// SetMetaTx is the meta upsert usable inside a transaction, so a completion
// flag can commit atomically with the work it guards.
func SetMetaTx(q DBTX, key, value string) error {
	_, err := q.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// TableCounts returns row counts per entity table (operator stats)
func (s *Store) TableCounts() (map[string]int, error) {
	tables := []string{
		"applications", "elements", "commands", "command_aliases", "screens",
		"screen_transitions", "element_relationships", "interactions", "state_history",
	}
	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + t).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		counts[t] = n
	}
	return counts, nil
}
