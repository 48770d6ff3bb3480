// Package store implements taskrelay's SQLite persistence: work items
// ("tasks"), users, channel subscriptions and the semantic document store
// used for retrieval-augmented analysis and conversation memory.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-sqlite3"

	"taskrelay/internal/embedding"
	"taskrelay/internal/logging"
)

// Sentinel errors surfaced to callers.
var (
	// ErrDuplicateTask reports a unique-constraint violation on
	// external_message_id. The message was already processed, possibly
	// by a concurrent instance; callers treat this as "skip".
	ErrDuplicateTask = errors.New("task already exists for external message id")

	// ErrNotFound reports a lookup miss where the caller required a row.
	ErrNotFound = errors.New("record not found")
)

// Store provides access to all taskrelay persistence.
type Store struct {
	db              *sql.DB
	mu              sync.RWMutex
	dbPath          string
	embeddingEngine embedding.Engine // optional, nil means keyword-only search
	vecDim          int              // dimensionality of the sqlite-vec index, 0 until first indexed document
}

// New initializes the SQLite database at the given path.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.New")
	defer timer.Stop()

	logging.Store("Initializing store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable sqlite foreign_keys: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("Store initialization complete")
	return s, nil
}

// SetEmbeddingEngine configures the embedding engine used for semantic
// search and document inserts. Without one, search degrades to keyword
// matching.
func (s *Store) SetEmbeddingEngine(engine embedding.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddingEngine = engine
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	// Work items. The unique constraint on external_message_id is the
	// idempotency anchor: at most one task per inbound message even if
	// two pollers race past the pre-check.
	tasksTable := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		external_message_id TEXT UNIQUE,
		source_item_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		created_by TEXT,
		ai_generated INTEGER NOT NULL DEFAULT 0,
		ai_recommended INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_source_item ON tasks(source_item_id);
	`

	usersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		principal_name TEXT NOT NULL UNIQUE,
		display_name TEXT,
		first_name TEXT,
		last_name TEXT,
		mail TEXT,
		role TEXT NOT NULL DEFAULT 'member',
		external_auth INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	subscriptionsTable := `
	CREATE TABLE IF NOT EXISTS channel_subscriptions (
		owner_item_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner_item_id, channel_id)
	);
	`

	// Semantic documents across logical collections (tasks, items).
	documentsTable := `
	CREATE TABLE IF NOT EXISTS semantic_documents (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		embedding TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON semantic_documents(collection);
	`

	for _, schema := range []string{tasksTable, usersTable, subscriptionsTable, documentsTable} {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a sqlite unique-constraint error.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// Stats returns store statistics for the status command.
func (s *Store) Stats() (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})

	var tasks int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&tasks); err != nil {
		return nil, err
	}
	stats["tasks"] = tasks

	var users int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&users); err != nil {
		return nil, err
	}
	stats["users"] = users

	var subs int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM channel_subscriptions").Scan(&subs); err != nil {
		return nil, err
	}
	stats["channel_subscriptions"] = subs

	rows, err := s.db.Query("SELECT collection, COUNT(*) FROM semantic_documents GROUP BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make(map[string]int64)
	for rows.Next() {
		var collection string
		var n int64
		if err := rows.Scan(&collection, &n); err != nil {
			continue
		}
		docs[collection] = n
	}
	stats["semantic_documents"] = docs

	if s.embeddingEngine != nil {
		stats["embedding_engine"] = s.embeddingEngine.Name()
		stats["embedding_dimensions"] = s.embeddingEngine.Dimensions()
	} else {
		stats["embedding_engine"] = "none (keyword search)"
	}

	return stats, nil
}
