package persistence

import (
	"database/sql"
)

// SQLiteStore is a JobStore, MessageStore and ExecutionDetailStore backed
// by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	*sqlStore
}

// Ensure SQLiteStore implements the interfaces.
var (
	_ JobStore             = (*SQLiteStore)(nil)
	_ MessageStore         = (*SQLiteStore)(nil)
	_ ExecutionDetailStore = (*SQLiteStore)(nil)
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS herald_jobs (
		id TEXT PRIMARY KEY,
		environment_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		merged_digest_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		data BLOB NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS herald_jobs_transaction ON herald_jobs (environment_id, transaction_id);`,
	`CREATE TABLE IF NOT EXISTS herald_messages (
		id TEXT PRIMARY KEY,
		environment_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		data BLOB NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS herald_messages_job ON herald_messages (environment_id, job_id);`,
	`CREATE TABLE IF NOT EXISTS herald_execution_details (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		environment_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		data BLOB NOT NULL
	);`,
}

// NewSQLiteStore initializes the required schema in the given
// database and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s, err := newSQLStore(db, sqlDialect{schema: sqliteSchema})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{s}, nil
}

// NewSQLitePersistence returns a Persistence backed by one SQLiteStore.
func NewSQLitePersistence(db *sql.DB) (Persistence, error) {
	s, err := NewSQLiteStore(db)
	if err != nil {
		return Persistence{}, err
	}
	return Persistence{Jobs: s, Messages: s, Details: s}, nil
}
