package persistence

import (
	"database/sql"
)

// PostgresStore is a JobStore, MessageStore and ExecutionDetailStore
// backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	*sqlStore
}

// Ensure PostgresStore implements the interfaces.
var (
	_ JobStore             = (*PostgresStore)(nil)
	_ MessageStore         = (*PostgresStore)(nil)
	_ ExecutionDetailStore = (*PostgresStore)(nil)
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS herald_jobs (
		id TEXT PRIMARY KEY,
		environment_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		merged_digest_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		data BYTEA NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS herald_jobs_transaction ON herald_jobs (environment_id, transaction_id);`,
	`CREATE TABLE IF NOT EXISTS herald_messages (
		id TEXT PRIMARY KEY,
		environment_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		data BYTEA NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS herald_messages_job ON herald_messages (environment_id, job_id);`,
	`CREATE TABLE IF NOT EXISTS herald_execution_details (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL,
		environment_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		data BYTEA NOT NULL
	);`,
}

// NewPostgresStore initializes the required schema in the given
// database and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s, err := newSQLStore(db, sqlDialect{schema: postgresSchema, positional: true})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{s}, nil
}

// NewPostgresPersistence returns a Persistence backed by one PostgresStore.
func NewPostgresPersistence(db *sql.DB) (Persistence, error) {
	s, err := NewPostgresStore(db)
	if err != nil {
		return Persistence{}, err
	}
	return Persistence{Jobs: s, Messages: s, Details: s}, nil
}
