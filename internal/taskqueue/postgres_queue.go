package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PostgresQueue implements Queue using a PostgreSQL table.
//
// Schema (created automatically if missing):
//
//	CREATE TABLE IF NOT EXISTS herald_queue_tasks (
//	    seq        BIGSERIAL PRIMARY KEY,
//	    id         TEXT NOT NULL,
//	    not_before BIGINT NOT NULL,
//	    payload    BYTEA NOT NULL
//	);
//
// Claims use FOR UPDATE SKIP LOCKED, so several workers can share a table.
type PostgresQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgresQueue creates the required schema if needed and returns a Queue.
func NewPostgresQueue(db *sql.DB) (*PostgresQueue, error) {
	q := &PostgresQueue{db: db, pollInterval: defaultPollInterval}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

// Ensure PostgresQueue implements Queue.
var _ Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS herald_queue_tasks (
			seq        BIGSERIAL PRIMARY KEY,
			id         TEXT NOT NULL,
			not_before BIGINT NOT NULL,
			payload    BYTEA NOT NULL
		);
	`)
	return err
}

// Enqueue inserts a task into the queue.
func (q *PostgresQueue) Enqueue(ctx context.Context, t Task) error {
	t = stamp(t, time.Now())
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO herald_queue_tasks (id, not_before, payload)
		VALUES ($1, $2, $3)
	`, t.ID, t.due().UnixNano(), data)
	return err
}

// Dequeue blocks (with polling) until a task is due or ctx is cancelled.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := newStoppedTimer()
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var payload []byte
		err := q.db.QueryRowContext(ctx, `
			DELETE FROM herald_queue_tasks
			WHERE seq = (
				SELECT seq FROM herald_queue_tasks
				WHERE not_before <= $1
				ORDER BY not_before, seq
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			RETURNING payload
		`, time.Now().UnixNano()).Scan(&payload)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				if err := waitPoll(ctx, tmr, q.pollInterval); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		task, err := DecodeTask(payload)
		if err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		return task, nil
	}
}

// Len returns an approximate number of queued tasks.
func (q *PostgresQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM herald_queue_tasks`).Scan(&n); err != nil {
		slog.Default().Warn("postgres_queue_len_failed", slog.Any("error", err))
		return 0
	}
	return n
}
