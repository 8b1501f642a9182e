// Package postgres builds a herald WorkerBundle on a PostgreSQL database.
//
// The caller owns db; open it with the pgx stdlib driver:
//
//	db, err := sql.Open("pgx", "postgres://localhost/herald")
package postgres

import (
	"database/sql"

	"github.com/petrijr/herald"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/internal/taskqueue"
	"github.com/petrijr/herald/pkg/worker"
)

// NewBundle creates the herald tables in db when missing and returns a
// WorkerBundle whose stores and queue share it.
func NewBundle(db *sql.DB, client herald.Client, cfg worker.Config) (*herald.WorkerBundle, error) {
	store, err := persistence.NewPostgresPersistence(db)
	if err != nil {
		return nil, err
	}
	q, err := taskqueue.NewPostgresQueue(db)
	if err != nil {
		return nil, err
	}
	return herald.NewBundle(client, store, q, cfg), nil
}
