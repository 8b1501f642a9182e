package persistence

import (
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/herald/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	db, err := sql.Open("pgx", testutil.GetPostgresEndpoint(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{"herald_jobs", "herald_messages", "herald_execution_details"} {
		_, err := db.Exec("DROP TABLE IF EXISTS " + table)
		require.NoError(t, err)
	}

	p, err := NewPostgresPersistence(db)
	require.NoError(t, err)
	runStoreTests(t, p)
}
