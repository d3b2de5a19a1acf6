package sqlstore

import (
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slitherpit/engine/account/testsuite"
)

func mustExec(db *sql.DB, sq string) {
	if _, err := db.Exec(sq); err != nil {
		panic(err)
	}
}

func TestSQLStore(t *testing.T) {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		url = "postgres://postgres@127.0.0.1:5433/postgres?sslmode=disable"
	}
	s, err := NewSQLStore(url)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}

	testsuite.Suite(t, s, func() {
		mustExec(s.db, "TRUNCATE accounts")
	})

	require.NoError(t, s.Close())
}
