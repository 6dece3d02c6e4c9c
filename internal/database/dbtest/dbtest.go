// Package dbtest opens throwaway ledger stores for tests in other packages.
package dbtest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"papertrade/internal/database"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Logger returns a logger that discards output.
func Logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// NewRepo returns a migrated repo backed by a SQLite file in t.TempDir().
func NewRepo(t testing.TB) *database.Repo {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	r := database.New(db, Logger())
	require.NoError(t, r.Migrate(ctx))
	return r
}

// Postgres returns a migrated and emptied repo on POSTGRES_URL, skipping the
// test when it is not set.
func Postgres(t testing.TB) *database.Repo {
	t.Helper()
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL is not set; skipping integration tests")
	}
	ctx := context.Background()
	db, err := database.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	r := database.New(db, Logger())
	require.NoError(t, r.Migrate(ctx))
	require.NoError(t, r.Reset(ctx))
	return r
}
