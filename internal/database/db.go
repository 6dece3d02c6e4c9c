package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Open connects to the store named by url. Postgres URLs (postgres://,
// postgresql://) go through lib/pq; anything else is treated as a SQLite
// path, optionally prefixed with sqlite://.
func Open(ctx context.Context, url string) (*sqlx.DB, error) {
	driver, dsn := ParseURL(url)
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single connection serialises writers; SQLite has no row locks
		db.SetMaxOpenConns(1)
		return db, nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// ParseURL maps a DATABASE_URL onto a driver name and its DSN.
func ParseURL(url string) (driver, dsn string) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres, url
	}
	path := strings.TrimPrefix(url, "sqlite://")
	if strings.Contains(path, "?") {
		return DriverSQLite, path + "&" + sqlitePragmas
	}
	return DriverSQLite, path + "?" + sqlitePragmas
}

func isPostgres(q sqlx.ExtContext) bool {
	return q.DriverName() == DriverPostgres
}
