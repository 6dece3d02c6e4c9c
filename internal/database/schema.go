package database

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		hash TEXT NOT NULL,
		cash NUMERIC NOT NULL DEFAULT 10000.00 CHECK (cash >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users (id),
		symbol TEXT NOT NULL,
		shares BIGINT NOT NULL CHECK (shares <> 0),
		price NUMERIC NOT NULL CHECK (price >= 0),
		type TEXT NOT NULL CHECK (type IN ('buy', 'sell')),
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK ((type = 'buy' AND shares > 0) OR (type = 'sell' AND shares < 0))
	)`,
}

// Money columns are TEXT in SQLite: NUMERIC affinity would store them as
// REAL and lose exactness.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		hash TEXT NOT NULL,
		cash TEXT NOT NULL DEFAULT '10000.00'
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users (id),
		symbol TEXT NOT NULL,
		shares INTEGER NOT NULL CHECK (shares <> 0),
		price TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('buy', 'sell')),
		timestamp DATETIME NOT NULL,
		CHECK ((type = 'buy' AND shares > 0) OR (type = 'sell' AND shares < 0))
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_symbol ON transactions (user_id, symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions (timestamp)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users (username)`,
}

// Migrate creates the users and transactions tables and their indexes.
// It is safe to run repeatedly.
func (r *Repo) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if isPostgres(r.db) {
		stmts = postgresSchema
	}
	stmts = append(append([]string{}, stmts...), indexes...)
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	r.log.Debugf("schema ready (%s)", r.db.DriverName())
	return nil
}

// Reset removes every transaction and user.
func (r *Repo) Reset(ctx context.Context) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return err
	}
	return tx.Commit()
}
