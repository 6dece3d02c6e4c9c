package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"papertrade/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// CreateUser inserts a user with the given opening cash balance.
func (r *Repo) CreateUser(ctx context.Context, username, credentialHash string, cash decimal.Decimal) (int64, error) {
	if cash.IsNegative() {
		return 0, ErrNegativeCash
	}
	var id int64
	err := r.db.GetContext(ctx, &id, r.db.Rebind(`INSERT INTO users (username, hash, cash) VALUES (?, ?, ?) RETURNING id`),
		username, credentialHash, cash.String())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}
	return id, nil
}

func (r *Repo) GetUser(ctx context.Context, id int64) (models.User, error) {
	return r.getUser(ctx, `SELECT id, username, hash, cash FROM users WHERE id = ?`, id)
}

func (r *Repo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getUser(ctx, `SELECT id, username, hash, cash FROM users WHERE username = ?`, username)
}

func (r *Repo) getUser(ctx context.Context, q string, arg interface{}) (models.User, error) {
	var u models.User
	if err := r.db.GetContext(ctx, &u, r.db.Rebind(q), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

func (r *Repo) ListUsers(ctx context.Context) ([]models.User, error) {
	res := []models.User{}
	if err := r.db.SelectContext(ctx, &res, `SELECT id, username, hash, cash FROM users ORDER BY username`); err != nil {
		return nil, err
	}
	return res, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

