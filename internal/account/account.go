// Package account registers users. Logging in and sessions are left to
// whatever front end sits on top.
package account

import (
	"context"
	"errors"
	"strings"

	"papertrade/internal/database"
	"papertrade/internal/portfolio"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type Store interface {
	CreateUser(ctx context.Context, username, credentialHash string, cash decimal.Decimal) (int64, error)
}

type Service struct {
	store       Store
	initialCash decimal.Decimal
	cost        int
	log         *logrus.Logger
}

func NewService(s Store, initialCash decimal.Decimal, log *logrus.Logger) *Service {
	return &Service{store: s, initialCash: initialCash, cost: bcrypt.DefaultCost, log: log}
}

// Register creates a user holding the configured opening cash.
func (s *Service) Register(ctx context.Context, username, password, confirmation string) (int64, error) {
	const op = "register"
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, rejection(op, "must provide username")
	}
	if password == "" {
		return 0, rejection(op, "must provide password")
	}
	if password != confirmation {
		return 0, rejection(op, "passwords don't match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return 0, rejection(op, err.Error())
	}
	id, err := s.store.CreateUser(ctx, username, string(hash), s.initialCash)
	if errors.Is(err, database.ErrUsernameTaken) {
		return 0, rejection(op, "username already exists")
	}
	if err != nil {
		return 0, &portfolio.Error{Op: op, Kind: portfolio.ErrStorage, Err: err}
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "username": username}).Info("registered")
	return id, nil
}

func rejection(op, msg string) error {
	return &portfolio.Error{Op: op, Kind: portfolio.ErrValidation, Msg: msg}
}
