package account

import (
	"context"
	"testing"

	"papertrade/internal/database"
	"papertrade/internal/database/dbtest"
	"papertrade/internal/portfolio"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) (*Service, *database.Repo) {
	repo := dbtest.NewRepo(t)
	s := NewService(repo, decimal.RequireFromString("10000.00"), dbtest.Logger())
	s.cost = bcrypt.MinCost
	return s, repo
}

func TestRegister(t *testing.T) {
	s, repo := newService(t)
	ctx := context.Background()

	id, err := s.Register(ctx, " alice ", "s3cret", "s3cret")
	require.NoError(t, err)
	assert.NotZero(t, id)

	u, err := repo.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "10000", u.Cash.String())
	assert.NotEqual(t, "s3cret", u.CredentialHash)
}

func TestRegister_Rejections(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	_, err := s.Register(ctx, "bob", "pw", "pw")
	require.NoError(t, err)

	cases := []struct {
		name, user, pass, confirm, msg string
	}{
		{"no username", "  ", "pw", "pw", "must provide username"},
		{"no password", "carol", "", "", "must provide password"},
		{"mismatch", "carol", "pw", "wp", "passwords don't match"},
		{"taken", "bob", "pw", "pw", "username already exists"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := s.Register(ctx, c.user, c.pass, c.confirm)
			assert.ErrorIs(t, err, portfolio.ErrValidation)
			assert.Contains(t, err.Error(), c.msg)
		})
	}
}

func TestRegister_HashesPassword(t *testing.T) {
	s, repo := newService(t)
	ctx := context.Background()
	id, err := s.Register(ctx, "dave", "hunter2", "hunter2")
	require.NoError(t, err)

	u, err := repo.GetUserByUsername(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.CredentialHash), []byte("hunter2")))
}
