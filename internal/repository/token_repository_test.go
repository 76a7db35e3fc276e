package repository

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
)

// prefixSealer marks sealed values so tests can see what reached storage.
type prefixSealer struct{}

func (prefixSealer) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	return "sealed:" + plain, nil
}

func (prefixSealer) Open(sealed string) (string, error) {
	return strings.TrimPrefix(sealed, "sealed:"), nil
}

func TestTokenRepositoryGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db, prefixSealer{})

	exp := time.Now().Add(time.Hour).UTC()
	rows := sqlmock.NewRows([]string{"user_id", "access_token", "refresh_token", "expires_at", "updated_at"}).
		AddRow("user-1", "sealed:access", "sealed:refresh", exp, exp)
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_tokens WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(rows)

	state, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "access", state.AccessToken)
	assert.Equal(t, "refresh", state.RefreshToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_tokens")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "access_token", "refresh_token", "expires_at", "updated_at"}))

	_, err := repo.Get(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenRepositorySetSealsValues(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db, prefixSealer{})

	exp := time.Now().Add(time.Hour).UTC()
	mock.ExpectExec("INSERT INTO user_tokens").
		WithArgs("user-1", "sealed:access", "sealed:refresh", exp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	state := &models.TokenState{UserID: "user-1", AccessToken: "access", RefreshToken: "refresh", ExpiresAt: exp}
	require.NoError(t, repo.Set(context.Background(), state))
	assert.Equal(t, "access", state.AccessToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryClear(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_tokens WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Clear(context.Background(), "user-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
