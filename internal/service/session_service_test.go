package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	appErrors "github.com/noah-isme/mail-webhook-renewal/pkg/errors"
)

func TestSessionRoundTrip(t *testing.T) {
	svc := NewSessionService(SessionConfig{Secret: "session-secret", TTL: time.Hour, Issuer: "renewal-api"})

	token, expiresAt, err := svc.Issue(&models.LoginResult{UserID: "u1", DisplayName: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
}

func TestSessionRejectsExpiredToken(t *testing.T) {
	svc := NewSessionService(SessionConfig{Secret: "session-secret", TTL: time.Minute, Issuer: "renewal-api"})
	issued := time.Now().UTC()
	svc.now = fixedClock(issued)

	token, _, err := svc.Issue(&models.LoginResult{UserID: "u1"})
	require.NoError(t, err)

	svc.now = fixedClock(issued.Add(2 * time.Minute))
	_, err = svc.Validate(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestSessionRejectsForeignSignature(t *testing.T) {
	issuer := NewSessionService(SessionConfig{Secret: "one", Issuer: "renewal-api"})
	verifier := NewSessionService(SessionConfig{Secret: "two", Issuer: "renewal-api"})

	token, _, err := issuer.Issue(&models.LoginResult{UserID: "u1"})
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.Error(t, err)

	_, err = verifier.Validate("not-a-jwt")
	assert.Error(t, err)
	assert.Equal(t, 24*time.Hour, verifier.TTL())
}
