package repository

import (
	"errors"
	"fmt"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
)

// ErrTokenNotFound is returned by every token store when no state is held for a user.
var ErrTokenNotFound = errors.New("token state not found")

// TokenSealer encrypts token values at rest. *secretbox.Box implements it.
type TokenSealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

func sealState(sealer TokenSealer, state *models.TokenState) (models.TokenState, error) {
	out := *state
	if sealer == nil {
		return out, nil
	}
	var err error
	if out.AccessToken, err = sealer.Seal(state.AccessToken); err != nil {
		return out, fmt.Errorf("seal access token: %w", err)
	}
	if out.RefreshToken, err = sealer.Seal(state.RefreshToken); err != nil {
		return out, fmt.Errorf("seal refresh token: %w", err)
	}
	return out, nil
}

func openState(sealer TokenSealer, state *models.TokenState) error {
	if sealer == nil {
		return nil
	}
	var err error
	if state.AccessToken, err = sealer.Open(state.AccessToken); err != nil {
		return fmt.Errorf("open access token: %w", err)
	}
	if state.RefreshToken, err = sealer.Open(state.RefreshToken); err != nil {
		return fmt.Errorf("open refresh token: %w", err)
	}
	return nil
}
