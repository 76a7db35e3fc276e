package repository

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
)

// MemoryTokenStore keeps token state in process memory (TOKEN_STORE=memory). State is lost on restart.
type MemoryTokenStore struct {
	cache *gocache.Cache
}

// NewMemoryTokenStore builds a store whose entries expire after ttl; zero keeps them forever.
func NewMemoryTokenStore(ttl time.Duration) *MemoryTokenStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryTokenStore{cache: gocache.New(ttl, 10*time.Minute)}
}

// Get returns a copy of the state for userID or ErrTokenNotFound.
func (s *MemoryTokenStore) Get(_ context.Context, userID string) (*models.TokenState, error) {
	v, ok := s.cache.Get(userID)
	if !ok {
		return nil, ErrTokenNotFound
	}
	state := v.(models.TokenState)
	return &state, nil
}

// Set stores a copy of state.
func (s *MemoryTokenStore) Set(_ context.Context, state *models.TokenState) error {
	copied := *state
	copied.UpdatedAt = time.Now().UTC()
	s.cache.SetDefault(state.UserID, copied)
	return nil
}

// Clear removes the state for userID.
func (s *MemoryTokenStore) Clear(_ context.Context, userID string) error {
	s.cache.Delete(userID)
	return nil
}
