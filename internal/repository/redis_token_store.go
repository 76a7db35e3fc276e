package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
)

const tokenKeyPrefix = "tokens:"

// redisKV is the subset of the redis client the store needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisTokenStore keeps token state as JSON under tokens:<userID> (TOKEN_STORE=redis).
type RedisTokenStore struct {
	client redisKV
	ttl    time.Duration
	sealer TokenSealer
}

// NewRedisTokenStore builds a store. ttl bounds how long an unused refresh token is kept.
func NewRedisTokenStore(client redisKV, ttl time.Duration, sealer TokenSealer) *RedisTokenStore {
	return &RedisTokenStore{client: client, ttl: ttl, sealer: sealer}
}

// Get returns the state for userID or ErrTokenNotFound.
func (s *RedisTokenStore) Get(ctx context.Context, userID string) (*models.TokenState, error) {
	raw, err := s.client.Get(ctx, tokenKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("redis get token state: %w", err)
	}

	var state models.TokenState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode token state: %w", err)
	}
	if err := openState(s.sealer, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Set replaces the state for state.UserID.
func (s *RedisTokenStore) Set(ctx context.Context, state *models.TokenState) error {
	sealed, err := sealState(s.sealer, state)
	if err != nil {
		return err
	}
	sealed.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("encode token state: %w", err)
	}
	if err := s.client.Set(ctx, tokenKey(state.UserID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set token state: %w", err)
	}
	return nil
}

// Clear removes the state for userID.
func (s *RedisTokenStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, tokenKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis clear token state: %w", err)
	}
	return nil
}

func tokenKey(userID string) string {
	return tokenKeyPrefix + userID
}
