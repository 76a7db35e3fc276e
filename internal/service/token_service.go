package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	"github.com/noah-isme/mail-webhook-renewal/internal/repository"
	appErrors "github.com/noah-isme/mail-webhook-renewal/pkg/errors"
	"github.com/noah-isme/mail-webhook-renewal/pkg/graph"
	"github.com/noah-isme/mail-webhook-renewal/pkg/oauth"
)

// TokenStore holds one TokenState per user identity.
type TokenStore interface {
	Get(ctx context.Context, userID string) (*models.TokenState, error)
	Set(ctx context.Context, state *models.TokenState) error
	Clear(ctx context.Context, userID string) error
}

type tokenExchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth.TokenResponse, error)
}

type profileFetcher interface {
	Me(ctx context.Context, accessToken string) (*graph.User, error)
}

const refreshTimeout = 30 * time.Second

// TokenConfig tunes access token validity checks.
type TokenConfig struct {
	RefreshBuffer time.Duration
}

// TokenService hands out valid access tokens, refreshing them when they are about to expire.
type TokenService struct {
	store     TokenStore
	exchanger tokenExchanger
	profiles  profileFetcher
	metrics   *MetricsService
	logger    *zap.Logger
	config    TokenConfig

	locks *KeyedMutex
	group singleflight.Group
	now   func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(store TokenStore, exchanger tokenExchanger, profiles profileFetcher, metrics *MetricsService, logger *zap.Logger, config TokenConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RefreshBuffer <= 0 {
		config.RefreshBuffer = 5 * time.Minute
	}
	return &TokenService{
		store:     store,
		exchanger: exchanger,
		profiles:  profiles,
		metrics:   metrics,
		logger:    logger,
		config:    config,
		locks:     NewKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AuthCodeURL returns the provider login URL for the signed state.
func (s *TokenService) AuthCodeURL(state string) string {
	return s.exchanger.AuthCodeURL(state)
}

// GetValidAccessToken returns a cached access token when it outlives the refresh buffer and
// otherwise refreshes it. Any refresh failure clears the stored state and yields ErrAuthExpired.
func (s *TokenService) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	state, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if state.ValidAt(s.now(), s.config.RefreshBuffer) {
		return state.AccessToken, nil
	}

	// The shared refresh outlives any single caller so one disconnect cannot fail it for all.
	ch := s.group.DoChan(userID, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(rctx, userID)
	})
	select {
	case <-ctx.Done():
		return "", appErrors.WrapAs(appErrors.ErrTransientNetwork, ctx.Err(), "token refresh abandoned")
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *TokenService) refresh(ctx context.Context, userID string) (string, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	// Another caller may have refreshed while this one waited on the lock.
	state, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	now := s.now()
	if state.ValidAt(now, s.config.RefreshBuffer) {
		return state.AccessToken, nil
	}

	if state.RefreshToken == "" {
		s.logger.Warn("access token expired and no refresh token on record", zap.String("user_id", userID))
		s.clearAfterFailure(ctx, userID)
		s.metrics.RecordTokenRefresh("missing")
		return "", appErrors.Clone(appErrors.ErrAuthExpired, "no refresh token on record, please log in again")
	}

	resp, err := s.exchanger.Refresh(ctx, state.RefreshToken)
	if err != nil && ctx.Err() != nil {
		s.logger.Warn("token refresh interrupted, keeping stored state", zap.String("user_id", userID), zap.Error(err))
		s.metrics.RecordTokenRefresh("interrupted")
		return "", appErrors.WrapAs(appErrors.ErrTransientNetwork, err, "token refresh interrupted")
	}
	if err != nil {
		s.logger.Warn("token refresh failed", zap.String("user_id", userID), zap.Bool("rejected", oauth.IsGrantError(err)), zap.Error(err))
		s.clearAfterFailure(ctx, userID)
		s.metrics.RecordTokenRefresh("failed")
		return "", authExpired(err)
	}

	next := &models.TokenState{
		UserID:       userID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    now.Add(resp.ExpiresIn),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = state.RefreshToken
		s.logger.Warn("provider did not rotate refresh token, keeping previous one", zap.String("user_id", userID))
	}
	if resp.ExpiresIn <= 0 {
		s.logger.Warn("provider omitted token lifetime, treating token as already expired", zap.String("user_id", userID))
	}

	if err := s.store.Set(ctx, next); err != nil {
		s.metrics.RecordTokenRefresh("store_failed")
		return "", persistenceFailure(err, "failed to store refreshed token")
	}

	s.metrics.RecordTokenRefresh("refreshed")
	s.logger.Info("access token refreshed", zap.String("user_id", userID), zap.Time("expires_at", next.ExpiresAt))
	return next.AccessToken, nil
}

// CompleteLogin exchanges an authorization code, resolves the account id and stores the tokens.
func (s *TokenService) CompleteLogin(ctx context.Context, code string) (*models.LoginResult, error) {
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "authorization code missing")
	}

	resp, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		if oauth.IsGrantError(err) {
			return nil, appErrors.WrapAs(appErrors.ErrUnauthorized, err, "authorization code rejected")
		}
		return nil, appErrors.WrapAs(appErrors.ErrTransientNetwork, err, "token endpoint unavailable")
	}

	user, err := s.profiles.Me(ctx, resp.AccessToken)
	if err != nil {
		return nil, providerFailure(err, "failed to resolve signed-in account")
	}

	state := &models.TokenState{
		UserID:       user.ID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    s.now().Add(resp.ExpiresIn),
	}
	if err := s.SetTokenState(ctx, state); err != nil {
		return nil, err
	}
	if state.Degraded() {
		s.logger.Warn("login returned no refresh token, session will end when the access token expires",
			zap.String("user_id", user.ID))
	}

	email := user.Mail
	if email == "" {
		email = user.UserPrincipalName
	}
	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return &models.LoginResult{UserID: user.ID, DisplayName: user.DisplayName, Email: email, Token: state}, nil
}

// SetTokenState replaces the stored credentials for state.UserID.
func (s *TokenService) SetTokenState(ctx context.Context, state *models.TokenState) error {
	unlock := s.locks.Lock(state.UserID)
	defer unlock()
	if err := s.store.Set(ctx, state); err != nil {
		return persistenceFailure(err, "failed to store token")
	}
	return nil
}

// ClearTokenState forgets the credentials of userID.
func (s *TokenService) ClearTokenState(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	if err := s.store.Clear(ctx, userID); err != nil {
		return persistenceFailure(err, "failed to clear token")
	}
	return nil
}

// Status describes what is stored for userID without touching the provider.
func (s *TokenService) Status(ctx context.Context, userID string) (*models.AuthStatus, error) {
	state, err := s.store.Get(ctx, userID)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return &models.AuthStatus{Authenticated: false, UserID: userID}, nil
	}
	if err != nil {
		return nil, persistenceFailure(err, "failed to load token")
	}
	expiresAt := state.ExpiresAt
	return &models.AuthStatus{
		Authenticated: state.ValidAt(s.now(), 0) || !state.Degraded(),
		UserID:        userID,
		ExpiresAt:     &expiresAt,
		HasRefresh:    !state.Degraded(),
	}, nil
}

func (s *TokenService) load(ctx context.Context, userID string) (*models.TokenState, error) {
	state, err := s.store.Get(ctx, userID)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return nil, appErrors.Clone(appErrors.ErrAuthExpired, "no token on record, please log in")
	}
	if err != nil {
		return nil, persistenceFailure(err, "failed to load token")
	}
	return state, nil
}

func (s *TokenService) clearAfterFailure(ctx context.Context, userID string) {
	if err := s.store.Clear(ctx, userID); err != nil {
		s.logger.Error("failed to clear token state after refresh failure", zap.String("user_id", userID), zap.Error(err))
	}
}

func authExpired(cause error) error {
	err := appErrors.WrapAs(appErrors.ErrAuthExpired, cause, "")
	var ge *oauth.GrantError
	if errors.As(cause, &ge) {
		return appErrors.WithDetails(err, map[string]string{"provider_code": ge.Code, "provider_message": ge.Description})
	}
	return err
}
