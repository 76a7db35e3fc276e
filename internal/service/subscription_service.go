package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mail-webhook-renewal/internal/dto"
	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	appErrors "github.com/noah-isme/mail-webhook-renewal/pkg/errors"
	"github.com/noah-isme/mail-webhook-renewal/pkg/graph"
)

type subscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	FindByUser(ctx context.Context, userID string) (*models.Subscription, error)
	UpdateExpiration(ctx context.Context, id string, expiration time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Subscription, error)
}

type accessTokenProvider interface {
	GetValidAccessToken(ctx context.Context, userID string) (string, error)
}

type subscriptionProvider interface {
	CreateSubscription(ctx context.Context, accessToken string, req graph.CreateSubscriptionRequest) (*graph.Subscription, error)
	UpdateSubscription(ctx context.Context, accessToken, subscriptionID string, expiration time.Time) (*graph.Subscription, error)
	DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error
}

// SubscriptionConfig describes the subscription every user gets.
type SubscriptionConfig struct {
	Resource        string
	ChangeType      string
	NotificationURL string
	ClientState     string
	LeaseDuration   time.Duration
}

// SubscriptionService is the admission controller: it keeps at most one live subscription per user.
type SubscriptionService struct {
	repo     subscriptionRepository
	tokens   accessTokenProvider
	provider subscriptionProvider
	locks    *KeyedMutex
	metrics  *MetricsService
	logger   *zap.Logger
	config   SubscriptionConfig
	now      func() time.Time
}

// NewSubscriptionService constructs the admission controller. locks must be the set shared with the renewal engine.
func NewSubscriptionService(repo subscriptionRepository, tokens accessTokenProvider, provider subscriptionProvider, locks *KeyedMutex, metrics *MetricsService, logger *zap.Logger, config SubscriptionConfig) *SubscriptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &SubscriptionService{
		repo:     repo,
		tokens:   tokens,
		provider: provider,
		locks:    locks,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type admissionStep int

const (
	stepLookup admissionStep = iota
	stepUpdate
	stepUpdateFailed
	stepDeleted
	stepCreate
	stepDone
)

// admission carries the state of one EnsureSubscription call.
type admission struct {
	userID    string
	token     string
	existing  *models.Subscription
	updateErr error
	recreated bool
	result    *dto.EnsureSubscriptionResponse
}

// EnsureSubscription creates the user's subscription or extends the existing one. A rejected
// update falls back to delete and create, at most once per call.
func (s *SubscriptionService) EnsureSubscription(ctx context.Context, userID string) (*dto.EnsureSubscriptionResponse, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	token, err := s.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		s.metrics.RecordAdmission("failed")
		return nil, err
	}

	a := &admission{userID: userID, token: token}
	step := stepLookup
	for step != stepDone {
		step, err = s.advance(ctx, a, step)
		if err != nil {
			s.metrics.RecordAdmission("failed")
			return nil, err
		}
	}

	s.metrics.RecordAdmission(string(a.result.Action))
	s.logger.Info("subscription ensured",
		zap.String("user_id", userID),
		zap.String("subscription_id", a.result.SubscriptionID),
		zap.String("action", string(a.result.Action)),
		zap.Time("expiration", a.result.ExpirationDateTime),
		zap.Bool("recreated", a.recreated),
	)
	return a.result, nil
}

func (s *SubscriptionService) advance(ctx context.Context, a *admission, step admissionStep) (admissionStep, error) {
	switch step {
	case stepLookup:
		existing, err := s.repo.FindByUser(ctx, a.userID)
		if errors.Is(err, sql.ErrNoRows) {
			return stepCreate, nil
		}
		if err != nil {
			return stepDone, persistenceFailure(err, "failed to load subscription")
		}
		a.existing = existing
		return stepUpdate, nil

	case stepUpdate:
		expiration := s.now().Add(s.config.LeaseDuration)
		updated, err := s.provider.UpdateSubscription(ctx, a.token, a.existing.SubscriptionID, expiration)
		if err != nil {
			if !graph.IsRejected(err) {
				return stepDone, providerFailure(err, "failed to renew subscription")
			}
			a.updateErr = err
			return stepUpdateFailed, nil
		}
		if !updated.ExpirationDateTime.IsZero() {
			expiration = updated.ExpirationDateTime
		}
		if err := s.repo.UpdateExpiration(ctx, a.existing.SubscriptionID, expiration); err != nil {
			return stepDone, persistenceFailure(err, "failed to store renewed subscription")
		}
		a.result = &dto.EnsureSubscriptionResponse{SubscriptionID: a.existing.SubscriptionID, ExpirationDateTime: expiration, Action: models.AdmissionUpdated}
		return stepDone, nil

	case stepUpdateFailed:
		s.logger.Warn("subscription update rejected, replacing it",
			zap.String("user_id", a.userID),
			zap.String("subscription_id", a.existing.SubscriptionID),
			zap.Error(a.updateErr),
		)
		if err := s.provider.DeleteSubscription(ctx, a.token, a.existing.SubscriptionID); err != nil {
			s.logger.Warn("provider-side delete of stale subscription failed",
				zap.String("subscription_id", a.existing.SubscriptionID), zap.Error(err))
		}
		if err := s.repo.Delete(ctx, a.existing.SubscriptionID); err != nil {
			return stepDone, persistenceFailure(err, "failed to delete stale subscription")
		}
		return stepDeleted, nil

	case stepDeleted:
		if a.recreated {
			return stepDone, providerFailure(a.updateErr, "subscription could not be replaced")
		}
		a.recreated = true
		return stepCreate, nil

	case stepCreate:
		return s.create(ctx, a)
	}
	return stepDone, appErrors.Clone(appErrors.ErrInternal, "unknown admission step")
}

func (s *SubscriptionService) create(ctx context.Context, a *admission) (admissionStep, error) {
	req := graph.CreateSubscriptionRequest{
		ChangeType:         s.config.ChangeType,
		NotificationURL:    s.config.NotificationURL,
		Resource:           s.config.Resource,
		ExpirationDateTime: s.now().Add(s.config.LeaseDuration),
		ClientState:        s.config.ClientState,
	}
	created, err := s.provider.CreateSubscription(ctx, a.token, req)
	if err != nil {
		return stepDone, providerFailure(err, "failed to create subscription")
	}

	expiration := created.ExpirationDateTime
	if expiration.IsZero() {
		expiration = req.ExpirationDateTime
	}
	record := &models.Subscription{
		SubscriptionID:     created.ID,
		UserID:             a.userID,
		Resource:           req.Resource,
		ChangeType:         req.ChangeType,
		ExpirationDateTime: expiration,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		// Do not leave an untracked subscription delivering notifications.
		if delErr := s.provider.DeleteSubscription(ctx, a.token, created.ID); delErr != nil {
			s.logger.Error("failed to roll back provider subscription", zap.String("subscription_id", created.ID), zap.Error(delErr))
		}
		return stepDone, persistenceFailure(err, "failed to store subscription")
	}

	a.result = &dto.EnsureSubscriptionResponse{SubscriptionID: created.ID, ExpirationDateTime: expiration, Action: models.AdmissionCreated}
	return stepDone, nil
}

// Unsubscribe removes the user's subscription on both sides.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	existing, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "no subscription for user")
	}
	if err != nil {
		return persistenceFailure(err, "failed to load subscription")
	}

	token, err := s.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.provider.DeleteSubscription(ctx, token, existing.SubscriptionID); err != nil {
		return providerFailure(err, "failed to delete subscription")
	}
	if err := s.repo.Delete(ctx, existing.SubscriptionID); err != nil {
		return persistenceFailure(err, "failed to delete subscription")
	}

	s.logger.Info("subscription removed", zap.String("user_id", userID), zap.String("subscription_id", existing.SubscriptionID))
	return nil
}

// Status returns the stored subscription of userID.
func (s *SubscriptionService) Status(ctx context.Context, userID string) (*dto.SubscriptionResponse, error) {
	existing, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no subscription for user")
	}
	if err != nil {
		return nil, persistenceFailure(err, "failed to load subscription")
	}
	res := s.toResponse(existing)
	return &res, nil
}

// List returns every tracked subscription, soonest expiry first.
func (s *SubscriptionService) List(ctx context.Context) ([]dto.SubscriptionResponse, error) {
	subs, err := s.repo.List(ctx)
	if err != nil {
		return nil, persistenceFailure(err, "failed to list subscriptions")
	}
	out := make([]dto.SubscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, s.toResponse(&subs[i]))
	}
	return out, nil
}

func (s *SubscriptionService) toResponse(sub *models.Subscription) dto.SubscriptionResponse {
	remaining := sub.ExpirationDateTime.Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	return dto.SubscriptionResponse{
		SubscriptionID:     sub.SubscriptionID,
		UserID:             sub.UserID,
		Resource:           sub.Resource,
		ChangeType:         sub.ChangeType,
		ExpirationDateTime: sub.ExpirationDateTime,
		ExpiresIn:          remaining.Round(time.Second).String(),
	}
}
