package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	"github.com/noah-isme/mail-webhook-renewal/pkg/graph"
	"github.com/noah-isme/mail-webhook-renewal/pkg/jobs"
)

type renewalRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subscription, error)
	FindExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Subscription, error)
	FindExpiredBefore(ctx context.Context, t time.Time) ([]models.Subscription, error)
	UpdateExpiration(ctx context.Context, id string, expiration time.Time) error
	Delete(ctx context.Context, id string) error
}

type renewalProvider interface {
	UpdateSubscription(ctx context.Context, accessToken, subscriptionID string, expiration time.Time) (*graph.Subscription, error)
}

// RenewalConfig controls the renewal schedule. Interval < Lookahead < LeaseDuration.
type RenewalConfig struct {
	Interval      time.Duration
	Lookahead     time.Duration
	LeaseDuration time.Duration
	Concurrency   int
}

// RenewalEngine periodically extends subscriptions that are about to expire.
type RenewalEngine struct {
	repo     renewalRepository
	tokens   accessTokenProvider
	provider renewalProvider
	locks    *KeyedMutex
	metrics  *MetricsService
	logger   *zap.Logger
	config   RenewalConfig
	now      func() time.Time

	runner *jobs.Periodic
	passMu sync.Mutex

	lastMu sync.RWMutex
	last   *models.RenewalReport
}

// NewRenewalEngine builds a stopped engine. locks must be shared with the admission controller.
func NewRenewalEngine(repo renewalRepository, tokens accessTokenProvider, provider renewalProvider, locks *KeyedMutex, metrics *MetricsService, logger *zap.Logger, config RenewalConfig) *RenewalEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	e := &RenewalEngine{
		repo:     repo,
		tokens:   tokens,
		provider: provider,
		locks:    locks,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
	e.runner = jobs.NewPeriodic("subscription-renewal", config.Interval, e.scheduledTick, logger)
	e.runner.RunOnStart = true
	return e
}

// Start moves the engine to Running. Starting a running engine is a no-op.
func (e *RenewalEngine) Start(ctx context.Context) {
	if !e.runner.Start(ctx) {
		e.logger.Debug("renewal engine already running")
	}
}

// Stop moves the engine to Stopped and waits for an in-flight pass to return.
func (e *RenewalEngine) Stop() {
	e.runner.Stop()
}

// State reports the engine lifecycle state.
func (e *RenewalEngine) State() models.EngineState {
	if e.runner.Running() {
		return models.EngineRunning
	}
	return models.EngineStopped
}

// Status reports state, configuration and the most recent pass.
func (e *RenewalEngine) Status() models.EngineStatus {
	return models.EngineStatus{
		State:      e.State(),
		Interval:   e.config.Interval.String(),
		Lookahead:  e.config.Lookahead.String(),
		Lease:      e.config.LeaseDuration.String(),
		LastReport: e.LastReport(),
	}
}

// LastReport returns a copy of the most recent pass report, if any.
func (e *RenewalEngine) LastReport() *models.RenewalReport {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	if e.last == nil {
		return nil
	}
	report := *e.last
	return &report
}

// ManualCheck runs one pass synchronously through the same path as the schedule.
func (e *RenewalEngine) ManualCheck(ctx context.Context) (*models.RenewalReport, error) {
	return e.Tick(ctx)
}

func (e *RenewalEngine) scheduledTick(ctx context.Context) {
	if _, err := e.Tick(ctx); err != nil {
		e.logger.Error("renewal pass aborted", zap.Error(err))
	}
}

// Tick performs one renewal pass. Only a failed selection query aborts it; every other
// failure is isolated to its subscription or user.
func (e *RenewalEngine) Tick(ctx context.Context) (*models.RenewalReport, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	now := e.now()
	report := &models.RenewalReport{PassID: uuid.NewString(), StartedAt: now}
	log := e.logger.With(zap.String("pass_id", report.PassID))

	report.Expired = e.sweepExpired(ctx, now, log)

	due, err := e.repo.FindExpiringBetween(ctx, now, now.Add(e.config.Lookahead))
	if err != nil {
		report.FinishedAt = e.now()
		return report, persistenceFailure(err, "failed to select subscriptions for renewal")
	}
	report.Selected = len(due)

	groups := groupByUser(due)
	outcomes := make([]renewalOutcome, len(groups))

	var g errgroup.Group
	g.SetLimit(e.config.Concurrency)
	for i := range groups {
		i := i
		g.Go(func() error {
			outcomes[i] = e.renewUser(ctx, groups[i], now, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		report.Renewed += o.renewed
		report.Failed += o.failed
		report.Removed += o.removed
	}
	report.FinishedAt = e.now()

	e.metrics.RecordRenewal("renewed", report.Renewed)
	e.metrics.RecordRenewal("failed", report.Failed)
	e.metrics.RecordRenewal("removed", report.Removed)
	e.metrics.RecordRenewal("expired", report.Expired)
	e.metrics.ObserveRenewalPass(report.Duration())

	e.lastMu.Lock()
	e.last = report
	e.lastMu.Unlock()

	log.Info("renewal pass finished",
		zap.Int("selected", report.Selected),
		zap.Int("renewed", report.Renewed),
		zap.Int("failed", report.Failed),
		zap.Int("removed", report.Removed),
		zap.Int("expired", report.Expired),
		zap.Duration("duration", report.Duration()),
	)
	return report, nil
}

type userBatch struct {
	userID string
	subs   []models.Subscription
}

type renewalOutcome struct {
	renewed int
	failed  int
	removed int
}

func groupByUser(subs []models.Subscription) []userBatch {
	index := make(map[string]int)
	var batches []userBatch
	for _, sub := range subs {
		i, ok := index[sub.UserID]
		if !ok {
			i = len(batches)
			index[sub.UserID] = i
			batches = append(batches, userBatch{userID: sub.UserID})
		}
		batches[i].subs = append(batches[i].subs, sub)
	}
	return batches
}

// renewUser handles one user's subscriptions sequentially under the user's lock, so a token
// refresh is stored before any renewal call is made with it.
func (e *RenewalEngine) renewUser(ctx context.Context, batch userBatch, now time.Time, log *zap.Logger) renewalOutcome {
	var out renewalOutcome
	unlock := e.locks.Lock(batch.userID)
	defer unlock()

	token, err := e.tokens.GetValidAccessToken(ctx, batch.userID)
	if err != nil {
		log.Warn("skipping user, no valid access token",
			zap.String("user_id", batch.userID),
			zap.Int("subscriptions", len(batch.subs)),
			zap.Error(err),
		)
		out.failed = len(batch.subs)
		return out
	}

	expiration := now.Add(e.config.LeaseDuration)
	for _, sub := range batch.subs {
		fields := []zap.Field{zap.String("subscription_id", sub.SubscriptionID), zap.String("user_id", sub.UserID)}

		updated, err := e.provider.UpdateSubscription(ctx, token, sub.SubscriptionID, expiration)
		if err != nil {
			if graph.IsNotFound(err) {
				if delErr := e.repo.Delete(ctx, sub.SubscriptionID); delErr != nil {
					log.Error("failed to remove subscription unknown to provider", append(fields, zap.Error(delErr))...)
					out.failed++
					continue
				}
				log.Warn("subscription unknown to provider, removed locally", fields...)
				out.removed++
				continue
			}
			log.Warn("subscription renewal failed", append(fields, zap.Bool("transient", graph.IsTransient(err)), zap.Error(err))...)
			out.failed++
			continue
		}

		newExpiration := expiration
		if !updated.ExpirationDateTime.IsZero() {
			newExpiration = updated.ExpirationDateTime
		}
		if err := e.repo.UpdateExpiration(ctx, sub.SubscriptionID, newExpiration); err != nil {
			log.Error("subscription renewed but not stored", append(fields, zap.Error(err))...)
			out.failed++
			continue
		}
		log.Debug("subscription renewed", append(fields, zap.Time("expiration", newExpiration))...)
		out.renewed++
	}
	return out
}

// sweepExpired drops records whose lease lapsed without renewal. They are re-created through
// admission on the user's next interaction.
func (e *RenewalEngine) sweepExpired(ctx context.Context, now time.Time, log *zap.Logger) int {
	dead, err := e.repo.FindExpiredBefore(ctx, now)
	if err != nil {
		log.Warn("failed to list expired subscriptions", zap.Error(err))
		return 0
	}

	removed := 0
	for _, sub := range dead {
		if e.removeIfStillExpired(ctx, sub, now, log) {
			removed++
		}
	}
	return removed
}

func (e *RenewalEngine) removeIfStillExpired(ctx context.Context, sub models.Subscription, now time.Time, log *zap.Logger) bool {
	unlock := e.locks.Lock(sub.UserID)
	defer unlock()

	// Admission may have renewed it since the listing.
	current, err := e.repo.FindByID(ctx, sub.SubscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		log.Warn("failed to reload expired subscription", zap.String("subscription_id", sub.SubscriptionID), zap.Error(err))
		return false
	}
	if !current.ExpiredAt(now) {
		return false
	}
	if err := e.repo.Delete(ctx, sub.SubscriptionID); err != nil {
		log.Warn("failed to delete expired subscription", zap.String("subscription_id", sub.SubscriptionID), zap.Error(err))
		return false
	}
	log.Warn("subscription expired before renewal, removed",
		zap.String("subscription_id", sub.SubscriptionID),
		zap.String("user_id", sub.UserID),
		zap.Time("expired_at", sub.ExpirationDateTime),
	)
	return true
}
