package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/mail-webhook-renewal/internal/repository"
	"github.com/noah-isme/mail-webhook-renewal/internal/service"
	"github.com/noah-isme/mail-webhook-renewal/pkg/cache"
	"github.com/noah-isme/mail-webhook-renewal/pkg/config"
	"github.com/noah-isme/mail-webhook-renewal/pkg/database"
	"github.com/noah-isme/mail-webhook-renewal/pkg/graph"
	"github.com/noah-isme/mail-webhook-renewal/pkg/jobs"
	"github.com/noah-isme/mail-webhook-renewal/pkg/oauth"
	"github.com/noah-isme/mail-webhook-renewal/pkg/oauthstate"
	"github.com/noah-isme/mail-webhook-renewal/pkg/secretbox"
)

// app holds the wired service graph shared by serve and renew-once.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *sqlx.DB
	redis *redis.Client

	metrics       *service.MetricsService
	tokens        *service.TokenService
	sessions      *service.SessionService
	subscriptions *service.SubscriptionService
	mail          *service.MailService
	engine        *service.RenewalEngine
	webhooks      *service.WebhookService
	notifications *jobs.Queue
	states        *oauthstate.Signer
	validator     *validator.Validate
}

func newApp(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logr, validator: validator.New()}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.db = db
	if err := database.Migrate(ctx, db.DB); err != nil {
		a.close()
		return nil, err
	}

	store, err := a.tokenStore()
	if err != nil {
		a.close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.Provider.RequestTimeout}
	graphClient := graph.NewClient(graph.Config{BaseURL: cfg.Provider.BaseURL, RequestTimeout: cfg.Provider.RequestTimeout}, httpClient, logr.Named("graph"))
	exchanger := oauth.NewExchanger(cfg.OAuth, httpClient)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	// Admission and renewal must serialize on the same per-user locks.
	userLocks := service.NewKeyedMutex()

	a.metrics = service.NewMetricsService()
	a.tokens = service.NewTokenService(store, exchanger, graphClient, a.metrics, logr.Named("tokens"), service.TokenConfig{
		RefreshBuffer: cfg.Tokens.RefreshBuffer,
	})
	a.sessions = service.NewSessionService(service.SessionConfig{
		Secret: cfg.Session.Secret,
		TTL:    cfg.Session.TTL,
		Issuer: cfg.Session.Issuer,
	})
	a.subscriptions = service.NewSubscriptionService(subscriptionRepo, a.tokens, graphClient, userLocks, a.metrics, logr.Named("admission"), service.SubscriptionConfig{
		Resource:        cfg.Provider.Resource,
		ChangeType:      cfg.Provider.ChangeType,
		NotificationURL: cfg.Provider.NotificationURL,
		ClientState:     cfg.Provider.ClientState,
		LeaseDuration:   cfg.Renewal.LeaseDuration,
	})
	a.mail = service.NewMailService(a.tokens, graphClient, logr.Named("mail"))
	a.engine = service.NewRenewalEngine(subscriptionRepo, a.tokens, graphClient, userLocks, a.metrics, logr.Named("renewal"), service.RenewalConfig{
		Interval:      cfg.Renewal.Interval,
		Lookahead:     cfg.Renewal.Lookahead,
		LeaseDuration: cfg.Renewal.LeaseDuration,
		Concurrency:   cfg.Renewal.Concurrency,
	})

	a.webhooks = service.NewWebhookService(cfg.Provider.ClientState, subscriptionRepo, a.validator, a.metrics, logr.Named("webhook"))
	a.notifications = jobs.NewQueue("change-notifications", a.webhooks.Process, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: 2,
		Logger:     logr.Named("notifications"),
	})
	a.webhooks.UseQueue(a.notifications)

	a.states = oauthstate.NewSigner(cfg.OAuth.StateSecret, cfg.OAuth.StateTTL)
	return a, nil
}

func (a *app) tokenStore() (service.TokenStore, error) {
	var sealer repository.TokenSealer
	if a.cfg.Tokens.EncryptionKey != "" {
		box, err := secretbox.New(a.cfg.Tokens.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY: %w", err)
		}
		sealer = box
	} else if a.cfg.Env == config.EnvProduction && a.cfg.Tokens.Backend != config.TokenStoreMemory {
		a.logger.Warn("TOKEN_ENCRYPTION_KEY not set, OAuth tokens are stored in plain text")
	}

	switch a.cfg.Tokens.Backend {
	case config.TokenStoreRedis:
		client, err := cache.NewRedis(a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		return repository.NewRedisTokenStore(client, a.cfg.Tokens.RedisTTL, sealer), nil
	case config.TokenStoreMemory:
		a.logger.Warn("using in-memory token store, users must log in again after a restart")
		return repository.NewMemoryTokenStore(0), nil
	default:
		return repository.NewTokenRepository(a.db, sealer), nil
	}
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
