package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/mail-webhook-renewal/internal/dto"
	"github.com/noah-isme/mail-webhook-renewal/internal/handler"
	"github.com/noah-isme/mail-webhook-renewal/internal/middleware"
	"github.com/noah-isme/mail-webhook-renewal/pkg/cache"
	"github.com/noah-isme/mail-webhook-renewal/pkg/config"
	"github.com/noah-isme/mail-webhook-renewal/pkg/logger"
	corsmiddleware "github.com/noah-isme/mail-webhook-renewal/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mail-webhook-renewal/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

func serve(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	a, err := newApp(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer a.close()

	// Background work outlives request contexts but not the process signal.
	a.notifications.Start(ctx)
	defer a.notifications.Stop()
	if cfg.Renewal.Enabled {
		a.engine.Start(ctx)
		defer a.engine.Stop()
	} else {
		logr.Info("renewal engine disabled, use POST /internal/renewal/run or renew-once")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func newRouter(a *app) *gin.Engine {
	cfg := a.cfg
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics, "/metrics"))

	checks := []handler.ReadinessCheck{{Name: "database", Check: a.db.PingContext}}
	if a.redis != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return cache.Ping(ctx, a.redis)
		}})
	}
	metricsHandler := handler.NewMetricsHandler(a.metrics, checks...)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	session := middleware.Session(a.sessions, cfg.Session.CookieName)

	authHandler := handler.NewAuthHandler(a.tokens, a.sessions, a.states, a.validator, handler.AuthCookieConfig{
		SessionCookie: cfg.Session.CookieName,
		Secure:        cfg.Env == config.EnvProduction,
	})
	auth := r.Group("/auth")
	auth.GET("/login", authHandler.Login)
	auth.GET("/callback", authHandler.Callback)
	auth.POST("/logout", session, authHandler.Logout)
	auth.GET("/status", session, authHandler.Status)

	subscriptionHandler := handler.NewSubscriptionHandler(a.subscriptions)
	api := r.Group("/api/v1", session)
	api.POST("/subscriptions", subscriptionHandler.Ensure)
	api.GET("/subscriptions", subscriptionHandler.Get)
	api.DELETE("/subscriptions", subscriptionHandler.Delete)

	messageHandler := handler.NewMessageHandler(a.mail)
	api.GET("/messages", messageHandler.List)

	webhookHandler := handler.NewWebhookHandler(a.webhooks, dto.WebhookReadiness{
		NotificationURL: cfg.Provider.NotificationURL,
		Resource:        cfg.Provider.Resource,
	})
	r.GET("/webhook", webhookHandler.Handle)
	r.POST("/webhook", webhookHandler.Handle)

	renewalHandler := handler.NewRenewalHandler(a.engine)
	internal := r.Group("/internal/renewal", session)
	internal.POST("/run", renewalHandler.Run)
	internal.GET("/status", renewalHandler.Status)

	return r
}
