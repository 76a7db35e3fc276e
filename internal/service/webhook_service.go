package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	appErrors "github.com/noah-isme/mail-webhook-renewal/pkg/errors"
	"github.com/noah-isme/mail-webhook-renewal/pkg/jobs"
)

// JobTypeChangeNotification tags queued notifications.
const JobTypeChangeNotification = "change_notification"

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

type notificationSubscriptions interface {
	FindByID(ctx context.Context, id string) (*models.Subscription, error)
}

// WebhookService validates inbound change notifications and hands accepted ones to a worker queue.
type WebhookService struct {
	clientState string
	subs        notificationSubscriptions
	queue       notificationQueue
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewWebhookService constructs a WebhookService. The queue can be attached later with UseQueue.
func NewWebhookService(clientState string, subs notificationSubscriptions, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &WebhookService{clientState: clientState, subs: subs, validator: validate, metrics: metrics, logger: logger}
}

// UseQueue attaches the queue accepted notifications are pushed to.
func (s *WebhookService) UseQueue(queue notificationQueue) {
	s.queue = queue
}

// Accept filters a delivery by clientState and enqueues the genuine notifications.
func (s *WebhookService) Accept(ctx context.Context, batch *models.NotificationBatch) (*models.NotificationIntake, error) {
	if batch == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "notification body missing")
	}
	if err := s.validator.Struct(batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}

	intake := &models.NotificationIntake{Received: len(batch.Value)}
	for _, n := range batch.Value {
		if !s.clientStateMatches(n.ClientState) {
			intake.Rejected++
			s.metrics.RecordNotification("rejected")
			s.logger.Warn("discarding notification with mismatched client state", zap.String("subscription_id", n.SubscriptionID))
			continue
		}
		if err := s.validator.Struct(n); err != nil {
			intake.Rejected++
			s.metrics.RecordNotification("invalid")
			s.logger.Warn("discarding malformed notification", zap.String("subscription_id", n.SubscriptionID), zap.Error(err))
			continue
		}

		job := jobs.Job{ID: uuid.NewString(), Type: JobTypeChangeNotification, Payload: n}
		if s.queue == nil {
			intake.Dropped++
			s.metrics.RecordNotification("dropped")
			continue
		}
		if err := s.queue.TryEnqueue(job); err != nil {
			intake.Dropped++
			s.metrics.RecordNotification("dropped")
			s.logger.Error("notification dropped", zap.String("subscription_id", n.SubscriptionID), zap.Error(err))
			continue
		}
		intake.Accepted++
		s.metrics.RecordNotification("accepted")
	}
	return intake, nil
}

// Process is the queue handler for accepted notifications.
func (s *WebhookService) Process(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.ChangeNotification)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}

	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("subscription_id", n.SubscriptionID),
		zap.String("change_type", n.ChangeType),
		zap.String("resource", n.Resource),
	}
	if s.subs != nil && n.SubscriptionID != "" {
		sub, err := s.subs.FindByID(ctx, n.SubscriptionID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			s.metrics.RecordNotification("unknown_subscription")
			s.logger.Warn("notification for untracked subscription", fields...)
			return nil
		case err != nil:
			return fmt.Errorf("lookup subscription %s: %w", n.SubscriptionID, err)
		default:
			fields = append(fields, zap.String("user_id", sub.UserID))
		}
	}

	s.metrics.RecordNotification("processed")
	s.logger.Info("change notification received", fields...)
	return nil
}

func (s *WebhookService) clientStateMatches(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.clientState)) == 1
}
