package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
)

const subscriptionColumns = `subscription_id, user_id, resource, change_type, expiration_date_time, created_at, updated_at`

// SubscriptionRepository persists subscription records keyed by the provider-issued id.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository creates a new instance of SubscriptionRepository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create inserts a new subscription record.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.ExpirationDateTime = sub.ExpirationDateTime.UTC()

	const query = `INSERT INTO subscriptions (subscription_id, user_id, resource, change_type, expiration_date_time, created_at, updated_at)
VALUES (:subscription_id, :user_id, :resource, :change_type, :expiration_date_time, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// FindByUser returns the subscription owned by userID. sql.ErrNoRows when there is none.
func (r *SubscriptionRepository) FindByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY expiration_date_time DESC LIMIT 1`
	var sub models.Subscription
	if err := r.db.GetContext(ctx, &sub, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find subscription by user: %w", err)
	}
	return &sub, nil
}

// FindByID returns a subscription by provider id.
func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE subscription_id = $1 LIMIT 1`
	var sub models.Subscription
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find subscription by id: %w", err)
	}
	return &sub, nil
}

// FindExpiringBetween returns subscriptions whose lease ends inside [from, to].
func (r *SubscriptionRepository) FindExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE expiration_date_time >= $1 AND expiration_date_time <= $2 ORDER BY user_id, expiration_date_time`
	var subs []models.Subscription
	if err := r.db.SelectContext(ctx, &subs, query, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("find expiring subscriptions: %w", err)
	}
	return subs, nil
}

// FindExpiredBefore returns subscriptions whose lease already ended before t.
func (r *SubscriptionRepository) FindExpiredBefore(ctx context.Context, t time.Time) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE expiration_date_time < $1 ORDER BY expiration_date_time`
	var subs []models.Subscription
	if err := r.db.SelectContext(ctx, &subs, query, t.UTC()); err != nil {
		return nil, fmt.Errorf("find expired subscriptions: %w", err)
	}
	return subs, nil
}

// UpdateExpiration moves the stored lease of a subscription.
func (r *SubscriptionRepository) UpdateExpiration(ctx context.Context, id string, expiration time.Time) error {
	const query = `UPDATE subscriptions SET expiration_date_time = $2, updated_at = $3 WHERE subscription_id = $1`
	res, err := r.db.ExecContext(ctx, query, id, expiration.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update subscription expiration: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a subscription record. Deleting a missing record is not an error.
func (r *SubscriptionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM subscriptions WHERE subscription_id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// List returns every stored subscription ordered by expiration.
func (r *SubscriptionRepository) List(ctx context.Context) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY expiration_date_time`
	var subs []models.Subscription
	if err := r.db.SelectContext(ctx, &subs, query); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}
