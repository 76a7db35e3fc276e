// Package graph talks to the change-notification provider's subscription API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxErrorBody = 64 << 10

// Config configures the provider client.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// Client issues authenticated requests against the provider API.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// NewClient constructs a Client. A nil httpClient falls back to a default client.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.RequestTimeout,
		http:    httpClient,
		logger:  logger,
	}
}

// CreateSubscription registers a new change-notification subscription.
func (c *Client) CreateSubscription(ctx context.Context, accessToken string, req CreateSubscriptionRequest) (*Subscription, error) {
	req.ExpirationDateTime = req.ExpirationDateTime.UTC()
	var out Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", accessToken, req, &out); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return &out, nil
}

// UpdateSubscription extends the lease of an existing subscription.
func (c *Client) UpdateSubscription(ctx context.Context, accessToken, subscriptionID string, expiration time.Time) (*Subscription, error) {
	body := updateSubscriptionRequest{ExpirationDateTime: expiration.UTC()}
	var out Subscription
	if err := c.do(ctx, http.MethodPatch, "/subscriptions/"+url.PathEscape(subscriptionID), accessToken, body, &out); err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", subscriptionID, err)
	}
	if out.ID == "" {
		out.ID = subscriptionID
	}
	if out.ExpirationDateTime.IsZero() {
		out.ExpirationDateTime = body.ExpirationDateTime
	}
	return &out, nil
}

// DeleteSubscription removes a subscription. A subscription the provider no longer knows counts as deleted.
func (c *Client) DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error {
	err := c.do(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(subscriptionID), accessToken, nil, nil)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("delete subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// Me returns the account that owns accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/me", accessToken, nil, &out); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &out, nil
}

// RecentMessages lists the newest top messages of the signed-in mailbox, newest first.
func (c *Client) RecentMessages(ctx context.Context, accessToken string, top int) ([]Message, error) {
	query := url.Values{
		"$select":  {"subject,receivedDateTime,from,isRead"},
		"$top":     {strconv.Itoa(top)},
		"$orderby": {"receivedDateTime desc"},
	}
	var out messagePage
	if err := c.do(ctx, http.MethodGet, "/me/messages?"+query.Encode(), accessToken, nil, &out); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out.Value, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("provider request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	pe := &ProviderError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env errorEnvelope
	if len(raw) > 0 && json.Unmarshal(raw, &env) == nil {
		pe.Code = env.Error.Code
		pe.Message = env.Error.Message
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(resp.StatusCode)
	}
	return pe
}
