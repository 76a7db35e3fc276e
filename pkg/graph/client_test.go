package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, RequestTimeout: time.Second}, srv.Client(), nil)
}

func TestCreateSubscriptionSendsPayload(t *testing.T) {
	exp := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscriptions", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "created", body["changeType"])
		assert.Equal(t, "/me/messages", body["resource"])
		assert.Equal(t, "secret", body["clientState"])
		assert.Equal(t, "2026-10-20T12:00:00Z", body["expirationDateTime"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"sub-1","expirationDateTime":"2026-10-20T12:00:00Z"}`))
	})

	sub, err := client.CreateSubscription(context.Background(), "access", CreateSubscriptionRequest{
		ChangeType:         "created",
		NotificationURL:    "https://example.com/webhook",
		Resource:           "/me/messages",
		ExpirationDateTime: exp,
		ClientState:        "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)
	assert.True(t, exp.Equal(sub.ExpirationDateTime))
}

func TestUpdateSubscriptionNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/subscriptions/sub-1", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"ResourceNotFound","message":"The object was not found."}}`))
	})

	_, err := client.UpdateSubscription(context.Background(), "access", "sub-1", time.Now())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsRejected(err))
	assert.False(t, IsTransient(err))

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "ResourceNotFound", pe.Code)
}

func TestServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.UpdateSubscription(context.Background(), "access", "sub-1", time.Now())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsRejected(err))
}

func TestThrottlingIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Me(context.Background(), "access")
	assert.True(t, IsTransient(err))
}

func TestRequestTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL, RequestTimeout: 20 * time.Millisecond}, srv.Client(), nil)

	_, err := client.UpdateSubscription(context.Background(), "access", "sub-1", time.Now())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestDeleteSubscriptionToleratesNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})

	require.NoError(t, client.DeleteSubscription(context.Background(), "access", "gone"))
}

func TestMeDecodesUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"user-1","displayName":"Ada","mail":"ada@example.com"}`))
	})

	user, err := client.Me(context.Background(), "access")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "ada@example.com", user.Mail)
}

func TestRecentMessagesQueriesNewestFirst(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/me/messages", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "10", q.Get("$top"))
		assert.Equal(t, "receivedDateTime desc", q.Get("$orderby"))
		assert.Equal(t, "subject,receivedDateTime,from,isRead", q.Get("$select"))

		_, _ = w.Write([]byte(`{"value":[
			{"id":"m1","subject":"Invoice","receivedDateTime":"2026-10-17T08:00:00Z","isRead":false,"from":{"emailAddress":{"name":"Billing","address":"billing@example.com"}}},
			{"id":"m2","subject":"No sender","receivedDateTime":"2026-10-16T08:00:00Z","isRead":true}
		]}`))
	})

	msgs, err := client.RecentMessages(context.Background(), "access", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Invoice", msgs[0].Subject)
	require.NotNil(t, msgs[0].From)
	assert.Equal(t, "Billing", msgs[0].From.EmailAddress.Name)
	assert.Nil(t, msgs[1].From)
	assert.True(t, msgs[1].IsRead)
}

func TestRecentMessagesUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"InvalidAuthenticationToken","message":"Access token has expired."}}`))
	})

	_, err := client.RecentMessages(context.Background(), "stale", 5)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "InvalidAuthenticationToken", pe.Code)
}
