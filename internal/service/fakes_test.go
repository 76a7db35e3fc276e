package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	"github.com/noah-isme/mail-webhook-renewal/internal/repository"
	"github.com/noah-isme/mail-webhook-renewal/pkg/graph"
	"github.com/noah-isme/mail-webhook-renewal/pkg/oauth"
)

type fakeTokenStore struct {
	mu       sync.Mutex
	states   map[string]models.TokenState
	getErr   error
	setErr   error
	cleared  []string
	setCalls int
}

func newFakeTokenStore(states ...models.TokenState) *fakeTokenStore {
	s := &fakeTokenStore{states: map[string]models.TokenState{}}
	for _, st := range states {
		s.states[st.UserID] = st
	}
	return s
}

func (s *fakeTokenStore) Get(ctx context.Context, userID string) (*models.TokenState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	st, ok := s.states[userID]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	return &st, nil
}

func (s *fakeTokenStore) Set(ctx context.Context, state *models.TokenState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	s.states[state.UserID] = *state
	return nil
}

func (s *fakeTokenStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	s.cleared = append(s.cleared, userID)
	return nil
}

func (s *fakeTokenStore) get(userID string) (models.TokenState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	return st, ok
}

type fakeExchanger struct {
	mu           sync.Mutex
	refreshResp  *oauth.TokenResponse
	refreshErr   error
	exchangeResp *oauth.TokenResponse
	exchangeErr  error
	refreshCalls int
	delay        time.Duration
}

func (f *fakeExchanger) AuthCodeURL(state string) string {
	return "https://login.example.com/authorize?state=" + state
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (*oauth.TokenResponse, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.exchangeResp, nil
}

func (f *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (*oauth.TokenResponse, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshResp, nil
}

func (f *fakeExchanger) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

type fakeProfiles struct {
	user *graph.User
	err  error
}

func (f *fakeProfiles) Me(ctx context.Context, accessToken string) (*graph.User, error) {
	return f.user, f.err
}

// fakeTokens is an accessTokenProvider with per-user tokens or errors.
type fakeTokens struct {
	mu     sync.Mutex
	tokens map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: map[string]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeTokens) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[userID]++
	if err, ok := f.errs[userID]; ok {
		return "", err
	}
	if tok, ok := f.tokens[userID]; ok {
		return tok, nil
	}
	return "token-" + userID, nil
}

type providerCall struct {
	Method         string
	SubscriptionID string
	Token          string
	Expiration     time.Time
}

type fakeProvider struct {
	mu        sync.Mutex
	calls     []providerCall
	updateErr map[string]error
	createErr error
	deleteErr error
	createdID string
	// clamp, when set, is returned as the provider-side expiration on update.
	clamp time.Time
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{updateErr: map[string]error{}, createdID: "sub-new"}
}

func (f *fakeProvider) CreateSubscription(ctx context.Context, accessToken string, req graph.CreateSubscriptionRequest) (*graph.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, providerCall{Method: "POST", Token: accessToken, Expiration: req.ExpirationDateTime})
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &graph.Subscription{ID: f.createdID, ExpirationDateTime: req.ExpirationDateTime, Resource: req.Resource, ChangeType: req.ChangeType}, nil
}

func (f *fakeProvider) UpdateSubscription(ctx context.Context, accessToken, subscriptionID string, expiration time.Time) (*graph.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, providerCall{Method: "PATCH", SubscriptionID: subscriptionID, Token: accessToken, Expiration: expiration})
	if err, ok := f.updateErr[subscriptionID]; ok {
		return nil, err
	}
	if !f.clamp.IsZero() {
		return &graph.Subscription{ID: subscriptionID, ExpirationDateTime: f.clamp}, nil
	}
	return &graph.Subscription{ID: subscriptionID, ExpirationDateTime: expiration}, nil
}

func (f *fakeProvider) DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, providerCall{Method: "DELETE", SubscriptionID: subscriptionID, Token: accessToken})
	return f.deleteErr
}

func (f *fakeProvider) snapshot() []providerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]providerCall(nil), f.calls...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Method != out[j].Method {
			return out[i].Method < out[j].Method
		}
		return out[i].SubscriptionID < out[j].SubscriptionID
	})
	return out
}

func (f *fakeProvider) count(method string) int {
	n := 0
	for _, c := range f.snapshot() {
		if c.Method == method {
			n++
		}
	}
	return n
}

type fakeSubscriptionRepo struct {
	mu        sync.Mutex
	subs      map[string]models.Subscription
	selectErr error
	updateErr error
	createErr error
	findErr   error
	writes    int
}

func newFakeSubscriptionRepo(subs ...models.Subscription) *fakeSubscriptionRepo {
	r := &fakeSubscriptionRepo{subs: map[string]models.Subscription{}}
	for _, s := range subs {
		r.subs[s.SubscriptionID] = s
	}
	return r
}

func (r *fakeSubscriptionRepo) Create(ctx context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.writes++
	r.subs[sub.SubscriptionID] = *sub
	return nil
}

func (r *fakeSubscriptionRepo) FindByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.UserID == userID {
			s := s
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeSubscriptionRepo) FindByID(ctx context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	s, ok := r.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (r *fakeSubscriptionRepo) FindExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selectErr != nil {
		return nil, r.selectErr
	}
	var out []models.Subscription
	for _, s := range r.subs {
		if !s.ExpirationDateTime.Before(from) && !s.ExpirationDateTime.After(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriptionID < out[j].SubscriptionID })
	return out, nil
}

func (r *fakeSubscriptionRepo) FindExpiredBefore(ctx context.Context, t time.Time) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, s := range r.subs {
		if s.ExpirationDateTime.Before(t) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriptionID < out[j].SubscriptionID })
	return out, nil
}

func (r *fakeSubscriptionRepo) UpdateExpiration(ctx context.Context, id string, expiration time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	s, ok := r.subs[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.writes++
	s.ExpirationDateTime = expiration
	r.subs[id] = s
	return nil
}

func (r *fakeSubscriptionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	delete(r.subs, id)
	return nil
}

func (r *fakeSubscriptionRepo) List(ctx context.Context) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpirationDateTime.Before(out[j].ExpirationDateTime) })
	return out, nil
}

func (r *fakeSubscriptionRepo) get(id string) (models.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	return s, ok
}

func (r *fakeSubscriptionRepo) countForUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.subs {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

func (r *fakeSubscriptionRepo) clone() *fakeSubscriptionRepo {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := newFakeSubscriptionRepo()
	for k, v := range r.subs {
		c.subs[k] = v
	}
	return c
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
