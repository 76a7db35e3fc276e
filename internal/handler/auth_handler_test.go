package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mail-webhook-renewal/internal/middleware"
	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	appErrors "github.com/noah-isme/mail-webhook-renewal/pkg/errors"
	"github.com/noah-isme/mail-webhook-renewal/pkg/oauthstate"
)

type authTokenServiceMock struct {
	result   *models.LoginResult
	loginErr error
	cleared  []string
	code     string
}

func (m *authTokenServiceMock) AuthCodeURL(state string) string {
	return "https://login.example.com/authorize?state=" + url.QueryEscape(state)
}

func (m *authTokenServiceMock) CompleteLogin(ctx context.Context, code string) (*models.LoginResult, error) {
	m.code = code
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.result, nil
}

func (m *authTokenServiceMock) ClearTokenState(ctx context.Context, userID string) error {
	m.cleared = append(m.cleared, userID)
	return nil
}

func (m *authTokenServiceMock) Status(ctx context.Context, userID string) (*models.AuthStatus, error) {
	return &models.AuthStatus{Authenticated: true, UserID: userID}, nil
}

type sessionIssuerMock struct{}

func (sessionIssuerMock) Issue(result *models.LoginResult) (string, time.Time, error) {
	return "session-" + result.UserID, time.Now().Add(time.Hour), nil
}

func newAuthHandler(tokens *authTokenServiceMock) (*AuthHandler, *oauthstate.Signer) {
	signer := oauthstate.NewSigner("state-secret", time.Minute)
	return NewAuthHandler(tokens, sessionIssuerMock{}, signer, nil, AuthCookieConfig{SessionCookie: "session"}), signer
}

func TestAuthLoginRedirectsWithSignedState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, signer := newAuthHandler(&authTokenServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/login?return_to=/dashboard", nil)

	handler.Login(c)
	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state, err := signer.Parse(location.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", state.ReturnTo)
	assert.Contains(t, w.Header().Get("Set-Cookie"), stateCookieName+"="+state.Nonce)
}

func TestAuthCallbackIssuesSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := &authTokenServiceMock{result: &models.LoginResult{UserID: "u1", DisplayName: "Ada", Token: &models.TokenState{UserID: "u1"}}}
	handler, signer := newAuthHandler(tokens)
	state, nonce, err := signer.Generate("")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(state), nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: nonce})
	c.Request = req

	handler.Callback(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", tokens.code)

	var body struct {
		Data struct {
			SessionToken string `json:"session_token"`
			UserID       string `json:"user_id"`
			Degraded     bool   `json:"degraded"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "session-u1", body.Data.SessionToken)
	assert.True(t, body.Data.Degraded)
	assert.True(t, strings.Contains(strings.Join(w.Header().Values("Set-Cookie"), ";"), "session=session-u1"))
}

func TestAuthCallbackRejectsForeignState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := &authTokenServiceMock{}
	handler, signer := newAuthHandler(tokens)
	state, _, err := signer.Generate("")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(state), nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "someone-else"})
	c.Request = req

	handler.Callback(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, tokens.code)
}

func TestAuthCallbackProviderError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAuthHandler(&authTokenServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied&error_description=user+cancelled", nil)

	handler.Callback(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "access_denied")
}

func TestAuthCallbackLoginFailureSurfacesError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := &authTokenServiceMock{loginErr: appErrors.Clone(appErrors.ErrTransientNetwork, "token endpoint unavailable")}
	handler, signer := newAuthHandler(tokens)
	state, nonce, _ := signer.Generate("")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(state), nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: nonce})
	c.Request = req

	handler.Callback(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthLogoutClearsTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := &authTokenServiceMock{}
	handler, _ := newAuthHandler(tokens)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	c.Set(middleware.ContextUserKey, &models.SessionClaims{UserID: "u1"})

	handler.Logout(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"u1"}, tokens.cleared)
}

func TestAuthStatusRequiresSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAuthHandler(&authTokenServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/status", nil)

	handler.Status(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSafeReturnTo(t *testing.T) {
	assert.Equal(t, "/x?y=1", safeReturnTo("/x?y=1"))
	assert.Empty(t, safeReturnTo("https://evil.example.com"))
	assert.Empty(t, safeReturnTo("//evil.example.com"))
	assert.Empty(t, safeReturnTo("/\\evil.example.com"))
}
