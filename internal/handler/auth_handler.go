package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/mail-webhook-renewal/internal/dto"
	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	appErrors "github.com/noah-isme/mail-webhook-renewal/pkg/errors"
	"github.com/noah-isme/mail-webhook-renewal/pkg/oauthstate"
	"github.com/noah-isme/mail-webhook-renewal/pkg/response"
)

const stateCookieName = "oauth_state"

type authTokenService interface {
	AuthCodeURL(state string) string
	CompleteLogin(ctx context.Context, code string) (*models.LoginResult, error)
	ClearTokenState(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*models.AuthStatus, error)
}

type sessionIssuer interface {
	Issue(result *models.LoginResult) (string, time.Time, error)
}

type stateSigner interface {
	Generate(returnTo string) (token, nonce string, err error)
	Parse(token string) (oauthstate.State, error)
	TTL() time.Duration
}

// AuthCookieConfig controls the cookies set by the login flow.
type AuthCookieConfig struct {
	SessionCookie string
	Secure        bool
}

// AuthHandler wires the OAuth login flow to the token and session services.
type AuthHandler struct {
	tokens    authTokenService
	sessions  sessionIssuer
	states    stateSigner
	validator *validator.Validate
	cookies   AuthCookieConfig
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(tokens authTokenService, sessions sessionIssuer, states stateSigner, validate *validator.Validate, cookies AuthCookieConfig) *AuthHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &AuthHandler{tokens: tokens, sessions: sessions, states: states, validator: validate, cookies: cookies}
}

// Login godoc
// @Summary Start login
// @Description Redirects to the identity provider with a signed state parameter
// @Tags Authentication
// @Param return_to query string false "Relative path to return to after login"
// @Success 302
// @Failure 500 {object} response.Envelope
// @Router /auth/login [get]
func (h *AuthHandler) Login(c *gin.Context) {
	state, nonce, err := h.states.Generate(safeReturnTo(c.Query("return_to")))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to start login"))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, nonce, int(h.states.TTL().Seconds()), "/auth", "", h.cookies.Secure, true)
	c.Redirect(http.StatusFound, h.tokens.AuthCodeURL(state))
}

// Callback godoc
// @Summary Complete login
// @Description Exchanges the authorization code and issues a session token
// @Tags Authentication
// @Produce json
// @Param code query string true "Authorization code"
// @Param state query string true "Signed state"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/callback [get]
func (h *AuthHandler) Callback(c *gin.Context) {
	var query dto.CallbackQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid callback query"))
		return
	}
	if query.Error != "" {
		response.Error(c, appErrors.WithDetails(appErrors.Clone(appErrors.ErrUnauthorized, "login was not completed"), map[string]string{
			"provider_code":    query.Error,
			"provider_message": query.ErrorDescription,
		}))
		return
	}
	if err := h.validator.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid callback query"))
		return
	}

	state, err := h.states.Parse(query.State)
	if err != nil {
		message := "invalid login state"
		if errors.Is(err, oauthstate.ErrExpired) {
			message = "login state expired, please start again"
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return
	}
	nonce, _ := c.Cookie(stateCookieName)
	if subtle.ConstantTimeCompare([]byte(nonce), []byte(state.Nonce)) != 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "login state does not belong to this browser"))
		return
	}
	c.SetCookie(stateCookieName, "", -1, "/auth", "", h.cookies.Secure, true)

	result, err := h.tokens.CompleteLogin(c.Request.Context(), query.Code)
	if err != nil {
		response.Error(c, err)
		return
	}

	session, expiresAt, err := h.sessions.Issue(result)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to issue session"))
		return
	}
	h.setSessionCookie(c, session, int(time.Until(expiresAt).Seconds()))

	if state.ReturnTo != "" {
		c.Redirect(http.StatusFound, state.ReturnTo)
		return
	}

	res := dto.LoginResponse{
		SessionToken: session,
		ExpiresAt:    expiresAt,
		UserID:       result.UserID,
		DisplayName:  result.DisplayName,
	}
	if result.Token != nil && result.Token.Degraded() {
		res.Degraded = true
		res.Warning = "no refresh token was issued; you will need to log in again when the access token expires"
	}
	response.JSON(c, http.StatusOK, res)
}

// Logout godoc
// @Summary Logout
// @Description Forgets the stored OAuth tokens of the session user
// @Tags Authentication
// @Security SessionAuth
// @Success 204
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := sessionUser(c)
	if userID == "" {
		return
	}
	if err := h.tokens.ClearTokenState(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
		return
	}
	h.setSessionCookie(c, "", -1)
	response.NoContent(c)
}

// Status godoc
// @Summary Authentication status
// @Tags Authentication
// @Security SessionAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/status [get]
func (h *AuthHandler) Status(c *gin.Context) {
	userID := sessionUser(c)
	if userID == "" {
		return
	}
	status, err := h.tokens.Status(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	if h.cookies.SessionCookie == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookies.SessionCookie, value, maxAge, "/", "", h.cookies.Secure, true)
}

// safeReturnTo only allows same-origin relative paths.
func safeReturnTo(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
		return ""
	}
	return raw
}
