// Package oauth wraps golang.org/x/oauth2 for the authorization-code and refresh grants.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/noah-isme/mail-webhook-renewal/pkg/config"
)

// TokenResponse is the provider-neutral outcome of a token grant.
// RefreshToken is empty and ExpiresIn zero when the provider omitted them.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// GrantError is a token endpoint rejection (invalid_grant, invalid_client, ...).
type GrantError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *GrantError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint rejected grant: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("token endpoint rejected grant: %s (status %d)", e.Code, e.StatusCode)
}

// Exchanger performs token grants against one OAuth client registration.
type Exchanger struct {
	cfg        *oauth2.Config
	httpClient *http.Client
}

// NewExchanger builds an Exchanger. httpClient may be nil.
func NewExchanger(cfg config.OAuthConfig, httpClient *http.Client) *Exchanger {
	return &Exchanger{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the provider authorize URL carrying state.
func (e *Exchanger) AuthCodeURL(state string) string {
	return e.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("response_mode", "query"),
	)
}

// Exchange trades an authorization code for tokens.
func (e *Exchanger) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	tok, err := e.cfg.Exchange(e.withClient(ctx), code)
	if err != nil {
		return nil, translate(err)
	}
	return toResponse(tok), nil
}

// Refresh redeems a refresh token for a new access token. The grant is posted from the oauth2
// config directly because the oauth2 token refresher does not send the scope parameter.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, &GrantError{Code: "invalid_request", Description: "refresh token missing"}
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {e.cfg.ClientID},
	}
	if e.cfg.ClientSecret != "" {
		form.Set("client_secret", e.cfg.ClientSecret)
	}
	if len(e.cfg.Scopes) > 0 {
		form.Set("scope", strings.Join(e.cfg.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := e.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxTokenBody))
	if err != nil {
		return nil, fmt.Errorf("token endpoint unreachable: %w", err)
	}
	payload, decodeErr := decodeGrant(res.Header.Get("Content-Type"), body)

	if res.StatusCode < 200 || res.StatusCode > 299 || payload.Error != "" {
		ge := &GrantError{StatusCode: res.StatusCode, Code: payload.Error, Description: payload.ErrorDescription}
		if ge.Code == "" {
			ge.Code = "invalid_grant"
		}
		return nil, ge
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode token response: %w", decodeErr)
	}
	if payload.AccessToken == "" {
		return nil, errors.New("token endpoint response missing access_token")
	}
	return payload.toResponse(), nil
}

const maxTokenBody = 1 << 20

type grantPayload struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"refresh_token"`
	ExpiresIn        json.Number `json:"expires_in"`
	Error            string      `json:"error"`
	ErrorDescription string      `json:"error_description"`
}

func decodeGrant(contentType string, body []byte) (grantPayload, error) {
	var p grantPayload
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "text/plain" {
		vals, err := url.ParseQuery(string(body))
		if err != nil {
			return p, err
		}
		p.AccessToken = vals.Get("access_token")
		p.RefreshToken = vals.Get("refresh_token")
		p.ExpiresIn = json.Number(vals.Get("expires_in"))
		p.Error = vals.Get("error")
		p.ErrorDescription = vals.Get("error_description")
		return p, nil
	}
	err := json.Unmarshal(body, &p)
	return p, err
}

func (p grantPayload) toResponse() *TokenResponse {
	resp := &TokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
	if n, err := p.ExpiresIn.Int64(); err == nil && n > 0 {
		resp.ExpiresIn = time.Duration(n) * time.Second
	}
	return resp
}

func (e *Exchanger) client() *http.Client {
	if e.httpClient == nil {
		return http.DefaultClient
	}
	return e.httpClient
}

func (e *Exchanger) withClient(ctx context.Context) context.Context {
	if e.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

// toResponse reads refresh_token and expires_in from the raw body so omitted fields stay visible.
func toResponse(tok *oauth2.Token) *TokenResponse {
	resp := &TokenResponse{AccessToken: tok.AccessToken}
	if rt, ok := tok.Extra("refresh_token").(string); ok {
		resp.RefreshToken = rt
	}
	resp.ExpiresIn = expiresIn(tok)
	return resp
}

func expiresIn(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}

func translate(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		ge := &GrantError{Code: re.ErrorCode, Description: re.ErrorDescription}
		if re.Response != nil {
			ge.StatusCode = re.Response.StatusCode
		}
		if ge.Code == "" {
			ge.Code = "invalid_grant"
		}
		return ge
	}
	return fmt.Errorf("token endpoint unreachable: %w", err)
}

// IsGrantError reports whether err is a token endpoint rejection rather than a transport failure.
func IsGrantError(err error) bool {
	var ge *GrantError
	return errors.As(err, &ge)
}
