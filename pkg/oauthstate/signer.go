// Package oauthstate issues and verifies the signed state parameter used in the login redirect.
package oauthstate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidFormat    = errors.New("oauth state: invalid format")
	ErrInvalidSignature = errors.New("oauth state: invalid signature")
	ErrExpired          = errors.New("oauth state: expired")
)

// Signer creates and validates state tokens of the form nonce.expiry.returnTo.signature.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner constructs a signer with the provided secret and TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// State is the decoded content of a verified token.
type State struct {
	Nonce     string
	ReturnTo  string
	ExpiresAt time.Time
}

// Generate returns a signed state token. The nonce is also returned so the caller can bind it
// to the browser, usually through a short-lived cookie.
func (s *Signer) Generate(returnTo string) (token, nonce string, err error) {
	if len(s.secret) == 0 {
		return "", "", fmt.Errorf("oauth state: signing secret missing")
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("oauth state: nonce: %w", err)
	}
	nonce = hex.EncodeToString(buf)
	expiresAt := s.now().Add(s.ttl).Unix()
	encodedReturn := base64.RawURLEncoding.EncodeToString([]byte(returnTo))

	payload := strings.Join([]string{nonce, strconv.FormatInt(expiresAt, 10), encodedReturn}, ".")
	return payload + "." + s.sign(payload), nonce, nil
}

// Parse verifies the signature and expiry of token.
func (s *Signer) Parse(token string) (State, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return State{}, ErrInvalidFormat
	}

	payload := strings.Join(parts[:3], ".")
	if !hmac.Equal([]byte(s.sign(payload)), []byte(parts[3])) {
		return State{}, ErrInvalidSignature
	}

	expUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return State{}, ErrInvalidFormat
	}
	returnTo, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return State{}, ErrInvalidFormat
	}

	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return State{}, ErrExpired
	}
	return State{Nonce: parts[0], ReturnTo: string(returnTo), ExpiresAt: expiresAt}, nil
}

// TTL is how long a generated state stays valid.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
