// Package secretbox seals OAuth tokens before they reach a token store.
package secretbox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize = chacha20poly1305.KeySize
	version = byte(0x01)
	prefix  = "sb1:"
)

var hkdfInfo = []byte("mail-webhook-renewal.tokens.v1")

// ErrMalformed is returned when a sealed value cannot be decoded.
var ErrMalformed = errors.New("secretbox: malformed sealed value")

// Box encrypts short strings with XChaCha20-Poly1305.
type Box struct {
	key []byte
}

// New parses a 32 byte master key given as base64 or hex and derives the sealing key from it.
func New(masterKey string) (*Box, error) {
	raw, err := decodeKey(strings.TrimSpace(masterKey))
	if err != nil {
		return nil, err
	}

	derived := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, hkdfInfo), derived); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &Box{key: derived}, nil
}

// Seal returns prefix + base64(nonce || ciphertext). Empty input stays empty.
func (b *Box) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plain)+chacha20poly1305.Overhead)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plain), []byte{version})
	return prefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned unchanged so rows
// written before encryption was enabled stay readable.
func (b *Box) Open(sealed string) (string, error) {
	if !IsSealed(sealed) {
		return sealed, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, prefix))
	if err != nil || len(raw) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return "", ErrMalformed
	}

	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}
	nonce, ct := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plain, err := aead.Open(nil, nonce, ct, []byte{version})
	if err != nil {
		return "", fmt.Errorf("secretbox: open: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, prefix)
}

func decodeKey(key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("secretbox: empty key")
	}
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == keySize {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == keySize {
		return b, nil
	}
	if b, err := hex.DecodeString(key); err == nil && len(b) == keySize {
		return b, nil
	}
	return nil, fmt.Errorf("secretbox: key must decode to %d bytes (generate with: openssl rand -base64 32)", keySize)
}
