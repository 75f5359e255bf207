package cryptoutil

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements ports.PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, clamped to bcrypt's valid range.
func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost: max(bcrypt.MinCost, min(cost, bcrypt.MaxCost))}
}

// Hash returns the bcrypt hash of password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(b), nil
}

// Compare returns nil when password matches hash.
func (h *BcryptHasher) Compare(hash, password string) error {
	if hash == "" {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// RandomToken returns n random bytes encoded as URL-safe base64 without padding.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("token length must be positive")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenDigester derives the storage key for a bearer token so raw tokens never reach the store.
type TokenDigester struct {
	key []byte
}

// NewTokenDigester constructs a digester keyed by secret.
func NewTokenDigester(secret string) (*TokenDigester, error) {
	if secret == "" {
		return nil, errors.New("token digest secret is required")
	}
	return &TokenDigester{key: []byte(secret)}, nil
}

// Digest returns the hex HMAC-SHA256 of token.
func (d *TokenDigester) Digest(token string) string {
	mac := hmac.New(sha256.New, d.key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

const tempPasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// TempPassword returns a random password of length n drawn from an unambiguous alphabet.
func TempPassword(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("password length must be positive")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = tempPasswordAlphabet[int(b[i])%len(tempPasswordAlphabet)]
	}
	return string(b), nil
}
