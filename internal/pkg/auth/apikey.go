package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyVerifier validates admin API keys against a bcrypt hash so the
// plaintext key never sits in memory longer than construction.
type APIKeyVerifier struct {
	hash []byte
}

// NewAPIKeyVerifier hashes the configured key for later comparisons.
func NewAPIKeyVerifier(key string) (*APIKeyVerifier, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &APIKeyVerifier{hash: hash}, nil
}

// Verify checks a presented key.
func (v *APIKeyVerifier) Verify(candidate string) error {
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(candidate)); err != nil {
		return ErrInvalidAPIKey
	}
	return nil
}
