package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// HMACVerifier checks gateway webhook payload signatures using HMAC-SHA256.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier builds HMACVerifier with the shared gateway secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Sign computes the hex signature for payload.
func (v *HMACVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify validates the presented signature against the payload.
func (v *HMACVerifier) Verify(payload []byte, signature string) error {
	expected := v.Sign(payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
