package model

import "time"

// IdempotencyStatus tracks replay-cache record progress.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusSuccess    IdempotencyStatus = "success"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

// IdempotencyRecord memoizes the outcome of an externally triggered operation
// keyed by a caller-supplied token.
type IdempotencyRecord struct {
	Key                string
	RequestFingerprint string
	ResponsePayload    []byte
	Status             IdempotencyStatus
	CreatedAt          time.Time
	CompletedAt        *time.Time
	ExpiresAt          time.Time
}
