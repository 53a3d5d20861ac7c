package model

import "time"

// OrderLock is a short-TTL mutual exclusion record for one order.
type OrderLock struct {
	ID         int64
	OrderID    int64
	LockKey    string
	HolderID   string
	AcquiredAt time.Time
	ExpiresAt  time.Time
	ReleasedAt *time.Time
}

// Expired reports whether the lock TTL has passed at the given instant.
func (l OrderLock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
