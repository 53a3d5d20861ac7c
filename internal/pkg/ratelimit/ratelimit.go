package ratelimit

import (
	"strings"
	"sync"
	"time"
)

const (
	minReputation  = 0.25
	reputationStep = 0.1
)

// Limiter enforces tiered fixed-window send quotas per recipient domain (or
// full number for phone recipients). A rolling reputation score shrinks the
// effective quota of domains with recent delivery failures.
type Limiter struct {
	mu          sync.Mutex
	hourlyLimit int
	dailyLimit  int
	buckets     map[string]*bucket
	now         func() time.Time
}

type bucket struct {
	hourStart  time.Time
	hourCount  int
	dayStart   time.Time
	dayCount   int
	reputation float64
}

// New constructs a Limiter with per-domain hourly and daily quotas.
func New(hourlyLimit, dailyLimit int) *Limiter {
	return &Limiter{
		hourlyLimit: hourlyLimit,
		dailyLimit:  dailyLimit,
		buckets:     make(map[string]*bucket),
		now:         time.Now,
	}
}

// Allow consumes one send slot for the recipient's domain. False means a
// window quota is exhausted; the caller must fail fast without retrying.
func (l *Limiter) Allow(recipient string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucket(recipient)
	l.roll(b)

	hourly := scaled(l.hourlyLimit, b.reputation)
	daily := scaled(l.dailyLimit, b.reputation)
	if b.hourCount >= hourly || b.dayCount >= daily {
		return false
	}
	b.hourCount++
	b.dayCount++
	return true
}

// ReportFailure lowers the domain's reputation, shrinking its quota.
func (l *Limiter) ReportFailure(recipient string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucket(recipient)
	b.reputation -= reputationStep
	if b.reputation < minReputation {
		b.reputation = minReputation
	}
}

// ReportSuccess recovers the domain's reputation toward full quota.
func (l *Limiter) ReportSuccess(recipient string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucket(recipient)
	b.reputation += reputationStep / 2
	if b.reputation > 1 {
		b.reputation = 1
	}
}

func (l *Limiter) bucket(recipient string) *bucket {
	key := Domain(recipient)
	b, ok := l.buckets[key]
	if !ok {
		now := l.now()
		b = &bucket{
			hourStart:  now.Truncate(time.Hour),
			dayStart:   now.Truncate(24 * time.Hour),
			reputation: 1,
		}
		l.buckets[key] = b
	}
	return b
}

// roll resets counters whose fixed window has passed.
func (l *Limiter) roll(b *bucket) {
	now := l.now()
	if hour := now.Truncate(time.Hour); hour.After(b.hourStart) {
		b.hourStart = hour
		b.hourCount = 0
	}
	if day := now.Truncate(24 * time.Hour); day.After(b.dayStart) {
		b.dayStart = day
		b.dayCount = 0
	}
}

// Domain extracts the quota key: the mail domain for email recipients, the
// whole value for phone numbers.
func Domain(recipient string) string {
	if at := strings.LastIndex(recipient, "@"); at >= 0 {
		return strings.ToLower(recipient[at+1:])
	}
	return recipient
}

func scaled(limit int, reputation float64) int {
	s := int(float64(limit) * reputation)
	if s < 1 {
		s = 1
	}
	return s
}
