package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	domainErrors "github.com/avoray/ordersync/internal/domain/errors"
	testhelpers "github.com/avoray/ordersync/internal/test"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestLockManagerAcquireRelease(t *testing.T) {
	repo := testhelpers.NewLockRepositoryStub()
	m := NewLockManager(repo, 30*time.Second, 3, time.Millisecond, discardLogger())

	holder, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire returned error: %v", err)
	}
	if holder == "" {
		t.Fatal("expected holder id")
	}

	if err := m.Release(context.Background(), 1, holder); err != nil {
		t.Fatalf("release returned error: %v", err)
	}
}

func TestLockManagerBusyAfterRetries(t *testing.T) {
	repo := testhelpers.NewLockRepositoryStub()
	m := NewLockManager(repo, 30*time.Second, 3, time.Millisecond, discardLogger())

	if _, err := m.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if _, err := m.Acquire(context.Background(), 1); !errors.Is(err, domainErrors.ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy, got %v", err)
	}
}

func TestLockManagerAcquireAfterExpiry(t *testing.T) {
	repo := testhelpers.NewLockRepositoryStub()
	now := time.Now()
	repo.Now = func() time.Time { return now }
	m := NewLockManager(repo, time.Second, 1, time.Millisecond, discardLogger())

	holder, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// TTL lapses; a new holder takes over and the stale one cannot release.
	now = now.Add(2 * time.Second)
	if _, err := m.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire after expiry failed: %v", err)
	}
	if err := m.Release(context.Background(), 1, holder); !errors.Is(err, domainErrors.ErrLockExpired) {
		t.Fatalf("expected ErrLockExpired for stale holder, got %v", err)
	}
}

func TestLockManagerWithLockReleases(t *testing.T) {
	repo := testhelpers.NewLockRepositoryStub()
	m := NewLockManager(repo, 30*time.Second, 1, time.Millisecond, discardLogger())

	err := m.WithLock(context.Background(), 5, func(ctx context.Context) error {
		if _, err := repo.Get(ctx, 5); err != nil {
			t.Fatalf("expected active lock inside callback: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock returned error: %v", err)
	}

	if _, err := repo.Get(context.Background(), 5); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected lock released, got %v", err)
	}
}

func TestLockManagerWithLockPropagatesError(t *testing.T) {
	repo := testhelpers.NewLockRepositoryStub()
	m := NewLockManager(repo, 30*time.Second, 1, time.Millisecond, discardLogger())

	boom := errors.New("boom")
	if err := m.WithLock(context.Background(), 5, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if _, err := repo.Get(context.Background(), 5); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatal("expected lock released after callback error")
	}
}

func TestLockManagerReapExpired(t *testing.T) {
	repo := testhelpers.NewLockRepositoryStub()
	now := time.Now()
	repo.Now = func() time.Time { return now }
	m := NewLockManager(repo, time.Second, 1, time.Millisecond, discardLogger())

	if _, err := m.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	now = now.Add(2 * time.Second)

	reaped, err := m.ReapExpired(context.Background())
	if err != nil {
		t.Fatalf("reap returned error: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("expected 1 reaped lock, got %d", reaped)
	}
}
