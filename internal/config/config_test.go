package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) envLookup {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil, lookupFrom(map[string]string{
		"DATABASE_URI": "postgres://localhost/ordersync",
	}))
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.RunAddress != defaultRunAddress {
		t.Fatalf("unexpected run address %q", cfg.RunAddress)
	}
	if cfg.LockTTL != defaultLockTTL || cfg.LockRetries != defaultLockRetries {
		t.Fatalf("unexpected lock defaults: %v / %d", cfg.LockTTL, cfg.LockRetries)
	}
	if cfg.OutboxMaxRetries != 3 {
		t.Fatalf("unexpected retry budget %d", cfg.OutboxMaxRetries)
	}
	if cfg.CoalescingWindow != 2*time.Minute {
		t.Fatalf("unexpected coalescing window %v", cfg.CoalescingWindow)
	}
}

func TestLoadMissingDatabaseURI(t *testing.T) {
	if _, err := load(nil, lookupFrom(nil)); err == nil {
		t.Fatal("expected error without DATABASE_URI")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := load(nil, lookupFrom(map[string]string{
		"DATABASE_URI":       "postgres://localhost/ordersync",
		"RUN_ADDRESS":        ":9090",
		"OUTBOX_WORKERS":     "8",
		"LOCK_TTL":           "45s",
		"NOTIFY_DAILY_LIMIT": "100",
	}))
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.RunAddress != ":9090" {
		t.Fatalf("env run address not applied: %q", cfg.RunAddress)
	}
	if cfg.OutboxWorkers != 8 {
		t.Fatalf("env worker count not applied: %d", cfg.OutboxWorkers)
	}
	if cfg.LockTTL != 45*time.Second {
		t.Fatalf("env lock ttl not applied: %v", cfg.LockTTL)
	}
	if cfg.NotifyDailyLimit != 100 {
		t.Fatalf("env daily limit not applied: %d", cfg.NotifyDailyLimit)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	cfg, err := load([]string{
		"-a", ":7070",
		"-outbox-workers", "2",
		"-lock-ttl", "10s",
		"-poll-interval", "500ms",
	}, lookupFrom(map[string]string{
		"DATABASE_URI": "postgres://localhost/ordersync",
		"RUN_ADDRESS":  ":9090",
	}))
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.RunAddress != ":7070" {
		t.Fatalf("flag run address not applied: %q", cfg.RunAddress)
	}
	if cfg.OutboxWorkers != 2 {
		t.Fatalf("flag worker count not applied: %d", cfg.OutboxWorkers)
	}
	if cfg.LockTTL != 10*time.Second {
		t.Fatalf("flag lock ttl not applied: %v", cfg.LockTTL)
	}
	if cfg.OutboxPollInterval != 500*time.Millisecond {
		t.Fatalf("flag poll interval not applied: %v", cfg.OutboxPollInterval)
	}
}

func TestLoadWebhookSecretFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("s3cr3t\n"), 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}

	cfg, err := load(nil, lookupFrom(map[string]string{
		"DATABASE_URI":        "postgres://localhost/ordersync",
		"WEBHOOK_SECRET_FILE": path,
	}))
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.WebhookSecret != "s3cr3t" {
		t.Fatalf("secret file not applied: %q", cfg.WebhookSecret)
	}
}
