package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application level configuration loaded from environment and flags.
type Config struct {
	RunAddress            string
	DatabaseURI           string
	AMQPAddress           string
	ConsentServiceAddress string
	WebhookSecret         string
	AdminAPIKey           string

	LockTTL        time.Duration
	LockRetries    int
	LockRetryDelay time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxWorkers      int
	OutboxMaxRetries   int
	OutboxBackoffBase  time.Duration
	OutboxBackoffCap   time.Duration
	SendTimeout        time.Duration
	CoalescingWindow   time.Duration
	NotifyHourlyLimit  int
	NotifyDailyLimit   int

	ReconcileInterval  time.Duration
	ReconcileBatchSize int
	IdempotencyTTL     time.Duration

	ShutdownTimeout time.Duration
}

const (
	defaultRunAddress         = ":8080"
	defaultWebhookSecret      = "change-me-in-production"
	defaultAdminAPIKey        = "change-me-in-production"
	defaultLockTTL            = 30 * time.Second
	defaultLockRetries        = 3
	defaultLockRetryDelay     = 150 * time.Millisecond
	defaultOutboxPollInterval = 2 * time.Second
	defaultOutboxBatchSize    = 32
	defaultOutboxWorkers      = 4
	defaultOutboxMaxRetries   = 3
	defaultOutboxBackoffBase  = 30 * time.Second
	defaultOutboxBackoffCap   = 15 * time.Minute
	defaultSendTimeout        = 10 * time.Second
	defaultCoalescingWindow   = 2 * time.Minute
	defaultNotifyHourlyLimit  = 10
	defaultNotifyDailyLimit   = 40
	defaultReconcileInterval  = time.Minute
	defaultReconcileBatch     = 64
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultShutdownTimeout    = 10 * time.Second
)

// Load parses configuration from flags and environment variables.
func Load() (*Config, error) {
	return load(os.Args[1:], os.LookupEnv)
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	cfg := &Config{
		RunAddress:            getString(lookup, "RUN_ADDRESS", defaultRunAddress),
		DatabaseURI:           getString(lookup, "DATABASE_URI", ""),
		AMQPAddress:           getString(lookup, "AMQP_ADDRESS", ""),
		ConsentServiceAddress: getString(lookup, "CONSENT_SERVICE_ADDRESS", ""),
		WebhookSecret:         getString(lookup, "WEBHOOK_SECRET", defaultWebhookSecret),
		AdminAPIKey:           getString(lookup, "ADMIN_API_KEY", defaultAdminAPIKey),
		LockTTL:               getDuration(lookup, "LOCK_TTL", defaultLockTTL),
		LockRetries:           getInt(lookup, "LOCK_RETRIES", defaultLockRetries),
		LockRetryDelay:        getDuration(lookup, "LOCK_RETRY_DELAY", defaultLockRetryDelay),
		OutboxPollInterval:    getDuration(lookup, "OUTBOX_POLL_INTERVAL", defaultOutboxPollInterval),
		OutboxBatchSize:       getInt(lookup, "OUTBOX_BATCH_SIZE", defaultOutboxBatchSize),
		OutboxWorkers:         getInt(lookup, "OUTBOX_WORKERS", defaultOutboxWorkers),
		OutboxMaxRetries:      getInt(lookup, "OUTBOX_MAX_RETRIES", defaultOutboxMaxRetries),
		OutboxBackoffBase:     getDuration(lookup, "OUTBOX_BACKOFF_BASE", defaultOutboxBackoffBase),
		OutboxBackoffCap:      getDuration(lookup, "OUTBOX_BACKOFF_CAP", defaultOutboxBackoffCap),
		SendTimeout:           getDuration(lookup, "SEND_TIMEOUT", defaultSendTimeout),
		CoalescingWindow:      getDuration(lookup, "COALESCE_WINDOW", defaultCoalescingWindow),
		NotifyHourlyLimit:     getInt(lookup, "NOTIFY_HOURLY_LIMIT", defaultNotifyHourlyLimit),
		NotifyDailyLimit:      getInt(lookup, "NOTIFY_DAILY_LIMIT", defaultNotifyDailyLimit),
		ReconcileInterval:     getDuration(lookup, "RECONCILE_INTERVAL", defaultReconcileInterval),
		ReconcileBatchSize:    getInt(lookup, "RECONCILE_BATCH_SIZE", defaultReconcileBatch),
		IdempotencyTTL:        getDuration(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		ShutdownTimeout:       getDuration(lookup, "SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}

	fs := flag.NewFlagSet("ordersync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		pollIntervalStr    = cfg.OutboxPollInterval.String()
		lockTTLStr         = cfg.LockTTL.String()
		shutdownTimeoutStr = cfg.ShutdownTimeout.String()
	)

	fs.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "HTTP server listen address")
	fs.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN")
	fs.StringVar(&cfg.AMQPAddress, "amqp", cfg.AMQPAddress, "AMQP broker URL for the notification sender")
	fs.StringVar(&cfg.ConsentServiceAddress, "consent", cfg.ConsentServiceAddress, "Consent/suppression service base URL")
	fs.StringVar(&cfg.WebhookSecret, "webhook-secret", cfg.WebhookSecret, "Secret for gateway webhook signatures")
	fs.IntVar(&cfg.OutboxWorkers, "outbox-workers", cfg.OutboxWorkers, "Number of concurrent outbox workers")
	fs.IntVar(&cfg.OutboxBatchSize, "outbox-batch", cfg.OutboxBatchSize, "Maximum outbox entries per polling batch")
	fs.IntVar(&cfg.OutboxMaxRetries, "outbox-retries", cfg.OutboxMaxRetries, "Delivery attempts before dead-lettering")
	fs.StringVar(&pollIntervalStr, "poll-interval", pollIntervalStr, "Interval between outbox polls")
	fs.StringVar(&lockTTLStr, "lock-ttl", lockTTLStr, "Order lock time to live")
	fs.StringVar(&shutdownTimeoutStr, "shutdown-timeout", shutdownTimeoutStr, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	var err error

	if cfg.OutboxPollInterval, err = time.ParseDuration(pollIntervalStr); err != nil {
		return nil, fmt.Errorf("invalid poll interval: %w", err)
	}

	if cfg.LockTTL, err = time.ParseDuration(lockTTLStr); err != nil {
		return nil, fmt.Errorf("invalid lock ttl: %w", err)
	}

	if cfg.ShutdownTimeout, err = time.ParseDuration(shutdownTimeoutStr); err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	if secretFile, ok := lookup("WEBHOOK_SECRET_FILE"); ok && secretFile != "" {
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("read webhook secret file: %w", err)
		}
		cfg.WebhookSecret = strings.TrimSpace(string(content))
	}

	if cfg.OutboxWorkers <= 0 {
		cfg.OutboxWorkers = defaultOutboxWorkers
	}

	if cfg.OutboxBatchSize <= 0 {
		cfg.OutboxBatchSize = defaultOutboxBatchSize
	}

	if cfg.OutboxMaxRetries <= 0 {
		cfg.OutboxMaxRetries = defaultOutboxMaxRetries
	}

	if cfg.OutboxPollInterval <= 0 {
		cfg.OutboxPollInterval = defaultOutboxPollInterval
	}

	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	if cfg.LockRetries <= 0 {
		cfg.LockRetries = defaultLockRetries
	}

	if cfg.CoalescingWindow <= 0 {
		cfg.CoalescingWindow = defaultCoalescingWindow
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI must be provided")
	}

	return cfg, nil
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, key string, def int) int {
	if v, ok := lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(lookup envLookup, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
