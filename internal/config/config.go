package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env           string // dev, prod
	HTTPPort      string // default 8080
	PostgresDSN   string // required
	RedisURL      string // redis:// or rediss://, wins over the split fields
	RedisAddr     string // host:port
	RedisUsername string
	RedisPassword string
	LogLevel      string

	HoldTTL            time.Duration // how long a HOLD reserves its range
	PendingApprovalTTL time.Duration // upper bound for a PENDING_APPROVAL decision
	ProposalTTL        time.Duration // how long a patient has to answer a proposed time

	LockTTL  time.Duration // how long a Redis doctor lock lives
	LockWait time.Duration // how long a caller waits for a held doctor lock

	ShutdownTimeout   time.Duration
	SweepInterval     time.Duration // expiry sweeper cadence
	ReminderInterval  time.Duration // reminder scheduler cadence
	ReminderLead      time.Duration // how far ahead reminders target
	ReminderTolerance time.Duration // half-width of the reminder window
	NotifyInterval    time.Duration // notifier gateway poll cadence
	NotifyBatchSize   int

	BookingRateLimit  int           // HOLD attempts per patient per window
	BookingRateWindow time.Duration // rate limit window

	JWTSecret        string
	CORSOrigins      []string
	KafkaBrokers     []string
	KafkaTopic       string
	CancelNoticeMode string // warn, reject
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:                getEnv("APP_ENV", "dev"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HoldTTL:            getDuration("HOLD_TTL", 10*time.Minute),
		PendingApprovalTTL: getDuration("PENDING_APPROVAL_TTL", 24*time.Hour),
		ProposalTTL:        getDuration("PROPOSAL_TTL", 2*time.Hour),
		LockTTL:            getDuration("LOCK_TTL", 5*time.Second),
		LockWait:           getDuration("LOCK_WAIT", 3*time.Second),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		SweepInterval:      getDuration("SWEEP_INTERVAL", 2*time.Minute),
		ReminderInterval:   getDuration("REMINDER_INTERVAL", 30*time.Minute),
		ReminderLead:       getDuration("REMINDER_LEAD", 24*time.Hour),
		ReminderTolerance:  getDuration("REMINDER_TOLERANCE", 30*time.Minute),
		NotifyInterval:     getDuration("NOTIFY_INTERVAL", 15*time.Second),
		NotifyBatchSize:    getInt("NOTIFY_BATCH_SIZE", 100),
		BookingRateLimit:   getInt("BOOKING_RATE_LIMIT", 10),
		BookingRateWindow:  getDuration("BOOKING_RATE_WINDOW", time.Minute),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		CORSOrigins:        getList("CORS_ORIGINS", []string{"*"}),
		KafkaBrokers:       getList("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "clinic.notifications"),
		CancelNoticeMode:   strings.ToLower(getEnv("CANCEL_NOTICE_MODE", "warn")),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, errors.New("POSTGRES_DSN is required")
	}
	if cfg.JWTSecret == "" && !cfg.IsDev() {
		return Config{}, errors.New("JWT_SECRET is required outside dev")
	}
	if cfg.CancelNoticeMode != "warn" && cfg.CancelNoticeMode != "reject" {
		return Config{}, fmt.Errorf("CANCEL_NOTICE_MODE must be warn or reject, got %q", cfg.CancelNoticeMode)
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "127.0.0.1:6379")
	cfg.RedisUsername = getEnv("REDIS_USERNAME", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")

	return cfg, nil
}

func (c Config) IsDev() bool {
	return c.Env == "dev"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		fmt.Fprintf(os.Stderr, "invalid duration for %s=%q, using default %s\n", key, v, def)
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		fmt.Fprintf(os.Stderr, "invalid integer for %s=%q, using default %d\n", key, v, def)
	}
	return def
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
