package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "mwallet"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultSnapshotEvery   = 24 * time.Hour
	defaultArchiveEvery    = 7 * 24 * time.Hour
	defaultArchiveAge      = 90 * 24 * time.Hour
	defaultJobLockTTL      = 15 * time.Minute
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// HoldSufficiency enables the transfer-layer pre-check that rejects
	// debits exceeding available balance. Off by default: a hold may drive
	// the available balance negative transiently, and the zero-sum gate at
	// settle time remains the correctness backstop either way.
	HoldSufficiency bool

	// SnapshotInterval is how often the batch runner migrates completed
	// rows from the active tier to the warm tier.
	SnapshotInterval time.Duration
	// ArchiveInterval is how often the batch runner attempts warm-to-cold
	// consolidation.
	ArchiveInterval time.Duration
	// ArchiveAge is the minimum age a warm row must reach before it is
	// eligible for consolidation.
	ArchiveAge time.Duration
	// JobLockTTL bounds how long a crashed batch run keeps a wallet locked.
	JobLockTTL time.Duration

	// OpsTokenHash is the bcrypt hash of the bearer token protecting the
	// ops endpoints. Empty disables them.
	OpsTokenHash string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
		SnapshotInterval: defaultSnapshotEvery,
		ArchiveInterval:  defaultArchiveEvery,
		ArchiveAge:       defaultArchiveAge,
		JobLockTTL:       defaultJobLockTTL,
		OpsTokenHash:     os.Getenv("OPS_TOKEN_HASH"),
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	if v := os.Getenv("HOLD_SUFFICIENCY"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid HOLD_SUFFICIENCY: %w", err)
		}
		cfg.HoldSufficiency = enabled
	}

	for _, entry := range []struct {
		name string
		dst  *time.Duration
	}{
		{"SNAPSHOT_INTERVAL", &cfg.SnapshotInterval},
		{"ARCHIVE_INTERVAL", &cfg.ArchiveInterval},
		{"ARCHIVE_AGE", &cfg.ArchiveAge},
		{"JOB_LOCK_TTL", &cfg.JobLockTTL},
	} {
		if v := os.Getenv(entry.name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", entry.name, err)
			}
			*entry.dst = d
		}
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment, where
// Postgres and Redis may be absent and in-memory backends are used instead.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
