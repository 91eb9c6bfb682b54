// Package config loads the server settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lowc1012/tiered-rate-limiter/pkg/ratelimiter"
)

type Config struct {
	ListenAddr      string
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Prefix          string
	Clock           ratelimiter.ClockPolicy
	TrackDailyUsage bool
	MaxUsageDays    int
	FailOpen        bool

	// Tiers come from TiersFile when set, otherwise from the TIERS variable.
	TiersFile string
	Tiers     []ratelimiter.Tier

	Zone       string
	KeyHeader  string
	TierHeader string
	// DefaultTier is used when a request carries no tier header.
	DefaultTier string

	LogLevel       string
	LogDevelopment bool
}

// Load reads a .env file if present, then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var errs []error
	intVar := func(key string, fallback int) int {
		v, err := Int(key, fallback)
		errs = append(errs, err)
		return v
	}
	boolVar := func(key string, fallback bool) bool {
		v, err := Bool(key, fallback)
		errs = append(errs, err)
		return v
	}
	durationVar := func(key string, fallback time.Duration) time.Duration {
		v, err := Duration(key, fallback)
		errs = append(errs, err)
		return v
	}

	clock, err := ratelimiter.ParseClockPolicy(String("RATELIMIT_CLOCK", "store"))
	errs = append(errs, err)

	cfg := &Config{
		ListenAddr:      String("LISTEN_ADDR", "localhost:8080"),
		ShutdownTimeout: durationVar("SHUTDOWN_TIMEOUT", 5*time.Second),
		RedisAddr:       String("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   String("REDIS_PASSWORD", ""),
		RedisDB:         intVar("REDIS_DB", 0),
		Prefix:          String("RATELIMIT_PREFIX", "ratelimit"),
		Clock:           clock,
		TrackDailyUsage: boolVar("RATELIMIT_TRACK_DAILY_USAGE", false),
		MaxUsageDays:    intVar("RATELIMIT_MAX_USAGE_DAYS", ratelimiter.DefaultMaxUsageDays),
		FailOpen:        boolVar("RATELIMIT_FAIL_OPEN", false),
		TiersFile:       String("TIERS_FILE", ""),
		Zone:            String("RATELIMIT_ZONE", "api"),
		KeyHeader:       String("RATELIMIT_KEY_HEADER", "X-Api-Key"),
		TierHeader:      String("RATELIMIT_TIER_HEADER", "X-Ratelimit-Tier"),
		DefaultTier:     String("RATELIMIT_DEFAULT_TIER", ""),
		LogLevel:        String("LOG_LEVEL", "info"),
		LogDevelopment:  boolVar("LOG_DEVELOPMENT", false),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.TiersFile != "" {
		cfg.Tiers, err = LoadTiersFile(cfg.TiersFile)
	} else {
		cfg.Tiers, err = ParseTiers(String("TIERS", ""))
	}
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return errors.New("listen address is empty")
	case c.RedisAddr == "":
		return errors.New("redis address is empty")
	case c.RedisDB < 0:
		return fmt.Errorf("redis db must be >= 0, got %d", c.RedisDB)
	case c.MaxUsageDays < 0:
		return fmt.Errorf("max usage days must be >= 0, got %d", c.MaxUsageDays)
	case c.Zone == "":
		return errors.New("rate limit zone is empty")
	case c.KeyHeader == "":
		return errors.New("rate limit key header is empty")
	case len(c.Tiers) == 0:
		return errors.New("no tiers configured")
	}

	seen := make(map[string]bool, len(c.Tiers))
	for _, t := range c.Tiers {
		if seen[t.Name] {
			return fmt.Errorf("duplicate tier %q", t.Name)
		}
		seen[t.Name] = true
	}
	if c.DefaultTier != "" && !seen[c.DefaultTier] {
		return fmt.Errorf("default tier %q is not configured", c.DefaultTier)
	}
	return nil
}

// String returns the value of the environment variable key, or fallback when unset or blank.
func String(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Int parses the environment variable key, returning fallback when it is unset.
func Int(key string, fallback int) (int, error) {
	raw := String(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v, nil
}

func Bool(key string, fallback bool) (bool, error) {
	raw := String(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	return v, nil
}

func Duration(key string, fallback time.Duration) (time.Duration, error) {
	raw := String(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return v, nil
}
