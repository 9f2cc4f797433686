// Package config loads the form service configuration from the environment,
// optionally seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Reset scopes for the name step.
const (
	ResetScopeSession = "session" // delete only the caller's session
	ResetScopeAll     = "all"     // legacy: wipe every session
)

// Config holds every tunable of the form service.
type Config struct {
	Port             string
	RedisURL         string
	RedisPoolSize    int           // 0 lets go-redis pick its default
	SessionTTL       time.Duration // refreshed on every write
	StoreTimeout     time.Duration // per store call
	ResetScope       string        // session | all
	NATSURL          string        // empty disables flow events
	LogLevel         string
	LogFormat        string // text | json
	CookieSecure     bool
	DebugEndpoints   bool
	SubmitRateLimit  int // 0 disables
	SubmitRateWindow time.Duration
	ShutdownTimeout  time.Duration
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		Port:             "3000",
		RedisURL:         "redis://localhost:6379",
		SessionTTL:       1 * time.Hour,
		StoreTimeout:     3 * time.Second,
		// RESET_SCOPE=all restores the legacy wipe of every session on GET /form.
		ResetScope:       ResetScopeSession,
		LogLevel:         "info",
		LogFormat:        "text",
		SubmitRateLimit:  30,
		SubmitRateWindow: 1 * time.Minute,
		ShutdownTimeout:  10 * time.Second,
	}
}

// ListenAddr is the address the HTTP server binds to.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from Default, overriding every field whose
// variable is non-empty according to getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				errs = append(errs, fmt.Errorf("%s: invalid non-negative integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				errs = append(errs, fmt.Errorf("%s: invalid positive duration %q", key, v))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}

	str("PORT", &c.Port)
	str("REDIS_URL", &c.RedisURL)
	num("REDIS_POOL_SIZE", &c.RedisPoolSize)
	dur("SESSION_TTL", &c.SessionTTL)
	dur("STORE_TIMEOUT", &c.StoreTimeout)
	str("RESET_SCOPE", &c.ResetScope)
	str("NATS_URL", &c.NATSURL)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	flag("COOKIE_SECURE", &c.CookieSecure)
	flag("DEBUG_ENDPOINTS", &c.DebugEndpoints)
	num("SUBMIT_RATE_LIMIT", &c.SubmitRateLimit)
	dur("SUBMIT_RATE_WINDOW", &c.SubmitRateWindow)
	dur("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)

	if c.ResetScope != ResetScopeSession && c.ResetScope != ResetScopeAll {
		errs = append(errs, fmt.Errorf("RESET_SCOPE: must be %q or %q, got %q", ResetScopeSession, ResetScopeAll, c.ResetScope))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: must be \"text\" or \"json\", got %q", c.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}
