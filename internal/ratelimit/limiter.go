// Package ratelimit provides Redis-backed rate limiting using the INCR + EXPIRE
// fixed window algorithm. The form service uses it to throttle step
// submissions per client address.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/formflow/form-app/internal/metrics"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:submit:")
	Limit  int           // max count in the window; 0 disables the rule
	Window time.Duration // time window
}

// RuleSubmit is the default policy for form submissions: 30 per minute per
// client address.
var RuleSubmit = Rule{Key: "rl:submit:", Limit: 30, Window: 1 * time.Minute}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client  *redis.Client
	log     logrus.FieldLogger
	timeout time.Duration
}

// DefaultTimeout bounds each check made by Middleware.
const DefaultTimeout = 3 * time.Second

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client, log logrus.FieldLogger) *Limiter {
	return &Limiter{
		client:  client,
		log:     log.WithField("component", "ratelimit"),
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets the bound on each Redis check made by Middleware.
// Non-positive values keep the current bound.
func (l *Limiter) WithTimeout(d time.Duration) *Limiter {
	if d > 0 {
		l.timeout = d
	}
	return l
}

// Allow checks whether the given identifier is within the rate limit defined by
// rule. It increments the counter in Redis and sets the expiry on first access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does not
// block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	if rule.Limit <= 0 {
		return true, nil
	}
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.WithError(err).WithField("key", key).Warn("redis INCR failed, failing open")
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.log.WithError(err).WithField("key", key).Warn("redis EXPIRE failed, failing open")
			// A key without TTL would block the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	if int(count) > rule.Limit {
		return false, nil
	}
	return true, nil
}

// Middleware rejects requests with 429 once the client address exceeds rule.
// It expects chi's RealIP middleware to have normalised RemoteAddr.
func (l *Limiter) Middleware(rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := clientAddr(r)
			ctx, cancel := context.WithTimeout(r.Context(), l.timeout)
			ok, _ := l.Allow(ctx, id, rule)
			cancel()
			if !ok {
				metrics.RateLimited.Inc()
				l.log.WithField("client", id).WithField("path", r.URL.Path).Info("submission rate limited")
				w.Header().Set("Retry-After", retryAfter(rule.Window))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func retryAfter(window time.Duration) string {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
