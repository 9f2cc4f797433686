package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "form:session:"

	// DefaultTTL is used when a Store is created with a non-positive TTL.
	DefaultTTL = 1 * time.Hour

	// Field names written by the form flow.
	FieldName = "name"
	FieldAge  = "age"

	scanCount = 100
)

// Session is the typed view of a stored field mapping.
type Session struct {
	ID   string
	Name string
	Age  string
}

// FromFields builds a Session from the mapping returned by GetFields.
func FromFields(id string, fields map[string]string) Session {
	return Session{ID: id, Name: fields[FieldName], Age: fields[FieldAge]}
}

// Store manages session hashes in Redis. It is safe for concurrent use; the
// underlying client owns a connection pool.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a session store from the given Redis options and verifies
// the connection. Context deadlines are always honoured by the client.
func NewStore(opts *redis.Options, ttl time.Duration) (*Store, error) {
	opts.ContextTimeoutEnabled = true
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return NewStoreWithClient(client, ttl), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func key(id string) string {
	return SessionPrefix + id
}

// SetField sets one field on the session, creating it if absent, and
// refreshes its TTL.
func (s *Store) SetField(ctx context.Context, id, field, value string) error {
	k := key(id)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, k, field, value)
	pipe.Expire(ctx, k, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: set %s.%s: %w", k, field, err)
	}
	return nil
}

// GetFields returns every field of the session. A missing session yields an
// empty map and a nil error.
func (s *Store) GetFields(ctx context.Context, id string) (map[string]string, error) {
	k := key(id)
	fields, err := s.client.HGetAll(ctx, k).Result()
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", k, err)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	return fields, nil
}

// Delete removes a single session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	k := key(id)
	if err := s.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", k, err)
	}
	return nil
}

// ListAll returns every stored session keyed by id. Sessions that expire
// between the scan and the read are skipped. Intended for diagnostics only.
func (s *Store) ListAll(ctx context.Context) (map[string]map[string]string, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out[strings.TrimPrefix(keys[i], SessionPrefix)] = fields
	}
	return out, nil
}

// ClearAll deletes every session and returns how many keys were removed.
func (s *Store) ClearAll(ctx context.Context) (int, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(keys); start += scanCount {
		end := min(start+scanCount, len(keys))
		n, err := s.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("session: clear: %w", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// scanKeys collects every session key with SCAN so large keyspaces never
// block Redis the way KEYS would.
func (s *Store) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, SessionPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("session: scan: %w", err)
	}
	return keys, nil
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Ping checks connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
