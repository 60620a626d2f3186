// Package redis provides a Redis-backed read model store for projections.
//
// Each projection's read model lives in one Redis hash: the field is the
// projection key and the value is the JSON-encoded view. A rebuild clears
// the hash with a single DEL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	academic "github.com/songifi/LMS-Backend-sub004"
)

// DefaultKeyPrefix namespaces the hashes written by this package.
const DefaultKeyPrefix = "academic:readmodel:"

// Config holds Redis connection configuration.
type Config struct {
	// Addr is the Redis server address in "host:port" form.
	Addr string

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number.
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration
}

// DefaultConfig returns a configuration for a local server.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		PoolSize:    10,
		DialTimeout: 5 * time.Second,
	}
}

// NewClient opens a client and checks the connection with PING.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("academic/redis: failed to connect to %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Option configures a Store.
type Option func(*options)

type options struct {
	keyPrefix string
}

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// Store is an academic.ReadModelStore over a Redis hash.
type Store[T any] struct {
	client redis.UniversalClient
	hash   string
}

var _ academic.ReadModelStore[academic.EnrollmentView] = (*Store[academic.EnrollmentView])(nil)

// NewStore creates a store for the read model called name, usually the
// projection name.
func NewStore[T any](client redis.UniversalClient, name string, opts ...Option) *Store[T] {
	o := options{keyPrefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{client: client, hash: o.keyPrefix + name}
}

// Key returns the Redis key of the hash holding the read model.
func (s *Store[T]) Key() string {
	return s.hash
}

// Get implements academic.ReadModelStore.
func (s *Store[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	data, err := s.client.HGet(ctx, s.hash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("academic/redis: failed to get %q: %w", key, err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false, fmt.Errorf("academic/redis: failed to decode %q: %w", key, err)
	}
	return value, true, nil
}

// Upsert implements academic.ReadModelStore.
func (s *Store[T]) Upsert(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("academic/redis: failed to encode %q: %w", key, err)
	}
	if err := s.client.HSet(ctx, s.hash, key, data).Err(); err != nil {
		return fmt.Errorf("academic/redis: failed to upsert %q: %w", key, err)
	}
	return nil
}

// Delete implements academic.ReadModelStore.
func (s *Store[T]) Delete(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.hash, key).Err(); err != nil {
		return fmt.Errorf("academic/redis: failed to delete %q: %w", key, err)
	}
	return nil
}

// List implements academic.ReadModelStore. It walks the hash with HSCAN,
// matching only fields that start with prefix.
func (s *Store[T]) List(ctx context.Context, prefix string) ([]T, error) {
	entries := make(map[string]string)
	iter := s.client.HScan(ctx, s.hash, 0, matchPrefix(prefix), scanCount).Iterator()
	for iter.Next(ctx) {
		field := iter.Val()
		if !iter.Next(ctx) {
			break
		}
		if strings.HasPrefix(field, prefix) {
			entries[field] = iter.Val()
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("academic/redis: failed to list %q: %w", prefix, err)
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		var value T
		if err := json.Unmarshal([]byte(entries[k]), &value); err != nil {
			return nil, fmt.Errorf("academic/redis: failed to decode %q: %w", k, err)
		}
		out = append(out, value)
	}
	return out, nil
}

// scanCount is the COUNT hint for each HSCAN round trip.
const scanCount = 256

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// matchPrefix turns prefix into a MATCH pattern that treats it literally.
func matchPrefix(prefix string) string {
	return globEscaper.Replace(prefix) + "*"
}

// Clear implements academic.ReadModelStore.
func (s *Store[T]) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.hash).Err(); err != nil {
		return fmt.Errorf("academic/redis: failed to clear %s: %w", s.hash, err)
	}
	return nil
}
