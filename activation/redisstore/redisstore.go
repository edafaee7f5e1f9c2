// Package redisstore persists activation state in a Redis hash so several
// application nodes serving the same tenant share one module configuration.
package redisstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zero-day-ai/modulekit/activation"
)

// Options configures the Redis connection. Zero values take defaults:
// redis://localhost:6379, prefix "modulekit", 5s to connect and 3s per
// read or write.
type Options struct {
	URL string

	// KeyPrefix namespaces the activation hash: "<prefix>:activation".
	KeyPrefix string

	// TLS overrides any TLS settings implied by a rediss:// URL.
	TLS *tls.Config

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Store implements activation.Store on top of go-redis/v9.
type Store struct {
	client *redis.Client
	key    string
}

var _ activation.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with a PING.
func New(opts Options) (*Store, error) {
	withDefaults(&opts)

	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	if opts.TLS != nil {
		ro.TLSConfig = opts.TLS
	}
	ro.DialTimeout, ro.ReadTimeout, ro.WriteTimeout = opts.ConnectTimeout, opts.ReadTimeout, opts.WriteTimeout

	client := redis.NewClient(ro)
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", ro.Addr, err)
	}

	return &Store{client: client, key: opts.KeyPrefix + ":activation"}, nil
}

func withDefaults(o *Options) {
	if o.URL == "" {
		o.URL = "redis://localhost:6379"
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = "modulekit"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 3 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
}

// Key returns the Redis key holding the activation hash.
func (s *Store) Key() string { return s.key }

// Load reads the activation hash. A missing key means nothing was persisted.
func (s *Store) Load(ctx context.Context) (activation.State, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load activation state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := make(activation.State, len(fields))
	for id, raw := range fields {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid activation flag for %s: %q", id, raw)
		}
		state[id] = enabled
	}
	return state, nil
}

// Save replaces the whole hash inside one MULTI/EXEC transaction so other
// nodes never read a mix of the old and new state.
func (s *Store) Save(ctx context.Context, state activation.State) error {
	values := make(map[string]any, len(state))
	for id, enabled := range state {
		values[id] = strconv.FormatBool(enabled)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save activation state: %w", err)
	}
	return nil
}

// Ping checks connectivity; health checks use it.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
