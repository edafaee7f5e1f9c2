// Package etcdstore persists activation state in etcd for deployments that
// already run an etcd cluster for service discovery.
//
// The complete state is stored as one JSON document under
// /{namespace}/activation, so a save is a single atomic Put.
package etcdstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zero-day-ai/modulekit/activation"
)

// Config holds etcd connection configuration.
type Config struct {
	// Endpoints is the list of etcd endpoints
	// Format: ["host1:2379", "host2:2379", "host3:2379"]
	Endpoints []string `yaml:"endpoints" json:"endpoints"`

	// Namespace is the key prefix for the activation document.
	// Default: "modulekit"
	Namespace string `yaml:"namespace" json:"namespace"`

	// DialTimeout bounds the initial connection.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// TLS holds TLS configuration for secure etcd communication.
	// If nil, TLS is disabled.
	TLS *TLSConfig `yaml:"tls" json:"tls"`
}

// Store implements activation.Store on an etcd key.
//
// Thread-safety: All methods are safe for concurrent use.
type Store struct {
	kv     clientv3.KV
	client *clientv3.Client
	key    string
}

var _ activation.Store = (*Store)(nil)

// New connects to etcd and verifies connectivity with a quick read.
func New(cfg Config) (*Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	}

	tlsConfig, err := cfg.TLS.clientConfig()
	if err != nil {
		return nil, err
	}
	clientCfg.TLS = tlsConfig

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	store := NewWithKV(cli, cfg.Namespace)
	store.client = cli
	return store, nil
}

// NewWithKV wraps an existing KV (a *clientv3.Client, a namespaced KV, or a
// test double). The caller keeps ownership of kv.
func NewWithKV(kv clientv3.KV, namespace string) *Store {
	if namespace == "" {
		namespace = "modulekit"
	}
	return &Store{kv: kv, key: buildKey(namespace)}
}

// Key returns the etcd key holding the activation document.
func (s *Store) Key() string { return s.key }

// Load reads the activation document. A missing key means nothing was persisted.
func (s *Store) Load(ctx context.Context) (activation.State, error) {
	resp, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load activation state: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	var state activation.State
	if err := json.Unmarshal(resp.Kvs[0].Value, &state); err != nil {
		return nil, fmt.Errorf("failed to decode activation state: %w", err)
	}
	return state, nil
}

// Save writes the complete state as one JSON value.
func (s *Store) Save(ctx context.Context, state activation.State) error {
	if state == nil {
		state = activation.State{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode activation state: %w", err)
	}
	if _, err := s.kv.Put(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("failed to save activation state: %w", err)
	}
	return nil
}

// Close releases the etcd client when the store created it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// buildKey constructs the etcd key for the activation document.
//
// Format: /namespace/activation
func buildKey(namespace string) string {
	return fmt.Sprintf("/%s/activation", namespace)
}
