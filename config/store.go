package config

import (
	"fmt"
	"io"

	"github.com/zero-day-ai/modulekit"
	"github.com/zero-day-ai/modulekit/activation"
	"github.com/zero-day-ai/modulekit/activation/etcdstore"
	"github.com/zero-day-ai/modulekit/activation/filestore"
	"github.com/zero-day-ai/modulekit/activation/redisstore"
)

// Store is an activation store that owns resources to release on shutdown.
type Store interface {
	activation.Store
	io.Closer
}

// OpenStore builds the configured activation store backend. Network backends
// verify connectivity before returning.
func (c *Config) OpenStore() (Store, error) {
	switch c.Store.GetType() {
	case StoreMemory:
		return activation.NewMemoryStore(nil), nil

	case StoreFile:
		store, err := filestore.New(c.Store.File.GetPath())
		if err != nil {
			return nil, modulekit.NewConfigurationError("config.OpenStore", err)
		}
		return store, nil

	case StoreRedis:
		store, err := redisstore.New(redisstore.Options{
			URL:            c.Store.Redis.GetURL(),
			KeyPrefix:      c.Store.Redis.GetKeyPrefix(),
			ConnectTimeout: c.Store.Redis.GetConnectTimeout(),
		})
		if err != nil {
			return nil, modulekit.NewStorageError("config.OpenStore", fmt.Errorf("%w: %w", modulekit.ErrStoreUnavailable, err))
		}
		return store, nil

	case StoreEtcd:
		etcd := c.Store.Etcd
		if etcd == nil || len(etcd.Endpoints) == 0 {
			return nil, modulekit.NewConfigurationError("config.OpenStore",
				fmt.Errorf("%w: etcd store requires at least one endpoint", modulekit.ErrInvalidConfig))
		}
		store, err := etcdstore.New(etcdstore.Config{
			Endpoints:   etcd.Endpoints,
			Namespace:   etcd.GetNamespace(),
			DialTimeout: etcd.GetDialTimeout(),
			TLS:         etcd.TLS,
		})
		if err != nil {
			return nil, modulekit.NewStorageError("config.OpenStore", fmt.Errorf("%w: %w", modulekit.ErrStoreUnavailable, err))
		}
		return store, nil

	default:
		return nil, modulekit.NewConfigurationError("config.OpenStore",
			fmt.Errorf("%w: unknown store type %q", modulekit.ErrInvalidConfig, c.Store.Type))
	}
}
