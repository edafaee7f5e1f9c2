package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/modulekit/activation"
)

// setupTestStore creates a miniredis instance and returns a connected Store.
func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := New(Options{
		URL:       fmt.Sprintf("redis://%s", mr.Addr()),
		KeyPrefix: "tenant-42",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store, mr
}

func TestNew(t *testing.T) {
	t.Run("successful connection", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, err := New(Options{URL: fmt.Sprintf("redis://%s", mr.Addr())})
		require.NoError(t, err)
		defer store.Close()
		assert.Equal(t, "modulekit:activation", store.Key())
	})

	t.Run("connection failure", func(t *testing.T) {
		_, err := New(Options{
			URL:            "redis://localhost:1",
			ConnectTimeout: 100 * time.Millisecond,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redisstore: ping")
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := New(Options{URL: "invalid://url"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redisstore: parse url")
	})
}

func TestLoadEmpty(t *testing.T) {
	store, _ := setupTestStore(t)

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := setupTestStore(t)

	require.NoError(t, store.Save(ctx, activation.State{"assets": true, "crm": true}))
	require.NoError(t, store.Save(ctx, activation.State{"assets": true, "depreciation": false}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, activation.State{"assets": true, "depreciation": false}, got)

	assert.Equal(t, "true", mr.HGet("tenant-42:activation", "assets"))
	assert.Equal(t, "", mr.HGet("tenant-42:activation", "crm"), "stale fields are removed")
}

func TestLoadInvalidFlag(t *testing.T) {
	store, mr := setupTestStore(t)
	mr.HSet("tenant-42:activation", "assets", "maybe")

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid activation flag")
}

func TestSaveWhenServerDown(t *testing.T) {
	store, mr := setupTestStore(t)
	mr.Close()

	err := store.Save(context.Background(), activation.State{"assets": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save activation state")
	assert.Error(t, store.Ping(context.Background()))
}
