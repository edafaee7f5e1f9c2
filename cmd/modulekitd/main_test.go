package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/modulekit/config"
)

func TestPreflight(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	assert.True(t, preflight(ctx, config.StoreConfig{}).IsHealthy())

	file := config.StoreConfig{Type: config.StoreFile, File: &config.FileConfig{Path: filepath.Join(dir, "state.yaml")}}
	assert.True(t, preflight(ctx, file).IsHealthy())

	file.File.Path = filepath.Join(dir, "missing", "state.yaml")
	assert.True(t, preflight(ctx, file).IsUnhealthy())

	mr := miniredis.RunT(t)
	redis := config.StoreConfig{Type: config.StoreRedis, Redis: &config.RedisConfig{URL: "redis://" + mr.Addr()}}
	assert.True(t, preflight(ctx, redis).IsHealthy())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	etcd := config.StoreConfig{Type: config.StoreEtcd, Etcd: &config.EtcdConfig{
		Endpoints: []string{"http://127.0.0.1:" + strconv.Itoa(port)},
	}}
	assert.True(t, preflight(ctx, etcd).IsUnhealthy(), "closed port")

	etcd.Etcd.Endpoints = append(etcd.Etcd.Endpoints, mr.Addr())
	assert.True(t, preflight(ctx, etcd).IsHealthy(), "one reachable member is enough")
}

func TestPortOr(t *testing.T) {
	assert.Equal(t, 6380, portOr("6380", 6379))
	assert.Equal(t, 6379, portOr("", 6379))
	assert.Equal(t, 2379, portOr("client", 2379))
}

func TestRunCheckOnly(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, "modules.state.yaml")
	cfg := "store:\n  type: file\n  file:\n    path: " + state + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "modulekit.yaml"), []byte(cfg), 0o644))

	require.NoError(t, run(context.Background(), dir, true))

	_, err := os.Stat(state)
	assert.True(t, os.IsNotExist(err), "check mode does not write activation state")
}

func TestRunRejectsInvalidCatalog(t *testing.T) {
	dir := t.TempDir()
	catalog := "modules:\n  - id: reports\n    name: Reports\n    version: 1.0.0\n    dependencies: [ledger]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(catalog), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "modulekit.yaml"), []byte("catalog: catalog.yaml\nlog:\n  level: error\n"), 0o644))

	err := run(context.Background(), dir, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid module catalog")
}
