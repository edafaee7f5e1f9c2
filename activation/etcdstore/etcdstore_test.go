package etcdstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zero-day-ai/modulekit/activation"
)

// fakeKV is an in-memory clientv3.KV covering Get and Put. Other methods
// panic through the nil embedded interface.
type fakeKV struct {
	clientv3.KV
	data   map[string]string
	getErr error
	putErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}}
}

func (f *fakeKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	resp := &clientv3.GetResponse{}
	if v, ok := f.data[key]; ok {
		resp.Kvs = []*mvccpb.KeyValue{{Key: []byte(key), Value: []byte(v)}}
		resp.Count = 1
	}
	return resp, nil
}

func (f *fakeKV) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.data[key] = val
	return &clientv3.PutResponse{}, nil
}

func TestNewRequiresEndpoints(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoints cannot be empty")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "/modulekit/activation", NewWithKV(newFakeKV(), "").Key())
	assert.Equal(t, "/tenant-7/activation", NewWithKV(newFakeKV(), "tenant-7").Key())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	store := NewWithKV(kv, "tenant-7")

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	want := activation.State{"assets": true, "depreciation": false}
	require.NoError(t, store.Save(ctx, want))
	assert.JSONEq(t, `{"assets":true,"depreciation":false}`, kv.data["/tenant-7/activation"])

	got, err := NewWithKV(kv, "tenant-7").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, store.Close())
}

func TestBackendErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("get failure", func(t *testing.T) {
		kv := newFakeKV()
		kv.getErr = errors.New("etcdserver: request timed out")
		_, err := NewWithKV(kv, "").Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load activation state")
	})

	t.Run("put failure", func(t *testing.T) {
		kv := newFakeKV()
		kv.putErr = errors.New("etcdserver: no leader")
		err := NewWithKV(kv, "").Save(ctx, activation.State{"assets": true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save activation state")
	})

	t.Run("corrupt document", func(t *testing.T) {
		kv := newFakeKV()
		kv.data["/modulekit/activation"] = "{not json"
		_, err := NewWithKV(kv, "").Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode activation state")
	})
}

func TestTLSClientConfig(t *testing.T) {
	var disabled *TLSConfig
	cfg, err := disabled.clientConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	cfg, err = (&TLSConfig{CertFile: "ignored.pem"}).clientConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg, "disabled config yields no TLS")

	_, err = (&TLSConfig{Enabled: true}).clientConfig()
	assert.ErrorContains(t, err, "cert_file is required")

	_, err = (&TLSConfig{Enabled: true, CertFile: "c.pem"}).clientConfig()
	assert.ErrorContains(t, err, "key_file is required")

	_, err = (&TLSConfig{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem"}).clientConfig()
	assert.ErrorContains(t, err, "ca_file is required")

	dir := t.TempDir()
	_, err = (&TLSConfig{
		Enabled:  true,
		CertFile: filepath.Join(dir, "c.pem"),
		KeyFile:  filepath.Join(dir, "k.pem"),
		CAFile:   filepath.Join(dir, "ca.pem"),
	}).clientConfig()
	assert.ErrorContains(t, err, "load client key pair")
}
