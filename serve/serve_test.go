package serve

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zero-day-ai/modulekit/activation"
	"github.com/zero-day-ai/modulekit/descriptor"
	"github.com/zero-day-ai/modulekit/registry"
	"github.com/zero-day-ai/modulekit/surface"
)

func testModules() []descriptor.Descriptor {
	return []descriptor.Descriptor{
		{
			ID:           "assets",
			Name:         "Assets",
			Version:      "1.0.0",
			Routes:       []descriptor.Route{{Path: "/assets", Component: "AssetList"}},
			Nav:          []descriptor.NavEntry{{ID: "assets", Label: "Assets", Path: "/assets"}},
			SettingsPath: "/settings/assets",
		},
		{
			ID:           "depreciation",
			Name:         "Depreciation",
			Version:      "1.0.0",
			Dependencies: []string{"assets"},
			Routes:       []descriptor.Route{{Path: "/depreciation", Component: "DepreciationRuns"}},
		},
	}
}

type testEnv struct {
	reg    *registry.Registry
	srv    *Server
	conn   *grpc.ClientConn
	client *Client
}

// setupTestServer starts the module service on an in-memory listener.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	const bufSize = 1024 * 1024
	lis := bufconn.Listen(bufSize)

	reg, err := registry.New(registry.WithStore(activation.NewMemoryStore(nil)))
	require.NoError(t, err)
	for _, d := range testModules() {
		require.NoError(t, reg.Register(d))
	}
	require.NoError(t, reg.Open(context.Background()))

	composer, err := surface.New(reg)
	require.NoError(t, err)

	srv, err := NewServer(&Config{Listener: lis, GracefulTimeout: time.Second})
	require.NoError(t, err)
	Register(srv, NewService(reg, composer, nil))
	srv.SetServing(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx); err != nil {
			t.Logf("server exited with error: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
		composer.Close()
	})

	return &testEnv{reg: reg, srv: srv, conn: conn, client: NewClient(conn)}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":50061", cfg.Address)
	assert.Equal(t, 10*time.Second, cfg.GracefulTimeout)
	assert.Empty(t, cfg.TLSCertFile)
	assert.Empty(t, cfg.TLSKeyFile)
}

func TestNewServer(t *testing.T) {
	srv, err := NewServer(&Config{Address: "127.0.0.1:0"})
	require.NoError(t, err)
	defer srv.Stop()

	assert.NotNil(t, srv.GRPCServer())
	assert.NotNil(t, srv.HealthServer())
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr())

	_, err = NewServer(&Config{Address: "127.0.0.1:0", TLSCertFile: "/missing/cert.pem", TLSKeyFile: "/missing/key.pem"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load TLS credentials")
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)
	hc := grpc_health_v1.NewHealthClient(env.conn)

	resp, err := hc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	env.srv.SetServing(false)
	resp, err = hc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestListModules(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	require.True(t, env.reg.Enable(ctx, "assets").OK)

	modules, err := env.client.ListModules(ctx)
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, "assets", modules[0].ID)
	assert.True(t, modules[0].Enabled)
	assert.Equal(t, "depreciation", modules[1].ID)
	assert.Equal(t, []string{"assets"}, modules[1].Dependencies)
	assert.False(t, modules[1].Enabled)
}

func TestTransitions(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	reply, err := env.client.Enable(ctx, "depreciation")
	require.NoError(t, err, "refusals are replies, not RPC errors")
	assert.False(t, reply.OK)
	assert.Equal(t, registry.ReasonMissingDependency, reply.Reason)
	assert.Equal(t, "module depreciation requires assets to be enabled first", reply.Message)

	reply, err = env.client.EnableWithDependencies(ctx, "depreciation")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, []string{"assets", "depreciation"}, reply.Changed)
	assert.True(t, env.reg.IsEnabled("depreciation"))

	reply, err = env.client.Disable(ctx, "assets")
	require.NoError(t, err)
	assert.False(t, reply.OK)
	assert.Equal(t, registry.ReasonBlockedByDependent, reply.Reason)

	reply, err = env.client.DisableWithDependents(ctx, "assets")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, []string{"depreciation", "assets"}, reply.Changed)

	reply, err = env.client.Enable(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, registry.ReasonUnknownModule, reply.Reason)
	assert.Contains(t, reply.Error, "module not found")
}

func TestMissingModuleArgument(t *testing.T) {
	env := setupTestServer(t)

	out := new(structpb.Struct)
	err := env.conn.Invoke(context.Background(), "/"+ServiceName+"/Enable", &structpb.Struct{}, out)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSurfacesAndSettingsLink(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	snap, err := env.client.Surfaces(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Routes)

	_, found, err := env.client.SettingsLink(ctx, "assets")
	require.NoError(t, err)
	assert.False(t, found)

	require.True(t, env.reg.Enable(ctx, "assets").OK)

	snap, err = env.client.Surfaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.reg.Generation(), snap.Generation)
	require.Len(t, snap.Routes, 1)
	assert.Equal(t, "/assets", snap.Routes[0].Path)
	require.Len(t, snap.Nav, 1)
	assert.Equal(t, "Assets", snap.Nav[0].Label)

	path, found, err := env.client.SettingsLink(ctx, "assets")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "/settings/assets", path)
}

func TestWatch(t *testing.T) {
	env := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := env.client.Watch(ctx)
	require.NoError(t, err)

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, EventSnapshot, ev.Type)
	assert.Equal(t, uint64(1), ev.Generation)
	assert.Empty(t, ev.Enabled)

	require.True(t, env.reg.Enable(ctx, "assets").OK)

	ev, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, EventChange, ev.Type)
	assert.Equal(t, uint64(2), ev.Generation)
	assert.Equal(t, []string{"assets"}, ev.Enabled)
	require.NotNil(t, ev.Change)
	assert.Equal(t, registry.OpEnable, ev.Change.Op)
	assert.NotEmpty(t, ev.Change.ID)
}

func TestWatchDeliversEveryGeneration(t *testing.T) {
	env := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := env.client.Watch(ctx)
	require.NoError(t, err)
	ev, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, EventSnapshot, ev.Type)
	start := ev.Generation

	const toggles = 200
	for i := 0; i < toggles; i++ {
		var res registry.Result
		if i%2 == 0 {
			res = env.reg.Enable(ctx, "assets")
		} else {
			res = env.reg.Disable(ctx, "assets")
		}
		require.True(t, res.OK)
	}

	seen := make(map[string]bool, toggles)
	for i := 1; i <= toggles; i++ {
		ev, err := stream.Recv()
		require.NoError(t, err)
		require.Equal(t, EventChange, ev.Type)
		require.Equal(t, start+uint64(i), ev.Generation, "generations arrive in order without gaps")
		require.NotNil(t, ev.Change)
		assert.Equal(t, []string{"assets"}, ev.Change.Changed)
		if i%2 == 1 {
			assert.Equal(t, registry.OpEnable, ev.Change.Op)
		} else {
			assert.Equal(t, registry.OpDisable, ev.Change.Op)
		}
		assert.False(t, seen[ev.Change.ID], "change ids are unique")
		seen[ev.Change.ID] = true
	}
}

func TestWatchEndsOnShutdown(t *testing.T) {
	env := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := env.client.Watch(ctx)
	require.NoError(t, err)
	_, err = stream.Recv()
	require.NoError(t, err)

	go env.srv.GracefulStop()

	_, err = stream.Recv()
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
