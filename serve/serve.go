package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Config configures the management server.
type Config struct {
	// Default: :50061
	Address string

	// GracefulTimeout bounds in-flight unary calls during shutdown; after it
	// the server stops hard. Default: 10s
	GracefulTimeout time.Duration

	// PEM files. TLS is on only when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// Listener overrides Address. Tests pass a bufconn listener here.
	Listener net.Listener

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the listen address and shutdown timeout used by modulekitd.
func DefaultConfig() *Config {
	return &Config{
		Address:         ":50061",
		GracefulTimeout: 10 * time.Second,
	}
}

// Server owns the listener, the gRPC server and its health service.
type Server struct {
	grpc   *grpc.Server
	lis    net.Listener
	cfg    *Config
	health *health.Server
	logger *slog.Logger

	mu     sync.Mutex
	onStop []func()
}

// NewServer creates a new gRPC server with the provided configuration.
// It sets up TLS when configured, installs the logging interceptors and
// registers the health check service. Services start NOT_SERVING until
// SetServing is called.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Address == "" {
		cfg.Address = ":50061"
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "grpc-server")

	listener := cfg.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Address, err)
		}
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unaryLogging(logger)),
		grpc.ChainStreamInterceptor(streamLogging(logger)),
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	gs := grpc.NewServer(opts...)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(gs, hs)

	return &Server{grpc: gs, lis: listener, cfg: cfg, health: hs, logger: logger}, nil
}

// GRPCServer exposes the server for registering extra services.
func (s *Server) GRPCServer() *grpc.Server { return s.grpc }

// HealthServer exposes the standard health service.
func (s *Server) HealthServer() *health.Server { return s.health }

// SetServing flips ServiceName and the overall server status in the health
// service.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// Serve blocks until ctx is done, then stops gracefully. It returns early
// with the error if the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	failed := make(chan error, 1)
	go func() {
		if err := s.grpc.Serve(s.lis); err != nil {
			failed <- fmt.Errorf("serve module API: %w", err)
		}
	}()
	s.logger.Info("serving module management API", "address", s.Addr())

	select {
	case <-ctx.Done():
		s.GracefulStop()
		return nil
	case err := <-failed:
		return err
	}
}

// OnStop registers fn to run when a stop begins, before in-flight RPCs are
// drained. Watch streams use it to end themselves.
func (s *Server) OnStop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStop = append(s.onStop, fn)
}

func (s *Server) beginStop() {
	s.health.Shutdown()
	s.mu.Lock()
	hooks := s.onStop
	s.onStop = nil
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Stop closes every connection at once.
func (s *Server) Stop() {
	s.beginStop()
	s.grpc.Stop()
}

// GracefulStop refuses new RPCs and waits up to GracefulTimeout for the
// running ones before falling back to Stop.
func (s *Server) GracefulStop() {
	s.beginStop()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(s.cfg.GracefulTimeout)
	defer timer.Stop()
	select {
	case <-done:
		s.logger.Info("module API stopped")
	case <-timer.C:
		s.logger.Warn("graceful stop timed out, closing connections", "timeout", s.cfg.GracefulTimeout)
		s.grpc.Stop()
	}
}

// Addr returns the bound address, which differs from Config.Address when
// the port was 0.
func (s *Server) Addr() string {
	if s.lis != nil {
		return s.lis.Addr().String()
	}
	return s.cfg.Address
}

func unaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("rpc failed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		} else {
			logger.Debug("rpc completed", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}

func streamLogging(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger.Debug("stream opened", "method", info.FullMethod)
		err := handler(srv, ss)
		logger.Debug("stream closed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		return err
	}
}
