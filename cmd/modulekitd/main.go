// Command modulekitd serves a module registry over gRPC.
//
// It loads modulekit.yaml (or the environment alone), opens the configured
// activation store, registers the module catalog and serves
// modulekit.v1.ModuleService until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zero-day-ai/modulekit"
	"github.com/zero-day-ai/modulekit/catalog"
	"github.com/zero-day-ai/modulekit/config"
	"github.com/zero-day-ai/modulekit/descriptor"
	"github.com/zero-day-ai/modulekit/health"
	"github.com/zero-day-ai/modulekit/internal/telemetry"
	"github.com/zero-day-ai/modulekit/registry"
	"github.com/zero-day-ai/modulekit/serve"
	"github.com/zero-day-ai/modulekit/surface"
)

func main() {
	configPath := flag.String("config", "", "path to modulekit.yaml or a directory containing it")
	checkOnly := flag.Bool("check", false, "validate configuration and catalog, then exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *checkOnly); err != nil {
		fmt.Fprintf(os.Stderr, "modulekitd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, checkOnly bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	mods, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	tp := telemetry.NewTracerProvider("modulekitd", logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down tracer provider", "error", err)
		}
	}()

	if status := preflight(ctx, cfg.Store); status.IsUnhealthy() {
		return fmt.Errorf("activation store backend: %s", status.Message)
	}
	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer modulekit.CloseWithLog(store, logger, cfg.Store.GetType()+" activation store")

	reg, err := registry.New(
		registry.WithStore(store),
		registry.WithLogger(logger),
		registry.WithTracer(tp.Tracer("github.com/zero-day-ai/modulekit/registry")),
	)
	if err != nil {
		return err
	}
	if err := catalog.RegisterAll(reg, mods); err != nil {
		return err
	}
	if err := reg.Seal(); err != nil {
		// Duplicate ids and cycles are deployment errors; name the modules.
		return fmt.Errorf("invalid module catalog: %w", err)
	}

	composer, err := surface.New(reg, surface.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("invalid module catalog: %w", err)
	}
	defer composer.Close()

	if checkOnly {
		logger.Info("configuration and catalog are valid", "modules", len(mods), "store", cfg.Store.GetType())
		return nil
	}

	if err := reg.Open(ctx); err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	status := health.Combine(health.StoreCheck(checkCtx, store), health.RegistryCheck(reg))
	cancel()
	if status.IsUnhealthy() {
		return fmt.Errorf("startup health check failed: %s", status.Message)
	}

	srv, err := serve.NewServer(&serve.Config{
		Address:         cfg.Server.GetAddress(),
		GracefulTimeout: cfg.Server.GetShutdownTimeout(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	serve.Register(srv, serve.NewService(reg, composer, logger))
	srv.SetServing(true)

	return srv.Serve(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg, err := config.Load(".")
		if err == nil {
			return cfg, nil
		}
		if errors.Is(err, modulekit.ErrInvalidConfig) {
			return nil, err
		}
		return config.FromEnv()
	}
	return config.Load(path)
}

// preflight checks the backend of the configured store before it is opened,
// so a bad path or an unreachable host is reported by name.
func preflight(ctx context.Context, sc config.StoreConfig) health.Status {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	switch sc.GetType() {
	case config.StoreFile:
		return health.WritableDirCheck(sc.File.GetPath())
	case config.StoreRedis:
		u, err := url.Parse(sc.Redis.GetURL())
		if err != nil {
			return health.Unhealthy("invalid redis url", map[string]any{"error": err.Error()})
		}
		return health.NetworkCheck(ctx, u.Hostname(), portOr(u.Port(), 6379))
	case config.StoreEtcd:
		var checks []health.Status
		for _, ep := range sc.Etcd.Endpoints {
			if u, err := url.Parse(ep); err == nil && u.Host != "" {
				ep = u.Host
			}
			host, port, err := net.SplitHostPort(ep)
			if err != nil {
				host, port = ep, ""
			}
			checks = append(checks, health.NetworkCheck(ctx, host, portOr(port, 2379)))
		}
		// One reachable member is enough for the client to make progress.
		for _, c := range checks {
			if c.IsHealthy() {
				return c
			}
		}
		return health.Combine(checks...)
	}
	return health.Healthy("in-memory store")
}

func portOr(s string, def int) int {
	if p, err := strconv.Atoi(s); err == nil {
		return p
	}
	return def
}

func loadCatalog(cfg *config.Config) ([]descriptor.Descriptor, error) {
	mods := catalog.Default()
	if cfg.Catalog == "" {
		return mods, nil
	}
	overrides, err := catalog.Load(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	return catalog.Merge(mods, overrides), nil
}

func newLogger(cfg *config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.GetLevel()}
	if cfg.GetFormat() == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
