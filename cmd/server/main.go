package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/arena-sessions/internal/arena"
	"github.com/DoyleJ11/arena-sessions/internal/config"
	"github.com/DoyleJ11/arena-sessions/internal/httpapi"
	"github.com/DoyleJ11/arena-sessions/internal/hub"
	"github.com/DoyleJ11/arena-sessions/internal/logging"
	"github.com/DoyleJ11/arena-sessions/internal/registry"
	"github.com/DoyleJ11/arena-sessions/internal/store"
	"github.com/DoyleJ11/arena-sessions/internal/store/postgres"
	"github.com/DoyleJ11/arena-sessions/internal/store/redis"
	"github.com/DoyleJ11/arena-sessions/internal/store/sqlite"
	"github.com/DoyleJ11/arena-sessions/internal/telemetry"
	"github.com/DoyleJ11/arena-sessions/internal/ws"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "arena-sessions", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err = multierr.Append(err, shutdownTracing(sctx))
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	client := registry.NewClient(cfg.RegistryURL, cfg.ServiceSecret, cfg.RegistryTimeout)
	if cfg.RegistryURL == "" || cfg.ServiceSecret == "" {
		logger.Warn("registry not configured; arenas are not validated and results are not saved")
	}

	h := hub.NewHub(context.Background(), hub.Options{
		Store:       st,
		Reporter:    registry.NewReporter(client, logger),
		Logger:      logger,
		Policy:      arena.TickPolicy(cfg.TickPolicy),
		IdleTimeout: cfg.IdleTimeout,
	})
	n, err := h.RestoreAlarms(ctx)
	if err != nil {
		logger.Warn("some alarms could not be restored", zap.Error(err))
	}
	logger.Info("alarms restored", zap.Int("count", n))

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, client, ws.Options{
			OriginPatterns:  cfg.OriginPatterns,
			SocketBuffer:    cfg.SocketBuffer,
			MaxMessageBytes: cfg.MaxMessage,
			Logger:          logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		// Hijacked sockets are not tracked by the server; the hub closes them.
		return multierr.Combine(h.Shutdown(sctx), srv.Shutdown(sctx))
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return sqlite.Open(cfg.StoreDSN)
	case config.StorePostgres:
		return postgres.Open(cfg.StoreDSN)
	case config.StoreRedis:
		return redis.Open(ctx, cfg.StoreDSN)
	default:
		return store.NewMemory(), nil
	}
}
