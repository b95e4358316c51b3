// Copyright 2026 The QADeck Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/qadeck/qadeck/internal/assignment"
	"github.com/qadeck/qadeck/internal/audit"
	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/config"
	"github.com/qadeck/qadeck/internal/observability/logger"
	"github.com/qadeck/qadeck/internal/observability/metrics"
	"github.com/qadeck/qadeck/internal/observability/tracing"
	"github.com/qadeck/qadeck/internal/rbac"
	"github.com/qadeck/qadeck/internal/store/memory"
	"github.com/qadeck/qadeck/internal/store/postgres"
	"github.com/qadeck/qadeck/internal/store/redis"
	transportHTTP "github.com/qadeck/qadeck/internal/transport/http"
)

// backend is an assignment store that also accepts administrative writes.
type backend interface {
	authz.AssignmentStore
	assignment.Repository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		OTelEnabled: cfg.Observability.OTELEnabled,
	})

	if err := run(cfg, log); err != nil {
		slog.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting qadeck authorization service",
		logger.String("store", cfg.Store.Driver),
		logger.String("version", cfg.Observability.ServiceVersion),
	)

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   cfg.Observability.SamplingRate,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
		tracer = tracing.Noop()
	}
	defer tracer.Shutdown(context.WithoutCancel(ctx))

	meter := metrics.New(metrics.Config{
		Enabled:     cfg.Observability.OTELEnabled,
		ServiceName: cfg.Observability.ServiceName,
	})

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	catalog := rbac.DefaultCatalog()
	if cfg.Catalog.Path != "" {
		catalog, err = rbac.LoadCatalog(cfg.Catalog.Path)
		if err != nil {
			return fmt.Errorf("failed to load role catalog: %w", err)
		}
	}
	slog.Info("role catalog ready",
		logger.String("path", cfg.Catalog.Path),
		logger.CatalogVersion(catalog.CurrentVersion()),
	)

	auditLogger := audit.NewSlogLogger(log)
	cache := authz.NewCache(authz.CacheConfig{Size: cfg.Authz.CacheSize, TTL: cfg.Authz.CacheTTL})
	gate, err := authz.NewGate(
		authz.NewResolver(store, catalog, log),
		cache,
		meter,
		authz.WithAudit(auditLogger),
		authz.WithTracer(tracer),
		authz.WithLogger(log),
		authz.WithResolveTimeout(cfg.Authz.ResolveTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to build authorization gate: %w", err)
	}

	var invalidator authz.Invalidator = gate
	if cfg.Redis.Enabled {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		bus := redis.NewInvalidationBus(client, cfg.Redis.Channel, gate, log)
		if err := bus.Start(ctx); err != nil {
			return fmt.Errorf("failed to subscribe to invalidations: %w", err)
		}
		defer bus.Close()
		invalidator = bus
		slog.Info("cross-replica invalidation enabled", logger.String("channel", cfg.Redis.Channel))
	}

	var reloader transportHTTP.CatalogReloader
	if cfg.Catalog.Path != "" {
		watcher, err := rbac.NewWatcher(cfg.Catalog.Path, catalog, func(ctx context.Context, version uint64) {
			invalidator.CatalogChanged(ctx)
			auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeCatalogChanged,
				Resource: "role_catalog",
				Metadata: map[string]any{"catalog_version": version},
			})
		})
		if err != nil {
			return err
		}
		defer watcher.Close()
		if cfg.Catalog.Watch {
			go watcher.Run(ctx)
		}
		reloader = watcher
	}

	assignments := assignment.NewService(store, invalidator, auditLogger)
	if principal := cfg.Auth.BootstrapSuperAdmin; principal != "" {
		if err := assignments.AssignGlobalRole(ctx, "bootstrap", principal, rbac.GlobalSuperAdmin); err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
		slog.Info("bootstrap super admin granted", logger.Principal(principal))
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Close()

	handler := transportHTTP.NewHandler(
		gate,
		assignments,
		reloader,
		transportHTTP.NewTokenVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer),
		cfg.Observability.ServiceName,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      transportHTTP.NewRouter(handler, rateLimiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting http server",
			logger.Component("server"),
			logger.Operation("listen"),
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		slog.Warn("using in-memory assignment store; assignments are lost on restart")
		return memory.New(), func() {}, nil
	}

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database")

	if cfg.Database.AutoMigrate {
		applied, err := db.Migrate(ctx)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		slog.Info("database schema up to date", slog.Any("applied", applied))
	}

	return postgres.NewAssignmentRepository(db), db.Close, nil
}
