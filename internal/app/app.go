// Package app assembles the device-policy service: configuration, the
// repository backend (in-memory by default, Postgres/Redis when
// configured), the circuit breaker, the canary controller, the policy
// engine, dispatcher, admin surface, and the HTTP server that exposes them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/fleetops/devicepolicy/internal/api"
	"github.com/fleetops/devicepolicy/internal/config"
	"github.com/fleetops/devicepolicy/internal/devicepolicy"
	"github.com/fleetops/devicepolicy/internal/devicepolicy/postgres"
	"github.com/fleetops/devicepolicy/internal/devicepolicy/redistxn"
	"github.com/fleetops/devicepolicy/internal/httpserver"
	"github.com/fleetops/devicepolicy/internal/platform"
	"github.com/fleetops/devicepolicy/internal/telemetry"
	slacknotify "github.com/fleetops/devicepolicy/pkg/slack"
)

// Run is the service's main entry point: it reads config, wires the
// repository and core components, mounts the HTTP routes, and serves until
// ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting devicepolicy", "listen", cfg.ListenAddr())

	infra, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building repository: %w", err)
	}
	defer infra.cleanup()
	repo := infra.repo

	breaker := devicepolicy.NewCircuitBreaker(devicepolicy.BreakerConfig{
		MaxLocksInWindow: cfg.BreakerMaxLocksInWindow,
		WindowSeconds:    cfg.BreakerWindowSeconds,
		CooldownSeconds:  cfg.BreakerCooldownSeconds,
	})

	canary := devicepolicy.NewCanaryController(devicepolicy.CanaryConfig{
		ErrorRateThreshold:     cfg.CanaryErrorRateThreshold,
		HeartbeatLossThreshold: cfg.CanaryHeartbeatLossThreshold,
	})

	notifier := slacknotify.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if notifier.IsEnabled() {
		logger.Info("slack integration enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack integration disabled (SLACK_BOT_TOKEN or SLACK_ALERT_CHANNEL not set)")
	}

	// engine and admin share one mutex: EmergencyUnlock must serialize
	// against ApplyEvent, not just against other admin calls.
	var criticalSection sync.Mutex
	engine := devicepolicy.NewEngine(repo, breaker, logger, notifier, &criticalSection)
	dispatcher := devicepolicy.NewDispatcher(repo)
	admin := devicepolicy.NewAdmin(repo, breaker, logger, notifier, &criticalSection)

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(telemetry.All()...)

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, infra.pool, infra.redis, metricsReg)

	handler := api.NewHandler(engine, dispatcher, admin, logger)
	srv.Router.Mount("/", handler.Routes())

	canaryHandler := api.NewCanaryHandler(canary, notifier, logger)
	srv.Router.Mount("/canary", canaryHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// repositoryInfra bundles the constructed repository together with the raw
// infrastructure handles backing it, so callers (readyz) can ping the real
// dependencies instead of only the Repository abstraction.
type repositoryInfra struct {
	repo    devicepolicy.Repository
	pool    *pgxpool.Pool
	redis   *redis.Client
	closers []func()
}

func (i *repositoryInfra) cleanup() {
	for _, c := range i.closers {
		c()
	}
}

// buildRepository selects the repository backend per configuration: an
// in-memory map by default, or a Postgres-backed store when
// POLICY_DATABASE_URL is set. When POLICY_REDIS_URL is also set, the
// processed-transaction idempotency set is layered onto Redis regardless of
// which base repository is in use. The returned infra's cleanup func closes
// any opened connections and is safe to call even when nothing was opened.
func buildRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repositoryInfra, error) {
	infra := &repositoryInfra{}

	if cfg.DatabaseURL != "" {
		pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		infra.closers = append(infra.closers, pool.Close)
		infra.pool = pool

		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			infra.cleanup()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("postgres migrations applied")

		infra.repo = postgres.New(pool)
		logger.Info("using postgres-backed repository", "database", "configured")
	} else {
		infra.repo = devicepolicy.NewMemoryRepository()
		logger.Info("using in-memory repository")
	}

	if cfg.RedisURL != "" {
		rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			infra.cleanup()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		infra.closers = append(infra.closers, func() { _ = rdb.Close() })
		infra.redis = rdb

		infra.repo = redistxn.New(infra.repo, rdb)
		logger.Info("using redis-backed processed-transaction set")
	}

	return infra, nil
}
