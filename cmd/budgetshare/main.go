package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"budgetshare/internal/amqp"
	"budgetshare/internal/backend"
	"budgetshare/internal/cache"
	"budgetshare/internal/cli"
	"budgetshare/internal/config"
	"budgetshare/internal/core"
	apphttp "budgetshare/internal/http"
	"budgetshare/internal/log"
	"budgetshare/internal/services"
)

const (
	shutdownTimeout  = 30 * time.Second
	sessionPurgeTick = time.Hour
	sessionCacheSize = 1000
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	store, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}

	sessions, cacheManager, err := newSessionCache(cfg, logger)
	if err != nil {
		_ = store.Cleanup()
		return err
	}

	checks := map[string]apphttp.ReadinessCheck{"store": store.Store.Ping}
	publisher := newPublisher(cfg, store.Exportable, logger)
	var events services.EventPublisher
	if publisher != nil {
		events = publisher
		checks["amqp"] = publisher.Ping
	}

	auth := services.NewAuth(store.Store, sessions, services.AuthConfig{SessionTTL: cfg.SessionTTL}, logger)
	ledger := services.NewLedger(store.Store, auth, events, services.NewInviteSigner(cfg.SessionSecret), services.LedgerConfig{
		InviteTTL: cfg.InviteTTL,
		InviteURL: cfg.InviteURL,
	}, logger)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		CookieSecure:       cfg.CookieSecure,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}, ledger, auth, checks, logger)

	go cli.Every(ctx, sessionPurgeTick, func(ctx context.Context) {
		if _, err := auth.PurgeExpired(ctx); err != nil {
			logger.WarnContext(ctx, "Session purge failed", log.FieldError, err)
		}
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting budgetshare server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"public_url", cfg.PublicURL,
			"events", publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
	case listenErr = <-serveErr:
	}

	cli.GracefulShutdown(logger, shutdownTimeout,
		srv.Shutdown,
		func(context.Context) error {
			if cacheManager != nil {
				cacheManager.Stop()
			}
			return nil
		},
		closer(publisher),
		cleanup(store.Cleanup),
	)
	if listenErr != nil {
		return fmt.Errorf("listen: %w", listenErr)
	}
	return nil
}

// sessionCachePrefix namespaces session keys in a shared memcached.
const sessionCachePrefix = "budgetshare:session"

// newSessionCache fronts session lookups with memcached when configured,
// and an in-process LRU otherwise.
func newSessionCache(cfg *config.Config, logger *log.Logger) (cache.Cache[core.Session], *cache.Manager, error) {
	if len(cfg.MemcacheHosts) > 0 {
		mc, err := cache.NewMemcache[core.Session](sessionCachePrefix, cfg.SessionTTL, cfg.MemcacheHosts...)
		if err != nil {
			return nil, nil, fmt.Errorf("memcache: %w", err)
		}
		logger.Info("Using memcached for sessions", "hosts", cfg.MemcacheHosts)
		return cache.Instrument[core.Session]("sessions", mc), nil, nil
	}

	lru := cache.NewLRUCache[core.Session](sessionCacheSize, cfg.SessionTTL)
	manager := cache.NewManager(logger.Logger)
	manager.Register(lru)
	manager.StartCleanup(5 * time.Minute)
	return cache.Instrument[core.Session]("sessions", lru), manager, nil
}

// newPublisher connects to the broker if one is configured. Failure is not
// fatal: the worker's sweeper exports whatever the events missed.
func newPublisher(cfg *config.Config, exportable bool, logger *log.Logger) *amqp.Client {
	if cfg.AMQPURL == "" {
		return nil
	}
	if !exportable {
		logger.Warn("AMQP configured but the backend cannot be exported, not publishing", "backend", cfg.DataBackend)
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to connect to AMQP, continuing without events", log.FieldError, err)
		return nil
	}
	logger.Info("Publishing transaction events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

func closer(c *amqp.Client) func(context.Context) error {
	return func(context.Context) error {
		if c == nil {
			return nil
		}
		return c.Close()
	}
}

func cleanup(fn backend.CleanupFunc) func(context.Context) error {
	return func(context.Context) error {
		if fn == nil {
			return nil
		}
		return fn()
	}
}
