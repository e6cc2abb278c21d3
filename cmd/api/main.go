package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dcampos/wagate/internal/backoff"
	"github.com/dcampos/wagate/internal/config"
	"github.com/dcampos/wagate/internal/domain"
	"github.com/dcampos/wagate/internal/fetcher"
	"github.com/dcampos/wagate/internal/gate"
	"github.com/dcampos/wagate/internal/handler"
	infraredis "github.com/dcampos/wagate/internal/infra/redis"
	"github.com/dcampos/wagate/internal/observability"
	"github.com/dcampos/wagate/internal/outbound"
	"github.com/dcampos/wagate/internal/pipeline"
	"github.com/dcampos/wagate/internal/relay"
	"github.com/dcampos/wagate/internal/supervisor"
	"github.com/dcampos/wagate/internal/transport"

	goredis "github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("wagate exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	gateTTL := time.Duration(cfg.GateTTLMinutes) * time.Minute

	var rdb *goredis.Client
	var gateStore gate.Store
	if cfg.RedisURL != "" {
		var err error
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		gateStore, err = infraredis.NewGateStore(rdb, gateTTL)
		if err != nil {
			return fmt.Errorf("gate store initialization failed: %w", err)
		}
		logger.Info("sender gate using redis store")
	} else {
		gateStore = gate.NewMemoryStore()
		logger.Info("sender gate using in-memory store")
	}

	senderGate, err := gate.New(
		gateStore,
		cfg.Triggers(),
		gateTTL,
		time.Duration(cfg.SweepIntervalMinutes)*time.Minute,
		logger,
	)
	if err != nil {
		return fmt.Errorf("gate initialization failed: %w", err)
	}

	webhookRelay, err := relay.New(
		cfg.WebhookURL,
		cfg.DeliveryMaxAttempts,
		time.Duration(cfg.DeliveryBackoffSeconds)*time.Second,
		time.Duration(cfg.DeliveryTimeoutSeconds)*time.Second,
		logger,
	)
	if err != nil {
		return fmt.Errorf("relay initialization failed: %w", err)
	}
	webhookRelay.SetMetrics(metrics)

	wsClient, err := transport.NewWSClient(cfg.TransportURL, logger)
	if err != nil {
		return fmt.Errorf("transport initialization failed: %w", err)
	}

	credStore, err := transport.NewFileCredentialStore(cfg.CredentialsDir)
	if err != nil {
		return fmt.Errorf("credential store initialization failed: %w", err)
	}

	reconnectPolicy := backoff.NewExponential(
		time.Duration(cfg.ReconnectBaseSeconds)*time.Second,
		time.Duration(cfg.ReconnectMaxSeconds)*time.Second,
	)

	sup, err := supervisor.New(wsClient, credStore, reconnectPolicy, logger)
	if err != nil {
		return fmt.Errorf("supervisor initialization failed: %w", err)
	}
	sup.SetMetrics(metrics)

	eventPipeline, err := pipeline.New(sup.Messages(), senderGate, webhookRelay, logger)
	if err != nil {
		return fmt.Errorf("pipeline initialization failed: %w", err)
	}
	eventPipeline.SetMetrics(metrics)

	scheduler, err := outbound.New(
		openSession(sup),
		cfg.BatchMaxSize,
		time.Duration(cfg.SendDelayMinSeconds)*time.Second,
		time.Duration(cfg.SendDelayMaxSeconds)*time.Second,
		logger,
	)
	if err != nil {
		return fmt.Errorf("scheduler initialization failed: %w", err)
	}
	scheduler.SetMetrics(metrics)

	searchClient, err := fetcher.NewSearchClient(
		cfg.SearchAPIURL,
		cfg.SearchAPIKey,
		cfg.SearchQuery,
		time.Duration(cfg.DeliveryTimeoutSeconds)*time.Second,
	)
	if err != nil {
		return fmt.Errorf("search client initialization failed: %w", err)
	}

	publicationFetcher, err := fetcher.New(
		searchClient,
		webhookRelay,
		cfg.FetchPageSize,
		cfg.FetchMaxPages,
		time.Duration(cfg.FetchForwardDelaySeconds)*time.Second,
		time.Duration(cfg.FetchIntervalMinutes)*time.Minute,
		logger,
	)
	if err != nil {
		return fmt.Errorf("fetcher initialization failed: %w", err)
	}
	publicationFetcher.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler:          handler.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	handler.RegisterHealthRoutes(app, sup, rdb)
	if err := handler.RegisterMessageRoutes(app, scheduler, publicationFetcher, sup); err != nil {
		return fmt.Errorf("route registration failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := sup.Run(gctx)
		if errors.Is(err, domain.ErrLoggedOut) {
			// A logout needs a fresh pairing; keep the API up so the state
			// stays observable.
			logger.Error("transport session logged out, not reconnecting")
			return nil
		}
		return err
	})

	g.Go(func() error {
		return eventPipeline.Run(gctx)
	})

	g.Go(func() error {
		return ignoreCancel(senderGate.Start(gctx))
	})

	g.Go(func() error {
		return ignoreCancel(publicationFetcher.Start(gctx))
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	g.Go(func() error {
		logger.Info("wagate api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("wagate stopped")
	return nil
}

// openSession exposes the supervisor's current session to the outbound
// scheduler, nil while no session is open.
func openSession(sup *supervisor.Supervisor) outbound.SessionSource {
	return func() outbound.Sender {
		sess := sup.Session()
		if sess == nil {
			return nil
		}
		return sess
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
