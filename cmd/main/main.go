package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/cache"
	"github.com/acounsel/asfour/internal/channel"
	"github.com/acounsel/asfour/internal/config"
	"github.com/acounsel/asfour/internal/dispatch"
	"github.com/acounsel/asfour/internal/notify"
	"github.com/acounsel/asfour/internal/observer"
	"github.com/acounsel/asfour/internal/progress"
	"github.com/acounsel/asfour/internal/queue"
	"github.com/acounsel/asfour/internal/storage"
	"github.com/acounsel/asfour/internal/usecase"
	"github.com/acounsel/asfour/internal/webhook"
	"github.com/acounsel/asfour/pkg/logger"
	"github.com/acounsel/asfour/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting Asfour messaging coordinator",
		zap.String("environment", cfg.Environment),
		zap.String("nats_url", cfg.NATS.URL),
		zap.Int("port", cfg.Server.Port),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	queueClient, err := queue.NewClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize queue client", zap.Error(err))
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	progressStore, err := progress.NewRedisStore(startupCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	startupCancel()
	if err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Create repository adapters for the services
	orgRepo := storage.NewOrgRepoAdapter(postgresRepo)
	contactRepo := storage.NewContactRepoAdapter(postgresRepo)
	messageRepo := storage.NewMessageRepoAdapter(postgresRepo)
	messageLogRepo := storage.NewMessageLogRepoAdapter(postgresRepo)
	responseRepo := storage.NewResponseRepoAdapter(postgresRepo)
	autoreplyRepo := storage.NewAutoreplyRepoAdapter(postgresRepo)
	exhaustedJobRepo := storage.NewExhaustedJobRepoAdapter(postgresRepo)

	// Provider and notifier clients
	providerClient := channel.NewTwilioClient(cfg.Provider.BaseURL, cfg.Provider.Timeout)
	notifier := notify.NewSendGridNotifier(cfg.Email.APIKey, cfg.Email.From, cfg.Provider.Timeout)

	// Bloom pre-filter for inbound contact resolution
	contactCache := cache.NewContactCache(100000, 10000, 0.01)

	// Forwarding worker pool
	forwardWorker, err := usecase.NewForwardWorker(cfg.WorkerPools.Forwarding, providerClient, notifier, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize forwarding worker pool", zap.Error(err))
	}

	// Inbound reconciliation engine
	matcher := usecase.NewAutoreplyMatcher(autoreplyRepo, contactRepo)
	reconcileService := usecase.NewReconcileService(
		orgRepo, contactRepo, messageRepo, messageLogRepo, responseRepo,
		matcher, forwardWorker, contactCache,
	)

	// Outbound dispatch pipeline
	dispatcher := dispatch.NewDispatcher(
		orgRepo, messageRepo, messageLogRepo,
		providerClient, notifier, progressStore, cfg.Server.BaseURL,
	)
	consumer := usecase.NewDispatchConsumer(queueClient, dispatcher, exhaustedJobRepo, cfg.NATS.Dispatch)
	if err := consumer.Setup(); err != nil {
		logger.Log.Fatal("Failed to set up dispatch consumer", zap.Error(err))
	}

	publisher := queue.NewDispatchPublisher(queueClient)

	// Webhook surface
	handler := webhook.NewHandler(
		reconcileService, orgRepo, contactRepo, messageRepo, messageLogRepo, responseRepo,
		publisher, progressStore, notifier,
		cfg.Email.Admin, cfg.Server.BaseURL,
	)
	server := webhook.NewServer(cfg.Server.Port, handler, logger.Log)

	if metricsEnabled {
		server.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}

	server.Start()

	if err := consumer.Start(); err != nil {
		logger.Log.Fatal("Failed to start dispatch consumer", zap.Error(err))
	}

	logger.Log.Info("Webhook endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(4)

	// Stop accepting new work first: consumer drains in-flight jobs.
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping dispatch consumer")
		start := time.Now()
		consumer.Stop()
		logger.Log.Info("[shutdown] Dispatch consumer stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping dispatch consumer",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Stop the forwarding pool
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping forwarding worker pool")
		start := time.Now()
		forwardWorker.Stop()
		logger.Log.Info("[shutdown] Forwarding worker pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping forwarding worker pool",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Stop the webhook server (includes metrics if enabled)
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping webhook server")
		start := time.Now()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping webhook server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Webhook server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping webhook server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close connections
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing Redis connection")
		if err := progressStore.Close(); err != nil {
			logger.Log.Error("[shutdown] Failed to close Redis connection", zap.Error(err))
		}

		logger.Log.Info("[shutdown] Closing queue connection")
		qStart := time.Now()
		queueClient.Close()
		logger.Log.Info("[shutdown] Queue connection closed",
			zap.Duration("duration", time.Since(qStart)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Asfour shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}
