package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appdelivery "github.com/erp/delivery/internal/application/delivery"
	"github.com/erp/delivery/internal/domain/shared"
	"github.com/erp/delivery/internal/infrastructure/auth"
	"github.com/erp/delivery/internal/infrastructure/cache"
	"github.com/erp/delivery/internal/infrastructure/config"
	"github.com/erp/delivery/internal/infrastructure/inventory"
	"github.com/erp/delivery/internal/infrastructure/logger"
	"github.com/erp/delivery/internal/infrastructure/persistence"
	"github.com/erp/delivery/internal/infrastructure/printing"
	"github.com/erp/delivery/internal/infrastructure/worker"
	"github.com/erp/delivery/internal/interfaces/http/handler"
	"github.com/erp/delivery/internal/interfaces/http/router"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting delivery service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database
	gormLog := logger.NewGormLogger(log)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories
	recordRepo := persistence.NewGormDeliveryRecordRepository(db.DB)
	outboxRepo := persistence.NewGormOutboxRepository(db.DB)

	// Idempotency store for the retry worker. Redis when reachable,
	// in-memory otherwise so a missing cache never blocks startup.
	var idempotencyStore shared.IdempotencyStore
	redisStore, err := cache.NewRedisIdempotencyStore(cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, using in-memory idempotency store", zap.Error(err))
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
	} else {
		idempotencyStore = redisStore
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	// Stock ledger client
	reconciler := inventory.NewClient(cfg.Inventory)

	// Printing pipeline
	templateEngine := printing.NewTemplateEngine()
	renderer, err := printing.NewChromedpRenderer(cfg.Printing, log)
	if err != nil {
		log.Fatal("Failed to initialize PDF renderer", zap.Error(err))
	}
	defer renderer.Close()

	storage, err := printing.NewFileSystemStorage(cfg.Printing, log)
	if err != nil {
		log.Fatal("Failed to initialize PDF storage", zap.Error(err))
	}

	// Application services
	artifactService := appdelivery.NewArtifactService(
		recordRepo, templateEngine, renderer, storage, cfg.App, cfg.Printing, log)
	confirmationService := appdelivery.NewConfirmationService(
		recordRepo, reconciler, outboxRepo, cfg.Inventory.CallTimeout, log)

	// Reconciliation retry worker
	var reconciliationWorker *worker.ReconciliationWorker
	if cfg.Outbox.WorkerEnabled {
		workerCfg := worker.DefaultReconciliationWorkerConfig()
		workerCfg.BatchSize = cfg.Outbox.BatchSize
		workerCfg.PollInterval = cfg.Outbox.PollInterval
		workerCfg.CleanupEnabled = cfg.Outbox.CleanupEnabled
		workerCfg.CleanupRetention = cfg.Outbox.CleanupRetention

		reconciliationWorker = worker.NewReconciliationWorker(
			outboxRepo, reconciler, idempotencyStore, workerCfg, log)
		if err := reconciliationWorker.Start(context.Background()); err != nil {
			log.Fatal("Failed to start reconciliation worker", zap.Error(err))
		}
	} else {
		log.Warn("Reconciliation retry worker disabled; failed credits will not be replayed")
	}

	// HTTP surface
	jwtService := auth.NewJWTService(cfg.JWT)
	deliveryHandler := handler.NewDeliveryHandler(artifactService, confirmationService, log)
	systemHandler := handler.NewSystemHandler(db.DB, version, log)

	engine := router.New(router.Dependencies{
		Config:     cfg,
		Logger:     log,
		JWTService: jwtService,
		Delivery:   deliveryHandler,
		System:     systemHandler,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if reconciliationWorker != nil {
		if err := reconciliationWorker.Stop(shutdownCtx); err != nil {
			log.Error("Reconciliation worker shutdown failed", zap.Error(err))
		}
	}

	log.Info("Shutdown complete")
}
