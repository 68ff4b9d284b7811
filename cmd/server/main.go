// Package main is the entry point for the stock ledger API server.
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

	"github.com/gin-gonic/gin"

	"stockledger/internal/config"
	"stockledger/internal/domain"
	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/counting"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/location"
	"stockledger/internal/domain/snapshot"
	"stockledger/internal/infrastructure/discovery"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/numerator"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/document_repo"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
	"stockledger/internal/infrastructure/telemetry"
	"stockledger/pkg/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     cfg.ServiceName,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	log.Infow("starting stockledger server", "version", version, "env", cfg.AppEnv)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)

	// --- Metrics ---
	metrics, err := telemetry.Init()
	if err != nil {
		log.Fatalw("failed to initialize metrics", "error", err)
	}
	if err := pool.RegisterMetrics(); err != nil {
		log.Warnw("failed to register pool metrics", "error", err)
	}

	// --- Infrastructure services ---
	audit, err := postgres.NewAuditService(txm)
	if err != nil {
		log.Fatalw("failed to initialize audit", "error", err)
	}
	outbox := postgres.NewOutboxPublisher(txm)
	numbers := numerator.NewFromSource(func(ctx context.Context) numerator.Querier {
		return txm.GetQuerier(ctx)
	})

	// --- Domain services ---
	locationRepo := catalog_repo.NewLocationRepo(txm)
	itemRepo := catalog_repo.NewStockItemRepo(txm)
	snapshotRepo := register_repo.NewSnapshotRepo(txm)

	locations := location.NewService(locationRepo, txm)
	ledgerSvc := ledger.NewService(ledger.ServiceConfig{
		Items:     itemRepo,
		Movements: register_repo.NewMovementRepo(txm),
		TxManager: txm,
		Events:    outbox,
		Audit:     audit,
	})
	snapshots := snapshot.NewService(snapshotRepo, itemRepo, locations, txm, outbox)
	ledgerSvc.Hooks().On(domain.AfterUpdate, snapshots.OnMovement)
	ledgerSvc.Hooks().On(domain.AfterDelete, snapshots.OnMovement)

	countingSvc := counting.NewService(counting.ServiceConfig{
		Repo:      document_repo.NewCountSessionRepo(txm),
		Snapshots: snapshotRepo,
		Ledger:    ledgerSvc,
		Numerator: numbers,
		TxManager: txm,
		Events:    outbox,
		Audit:     audit,
	})

	// --- JWT ---
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))

	var idempotency middleware.IdempotencyStore
	if cfg.IdempotencyEnabled {
		idempotency = postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL)
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:           log,
		JWTValidator:     jwtService,
		DB:               pool,
		IdempotencyStore: idempotency,
		Metrics:          metrics.Handler(),
		Version:          version,
		Locations:        locations,
		Ledger:           ledgerSvc,
		Snapshots:        snapshots,
		Counting:         countingSvc,
		Audit:            audit,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Service discovery ---
	var registrar *discovery.Registrar
	if cfg.ConsulAddr != "" {
		registrar, err = discovery.NewRegistrar(cfg.ConsulAddr, discovery.Registration{
			ID:   cfg.ServiceID,
			Name: cfg.ServiceName,
			Port: cfg.Port,
			Tags: []string{"api", version},
		})
		if err == nil {
			err = registrar.Register()
		}
		if err != nil {
			log.Warnw("consul registration failed", "error", err, "addr", cfg.ConsulAddr)
			registrar = nil
		} else {
			log.Infow("registered with consul", "service", cfg.ServiceName, "id", cfg.ServiceID)
		}
	}

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	if registrar != nil {
		if err := registrar.Deregister(); err != nil {
			log.Warnw("consul deregistration failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Warnw("metrics shutdown failed", "error", err)
	}

	log.Info("server stopped")
}
