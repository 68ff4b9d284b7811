// Package main is the entry point for the stock ledger background worker.
// It relays outbox events, expires idempotency keys and optionally refreshes
// the inventory snapshot on a schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"stockledger/internal/config"
	"stockledger/internal/domain/location"
	"stockledger/internal/domain/snapshot"
	"stockledger/internal/infrastructure/messaging"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     cfg.ServiceName + "-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting stockledger worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)

	var handler postgres.OutboxHandler = messaging.LogHandler{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warnw("kafka writer close failed", "error", err)
			}
		}()
		handler = publisher
		log.Infow("relaying outbox to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		log.Info("no kafka brokers configured, outbox events are logged only")
	}

	var syncer Syncer
	if cfg.SyncInterval > 0 {
		itemRepo := catalog_repo.NewStockItemRepo(txm)
		locations := location.NewService(catalog_repo.NewLocationRepo(txm), txm)
		syncer = snapshot.NewService(register_repo.NewSnapshotRepo(txm), itemRepo, locations, txm, postgres.NewOutboxPublisher(txm))
	}

	worker := NewWorker(WorkerConfig{
		Outbox:          postgres.NewOutboxRelay(pool.Unwrap(), cfg.OutboxBatchSize, handler),
		Idempotency:     postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL),
		Snapshot:        syncer,
		OutboxInterval:  cfg.OutboxInterval,
		CleanupInterval: cfg.CleanupInterval,
		SyncInterval:    cfg.SyncInterval,
	}, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}
