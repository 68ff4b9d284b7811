package main

import (
	"context"
	"time"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/security"
	"stockledger/internal/domain/snapshot"
	"stockledger/pkg/logger"
)

// OutboxProcessor drains the transactional outbox.
type OutboxProcessor interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
}

// IdempotencyCleaner deletes expired idempotency keys.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Syncer rebuilds the inventory snapshot.
type Syncer interface {
	Sync(ctx context.Context) (*snapshot.SyncResult, error)
}

// WorkerConfig wires the jobs. A nil job or a non-positive interval disables it.
type WorkerConfig struct {
	Outbox      OutboxProcessor
	Idempotency IdempotencyCleaner
	Snapshot    Syncer

	OutboxInterval  time.Duration
	CleanupInterval time.Duration
	SyncInterval    time.Duration
}

// Worker runs the periodic background jobs.
type Worker struct {
	cfg WorkerConfig
	log *logger.Logger
}

func NewWorker(cfg WorkerConfig, log *logger.Logger) *Worker {
	return &Worker{
		cfg: cfg,
		log: log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	outboxC, stopOutbox := w.ticker(w.cfg.Outbox != nil, w.cfg.OutboxInterval)
	defer stopOutbox()
	cleanupC, stopCleanup := w.ticker(w.cfg.Idempotency != nil || w.cfg.Outbox != nil, w.cfg.CleanupInterval)
	defer stopCleanup()
	syncC, stopSync := w.ticker(w.cfg.Snapshot != nil, w.cfg.SyncInterval)
	defer stopSync()

	for {
		select {
		case <-ctx.Done():
			return
		case <-outboxC:
			w.processOutbox(ctx)
		case <-cleanupC:
			w.cleanup(ctx)
		case <-syncC:
			w.syncSnapshot(ctx)
		}
	}
}

// ticker returns a nil channel for disabled jobs; receiving from it blocks forever.
func (w *Worker) ticker(enabled bool, every time.Duration) (<-chan time.Time, func()) {
	if !enabled || every <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(every)
	return t.C, t.Stop
}

func (w *Worker) processOutbox(ctx context.Context) {
	ctx = appctx.WithTrace(ctx, appctx.NewJobTrace("outbox-relay"))
	// Drain while full batches keep coming back.
	for ctx.Err() == nil {
		n, err := w.cfg.Outbox.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
		w.log.Debugw("processed outbox batch", "count", n)
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if w.cfg.Outbox != nil {
		moved, err := w.cfg.Outbox.MoveToDLQ(ctx)
		if err != nil {
			w.log.Errorw("outbox dlq move failed", "error", err)
		} else if moved > 0 {
			w.log.Warnw("moved failed outbox messages to dlq", "count", moved)
		}
	}
	if w.cfg.Idempotency != nil {
		n, err := w.cfg.Idempotency.CleanupExpired(ctx)
		if err != nil {
			w.log.Errorw("idempotency cleanup failed", "error", err)
		} else if n > 0 {
			w.log.Infow("cleaned up idempotency keys", "count", n)
		}
	}
}

func (w *Worker) syncSnapshot(ctx context.Context) {
	ctx = security.WithUserID(appctx.WithTrace(ctx, appctx.NewJobTrace("snapshot-sync")), "snapshot-sync")
	res, err := w.cfg.Snapshot.Sync(ctx)
	if err != nil {
		w.log.Errorw("snapshot sync failed", "error", err)
		return
	}
	w.log.Infow("snapshot synced",
		"items", res.Items,
		"records", res.Records,
		"changed", res.Changed,
		"locations_created", res.LocationsCreated,
		"zeroed", res.Zeroed,
		"took", res.FinishedAt.Sub(res.StartedAt),
	)
}
