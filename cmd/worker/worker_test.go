package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"stockledger/internal/domain/snapshot"
	"stockledger/pkg/logger"
)

type fakeOutbox struct {
	batches []int
	calls   atomic.Int32
	dlq     int64
	err     error
}

func (f *fakeOutbox) ProcessBatch(context.Context) (int, error) {
	i := int(f.calls.Add(1)) - 1
	if f.err != nil {
		return 0, f.err
	}
	if i < len(f.batches) {
		return f.batches[i], nil
	}
	return 0, nil
}

func (f *fakeOutbox) MoveToDLQ(context.Context) (int64, error) { return f.dlq, nil }

type fakeCleaner struct{ calls atomic.Int32 }

func (f *fakeCleaner) CleanupExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return 3, nil
}

type fakeSyncer struct{ done chan struct{} }

func (f *fakeSyncer) Sync(context.Context) (*snapshot.SyncResult, error) {
	select {
	case f.done <- struct{}{}:
	default:
	}
	now := time.Now()
	return &snapshot.SyncResult{Items: 2, Records: 3, StartedAt: now, FinishedAt: now}, nil
}

func testLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestWorker_ProcessOutboxDrains(t *testing.T) {
	log, _ := testLogger()
	outbox := &fakeOutbox{batches: []int{100, 100, 7}}
	w := NewWorker(WorkerConfig{Outbox: outbox}, log)

	w.processOutbox(context.Background())

	assert.Equal(t, int32(4), outbox.calls.Load())
}

func TestWorker_ProcessOutboxStopsOnError(t *testing.T) {
	log, logs := testLogger()
	outbox := &fakeOutbox{err: errors.New("connection reset")}
	w := NewWorker(WorkerConfig{Outbox: outbox}, log)

	w.processOutbox(context.Background())

	assert.Equal(t, int32(1), outbox.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("outbox batch failed").Len())
}

func TestWorker_Cleanup(t *testing.T) {
	log, logs := testLogger()
	cleaner := &fakeCleaner{}
	w := NewWorker(WorkerConfig{Outbox: &fakeOutbox{dlq: 2}, Idempotency: cleaner}, log)

	w.cleanup(context.Background())

	assert.Equal(t, int32(1), cleaner.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("moved failed outbox messages to dlq").Len())
	assert.Equal(t, 1, logs.FilterMessage("cleaned up idempotency keys").Len())
}

func TestWorker_RunSchedulesSync(t *testing.T) {
	log, logs := testLogger()
	syncer := &fakeSyncer{done: make(chan struct{}, 1)}
	w := NewWorker(WorkerConfig{Snapshot: syncer, SyncInterval: 5 * time.Millisecond}, log)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	select {
	case <-syncer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot sync never ran")
	}
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.GreaterOrEqual(t, logs.FilterMessage("snapshot synced").Len(), 1)
}

func TestWorker_DisabledJobs(t *testing.T) {
	log, _ := testLogger()
	w := NewWorker(WorkerConfig{SyncInterval: time.Millisecond}, log)

	c, stop := w.ticker(false, time.Millisecond)
	defer stop()
	assert.Nil(t, c)

	c, stop = w.ticker(true, 0)
	defer stop()
	assert.Nil(t, c)
}
