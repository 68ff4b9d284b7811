package numerator

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Generator for tests and tooling.
// Its zero value is ready to use.
type Memory struct {
	mu       sync.Mutex
	counters map[string]int64
}

var _ Generator = (*Memory)(nil)

func (m *Memory) GetNextNumber(_ context.Context, cfg Config, _ *Options, period time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	key := cfg.Key(period)
	m.counters[key]++
	return cfg.Format(period, m.counters[key]), nil
}

// SetNextNumber makes the next call return value+1.
func (m *Memory) SetNextNumber(_ context.Context, cfg Config, period time.Time, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	m.counters[cfg.Key(period)] = value
	return nil
}
