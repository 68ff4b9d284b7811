// Package numerator draws document codes from the sys_sequences table.
package numerator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "stockledger/internal/core/numerator"
)

// Querier is the part of pgx the service needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierSource resolves the querier for a context. Wired to the postgres
// TxManager so strict numbers are drawn inside the caller's transaction.
type QuerierSource func(ctx context.Context) Querier

const (
	// bumpSQL adds $2 to the counter, creating it at $2.
	bumpSQL = `INSERT INTO sys_sequences (key, current_val) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
		RETURNING current_val`

	setSQL = `INSERT INTO sys_sequences (key, current_val) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val`

	defaultRangeSize = 50
)

// block is a reserved range (next-1, last] served from memory.
type block struct {
	next, last int64
}

// Service implements corenumerator.Generator over sys_sequences.
type Service struct {
	source QuerierSource

	mu     sync.Mutex
	blocks map[string]*block
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a service that always uses q.
func New(q Querier) *Service {
	return NewFromSource(func(context.Context) Querier { return q })
}

// NewFromSource creates a service that resolves its querier per call.
func NewFromSource(source QuerierSource) *Service {
	return &Service{source: source, blocks: make(map[string]*block)}
}

// GetNextNumber implements corenumerator.Generator.
func (s *Service) GetNextNumber(ctx context.Context, cfg corenumerator.Config, opts *corenumerator.Options, period time.Time) (string, error) {
	if s == nil || s.source == nil {
		return "", errors.New("numerator service is not initialized")
	}
	if opts == nil {
		opts = corenumerator.DefaultOptions()
	}

	key := cfg.Key(period)
	var (
		n   int64
		err error
	)
	if opts.Strategy == corenumerator.StrategyCached {
		n, err = s.nextCached(ctx, key, opts.RangeSize)
	} else {
		n, err = s.bump(ctx, key, 1)
		if err != nil {
			err = fmt.Errorf("strict next %s: %w", key, err)
		}
	}
	if err != nil {
		return "", err
	}
	return cfg.Format(period, n), nil
}

func (s *Service) bump(ctx context.Context, key string, by int64) (int64, error) {
	var v int64
	if err := s.source(ctx).QueryRow(ctx, bumpSQL, key, by).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (s *Service) nextCached(ctx context.Context, key string, size int64) (int64, error) {
	if size <= 0 {
		size = defaultRangeSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.blocks[key]
	if b == nil || b.next > b.last {
		last, err := s.bump(ctx, key, size)
		if err != nil {
			return 0, fmt.Errorf("reserve range %s: %w", key, err)
		}
		b = &block{next: last - size + 1, last: last}
		s.blocks[key] = b
	}
	n := b.next
	b.next++
	return n, nil
}

// SetNextNumber implements corenumerator.Generator. Any cached block for
// the key is dropped.
func (s *Service) SetNextNumber(ctx context.Context, cfg corenumerator.Config, period time.Time, value int64) error {
	key := cfg.Key(period)

	s.mu.Lock()
	delete(s.blocks, key)
	s.mu.Unlock()

	var v int64
	if err := s.source(ctx).QueryRow(ctx, setSQL, key, value).Scan(&v); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
