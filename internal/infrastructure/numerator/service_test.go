package numerator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "stockledger/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences: args are (key, n), where n is an
// increment for bumps and the new value for sets.
type mockQuerier struct {
	mu     sync.Mutex
	values map[string]int64
	calls  int
	err    error
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{values: make(map[string]int64)}
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return &mockRow{err: m.err}
	}

	key, n := args[0].(string), args[1].(int64)
	if strings.Contains(sql, "current_val + $2") {
		m.values[key] += n
	} else {
		m.values[key] = n
	}
	return &mockRow{val: m.values[key]}
}

var period = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	cfg := corenumerator.DefaultConfig("CC")

	first, err := svc.GetNextNumber(context.Background(), cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "CC-2026-00001", first)

	second, err := svc.GetNextNumber(context.Background(), cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "CC-2026-00002", second)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_ResetsPerYear(t *testing.T) {
	svc := New(newMockQuerier())
	cfg := corenumerator.DefaultConfig("CC")

	_, err := svc.GetNextNumber(context.Background(), cfg, nil, period)
	require.NoError(t, err)

	next, err := svc.GetNextNumber(context.Background(), cfg, nil, period.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "CC-2027-00001", next)
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	cfg := corenumerator.DefaultConfig("CC")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	num, err := svc.GetNextNumber(context.Background(), cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "CC-2026-00001", num)
	assert.Equal(t, int64(10), q.values["CC_2026"])

	for i := 0; i < 9; i++ {
		_, err = svc.GetNextNumber(context.Background(), cfg, opts, period)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, q.calls, "range of 10 served from memory")

	num, err = svc.GetNextNumber(context.Background(), cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "CC-2026-00011", num)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_UsesSource(t *testing.T) {
	q := newMockQuerier()
	var resolved int
	svc := NewFromSource(func(ctx context.Context) Querier {
		resolved++
		return q
	})

	_, err := svc.GetNextNumber(context.Background(), corenumerator.DefaultConfig("CC"), nil, period)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
}

func TestGetNextNumber_PropagatesError(t *testing.T) {
	q := newMockQuerier()
	q.err = errors.New("connection reset")
	svc := New(q)

	_, err := svc.GetNextNumber(context.Background(), corenumerator.DefaultConfig("CC"), nil, period)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict next")
}

func TestSetNextNumber_DropsCachedBlock(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	cfg := corenumerator.DefaultConfig("CC")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	_, err := svc.GetNextNumber(context.Background(), cfg, opts, period)
	require.NoError(t, err)

	require.NoError(t, svc.SetNextNumber(context.Background(), cfg, period, 500))
	assert.Equal(t, int64(500), q.values["CC_2026"])

	num, err := svc.GetNextNumber(context.Background(), cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "CC-2026-00501", num)
}
