package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHookRegistry_StopsAtFirstError(t *testing.T) {
	r := NewHookRegistry[*int]()
	var calls []string
	r.On(AfterUpdate, func(_ context.Context, n *int) error { calls = append(calls, "a"); *n++; return nil })
	r.On(AfterUpdate, func(context.Context, *int) error { calls = append(calls, "b"); return errors.New("stop") })
	r.On(AfterUpdate, func(context.Context, *int) error { calls = append(calls, "c"); return nil })

	n := 0
	err := r.Run(t.Context(), AfterUpdate, &n)

	assert.EqualError(t, err, "stop")
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Equal(t, 1, n)
	assert.NoError(t, r.Run(t.Context(), AfterDelete, &n))
}

func TestListFilter_Normalize(t *testing.T) {
	f := ListFilter{Limit: 5000, Offset: -3}
	f.Normalize()
	assert.Equal(t, ListFilter{Limit: 50}, f)

	f = ListFilter{Limit: 10, Offset: 20}
	f.Normalize()
	assert.Equal(t, 10, f.Limit)
	assert.Equal(t, 20, f.Offset)
}

func TestDateRange_Contains(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	assert.True(t, DateRange{}.Contains(from))
	assert.True(t, DateRange{From: &from, To: &to}.Contains(from))
	assert.True(t, DateRange{From: &from, To: &to}.Contains(to))
	assert.False(t, DateRange{From: &from}.Contains(from.Add(-time.Second)))
	assert.False(t, DateRange{To: &to}.Contains(to.Add(time.Second)))
}
