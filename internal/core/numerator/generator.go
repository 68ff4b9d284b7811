// Package numerator defines human-readable document codes such as
// CC-2026-00017. The sys_sequences implementation lives in
// infrastructure/numerator.
package numerator

import (
	"context"
	"fmt"
	"time"
)

// Generator hands out codes that are monotonic within a reset period.
type Generator interface {
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber overwrites the counter, e.g. after importing documents.
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}

// Strategy selects how numbers are drawn from storage.
type Strategy int

const (
	// StrategyStrict draws every number inside the caller's transaction,
	// so a rolled-back document leaves no gap.
	StrategyStrict Strategy = iota

	// StrategyCached reserves RangeSize numbers at a time and serves them
	// from memory. Unused numbers are lost on restart.
	StrategyCached
)

type Options struct {
	Strategy  Strategy
	RangeSize int64 // cached only; 50 when zero
}

func DefaultOptions() *Options { return &Options{Strategy: StrategyStrict} }

// ResetPeriod controls when the counter starts again from 1.
type ResetPeriod string

const (
	ResetYear  ResetPeriod = "year"
	ResetMonth ResetPeriod = "month"
	ResetNever ResetPeriod = "never"
)

// Config describes one code series.
type Config struct {
	Prefix      string
	IncludeYear bool
	PadWidth    int // 5 when zero
	ResetPeriod ResetPeriod
}

// DefaultConfig is PREFIX-YYYY-NNNNN, reset yearly.
func DefaultConfig(prefix string) Config {
	return Config{Prefix: prefix, IncludeYear: true, PadWidth: 5, ResetPeriod: ResetYear}
}

// Key names the counter that serves period.
func (c Config) Key(period time.Time) string {
	switch c.ResetPeriod {
	case ResetMonth:
		return c.Prefix + "_" + period.Format("2006_01")
	case ResetYear:
		return c.Prefix + "_" + period.Format("2006")
	default:
		return c.Prefix
	}
}

// Format renders number n as a code.
func (c Config) Format(period time.Time, n int64) string {
	width := c.PadWidth
	if width <= 0 {
		width = 5
	}
	if c.IncludeYear {
		return fmt.Sprintf("%s-%04d-%0*d", c.Prefix, period.Year(), width, n)
	}
	return fmt.Sprintf("%s-%0*d", c.Prefix, width, n)
}
