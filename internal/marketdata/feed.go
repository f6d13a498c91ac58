// Package marketdata defines where the pipeline gets its candles from.
// The engine only depends on the CandleSource contract; Feed is the
// in-memory implementation fed by an external vendor stream.
package marketdata

import (
	"context"
	"fmt"
	"sync"

	"index-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

// CandleSource supplies the candle series for one index and timeframe.
// A missing series is reported as (nil, nil), never as an error; errors
// are reserved for transport faults.
type CandleSource interface {
	Candles(ctx context.Context, index, timeframe string) (*market.Series, error)
}

// Feed is a thread-safe in-memory candle store keyed by index and
// timeframe. It holds a rolling window of the most recent bars.
type Feed struct {
	mu      sync.RWMutex
	series  map[string]*market.Series
	maxBars int
	logger  zerolog.Logger
}

// DefaultMaxBars bounds the rolling window per index/timeframe pair.
const DefaultMaxBars = 500

// NewFeed creates an empty feed. maxBars <= 0 selects DefaultMaxBars.
func NewFeed(maxBars int, logger zerolog.Logger) *Feed {
	if maxBars <= 0 {
		maxBars = DefaultMaxBars
	}
	return &Feed{
		series:  make(map[string]*market.Series),
		maxBars: maxBars,
		logger:  logger.With().Str("component", "MarketFeed").Logger(),
	}
}

// Candles returns a snapshot of the stored series, or (nil, nil) when
// nothing has been published for the pair yet.
func (f *Feed) Candles(ctx context.Context, index, timeframe string) (*market.Series, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s, ok := f.series[feedKey(index, timeframe)]
	if !ok || s.Len() == 0 {
		return nil, nil
	}

	candles := make([]market.Candle, len(s.Candles))
	copy(candles, s.Candles)
	return market.NewSeries(s.Index, s.Timeframe, candles), nil
}

// Publish replaces the stored series for its index/timeframe pair,
// trimming to the rolling window.
func (f *Feed) Publish(s *market.Series) {
	if s == nil || s.Index == "" || s.Timeframe == "" {
		return
	}

	candles := s.Candles
	if len(candles) > f.maxBars {
		candles = candles[len(candles)-f.maxBars:]
	}
	stored := make([]market.Candle, len(candles))
	copy(stored, candles)

	f.mu.Lock()
	f.series[feedKey(s.Index, s.Timeframe)] = market.NewSeries(s.Index, s.Timeframe, stored)
	f.mu.Unlock()

	f.logger.Debug().
		Str("index", s.Index).
		Str("timeframe", s.Timeframe).
		Int("candles", len(stored)).
		Msg("Series published")
}

// Append adds one candle to the stored series, creating it on first use.
func (f *Feed) Append(index, timeframe string, c market.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := feedKey(index, timeframe)
	s, ok := f.series[key]
	if !ok {
		s = market.NewSeries(index, timeframe, nil)
		f.series[key] = s
	}

	s.Candles = append(s.Candles, c)
	if len(s.Candles) > f.maxBars {
		trimmed := make([]market.Candle, f.maxBars)
		copy(trimmed, s.Candles[len(s.Candles)-f.maxBars:])
		s.Candles = trimmed
	}
}

// Pairs lists the index/timeframe keys currently held, for status views.
func (f *Feed) Pairs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.series))
	for k := range f.series {
		out = append(out, k)
	}
	return out
}

func feedKey(index, timeframe string) string {
	return fmt.Sprintf("%s:%s", index, timeframe)
}
