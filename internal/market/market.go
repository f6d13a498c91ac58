// Package market holds the core value types shared across the signal
// pipeline: candles, candle series, and trade direction labels.
package market

import (
	"math"
	"time"
)

// Direction labels the directional bias attached to an index evaluation.
type Direction string

const (
	// Bullish and Bearish are the two actionable directions.
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"

	// Avoid means a filter or conflict actively vetoed the index.
	Avoid Direction = "avoid"

	// None means no directional edge was resolved. It is weaker than
	// Avoid: nothing vetoed the index, it just did not qualify.
	None Direction = "none"
)

// Actionable reports whether the direction can back a trade.
func (d Direction) Actionable() bool {
	return d == Bullish || d == Bearish
}

// Opposite returns the inverse of an actionable direction and leaves
// Avoid and None unchanged.
func (d Direction) Opposite() Direction {
	switch d {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	default:
		return d
	}
}

func (d Direction) String() string {
	return string(d)
}

// Candle is a single OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// Range returns the high-to-low distance.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// TypicalPrice returns (high + low + close) / 3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3.0
}

// Series is an ordered run of candles for one index and timeframe,
// oldest first.
type Series struct {
	Index     string   `json:"index"`
	Timeframe string   `json:"timeframe"`
	Candles   []Candle `json:"candles"`
}

// NewSeries builds a series over the given candles. The slice is used
// as-is, not copied.
func NewSeries(index, timeframe string, candles []Candle) *Series {
	return &Series{Index: index, Timeframe: timeframe, Candles: candles}
}

// Len returns the number of candles. Safe on a nil series.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candles)
}

// Last returns the most recent candle, or false when the series is empty.
func (s *Series) Last() (Candle, bool) {
	if s.Len() == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// LastN returns up to n most recent candles as a view into the series.
func (s *Series) LastN(n int) []Candle {
	if s.Len() == 0 || n <= 0 {
		return nil
	}
	if n > len(s.Candles) {
		n = len(s.Candles)
	}
	return s.Candles[len(s.Candles)-n:]
}

// Closes returns the close prices, oldest first.
func (s *Series) Closes() []float64 {
	out := make([]float64, s.Len())
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high prices, oldest first.
func (s *Series) Highs() []float64 {
	out := make([]float64, s.Len())
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

// Lows returns the low prices, oldest first.
func (s *Series) Lows() []float64 {
	out := make([]float64, s.Len())
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}

// Volumes returns the traded volumes, oldest first.
func (s *Series) Volumes() []float64 {
	out := make([]float64, s.Len())
	for i, c := range s.Candles {
		out[i] = c.Volume
	}
	return out
}
