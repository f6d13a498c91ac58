// Package indicators wraps the classical indicator math the pipeline
// scores with. Computation is delegated to go-talib; every function
// returns (value, ok) where ok=false means the input window is too
// short to produce a defined value. Callers treat ok=false as a zero
// contribution, never as an error.
package indicators

import (
	"math"

	"index-signal-engine/internal/market"

	talib "github.com/markcheno/go-talib"
)

// MACDValue carries the three MACD outputs for the latest bar.
type MACDValue struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// RSI returns the Wilder RSI of the latest bar.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) <= period {
		return 0, false
	}
	return lastValid(talib.Rsi(closes, period), period)
}

// EMA returns the exponential moving average of the latest bar.
func EMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	return lastValid(talib.Ema(values, period), period-1)
}

// MACD returns line, signal and histogram for the latest bar.
func MACD(closes []float64, fast, slow, signal int) (MACDValue, bool) {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return MACDValue{}, false
	}
	lookback := slow + signal - 2
	if len(closes) <= lookback {
		return MACDValue{}, false
	}

	line, sig, hist := talib.Macd(closes, fast, slow, signal)
	l, okL := lastValid(line, lookback)
	s, okS := lastValid(sig, lookback)
	h, okH := lastValid(hist, lookback)
	if !okL || !okS || !okH {
		return MACDValue{}, false
	}
	return MACDValue{Line: l, Signal: s, Histogram: h}, true
}

// ADX returns the average directional index of the latest bar. The
// Wilder smoothing needs two full periods of bars before the first
// defined value.
func ADX(s *market.Series, period int) (float64, bool) {
	if period <= 0 || s.Len() < 2*period {
		return 0, false
	}
	out := talib.Adx(s.Highs(), s.Lows(), s.Closes(), period)
	return lastValid(out, 2*period-1)
}

// ATR returns the average true range of the latest bar.
func ATR(s *market.Series, period int) (float64, bool) {
	if period <= 0 || s.Len() <= period {
		return 0, false
	}
	out := talib.Atr(s.Highs(), s.Lows(), s.Closes(), period)
	return lastValid(out, period)
}

// ATRSeries returns the full bar-aligned ATR slice. Values before the
// warmup index are not defined; use the returned first-valid index.
func ATRSeries(s *market.Series, period int) (values []float64, firstValid int, ok bool) {
	if period <= 0 || s.Len() <= period {
		return nil, 0, false
	}
	return talib.Atr(s.Highs(), s.Lows(), s.Closes(), period), period, true
}

// VWAP returns the volume weighted average price over the last window
// bars (all bars when window exceeds the series). ok=false when no
// volume traded in the window.
func VWAP(s *market.Series, window int) (float64, bool) {
	n := s.Len()
	if n == 0 || window <= 0 {
		return 0, false
	}
	if window > n {
		window = n
	}

	var pv, vol float64
	for _, c := range s.Candles[n-window:] {
		pv += c.TypicalPrice() * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0, false
	}
	return pv / vol, true
}

// lastValid extracts the final value of a talib output slice, treating
// warmup positions and NaN as undefined.
func lastValid(values []float64, lookback int) (float64, bool) {
	idx := len(values) - 1
	if idx < lookback {
		return 0, false
	}
	v := values[idx]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
