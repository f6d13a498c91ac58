package indicators

import (
	"math"

	"index-signal-engine/internal/market"

	talib "github.com/markcheno/go-talib"
)

// SupertrendParams configures a Supertrend computation.
type SupertrendParams struct {
	Period     int
	Multiplier float64
	// Adaptive scales the multiplier per bar by the current-to-average
	// ATR ratio, widening bands in volatile regimes and tightening them
	// in quiet ones.
	Adaptive bool
}

// Clamp bounds for the adaptive multiplier, as fractions of the base.
const (
	adaptiveFloor = 0.5
	adaptiveCeil  = 1.5
)

// SupertrendResult is the state of the Supertrend line at the latest bar.
// MultiplierHistory is bar-aligned with the input series; warmup
// positions hold NaN, matching the go-talib output convention.
type SupertrendResult struct {
	Trend             market.Direction `json:"trend"`
	LastValue         float64          `json:"last_value"`
	MultiplierHistory []float64        `json:"-"`
}

// Supertrend computes the ATR trailing-band trend line. Trend is None
// when the series is shorter than the ATR warmup.
func Supertrend(s *market.Series, p SupertrendParams) SupertrendResult {
	res := SupertrendResult{Trend: market.None}
	n := s.Len()
	if p.Period <= 0 || p.Multiplier <= 0 || n <= p.Period {
		return res
	}

	atr, firstValid, ok := ATRSeries(s, p.Period)
	if !ok {
		return res
	}

	mult := multiplierSeries(atr, firstValid, p)
	closes := s.Closes()

	hl2 := make([]float64, n)
	for i, c := range s.Candles {
		hl2[i] = (c.High + c.Low) / 2
	}

	upper := make([]float64, n)
	lower := make([]float64, n)
	var line float64
	var up bool

	for i := firstValid; i < n; i++ {
		basicUpper := hl2[i] + mult[i]*atr[i]
		basicLower := hl2[i] - mult[i]*atr[i]

		if i == firstValid {
			upper[i] = basicUpper
			lower[i] = basicLower
			up = closes[i] > hl2[i]
		} else {
			// Final bands only ratchet toward price until a close
			// breaks through the previous band.
			if basicUpper < upper[i-1] || closes[i-1] > upper[i-1] {
				upper[i] = basicUpper
			} else {
				upper[i] = upper[i-1]
			}
			if basicLower > lower[i-1] || closes[i-1] < lower[i-1] {
				lower[i] = basicLower
			} else {
				lower[i] = lower[i-1]
			}

			if up && closes[i] < lower[i] {
				up = false
			} else if !up && closes[i] > upper[i] {
				up = true
			}
		}

		if up {
			line = lower[i]
		} else {
			line = upper[i]
		}
	}

	res.LastValue = line
	res.MultiplierHistory = mult
	if up {
		res.Trend = market.Bullish
	} else {
		res.Trend = market.Bearish
	}
	return res
}

// multiplierSeries produces the per-bar band multiplier. Fixed mode
// repeats the base; adaptive mode scales it by ATR relative to its EMA,
// clamped to [adaptiveFloor, adaptiveCeil] of the base.
func multiplierSeries(atr []float64, firstValid int, p SupertrendParams) []float64 {
	mult := make([]float64, len(atr))
	for i := range mult {
		mult[i] = math.NaN()
	}
	for i := firstValid; i < len(atr); i++ {
		mult[i] = p.Multiplier
	}

	if !p.Adaptive {
		return mult
	}

	valid := atr[firstValid:]
	if len(valid) < p.Period {
		return mult
	}

	avg := talib.Ema(valid, p.Period)
	for j := p.Period - 1; j < len(valid); j++ {
		if math.IsNaN(avg[j]) || avg[j] <= 0 {
			continue
		}
		ratio := valid[j] / avg[j]
		if ratio < adaptiveFloor {
			ratio = adaptiveFloor
		} else if ratio > adaptiveCeil {
			ratio = adaptiveCeil
		}
		mult[firstValid+j] = p.Multiplier * ratio
	}
	return mult
}
