package indicators

import (
	"math"
	"testing"

	"index-signal-engine/internal/market"
)

func defaultParams() SupertrendParams {
	return SupertrendParams{Period: 10, Multiplier: 3}
}

func TestSupertrendInsufficientData(t *testing.T) {
	res := Supertrend(risingSeries(10), defaultParams())
	if res.Trend != market.None {
		t.Errorf("trend on 10 candles with period 10 = %s, want none", res.Trend)
	}
}

func TestSupertrendTracksUptrend(t *testing.T) {
	s := risingSeries(60)
	res := Supertrend(s, defaultParams())

	if res.Trend != market.Bullish {
		t.Fatalf("trend = %s, want bullish", res.Trend)
	}
	last, _ := s.Last()
	if res.LastValue >= last.Close {
		t.Errorf("bullish line %v should sit below price %v", res.LastValue, last.Close)
	}
}

func TestSupertrendTracksDowntrend(t *testing.T) {
	s := fallingSeries(60)
	res := Supertrend(s, defaultParams())

	if res.Trend != market.Bearish {
		t.Fatalf("trend = %s, want bearish", res.Trend)
	}
	last, _ := s.Last()
	if res.LastValue <= last.Close {
		t.Errorf("bearish line %v should sit above price %v", res.LastValue, last.Close)
	}
}

func TestSupertrendFlipsOnReversal(t *testing.T) {
	s := buildSeries(60, func(i int) (float64, float64) {
		if i < 40 {
			o := 100 + float64(i)*0.5
			return o, o + 0.5
		}
		o := 120 - float64(i-40)*2
		return o, o - 2
	})

	res := Supertrend(s, defaultParams())
	if res.Trend != market.Bearish {
		t.Errorf("trend after sharp reversal = %s, want bearish", res.Trend)
	}
}

func TestSupertrendMultiplierHistory(t *testing.T) {
	s := risingSeries(60)

	fixed := Supertrend(s, defaultParams())
	if len(fixed.MultiplierHistory) != s.Len() {
		t.Fatalf("history length = %d, want %d", len(fixed.MultiplierHistory), s.Len())
	}
	for i := 0; i < 10; i++ {
		if !math.IsNaN(fixed.MultiplierHistory[i]) {
			t.Fatalf("warmup multiplier at %d = %v, want NaN", i, fixed.MultiplierHistory[i])
		}
	}
	for i := 10; i < s.Len(); i++ {
		if fixed.MultiplierHistory[i] != 3 {
			t.Fatalf("fixed multiplier at %d = %v, want 3", i, fixed.MultiplierHistory[i])
		}
	}
}

func TestSupertrendAdaptiveMultiplierBounds(t *testing.T) {
	// Quiet stretch followed by wide-range bars, so the ATR ratio moves
	// in both directions.
	s := buildSeries(80, func(i int) (float64, float64) {
		o := 100 + float64(i)*0.2
		if i >= 60 {
			return o, o + 4
		}
		return o, o + 0.2
	})

	p := defaultParams()
	p.Adaptive = true
	res := Supertrend(s, p)

	sawScaled := false
	for i, m := range res.MultiplierHistory {
		if math.IsNaN(m) {
			continue
		}
		if m < p.Multiplier*adaptiveFloor-1e-9 || m > p.Multiplier*adaptiveCeil+1e-9 {
			t.Fatalf("adaptive multiplier at %d = %v outside clamp", i, m)
		}
		if m != p.Multiplier {
			sawScaled = true
		}
	}
	if !sawScaled {
		t.Error("adaptive mode never moved the multiplier off its base")
	}
}
