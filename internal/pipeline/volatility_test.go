package pipeline

import (
	"strings"
	"testing"
	"time"

	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

func testVolatilityValidator(t *testing.T, cfg VolatilityConfig) *VolatilityValidator {
	t.Helper()
	v, err := NewVolatilityValidator(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewVolatilityValidator: %v", err)
	}
	return v
}

// rangeSeries builds candles centered on 100 whose true range is taken
// from ranges, one bar per entry.
func rangeSeries(ranges []float64) *market.Series {
	base := time.Date(2026, 2, 3, 4, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(ranges))
	for i, r := range ranges {
		candles[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      100,
			High:      100 + r/2,
			Low:       100 - r/2,
			Close:     100,
			Volume:    1000,
		}
	}
	return market.NewSeries("NIFTY", "5", candles)
}

func repeatRanges(r float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r
	}
	return out
}

// timedChopSeries alternates closes between 100 and 101 with the last
// candle stamped at end, walking back in 5-minute steps.
func timedChopSeries(n int, end time.Time) *market.Series {
	candles := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		up := i%2 == 0
		c := market.Candle{
			Timestamp: end.Add(-time.Duration(n-1-i) * 5 * time.Minute),
			High:      101.3,
			Low:       99.7,
			Volume:    1000,
		}
		if up {
			c.Open, c.Close = 100, 101
		} else {
			c.Open, c.Close = 101, 100
		}
		candles[i] = c
	}
	return market.NewSeries("NIFTY", "5", candles)
}

func TestVolatilityValidatorRejectsBadRatioBound(t *testing.T) {
	for _, bad := range []float64{-0.1, 2.5} {
		cfg := DefaultVolatilityConfig(time.UTC)
		cfg.MinATRRatio = bad
		v := testVolatilityValidator(t, cfg)

		res := v.Validate(rangeSeries(repeatRanges(2.0, 60)))
		if res.Valid {
			t.Errorf("min_atr_ratio %.2f should be rejected", bad)
		}
		if len(res.Reasons) == 0 || !strings.Contains(res.Reasons[0], "invalid input") {
			t.Errorf("missing invalid-input reason: %v", res.Reasons)
		}
	}
}

func TestVolatilityValidatorRejectsMalformedChopWindow(t *testing.T) {
	cfg := DefaultVolatilityConfig(time.UTC)
	cfg.ChopStart = "25:99"
	if _, err := NewVolatilityValidator(cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for malformed chop window")
	}
}

func TestVolatilityValidatorInsufficientCandles(t *testing.T) {
	v := testVolatilityValidator(t, DefaultVolatilityConfig(time.UTC))

	res := v.Validate(rangeSeries(repeatRanges(2.0, 41)))
	if res.Valid {
		t.Error("41 candles must not validate")
	}
	if len(res.Reasons) != 1 || !strings.Contains(res.Reasons[0], "insufficient candles: 41 < 42") {
		t.Errorf("unexpected reasons: %v", res.Reasons)
	}
	if len(res.Factors) != 0 {
		t.Errorf("no factors should be evaluated, got %d", len(res.Factors))
	}
}

func TestVolatilityValidatorSteadyRegime(t *testing.T) {
	v := testVolatilityValidator(t, DefaultVolatilityConfig(time.UTC))

	res := v.Validate(rangeSeries(repeatRanges(2.0, 60)))
	if !res.Valid {
		t.Fatalf("constant true range should validate, reasons: %v", res.Reasons)
	}
	if res.Ratio < 0.99 || res.Ratio > 1.01 {
		t.Errorf("constant regime ratio should sit at 1.0, got %.4f", res.Ratio)
	}
	for name, f := range res.Factors {
		if !f.Agrees {
			t.Errorf("factor %s should agree: %s", name, f.Reason)
		}
	}
}

func TestVolatilityValidatorCollapsedRatio(t *testing.T) {
	// Forty wide bars then twenty tight ones: the current ATR sits far
	// below the reading fourteen bars earlier.
	ranges := append(repeatRanges(10.0, 40), repeatRanges(0.1, 20)...)
	s := rangeSeries(ranges)

	v := testVolatilityValidator(t, DefaultVolatilityConfig(time.UTC))
	res := v.Validate(s)

	if res.Valid {
		t.Error("collapsed ATR regime must not validate")
	}
	f := res.Factors[FactorATRRatio]
	if f.Agrees {
		t.Errorf("ratio factor should fail: %s", f.Reason)
	}

	current, ok := indicators.ATR(s, 14)
	if !ok {
		t.Fatal("current ATR not computable")
	}
	prior := market.NewSeries(s.Index, s.Timeframe, s.Candles[:s.Len()-14])
	historical, ok := indicators.ATR(prior, 14)
	if !ok {
		t.Fatal("historical ATR not computable")
	}
	want := current / historical
	if res.Ratio != want {
		t.Errorf("ratio %.6f, want %.6f", res.Ratio, want)
	}
	if want >= 0.65 {
		t.Fatalf("scenario broken: ratio %.4f not below threshold", want)
	}
}

func TestVolatilityValidatorCompressionVeto(t *testing.T) {
	// A gentle taper keeps the ratio healthy while the ATR declines for
	// more than four consecutive readings.
	ranges := append(repeatRanges(2.0, 55), 1.9, 1.8, 1.7, 1.6, 1.5)
	v := testVolatilityValidator(t, DefaultVolatilityConfig(time.UTC))

	res := v.Validate(rangeSeries(ranges))
	if res.Valid {
		t.Error("sustained compression must not validate")
	}
	if !res.Factors[FactorATRRatio].Agrees {
		t.Errorf("ratio factor should still agree: %s", res.Factors[FactorATRRatio].Reason)
	}
	f := res.Factors[FactorCompression]
	if f.Agrees {
		t.Error("compression factor should fail")
	}
	if !strings.Contains(f.Reason, "declining") {
		t.Errorf("unexpected compression reason: %s", f.Reason)
	}
}

func TestVolatilityValidatorChopWindowVeto(t *testing.T) {
	ist := time.FixedZone("IST", 19800)
	v := testVolatilityValidator(t, DefaultVolatilityConfig(ist))

	midday := timedChopSeries(60, time.Date(2026, 2, 3, 12, 30, 0, 0, ist))
	res := v.Validate(midday)
	if res.Valid {
		t.Error("churning price at 12:30 IST must not validate")
	}
	f := res.Factors[FactorChopWindow]
	if f.Agrees {
		t.Errorf("chop factor should fail: %s", f.Reason)
	}
	if !strings.Contains(f.Reason, "12:00-13:00") {
		t.Errorf("reason should name the window: %s", f.Reason)
	}

	morning := timedChopSeries(60, time.Date(2026, 2, 3, 10, 0, 0, 0, ist))
	res = v.Validate(morning)
	if !res.Factors[FactorChopWindow].Agrees {
		t.Errorf("10:00 IST is outside the window: %s", res.Factors[FactorChopWindow].Reason)
	}
	if !res.Valid {
		t.Errorf("same tape outside the window should validate, reasons: %v", res.Reasons)
	}
}
