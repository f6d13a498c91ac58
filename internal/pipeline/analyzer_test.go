package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

// fakeSource serves canned series per index/timeframe pair.
type fakeSource struct {
	series map[string]*market.Series
	errs   map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{series: map[string]*market.Series{}, errs: map[string]error{}}
}

func (f *fakeSource) put(index, tf string, s *market.Series) {
	f.series[index+":"+tf] = s
}

func (f *fakeSource) fail(index, tf string, err error) {
	f.errs[index+":"+tf] = err
}

func (f *fakeSource) Candles(_ context.Context, index, tf string) (*market.Series, error) {
	if err, ok := f.errs[index+":"+tf]; ok {
		return nil, err
	}
	return f.series[index+":"+tf], nil
}

// driftSeries builds n candles drifting by step per bar. Positive steps
// make bullish bodies, negative steps bearish ones.
func driftSeries(index, tf string, n int, start, step float64) *market.Series {
	return driftSeriesAt(index, tf, n, start, step, time.Date(2026, 2, 3, 4, 0, 0, 0, time.UTC))
}

func driftSeriesAt(index, tf string, n int, start, step float64, base time.Time) *market.Series {
	candles := make([]market.Candle, n)
	price := start
	wick := 0.4 * step
	if wick < 0 {
		wick = -wick
	}
	if wick == 0 {
		wick = 0.4
	}
	for i := 0; i < n; i++ {
		open := price
		closePx := price + step
		hi, lo := open, closePx
		if closePx > open {
			hi, lo = closePx, open
		}
		candles[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      hi + wick,
			Low:       lo - wick,
			Close:     closePx,
			Volume:    1000,
		}
		price = closePx
	}
	return market.NewSeries(index, tf, candles)
}

// chopSeries alternates one bar up, one bar down around a level.
func chopSeries(index, tf string, n int) *market.Series {
	base := time.Date(2026, 2, 3, 4, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		open, closePx := 100.0, 101.0
		if i%2 == 1 {
			open, closePx = 101.0, 100.0
		}
		hi, lo := open, closePx
		if closePx > open {
			hi, lo = closePx, open
		}
		candles[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      hi + 0.3,
			Low:       lo - 0.3,
			Close:     closePx,
			Volume:    1000,
		}
	}
	return market.NewSeries(index, tf, candles)
}

func countAgrees(factors map[string]FactorResult) int {
	n := 0
	for _, f := range factors {
		if f.Agrees {
			n++
		}
	}
	return n
}

func testAnalyzer(src *fakeSource, minADX float64) *TimeframeAnalyzer {
	return NewTimeframeAnalyzer(src, AnalyzerConfig{
		Supertrend: indicators.SupertrendParams{Period: 10, Multiplier: 3},
		ADXPeriod:  14,
		MinADX:     minADX,
	}, zerolog.Nop())
}

func TestNormalizeTimeframe(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"15m", "15"},
		{"15", "15"},
		{"60min", "60"},
		{"1h", "1"},
	}
	for _, c := range cases {
		got, err := NormalizeTimeframe(c.in)
		if err != nil {
			t.Errorf("NormalizeTimeframe(%q) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("NormalizeTimeframe(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	for _, bad := range []string{"", "m", "daily"} {
		if _, err := NormalizeTimeframe(bad); err == nil {
			t.Errorf("NormalizeTimeframe(%q) should fail", bad)
		}
	}
}

func TestAnalyzeNoDataStatus(t *testing.T) {
	a := testAnalyzer(newFakeSource(), 0)

	res, err := a.Analyze(context.Background(), "NIFTY", "5m")
	if err != nil {
		t.Fatalf("missing data must not be an error, got %v", err)
	}
	if res.Status != StatusNoData {
		t.Errorf("status = %s, want no_data", res.Status)
	}
	if res.Direction != market.Avoid {
		t.Errorf("direction = %s, want avoid", res.Direction)
	}
}

func TestAnalyzeTransportError(t *testing.T) {
	src := newFakeSource()
	src.fail("NIFTY", "5", errors.New("feed disconnected"))
	a := testAnalyzer(src, 0)

	if _, err := a.Analyze(context.Background(), "NIFTY", "5"); err == nil {
		t.Fatal("transport failure should surface as an error")
	}
}

func TestAnalyzeDirectionFromSupertrend(t *testing.T) {
	src := newFakeSource()
	src.put("NIFTY", "5", driftSeries("NIFTY", "5", 60, 100, 0.5))
	src.put("BANKNIFTY", "5", driftSeries("BANKNIFTY", "5", 60, 200, -0.5))
	a := testAnalyzer(src, 0)

	up, err := a.Analyze(context.Background(), "NIFTY", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if up.Direction != market.Bullish {
		t.Errorf("rising series direction = %s, want bullish", up.Direction)
	}
	if up.CandleCount != 60 || up.Status != StatusOK {
		t.Errorf("result bookkeeping wrong: %+v", up)
	}

	down, err := a.Analyze(context.Background(), "BANKNIFTY", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if down.Direction != market.Bearish {
		t.Errorf("falling series direction = %s, want bearish", down.Direction)
	}
}

func TestAnalyzeADXFilterVetoes(t *testing.T) {
	src := newFakeSource()
	src.put("NIFTY", "5", chopSeries("NIFTY", "5", 60))
	a := testAnalyzer(src, 25)

	res, err := a.Analyze(context.Background(), "NIFTY", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Direction != market.Avoid {
		t.Errorf("weak-trend direction = %s, want avoid", res.Direction)
	}
	if res.Status != StatusOK {
		t.Errorf("ADX veto is a verdict, not missing data: status %s", res.Status)
	}
}

func TestAnalyzeShortSeriesAvoids(t *testing.T) {
	src := newFakeSource()
	src.put("NIFTY", "5", driftSeries("NIFTY", "5", 5, 100, 0.5))
	a := testAnalyzer(src, 0)

	res, err := a.Analyze(context.Background(), "NIFTY", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Direction != market.Avoid {
		t.Errorf("5 candles cannot resolve a trend, got %s", res.Direction)
	}
}
