package structure

import (
	"testing"
	"time"

	"index-signal-engine/internal/market"
)

type bar struct {
	high, low, closePx float64
}

func candlesFromBars(bars []bar) []market.Candle {
	base := time.Date(2026, 2, 3, 9, 15, 0, 0, time.UTC)
	out := make([]market.Candle, len(bars))
	for i, b := range bars {
		out[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      b.closePx,
			High:      b.high,
			Low:       b.low,
			Close:     b.closePx,
			Volume:    1000,
		}
	}
	return out
}

// mirror reflects a bar sequence around a price level, turning swing
// highs into swing lows and uptrends into downtrends.
func mirror(bars []bar, level float64) []bar {
	out := make([]bar, len(bars))
	for i, b := range bars {
		out[i] = bar{
			high:    2*level - b.low,
			low:     2*level - b.high,
			closePx: 2*level - b.closePx,
		}
	}
	return out
}

func TestSwingHighsConfirmation(t *testing.T) {
	candles := candlesFromBars([]bar{
		{101, 99, 100}, {102, 100, 101}, {110, 101, 108}, {102, 100, 101}, {101, 99, 100},
		{102, 100, 101}, {103, 101, 102}, {107, 102, 106}, {103, 101, 102}, {102, 100, 101},
	})

	points := SwingHighs(candles, 2)
	if len(points) != 2 {
		t.Fatalf("found %d swing highs, want 2", len(points))
	}
	if points[0].Index != 2 || points[0].Price != 110 {
		t.Errorf("first swing = idx %d price %v, want idx 2 price 110", points[0].Index, points[0].Price)
	}
	if points[1].Index != 7 || points[1].Price != 107 {
		t.Errorf("second swing = idx %d price %v, want idx 7 price 107", points[1].Index, points[1].Price)
	}
}

func TestSwingLowsConfirmation(t *testing.T) {
	candles := candlesFromBars([]bar{
		{101, 99, 100}, {100, 98, 99}, {99, 90, 92}, {100, 98, 99}, {101, 99, 100},
	})

	points := SwingLows(candles, 2)
	if len(points) != 1 {
		t.Fatalf("found %d swing lows, want 1", len(points))
	}
	if points[0].Index != 2 || points[0].Price != 90 {
		t.Errorf("swing low = idx %d price %v, want idx 2 price 90", points[0].Index, points[0].Price)
	}
}

func TestSwingPointsNeedBothWings(t *testing.T) {
	// The peak sits in the last two bars, so it can never confirm.
	candles := candlesFromBars([]bar{
		{100, 98, 99}, {101, 99, 100}, {102, 100, 101}, {110, 101, 108}, {105, 100, 102},
	})
	if points := SwingHighs(candles, 2); len(points) != 0 {
		t.Errorf("unconfirmed peak reported as swing: %+v", points)
	}
}

func TestLastSwingHighWithinWindow(t *testing.T) {
	candles := candlesFromBars([]bar{
		{101, 99, 100}, {102, 100, 101}, {110, 101, 108}, {102, 100, 101}, {101, 99, 100},
		{100, 98, 99}, {100, 98, 99}, {100, 98, 99},
	})

	if _, ok := LastSwingHigh(candles, 2, len(candles)); !ok {
		t.Fatal("swing at idx 2 should be found with a full window")
	}
	if _, ok := LastSwingHigh(candles, 2, 3); ok {
		t.Error("swing at idx 2 should fall outside a 3-bar window")
	}
}

func TestBOSDirectionBullishBreak(t *testing.T) {
	candles := candlesFromBars([]bar{
		{100, 98, 99}, {101, 99, 100}, {110, 101, 108}, {102, 100, 101}, {101, 99, 100},
		{103, 100, 102}, {104, 101, 103}, {105, 102, 104}, {106, 103, 105}, {112, 104, 111},
	})
	if dir := BOSDirection(candles, len(candles)); dir != market.Bullish {
		t.Errorf("close above confirmed swing high = %s, want bullish", dir)
	}
}

func TestBOSDirectionBearishBreak(t *testing.T) {
	candles := candlesFromBars([]bar{
		{102, 100, 101}, {101, 99, 100}, {100, 90, 92}, {99, 98, 98.5}, {98, 99, 98.2},
		{97, 97.5, 97.2}, {96, 96.5, 96.2}, {95, 95.5, 95.2}, {94, 94.5, 94.2}, {93, 89, 89.5},
	})
	if dir := BOSDirection(candles, len(candles)); dir != market.Bearish {
		t.Errorf("close below confirmed swing low = %s, want bearish", dir)
	}
}

func TestBOSDirectionContainedRange(t *testing.T) {
	candles := candlesFromBars([]bar{
		{100, 96, 98}, {101, 97, 99}, {110, 95, 105}, {101, 97, 99}, {100, 96, 98},
		{101, 97, 99}, {102, 98, 100}, {101, 97, 99}, {102, 98, 100}, {103, 99, 102},
	})
	if dir := BOSDirection(candles, len(candles)); dir != market.None {
		t.Errorf("contained range = %s, want none", dir)
	}
}

func chochReversalBars() []bar {
	return []bar{
		{118, 110, 114}, {119, 111, 115}, {120, 112, 116}, {113, 106, 108}, {110, 103, 105},
		{108, 100, 104}, {112, 101, 110}, {114, 103, 112}, {115, 105, 113}, {108, 99, 102},
		{107, 97, 100}, {106, 95, 98}, {110, 96, 108}, {112, 100, 111}, {114, 105, 113},
		{118, 110, 117},
	}
}

func TestCHOCHBullishReversal(t *testing.T) {
	candles := candlesFromBars(chochReversalBars())
	if dir := CHOCH(candles, len(candles)); dir != market.Bullish {
		t.Errorf("break above lower-high sequence = %s, want bullish", dir)
	}
}

func TestCHOCHBearishReversal(t *testing.T) {
	candles := candlesFromBars(mirror(chochReversalBars(), 107))
	if dir := CHOCH(candles, len(candles)); dir != market.Bearish {
		t.Errorf("break below higher-low sequence = %s, want bearish", dir)
	}
}

func TestCHOCHNeedsPriorTrend(t *testing.T) {
	// A steady rise has no second swing pair to reverse.
	candles := candlesFromBars([]bar{
		{100, 98, 99}, {101, 99, 100}, {102, 100, 101}, {103, 101, 102}, {104, 102, 103},
		{105, 103, 104}, {106, 104, 105}, {107, 105, 106}, {108, 106, 107}, {109, 107, 108},
	})
	if dir := CHOCH(candles, len(candles)); dir != market.None {
		t.Errorf("steady rise = %s, want none", dir)
	}
}

func TestHigherHighRatio(t *testing.T) {
	rising := candlesFromBars([]bar{
		{100, 98, 99}, {101, 99, 100}, {102, 100, 101}, {103, 101, 102}, {104, 102, 103},
	})
	ratio, pairs := HigherHighRatio(rising, 5)
	if pairs != 4 || ratio != 1.0 {
		t.Errorf("strict rise ratio = %v over %d pairs, want 1.0 over 4", ratio, pairs)
	}

	// One equal pair must not count.
	withEqual := candlesFromBars([]bar{
		{100, 98, 99}, {101, 99, 100}, {101, 99, 100}, {102, 100, 101}, {103, 101, 102},
	})
	ratio, pairs = HigherHighRatio(withEqual, 5)
	if pairs != 4 || ratio != 0.75 {
		t.Errorf("ratio with equal highs = %v over %d pairs, want 0.75 over 4", ratio, pairs)
	}

	if _, pairs := HigherHighRatio(rising[:1], 5); pairs != 0 {
		t.Errorf("single candle should yield 0 pairs, got %d", pairs)
	}
}

func TestLowerLowRatio(t *testing.T) {
	falling := candlesFromBars([]bar{
		{104, 102, 103}, {103, 101, 102}, {102, 100, 101}, {101, 99, 100}, {100, 98, 99},
	})
	ratio, pairs := LowerLowRatio(falling, 5)
	if pairs != 4 || ratio != 1.0 {
		t.Errorf("strict fall ratio = %v over %d pairs, want 1.0 over 4", ratio, pairs)
	}
}

func TestVWAPChopDetection(t *testing.T) {
	choppy := make([]bar, 10)
	for i := range choppy {
		if i%2 == 0 {
			choppy[i] = bar{101, 99, 100.6}
		} else {
			choppy[i] = bar{101, 99, 99.4}
		}
	}
	s := market.NewSeries("NIFTY", "5", candlesFromBars(choppy))
	if !VWAPChop(s, 10, 4) {
		t.Error("alternating closes should register as chop")
	}

	trend := make([]bar, 10)
	for i := range trend {
		px := 100 + float64(i)
		trend[i] = bar{px + 1, px - 1, px}
	}
	s = market.NewSeries("NIFTY", "5", candlesFromBars(trend))
	if VWAPChop(s, 10, 4) {
		t.Error("steady trend should not register as chop")
	}
}
