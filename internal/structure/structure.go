// Package structure detects price-structure features on candle series:
// swing points, structure breaks, and chop. All functions operate on
// chronologically ordered candles, oldest first.
package structure

import (
	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/market"
)

// SwingPoint is a confirmed local extreme.
type SwingPoint struct {
	Index int     `json:"index"`
	Price float64 `json:"price"`
}

// Wing used for structure-break detection. Two bars each side is tight
// enough to react intraday without flagging every wick.
const breakWing = 2

// SwingHighs returns all confirmed swing highs: bars whose high is
// strictly above every high within wing bars on both sides. The last
// wing bars can never confirm.
func SwingHighs(candles []market.Candle, wing int) []SwingPoint {
	if wing <= 0 || len(candles) < 2*wing+1 {
		return nil
	}

	var points []SwingPoint
	for i := wing; i < len(candles)-wing; i++ {
		h := candles[i].High
		confirmed := true
		for j := i - wing; j <= i+wing; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= h {
				confirmed = false
				break
			}
		}
		if confirmed {
			points = append(points, SwingPoint{Index: i, Price: h})
		}
	}
	return points
}

// SwingLows returns all confirmed swing lows, mirroring SwingHighs.
func SwingLows(candles []market.Candle, wing int) []SwingPoint {
	if wing <= 0 || len(candles) < 2*wing+1 {
		return nil
	}

	var points []SwingPoint
	for i := wing; i < len(candles)-wing; i++ {
		l := candles[i].Low
		confirmed := true
		for j := i - wing; j <= i+wing; j++ {
			if j == i {
				continue
			}
			if candles[j].Low <= l {
				confirmed = false
				break
			}
		}
		if confirmed {
			points = append(points, SwingPoint{Index: i, Price: l})
		}
	}
	return points
}

// LastSwingHigh returns the most recent confirmed swing high whose bar
// lies within the last `within` candles.
func LastSwingHigh(candles []market.Candle, wing, within int) (SwingPoint, bool) {
	points := SwingHighs(candles, wing)
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Index >= len(candles)-within {
			return points[i], true
		}
	}
	return SwingPoint{}, false
}

// LastSwingLow returns the most recent confirmed swing low whose bar
// lies within the last `within` candles.
func LastSwingLow(candles []market.Candle, wing, within int) (SwingPoint, bool) {
	points := SwingLows(candles, wing)
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Index >= len(candles)-within {
			return points[i], true
		}
	}
	return SwingPoint{}, false
}

// BOSDirection reports a break of structure inside the last lookback
// candles: the latest close clearing the most recent confirmed swing
// high is bullish, undercutting the most recent confirmed swing low is
// bearish, anything else is none.
func BOSDirection(candles []market.Candle, lookback int) market.Direction {
	window := tail(candles, lookback)
	if len(window) < 2*breakWing+2 {
		return market.None
	}

	lastClose := window[len(window)-1].Close
	if sh, ok := LastSwingHigh(window, breakWing, len(window)); ok && lastClose > sh.Price {
		return market.Bullish
	}
	if sl, ok := LastSwingLow(window, breakWing, len(window)); ok && lastClose < sl.Price {
		return market.Bearish
	}
	return market.None
}

// CHOCH reports a change of character: a structure break that opposes
// the prevailing swing sequence. A bullish CHOCH needs lower highs and
// lower lows beforehand, then a close above the latest swing high; the
// bearish case mirrors it.
func CHOCH(candles []market.Candle, lookback int) market.Direction {
	window := tail(candles, lookback)
	if len(window) < 2*breakWing+2 {
		return market.None
	}

	highs := SwingHighs(window, breakWing)
	lows := SwingLows(window, breakWing)
	if len(highs) < 2 || len(lows) < 2 {
		return market.None
	}

	lastHigh, prevHigh := highs[len(highs)-1], highs[len(highs)-2]
	lastLow, prevLow := lows[len(lows)-1], lows[len(lows)-2]
	lastClose := window[len(window)-1].Close

	downtrend := lastHigh.Price < prevHigh.Price && lastLow.Price < prevLow.Price
	uptrend := lastHigh.Price > prevHigh.Price && lastLow.Price > prevLow.Price

	if downtrend && lastClose > lastHigh.Price {
		return market.Bullish
	}
	if uptrend && lastClose < lastLow.Price {
		return market.Bearish
	}
	return market.None
}

// HigherHighRatio returns the fraction of strictly higher-high
// consecutive pairs over the last n candles, plus the number of pairs
// compared. Equal highs do not count.
func HigherHighRatio(candles []market.Candle, n int) (float64, int) {
	window := tail(candles, n)
	if len(window) < 2 {
		return 0, 0
	}

	pairs := len(window) - 1
	count := 0
	for i := 1; i < len(window); i++ {
		if window[i].High > window[i-1].High {
			count++
		}
	}
	return float64(count) / float64(pairs), pairs
}

// LowerLowRatio mirrors HigherHighRatio for strictly lower lows.
func LowerLowRatio(candles []market.Candle, n int) (float64, int) {
	window := tail(candles, n)
	if len(window) < 2 {
		return 0, 0
	}

	pairs := len(window) - 1
	count := 0
	for i := 1; i < len(window); i++ {
		if window[i].Low < window[i-1].Low {
			count++
		}
	}
	return float64(count) / float64(pairs), pairs
}

// VWAPChop reports whether closes flipped sides against the window VWAP
// at least minCrosses times within the last window candles.
func VWAPChop(s *market.Series, window, minCrosses int) bool {
	if s.Len() < 2 || minCrosses <= 0 {
		return false
	}

	vwap, ok := indicators.VWAP(s, window)
	if !ok {
		return false
	}

	candles := s.LastN(window)
	crosses := 0
	prevAbove := candles[0].Close > vwap
	for _, c := range candles[1:] {
		above := c.Close > vwap
		if above != prevAbove {
			crosses++
			prevAbove = above
		}
	}
	return crosses >= minCrosses
}

func tail(candles []market.Candle, n int) []market.Candle {
	if n <= 0 || len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
