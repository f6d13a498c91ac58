package pipeline

import (
	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/market"
	"index-signal-engine/internal/structure"

	"github.com/rs/zerolog"
)

// TrendScorerConfig parameterizes the composite scorer and the two
// direction thresholds layered on top of it.
type TrendScorerConfig struct {
	BullishThreshold float64
	BearishThreshold float64

	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	ADXPeriod  int
	Supertrend indicators.SupertrendParams

	// SwingWing confirms swing points for the structure-break bonus.
	SwingWing int
}

// DefaultTrendScorerConfig returns the standard intraday parameters.
func DefaultTrendScorerConfig() TrendScorerConfig {
	return TrendScorerConfig{
		BullishThreshold: 14.0,
		BearishThreshold: 7.0,
		RSIPeriod:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		ADXPeriod:        14,
		Supertrend:       indicators.SupertrendParams{Period: 10, Multiplier: 3},
		SwingWing:        2,
	}
}

// TrendScorer computes the 0-21 composite of price action, indicator
// and multi-timeframe alignment components, each clamped to [0,7].
type TrendScorer struct {
	cfg    TrendScorerConfig
	logger zerolog.Logger
}

// NewTrendScorer builds a scorer. Zero thresholds fall back to the
// 14.0/7.0 defaults.
func NewTrendScorer(cfg TrendScorerConfig, logger zerolog.Logger) *TrendScorer {
	if cfg.BullishThreshold == 0 {
		cfg.BullishThreshold = 14.0
	}
	if cfg.BearishThreshold == 0 {
		cfg.BearishThreshold = 7.0
	}
	return &TrendScorer{
		cfg:    cfg,
		logger: logger.With().Str("component", "TrendScorer").Logger(),
	}
}

// MTF fallbacks when no confirmation series exists. A deep primary
// series earns the neutral-plus value, a shallow one the neutral-minus
// value; this is a data-sufficiency proxy, not a real alignment read.
const (
	mtfFallbackDeep    = 3.5
	mtfFallbackShallow = 1.5
	mtfDeepMinCandles  = 20
)

// Score computes the composite for a primary series and an optional
// confirmation series (nil or empty means unconfirmed).
func (ts *TrendScorer) Score(primary, confirmation *market.Series) TrendScore {
	score := TrendScore{
		PA:        clampComponent(ts.scorePriceAction(primary)),
		Indicator: clampComponent(ts.scoreIndicators(primary)),
		MTF:       clampComponent(ts.scoreAlignment(primary, confirmation)),
	}

	ts.logger.Debug().
		Str("index", primary.Index).
		Float64("pa", score.PA).
		Float64("indicator", score.Indicator).
		Float64("mtf", score.MTF).
		Float64("total", score.Total()).
		Msg("Trend score computed")
	return score
}

// DirectionFor maps a composite total onto a direction. Scores between
// the two thresholds resolve to None: insufficient edge, not a veto.
func (ts *TrendScorer) DirectionFor(total float64) market.Direction {
	switch {
	case total >= ts.cfg.BullishThreshold:
		return market.Bullish
	case total <= ts.cfg.BearishThreshold:
		return market.Bearish
	default:
		return market.None
	}
}

func (ts *TrendScorer) scorePriceAction(s *market.Series) float64 {
	closes := s.Closes()
	if len(closes) < 3 {
		return 0
	}

	var score float64

	// Momentum: recent 3-bar average against the 3 bars before it.
	if len(closes) >= 6 {
		recent := mean(closes[len(closes)-3:])
		prior := mean(closes[len(closes)-6 : len(closes)-3])
		if prior != 0 {
			deltaPct := (recent - prior) / prior * 100
			if deltaPct > 1.0 {
				score += 2
			} else if deltaPct > 0.3 {
				score += 1
			}
		}
	}

	candles := s.Candles
	last := candles[len(candles)-1]

	// Structure break: close clearing the latest confirmed swing high.
	if sh, ok := structure.LastSwingHigh(candles, ts.cfg.SwingWing, len(candles)); ok && last.Close > sh.Price {
		score += 1
	}
	// Rising swing-low sequence.
	if lows := structure.SwingLows(candles, ts.cfg.SwingWing); len(lows) >= 2 {
		if lows[len(lows)-1].Price > lows[len(lows)-2].Price {
			score += 0.5
		}
	}

	// Candle pattern: a decisive bullish body outranks a plain one.
	if last.IsBullish() {
		if r := last.Range(); r > 0 && last.Body() >= 0.6*r {
			score += 1
		} else {
			score += 0.5
		}
	}
	if len(candles) >= 2 && last.High > candles[len(candles)-2].High {
		score += 0.5
	}

	// Consistency: strictly increasing close pairs across the last 5.
	window := closes
	if len(window) > 5 {
		window = window[len(window)-5:]
	}
	increasing := 0
	for i := 1; i < len(window); i++ {
		if window[i] > window[i-1] {
			increasing++
		}
	}
	if increasing >= 4 {
		score += 1
	} else if increasing >= 3 {
		score += 0.5
	}

	return score
}

func (ts *TrendScorer) scoreIndicators(s *market.Series) float64 {
	closes := s.Closes()
	var score float64

	if rsi, ok := indicators.RSI(closes, ts.cfg.RSIPeriod); ok {
		switch {
		case rsi > 50 && rsi < 70:
			score += 2
		case rsi > 40 && rsi < 80:
			score += 1
		case rsi > 30:
			score += 0.5
		}
	}

	if macd, ok := indicators.MACD(closes, ts.cfg.MACDFast, ts.cfg.MACDSlow, ts.cfg.MACDSignal); ok {
		switch {
		case macd.Line > macd.Signal && macd.Histogram > 0:
			score += 2
		case macd.Line > macd.Signal:
			score += 1
		case macd.Histogram > 0:
			score += 0.5
		}
	}

	if adx, ok := indicators.ADX(s, ts.cfg.ADXPeriod); ok {
		switch {
		case adx > 25:
			score += 2
		case adx > 20:
			score += 1
		case adx > 15:
			score += 0.5
		}
	}

	if indicators.Supertrend(s, ts.cfg.Supertrend).Trend == market.Bullish {
		score += 1
	}

	return score
}

func (ts *TrendScorer) scoreAlignment(primary, confirmation *market.Series) float64 {
	if confirmation.Len() == 0 {
		if primary.Len() >= mtfDeepMinCandles {
			return mtfFallbackDeep
		}
		return mtfFallbackShallow
	}

	var score float64

	// RSI alignment.
	above := 0
	if rsi, ok := indicators.RSI(primary.Closes(), ts.cfg.RSIPeriod); ok && rsi > 50 {
		above++
	}
	if rsi, ok := indicators.RSI(confirmation.Closes(), ts.cfg.RSIPeriod); ok && rsi > 50 {
		above++
	}
	switch above {
	case 2:
		score += 2
	case 1:
		score += 1
	}

	// Supertrend alignment, recomputed per series.
	bullish := 0
	if indicators.Supertrend(primary, ts.cfg.Supertrend).Trend == market.Bullish {
		bullish++
	}
	if indicators.Supertrend(confirmation, ts.cfg.Supertrend).Trend == market.Bullish {
		bullish++
	}
	switch bullish {
	case 2:
		score += 3
	case 1:
		score += 1.5
	}

	// Short momentum sign, 3 bars against the prior 3, per series.
	up := 0
	if momentumUp(primary.Closes()) {
		up++
	}
	if momentumUp(confirmation.Closes()) {
		up++
	}
	switch up {
	case 2:
		score += 2
	case 1:
		score += 1
	}

	return score
}

func momentumUp(closes []float64) bool {
	if len(closes) < 6 {
		return false
	}
	recent := mean(closes[len(closes)-3:])
	prior := mean(closes[len(closes)-6 : len(closes)-3])
	return recent > prior
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
