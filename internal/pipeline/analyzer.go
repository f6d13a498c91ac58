package pipeline

import (
	"context"
	"fmt"
	"strings"

	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/market"
	"index-signal-engine/internal/marketdata"

	"github.com/rs/zerolog"
)

// AnalyzerConfig sets the indicator parameters for per-timeframe
// analysis. MinADX of 0 disables the trend-strength filter.
type AnalyzerConfig struct {
	Supertrend indicators.SupertrendParams
	ADXPeriod  int
	MinADX     float64
}

// TimeframeAnalyzer produces the directional verdict for one index on
// one timeframe: Supertrend direction gated by ADX strength.
type TimeframeAnalyzer struct {
	source marketdata.CandleSource
	cfg    AnalyzerConfig
	logger zerolog.Logger
}

// NewTimeframeAnalyzer wires an analyzer to its candle source.
func NewTimeframeAnalyzer(source marketdata.CandleSource, cfg AnalyzerConfig, logger zerolog.Logger) *TimeframeAnalyzer {
	return &TimeframeAnalyzer{
		source: source,
		cfg:    cfg,
		logger: logger.With().Str("component", "TimeframeAnalyzer").Logger(),
	}
}

// NormalizeTimeframe strips every non-digit character, so "15m", "15min"
// and "15" address the same series. An empty result is an error.
func NormalizeTimeframe(timeframe string) (string, error) {
	var b strings.Builder
	for _, r := range timeframe {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("invalid timeframe %q: no digits", timeframe)
	}
	return b.String(), nil
}

// Analyze fetches the series and derives the timeframe verdict. A
// missing or empty series yields StatusNoData with no error; transport
// failures surface as errors for the caller's evaluation boundary.
func (a *TimeframeAnalyzer) Analyze(ctx context.Context, index, timeframe string) (*TimeframeResult, error) {
	tf, err := NormalizeTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	series, err := a.source.Candles(ctx, index, tf)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s/%s: %w", index, tf, err)
	}
	if series.Len() == 0 {
		a.logger.Debug().Str("index", index).Str("timeframe", tf).Msg("No candle data")
		return &TimeframeResult{
			Index:     index,
			Timeframe: tf,
			Status:    StatusNoData,
			Direction: market.Avoid,
		}, nil
	}

	st := indicators.Supertrend(series, a.cfg.Supertrend)
	adx, adxKnown := indicators.ADX(series, a.cfg.ADXPeriod)

	direction := market.Avoid
	switch {
	case a.cfg.MinADX > 0 && (!adxKnown || adx < a.cfg.MinADX):
		direction = market.Avoid
	case st.Trend.Actionable():
		direction = st.Trend
	}

	a.logger.Debug().
		Str("index", index).
		Str("timeframe", tf).
		Str("direction", direction.String()).
		Float64("adx", adx).
		Int("candles", series.Len()).
		Msg("Timeframe analyzed")

	return &TimeframeResult{
		Index:       index,
		Timeframe:   tf,
		Status:      StatusOK,
		Direction:   direction,
		Supertrend:  st,
		ADX:         adx,
		ADXKnown:    adxKnown,
		CandleCount: series.Len(),
		Series:      series,
	}, nil
}
