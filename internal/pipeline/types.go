// Package pipeline implements the per-index signal decision chain:
// timeframe analysis, multi-timeframe combination, composite trend
// scoring, and the direction / momentum / volatility / comprehensive
// validation gates. Components are pure evaluators over candle series;
// none of them performs I/O beyond the injected candle source, and none
// of them mutates shared state.
package pipeline

import (
	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/market"
)

// Status of a single timeframe analysis.
type Status string

const (
	StatusOK Status = "ok"

	// StatusNoData means the candle source had nothing for the pair.
	// It is not an error; the caller must reset any scaling state for
	// the index.
	StatusNoData Status = "no_data"
)

// TimeframeResult is the verdict for one index on one timeframe.
type TimeframeResult struct {
	Index       string                      `json:"index"`
	Timeframe   string                      `json:"timeframe"`
	Status      Status                      `json:"status"`
	Direction   market.Direction            `json:"direction"`
	Supertrend  indicators.SupertrendResult `json:"supertrend"`
	ADX         float64                     `json:"adx"`
	ADXKnown    bool                        `json:"adx_known"`
	CandleCount int                         `json:"candle_count"`

	// Series carries the fetched candles forward so downstream
	// validators reuse the same snapshot the verdict was based on.
	Series *market.Series `json:"-"`
}

// FactorResult is the uniform shape of every validator sub-check.
// Reason is always populated, for passing and failing checks alike.
type FactorResult struct {
	Agrees bool   `json:"agrees"`
	Reason string `json:"reason"`
}

// ValidationResult is shared by the direction and momentum validators.
// Score counts the agreeing factors. When Valid is false, Reasons holds
// at least one entry.
type ValidationResult struct {
	Valid     bool                    `json:"valid"`
	Direction market.Direction        `json:"direction"`
	Score     int                     `json:"score"`
	Factors   map[string]FactorResult `json:"factors"`
	Reasons   []string                `json:"reasons,omitempty"`
}

// VolatilityResult gates on the ATR regime rather than a factor count,
// so it carries the measured ratio instead of a score.
type VolatilityResult struct {
	Valid   bool                    `json:"valid"`
	Ratio   float64                 `json:"ratio"`
	Factors map[string]FactorResult `json:"factors"`
	Reasons []string                `json:"reasons,omitempty"`
}

// TrendScore is the composite trend measure. Each component is clamped
// to [0,7] before summation; Volatility is reserved and stays 0 for
// spot index instruments.
type TrendScore struct {
	PA         float64 `json:"pa"`
	Indicator  float64 `json:"indicator"`
	MTF        float64 `json:"mtf"`
	Volatility float64 `json:"volatility"`
}

// Total sums the three live components.
func (t TrendScore) Total() float64 {
	return t.PA + t.Indicator + t.MTF
}

func invalidInput(reason string) ValidationResult {
	return ValidationResult{
		Valid:     false,
		Direction: market.Avoid,
		Score:     0,
		Factors:   map[string]FactorResult{},
		Reasons:   []string{"invalid input: " + reason},
	}
}

func clampComponent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 7 {
		return 7
	}
	return v
}
