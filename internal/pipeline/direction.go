package pipeline

import (
	"context"
	"fmt"

	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/market"
	"index-signal-engine/internal/marketdata"
	"index-signal-engine/internal/structure"

	"github.com/rs/zerolog"
)

// Factor names, in evaluation order.
const (
	FactorHTFSupertrend   = "htf_supertrend"
	FactorADXStrength     = "adx_strength"
	FactorVWAPPosition    = "vwap_position"
	FactorBOSAlignment    = "bos_alignment"
	FactorCHOCHAlignment  = "choch_alignment"
	FactorCandleStructure = "candle_structure"
)

var directionFactorOrder = []string{
	FactorHTFSupertrend,
	FactorADXStrength,
	FactorVWAPPosition,
	FactorBOSAlignment,
	FactorCHOCHAlignment,
	FactorCandleStructure,
}

// DirectionConfig parameterizes the six agreement checks.
type DirectionConfig struct {
	// MinAgreement is how many of the six factors must agree; valid
	// range is [1,6].
	MinAgreement int

	// HigherTimeframe is the fixed confirmation timeframe for the HTF
	// Supertrend check, e.g. "60".
	HigherTimeframe string

	VWAPWindow  int // bars considered for the VWAP position, at most
	VWAPMinBars int // bars required before VWAP position is judged

	BOSLookback   int // bars scanned for a break of structure
	CHOCHLookback int // bars scanned for a change of character

	StructureBars     int     // candle-structure window
	StructureMinBars  int     // minimum candles before the check runs
	StructureMinRatio float64 // fraction of pairs that must align

	ADXPeriod  int
	Supertrend indicators.SupertrendParams
}

// DefaultDirectionConfig returns the intraday defaults.
func DefaultDirectionConfig() DirectionConfig {
	return DirectionConfig{
		MinAgreement:      4,
		HigherTimeframe:   "60",
		VWAPWindow:        20,
		VWAPMinBars:       10,
		BOSLookback:       20,
		CHOCHLookback:     40,
		StructureBars:     5,
		StructureMinBars:  3,
		StructureMinRatio: 0.8,
		ADXPeriod:         14,
		Supertrend:        indicators.SupertrendParams{Period: 10, Multiplier: 3},
	}
}

// DirectionValidator runs six independent directional-agreement checks
// and requires a configurable minimum count of them to agree. A failing
// collaborator inside one check becomes that check's failing reason;
// the other five always run.
type DirectionValidator struct {
	source     marketdata.CandleSource
	thresholds *ThresholdTable
	cfg        DirectionConfig
	logger     zerolog.Logger
}

// NewDirectionValidator wires the validator to the candle source used
// by the higher-timeframe check and the per-index threshold table.
func NewDirectionValidator(source marketdata.CandleSource, thresholds *ThresholdTable, cfg DirectionConfig, logger zerolog.Logger) *DirectionValidator {
	return &DirectionValidator{
		source:     source,
		thresholds: thresholds,
		cfg:        cfg,
		logger:     logger.With().Str("component", "DirectionValidator").Logger(),
	}
}

// Validate scores the candidate direction for an index against all six
// factors. Malformed inputs produce a structured invalid result, never
// a panic.
func (v *DirectionValidator) Validate(ctx context.Context, index string, direction market.Direction, primary *market.Series) ValidationResult {
	if v.cfg.MinAgreement < 1 || v.cfg.MinAgreement > 6 {
		return invalidInput(fmt.Sprintf("min_agreement %d outside [1,6]", v.cfg.MinAgreement))
	}
	if !direction.Actionable() {
		return invalidInput(fmt.Sprintf("direction %q is not tradeable", direction))
	}

	limits := v.thresholds.For(index)
	factors := map[string]FactorResult{
		FactorHTFSupertrend:   v.checkHigherTimeframe(ctx, index, direction, limits),
		FactorADXStrength:     v.checkADXStrength(primary, limits),
		FactorVWAPPosition:    v.checkVWAPPosition(direction, primary),
		FactorBOSAlignment:    v.checkBOSAlignment(direction, primary),
		FactorCHOCHAlignment:  v.checkCHOCHAlignment(direction, primary),
		FactorCandleStructure: v.checkCandleStructure(direction, primary),
	}

	score := 0
	var reasons []string
	for _, name := range directionFactorOrder {
		f := factors[name]
		if f.Agrees {
			score++
		} else {
			reasons = append(reasons, fmt.Sprintf("%s: %s", name, f.Reason))
		}
	}

	valid := score >= v.cfg.MinAgreement
	if valid {
		reasons = nil
	} else {
		reasons = append(reasons, fmt.Sprintf("%d/6 factors agree, need %d", score, v.cfg.MinAgreement))
	}

	v.logger.Debug().
		Str("index", index).
		Str("direction", direction.String()).
		Int("score", score).
		Bool("valid", valid).
		Msg("Direction validated")

	return ValidationResult{
		Valid:     valid,
		Direction: direction,
		Score:     score,
		Factors:   factors,
		Reasons:   reasons,
	}
}

func (v *DirectionValidator) checkHigherTimeframe(ctx context.Context, index string, direction market.Direction, limits IndexThresholds) FactorResult {
	htf := v.cfg.HigherTimeframe
	series, err := v.source.Candles(ctx, index, htf)
	if err != nil {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("higher timeframe fetch failed: %v", err)}
	}
	if series.Len() == 0 {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("no %s-minute data", htf)}
	}

	st := indicators.Supertrend(series, v.cfg.Supertrend)
	adx, adxKnown := indicators.ADX(series, v.cfg.ADXPeriod)
	return htfAgreement(htf, st.Trend, direction, adx, adxKnown, limits)
}

// htfAgreement judges the higher-timeframe factor from its computed
// inputs: trend equality first, then the per-index ADX floor.
func htfAgreement(htf string, trend, direction market.Direction, adx float64, adxKnown bool, limits IndexThresholds) FactorResult {
	if trend != direction {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("%s-minute supertrend is %s, not %s", htf, trend, direction)}
	}
	if !adxKnown {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("%s-minute ADX not computable", htf)}
	}
	if adx < limits.MinADX {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("%s-minute ADX %.1f below minimum %.1f", htf, adx, limits.MinADX)}
	}
	return FactorResult{Agrees: true, Reason: fmt.Sprintf("%s-minute supertrend %s with ADX %.1f", htf, trend, adx)}
}

func (v *DirectionValidator) checkADXStrength(primary *market.Series, limits IndexThresholds) FactorResult {
	adx, ok := indicators.ADX(primary, v.cfg.ADXPeriod)
	if !ok {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("ADX not computable from %d candles", primary.Len())}
	}
	if adx < limits.MinADX {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("ADX %.1f below minimum %.1f", adx, limits.MinADX)}
	}
	return FactorResult{Agrees: true, Reason: fmt.Sprintf("ADX %.1f at or above minimum %.1f", adx, limits.MinADX)}
}

func (v *DirectionValidator) checkVWAPPosition(direction market.Direction, primary *market.Series) FactorResult {
	if primary.Len() < v.cfg.VWAPMinBars {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("only %d candles, need %d for VWAP", primary.Len(), v.cfg.VWAPMinBars)}
	}

	vwap, ok := indicators.VWAP(primary, v.cfg.VWAPWindow)
	if !ok {
		return FactorResult{Agrees: false, Reason: "no traded volume in VWAP window"}
	}

	last, _ := primary.Last()
	if direction == market.Bullish {
		if last.Close > vwap {
			return FactorResult{Agrees: true, Reason: fmt.Sprintf("close %.2f above VWAP %.2f", last.Close, vwap)}
		}
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("close %.2f not above VWAP %.2f", last.Close, vwap)}
	}
	if last.Close < vwap {
		return FactorResult{Agrees: true, Reason: fmt.Sprintf("close %.2f below VWAP %.2f", last.Close, vwap)}
	}
	return FactorResult{Agrees: false, Reason: fmt.Sprintf("close %.2f not below VWAP %.2f", last.Close, vwap)}
}

func (v *DirectionValidator) checkBOSAlignment(direction market.Direction, primary *market.Series) FactorResult {
	bos := structure.BOSDirection(primary.Candles, v.cfg.BOSLookback)
	switch {
	case bos == market.None:
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("no structure break in last %d bars", v.cfg.BOSLookback)}
	case bos != direction:
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("structure break is %s against %s", bos, direction)}
	default:
		return FactorResult{Agrees: true, Reason: fmt.Sprintf("%s structure break", bos)}
	}
}

func (v *DirectionValidator) checkCHOCHAlignment(direction market.Direction, primary *market.Series) FactorResult {
	choch := structure.CHOCH(primary.Candles, v.cfg.CHOCHLookback)
	switch {
	case choch == market.None:
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("no character change in last %d bars", v.cfg.CHOCHLookback)}
	case choch != direction:
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("character change is %s against %s", choch, direction)}
	default:
		return FactorResult{Agrees: true, Reason: fmt.Sprintf("%s character change", choch)}
	}
}

func (v *DirectionValidator) checkCandleStructure(direction market.Direction, primary *market.Series) FactorResult {
	if primary.Len() < v.cfg.StructureMinBars {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("only %d candles, need %d for structure", primary.Len(), v.cfg.StructureMinBars)}
	}

	var ratio float64
	var pairs int
	var label string
	if direction == market.Bullish {
		ratio, pairs = structure.HigherHighRatio(primary.Candles, v.cfg.StructureBars)
		label = "higher highs"
	} else {
		ratio, pairs = structure.LowerLowRatio(primary.Candles, v.cfg.StructureBars)
		label = "lower lows"
	}
	if pairs < v.cfg.StructureMinBars-1 {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("only %d candle pairs to compare", pairs)}
	}
	if ratio >= v.cfg.StructureMinRatio {
		return FactorResult{Agrees: true, Reason: fmt.Sprintf("%.0f%% of pairs made %s", ratio*100, label)}
	}
	return FactorResult{Agrees: false, Reason: fmt.Sprintf("only %.0f%% of pairs made %s, need %.0f%%", ratio*100, label, v.cfg.StructureMinRatio*100)}
}
