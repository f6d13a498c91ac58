package pipeline

import (
	"fmt"
	"time"

	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/market"
	"index-signal-engine/internal/structure"

	"github.com/rs/zerolog"
)

// Volatility factor names.
const (
	FactorATRRatio    = "atr_ratio"
	FactorCompression = "compression"
	FactorChopWindow  = "chop_window"
)

// Bars needed before the ATR-regime ratio is defined: a 14-bar current
// window, a non-overlapping 14-bar prior window, and the 14-bar warmup
// in front of it.
const minRatioBars = 42

// VolatilityConfig parameterizes the ATR-regime gate.
type VolatilityConfig struct {
	// MinATRRatio is the lowest acceptable current-to-prior ATR ratio;
	// valid range is [0.0, 2.0].
	MinATRRatio float64

	ATRPeriod int

	// CompressionPeriods is how many consecutive ATR declines count as
	// compression.
	CompressionPeriods int

	// ChopStart and ChopEnd bound the low-quality local-time window,
	// "HH:MM" in Location.
	ChopStart string
	ChopEnd   string
	Location  *time.Location

	ChopWindowBars int
	ChopMinCrosses int
}

// DefaultVolatilityConfig returns the intraday defaults. The midday
// band covers the lunchtime drift on NSE/BSE index futures.
func DefaultVolatilityConfig(loc *time.Location) VolatilityConfig {
	return VolatilityConfig{
		MinATRRatio:        0.65,
		ATRPeriod:          14,
		CompressionPeriods: 4,
		ChopStart:          "12:00",
		ChopEnd:            "13:00",
		Location:           loc,
		ChopWindowBars:     10,
		ChopMinCrosses:     4,
	}
}

// VolatilityValidator rejects entries when the volatility regime cannot
// pay for an options premium: a collapsed ATR ratio, sustained ATR
// compression, or the known midday chop band.
type VolatilityValidator struct {
	cfg       VolatilityConfig
	chopStart int // minutes of day
	chopEnd   int
	logger    zerolog.Logger
}

// NewVolatilityValidator parses the chop-window bounds up front so a
// malformed config fails at wiring time, not mid-session.
func NewVolatilityValidator(cfg VolatilityConfig, logger zerolog.Logger) (*VolatilityValidator, error) {
	start, err := parseMinutes(cfg.ChopStart)
	if err != nil {
		return nil, fmt.Errorf("chop window start: %w", err)
	}
	end, err := parseMinutes(cfg.ChopEnd)
	if err != nil {
		return nil, fmt.Errorf("chop window end: %w", err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &VolatilityValidator{
		cfg:       cfg,
		chopStart: start,
		chopEnd:   end,
		logger:    logger.With().Str("component", "VolatilityValidator").Logger(),
	}, nil
}

// Validate measures the ATR regime of the series. The chop veto is
// judged on the latest candle's timestamp, so historical replays behave
// the same as live evaluation.
func (v *VolatilityValidator) Validate(s *market.Series) VolatilityResult {
	if v.cfg.MinATRRatio < 0 || v.cfg.MinATRRatio > 2.0 {
		return VolatilityResult{
			Valid:   false,
			Factors: map[string]FactorResult{},
			Reasons: []string{fmt.Sprintf("invalid input: min_atr_ratio %.2f outside [0.0, 2.0]", v.cfg.MinATRRatio)},
		}
	}

	n := s.Len()
	if n < minRatioBars {
		return VolatilityResult{
			Valid:   false,
			Factors: map[string]FactorResult{},
			Reasons: []string{fmt.Sprintf("insufficient candles: %d < %d", n, minRatioBars)},
		}
	}

	factors := map[string]FactorResult{}
	var reasons []string

	ratio, ratioFactor := v.checkRatio(s)
	factors[FactorATRRatio] = ratioFactor
	if !ratioFactor.Agrees {
		reasons = append(reasons, ratioFactor.Reason)
	}

	compression := v.checkCompression(s)
	factors[FactorCompression] = compression
	if !compression.Agrees {
		reasons = append(reasons, compression.Reason)
	}

	chop := v.checkChopWindow(s)
	factors[FactorChopWindow] = chop
	if !chop.Agrees {
		reasons = append(reasons, chop.Reason)
	}

	valid := ratioFactor.Agrees && compression.Agrees && chop.Agrees

	v.logger.Debug().
		Str("index", s.Index).
		Float64("ratio", ratio).
		Bool("valid", valid).
		Msg("Volatility validated")

	return VolatilityResult{Valid: valid, Ratio: ratio, Factors: factors, Reasons: reasons}
}

func (v *VolatilityValidator) checkRatio(s *market.Series) (float64, FactorResult) {
	period := v.cfg.ATRPeriod

	current, ok := indicators.ATR(s, period)
	if !ok {
		return 0, FactorResult{Agrees: false, Reason: "current ATR not computable"}
	}

	prior := market.NewSeries(s.Index, s.Timeframe, s.Candles[:s.Len()-period])
	historical, ok := indicators.ATR(prior, period)
	if !ok {
		return 0, FactorResult{Agrees: false, Reason: "historical ATR not computable"}
	}
	if historical == 0 {
		return 0, FactorResult{Agrees: false, Reason: "historical ATR is zero"}
	}

	ratio := current / historical
	if ratio < v.cfg.MinATRRatio {
		return ratio, FactorResult{Agrees: false, Reason: fmt.Sprintf("ATR ratio %.2f below minimum %.2f", ratio, v.cfg.MinATRRatio)}
	}
	return ratio, FactorResult{Agrees: true, Reason: fmt.Sprintf("ATR ratio %.2f at or above %.2f", ratio, v.cfg.MinATRRatio)}
}

func (v *VolatilityValidator) checkCompression(s *market.Series) FactorResult {
	values, firstValid, ok := indicators.ATRSeries(s, v.cfg.ATRPeriod)
	if !ok {
		return FactorResult{Agrees: false, Reason: "ATR series not computable"}
	}

	periods := v.cfg.CompressionPeriods
	if len(values)-firstValid < periods+1 {
		return FactorResult{Agrees: true, Reason: "too few ATR readings to judge compression"}
	}

	declines := 0
	for i := len(values) - periods; i < len(values); i++ {
		if values[i] < values[i-1] {
			declines++
		} else {
			break
		}
	}
	if declines >= periods {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("ATR declining for %d consecutive periods", declines)}
	}
	return FactorResult{Agrees: true, Reason: "no sustained ATR compression"}
}

func (v *VolatilityValidator) checkChopWindow(s *market.Series) FactorResult {
	last, ok := s.Last()
	if !ok {
		return FactorResult{Agrees: false, Reason: "no candles"}
	}

	local := last.Timestamp.In(v.cfg.Location)
	minutes := local.Hour()*60 + local.Minute()
	inBand := minutes >= v.chopStart && minutes < v.chopEnd
	if !inBand {
		return FactorResult{Agrees: true, Reason: "outside chop window"}
	}

	if structure.VWAPChop(s, v.cfg.ChopWindowBars, v.cfg.ChopMinCrosses) {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("chop window %s-%s with VWAP churn", v.cfg.ChopStart, v.cfg.ChopEnd)}
	}
	return FactorResult{Agrees: true, Reason: "inside chop window but price is directional"}
}

// parseMinutes converts "HH:MM" to minutes of day.
func parseMinutes(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
