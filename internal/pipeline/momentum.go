package pipeline

import (
	"fmt"

	"index-signal-engine/internal/market"
	"index-signal-engine/internal/structure"

	"github.com/rs/zerolog"
)

// Momentum factor names, in evaluation order.
const (
	FactorSwingBreak    = "swing_break"
	FactorBodyExpansion = "body_expansion"
	FactorPremiumSpeed  = "premium_speed"
)

var momentumFactorOrder = []string{
	FactorSwingBreak,
	FactorBodyExpansion,
	FactorPremiumSpeed,
}

// MomentumConfig parameterizes the three confirmation checks.
type MomentumConfig struct {
	// MinConfirmations is how many of the three checks must confirm;
	// valid range is [1,3].
	MinConfirmations int

	// SwingWithin bounds how far back the latest swing point may sit.
	SwingWithin int

	// BodyWindow is how many prior candles feed the average body size,
	// BodyMinPrior the minimum available before the check runs.
	BodyWindow   int
	BodyMinPrior int

	// ExpansionThreshold is the body-to-average ratio that counts as
	// expansion. The aggressive intraday default is 0.8.
	ExpansionThreshold float64
}

// DefaultMomentumConfig returns the intraday defaults.
func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		MinConfirmations:   2,
		SwingWithin:        20,
		BodyWindow:         4,
		BodyMinPrior:       3,
		ExpansionThreshold: 0.8,
	}
}

// MomentumValidator confirms that price is actually moving with the
// claimed direction right now: swing break, body expansion, and
// close-to-close velocity.
type MomentumValidator struct {
	thresholds *ThresholdTable
	cfg        MomentumConfig
	logger     zerolog.Logger
}

// NewMomentumValidator builds the validator over the per-index
// threshold table that supplies velocity minimums.
func NewMomentumValidator(thresholds *ThresholdTable, cfg MomentumConfig, logger zerolog.Logger) *MomentumValidator {
	return &MomentumValidator{
		thresholds: thresholds,
		cfg:        cfg,
		logger:     logger.With().Str("component", "MomentumValidator").Logger(),
	}
}

// Validate scores the three momentum confirmations. Malformed inputs
// produce a structured invalid result, never a panic.
func (v *MomentumValidator) Validate(index string, direction market.Direction, primary *market.Series) ValidationResult {
	if v.cfg.MinConfirmations < 1 || v.cfg.MinConfirmations > 3 {
		return invalidInput(fmt.Sprintf("min_confirmations %d outside [1,3]", v.cfg.MinConfirmations))
	}
	if !direction.Actionable() {
		return invalidInput(fmt.Sprintf("direction %q is not tradeable", direction))
	}

	limits := v.thresholds.For(index)
	factors := map[string]FactorResult{
		FactorSwingBreak:    v.checkSwingBreak(direction, primary),
		FactorBodyExpansion: v.checkBodyExpansion(direction, primary),
		FactorPremiumSpeed:  v.checkPremiumSpeed(direction, primary, limits),
	}

	score := 0
	var reasons []string
	for _, name := range momentumFactorOrder {
		f := factors[name]
		if f.Agrees {
			score++
		} else {
			reasons = append(reasons, fmt.Sprintf("%s: %s", name, f.Reason))
		}
	}

	valid := score >= v.cfg.MinConfirmations
	if valid {
		reasons = nil
	} else {
		reasons = append(reasons, fmt.Sprintf("%d/3 confirmations, need %d", score, v.cfg.MinConfirmations))
	}

	v.logger.Debug().
		Str("index", index).
		Str("direction", direction.String()).
		Int("score", score).
		Bool("valid", valid).
		Msg("Momentum validated")

	return ValidationResult{
		Valid:     valid,
		Direction: direction,
		Score:     score,
		Factors:   factors,
		Reasons:   reasons,
	}
}

func (v *MomentumValidator) checkSwingBreak(direction market.Direction, primary *market.Series) FactorResult {
	candles := primary.Candles
	last, ok := primary.Last()
	if !ok {
		return FactorResult{Agrees: false, Reason: "no candles"}
	}

	if direction == market.Bullish {
		sh, found := structure.LastSwingHigh(candles, 1, v.cfg.SwingWithin)
		if !found {
			return FactorResult{Agrees: false, Reason: fmt.Sprintf("no swing high in last %d bars", v.cfg.SwingWithin)}
		}
		if last.Close > sh.Price {
			return FactorResult{Agrees: true, Reason: fmt.Sprintf("close %.2f cleared swing high %.2f", last.Close, sh.Price)}
		}
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("close %.2f below swing high %.2f", last.Close, sh.Price)}
	}

	sl, found := structure.LastSwingLow(candles, 1, v.cfg.SwingWithin)
	if !found {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("no swing low in last %d bars", v.cfg.SwingWithin)}
	}
	if last.Close < sl.Price {
		return FactorResult{Agrees: true, Reason: fmt.Sprintf("close %.2f undercut swing low %.2f", last.Close, sl.Price)}
	}
	return FactorResult{Agrees: false, Reason: fmt.Sprintf("close %.2f above swing low %.2f", last.Close, sl.Price)}
}

func (v *MomentumValidator) checkBodyExpansion(direction market.Direction, primary *market.Series) FactorResult {
	n := primary.Len()
	if n < v.cfg.BodyMinPrior+1 {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("only %d candles, need %d prior bodies", n, v.cfg.BodyMinPrior)}
	}

	prior := v.cfg.BodyWindow
	if prior > n-1 {
		prior = n - 1
	}
	candles := primary.Candles
	last := candles[n-1]

	var sum float64
	for _, c := range candles[n-1-prior : n-1] {
		sum += c.Body()
	}
	avg := sum / float64(prior)
	if avg == 0 {
		return FactorResult{Agrees: false, Reason: "prior candle bodies average zero"}
	}

	ratio := last.Body() / avg
	colorMatches := (direction == market.Bullish && last.IsBullish()) ||
		(direction == market.Bearish && last.IsBearish())

	if ratio >= v.cfg.ExpansionThreshold && colorMatches {
		return FactorResult{Agrees: true, Reason: fmt.Sprintf("body %.2fx prior average with matching candle", ratio)}
	}
	if !colorMatches {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("candle color contradicts %s", direction)}
	}
	return FactorResult{Agrees: false, Reason: fmt.Sprintf("body %.2fx prior average, need %.2fx", ratio, v.cfg.ExpansionThreshold)}
}

func (v *MomentumValidator) checkPremiumSpeed(direction market.Direction, primary *market.Series, limits IndexThresholds) FactorResult {
	closes := primary.Closes()
	if len(closes) < 2 {
		return FactorResult{Agrees: false, Reason: "need two closes for velocity"}
	}

	prev, last := closes[len(closes)-2], closes[len(closes)-1]
	if prev == 0 {
		return FactorResult{Agrees: false, Reason: "previous close is zero"}
	}

	pct := (last - prev) / prev * 100
	if direction == market.Bullish {
		if pct > limits.PremiumSpeedPct {
			return FactorResult{Agrees: true, Reason: fmt.Sprintf("close moved %+.3f%%, above %.3f%%", pct, limits.PremiumSpeedPct)}
		}
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("close moved %+.3f%%, need > %.3f%%", pct, limits.PremiumSpeedPct)}
	}
	if pct < -limits.PremiumSpeedPct {
		return FactorResult{Agrees: true, Reason: fmt.Sprintf("close moved %+.3f%%, below -%.3f%%", pct, limits.PremiumSpeedPct)}
	}
	return FactorResult{Agrees: false, Reason: fmt.Sprintf("close moved %+.3f%%, need < -%.3f%%", pct, limits.PremiumSpeedPct)}
}
