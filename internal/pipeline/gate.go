package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

// GateMode names a validation-strictness profile.
type GateMode string

const (
	ModeConservative GateMode = "conservative"
	ModeBalanced     GateMode = "balanced"
	ModeAggressive   GateMode = "aggressive"
)

// Gate check names.
const (
	CheckMarketTiming      = "market_timing"
	CheckIVRank            = "iv_rank"
	CheckThetaRisk         = "theta_risk"
	CheckADXFilter         = "adx_filter"
	CheckTrendConfirmation = "trend_confirmation"
)

// ModeChecks enumerates which gate checks a profile runs. Market timing
// is not listed because it always runs.
type ModeChecks struct {
	RequireIVRank            bool
	RequireThetaRisk         bool
	EnableADXFilter          bool
	RequireTrendConfirmation bool
}

// ChecksForMode maps a profile to its enabled checks. Unknown modes get
// the balanced profile.
func ChecksForMode(mode GateMode) ModeChecks {
	switch mode {
	case ModeConservative:
		return ModeChecks{RequireIVRank: true, RequireThetaRisk: true, EnableADXFilter: true, RequireTrendConfirmation: true}
	case ModeAggressive:
		return ModeChecks{RequireThetaRisk: true}
	default:
		return ModeChecks{RequireIVRank: true, RequireThetaRisk: true, EnableADXFilter: true}
	}
}

// GateConfig parameterizes the final pre-trade gate.
type GateConfig struct {
	Mode GateMode

	// IVRankMin and IVRankMax band the volatility proxy.
	IVRankMin float64
	IVRankMax float64

	// ThetaCutoff is the "HH:MM" local time at or after which fresh
	// option entries bleed too much time value.
	ThetaCutoff string

	MinADX    float64
	ADXPeriod int

	// MarketOpen plus WarmupMinutes bounds the earliest entry;
	// EntryCutoff bounds the latest. All "HH:MM" in Location.
	MarketOpen    string
	WarmupMinutes int
	EntryCutoff   string
	Location      *time.Location
}

// DefaultGateConfig returns the NSE session defaults.
func DefaultGateConfig(loc *time.Location) GateConfig {
	return GateConfig{
		Mode:          ModeBalanced,
		IVRankMin:     0.05,
		IVRankMax:     0.95,
		ThetaCutoff:   "14:45",
		MinADX:        20,
		ADXPeriod:     14,
		MarketOpen:    "09:15",
		WarmupMinutes: 15,
		EntryCutoff:   "14:30",
		Location:      loc,
	}
}

// GateResult is the outcome of the comprehensive gate. Reason joins the
// failing check names; Checks holds every executed check's detail.
type GateResult struct {
	Valid  bool                    `json:"valid"`
	Mode   GateMode                `json:"mode"`
	Checks map[string]FactorResult `json:"checks"`
	Failed []string                `json:"failed,omitempty"`
	Reason string                  `json:"reason,omitempty"`
}

// ComprehensiveValidationGate is the last stop before a decision is
// emitted: session timing, the IV proxy band, theta risk by clock,
// trend strength, and short trend confirmation, under a mode profile.
type ComprehensiveValidationGate struct {
	cfg        GateConfig
	checks     ModeChecks
	openMins   int
	cutoffMins int
	thetaMins  int
	logger     zerolog.Logger
}

// NewComprehensiveValidationGate parses the clock bounds up front.
func NewComprehensiveValidationGate(cfg GateConfig, logger zerolog.Logger) (*ComprehensiveValidationGate, error) {
	open, err := parseMinutes(cfg.MarketOpen)
	if err != nil {
		return nil, fmt.Errorf("market open: %w", err)
	}
	cutoff, err := parseMinutes(cfg.EntryCutoff)
	if err != nil {
		return nil, fmt.Errorf("entry cutoff: %w", err)
	}
	theta, err := parseMinutes(cfg.ThetaCutoff)
	if err != nil {
		return nil, fmt.Errorf("theta cutoff: %w", err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ComprehensiveValidationGate{
		cfg:        cfg,
		checks:     ChecksForMode(cfg.Mode),
		openMins:   open + cfg.WarmupMinutes,
		cutoffMins: cutoff,
		thetaMins:  theta,
		logger:     logger.With().Str("component", "ValidationGate").Logger(),
	}, nil
}

// Validate runs every check the mode enables, at the given evaluation
// time. All enabled checks must pass.
func (g *ComprehensiveValidationGate) Validate(now time.Time, index string, direction market.Direction, s *market.Series) GateResult {
	res := GateResult{Mode: g.cfg.Mode, Checks: map[string]FactorResult{}}

	res.Checks[CheckMarketTiming] = g.checkMarketTiming(now)
	if g.checks.RequireIVRank {
		res.Checks[CheckIVRank] = g.checkIVRank(s)
	}
	if g.checks.RequireThetaRisk {
		res.Checks[CheckThetaRisk] = g.checkThetaRisk(now)
	}
	if g.checks.EnableADXFilter {
		res.Checks[CheckADXFilter] = g.checkADX(s)
	}
	if g.checks.RequireTrendConfirmation {
		res.Checks[CheckTrendConfirmation] = g.checkTrendConfirmation(direction, s)
	}

	for _, name := range []string{CheckMarketTiming, CheckIVRank, CheckThetaRisk, CheckADXFilter, CheckTrendConfirmation} {
		if f, ran := res.Checks[name]; ran && !f.Agrees {
			res.Failed = append(res.Failed, name)
		}
	}

	res.Valid = len(res.Failed) == 0
	if !res.Valid {
		res.Reason = "failed checks: " + strings.Join(res.Failed, ", ")
	}

	g.logger.Debug().
		Str("index", index).
		Str("mode", string(g.cfg.Mode)).
		Bool("valid", res.Valid).
		Strs("failed", res.Failed).
		Msg("Gate evaluated")
	return res
}

func (g *ComprehensiveValidationGate) checkMarketTiming(now time.Time) FactorResult {
	local := now.In(g.cfg.Location)
	minutes := local.Hour()*60 + local.Minute()
	if minutes < g.openMins {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("before %02d:%02d session warmup end", g.openMins/60, g.openMins%60)}
	}
	if minutes > g.cutoffMins {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("past %s entry cutoff", g.cfg.EntryCutoff)}
	}
	return FactorResult{Agrees: true, Reason: "inside entry session"}
}

// checkIVRank proxies implied-volatility rank from realized candle
// movement: the mean absolute fractional change of the last five
// close-to-close transitions, scaled x1000 and capped at 1.0. A 0.05%
// average bar move maps to 0.5, the middle of the usable band.
func (g *ComprehensiveValidationGate) checkIVRank(s *market.Series) FactorResult {
	closes := s.Closes()
	if len(closes) < 6 {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("only %d closes, need 6 for IV proxy", len(closes))}
	}

	var sum float64
	transitions := 0
	for i := len(closes) - 5; i < len(closes); i++ {
		if closes[i-1] == 0 {
			return FactorResult{Agrees: false, Reason: "zero close in IV proxy window"}
		}
		sum += math.Abs((closes[i] - closes[i-1]) / closes[i-1])
		transitions++
	}

	proxy := sum / float64(transitions) * 1000
	if proxy > 1.0 {
		proxy = 1.0
	}
	if proxy < g.cfg.IVRankMin || proxy > g.cfg.IVRankMax {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("IV proxy %.3f outside [%.2f, %.2f]", proxy, g.cfg.IVRankMin, g.cfg.IVRankMax)}
	}
	return FactorResult{Agrees: true, Reason: fmt.Sprintf("IV proxy %.3f inside band", proxy)}
}

func (g *ComprehensiveValidationGate) checkThetaRisk(now time.Time) FactorResult {
	local := now.In(g.cfg.Location)
	minutes := local.Hour()*60 + local.Minute()
	if minutes >= g.thetaMins {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("at or past %s theta cutoff", g.cfg.ThetaCutoff)}
	}
	return FactorResult{Agrees: true, Reason: "theta decay acceptable"}
}

func (g *ComprehensiveValidationGate) checkADX(s *market.Series) FactorResult {
	adx, ok := indicators.ADX(s, g.cfg.ADXPeriod)
	if !ok {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("ADX not computable from %d candles", s.Len())}
	}
	if adx < g.cfg.MinADX {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("ADX %.1f below %.1f", adx, g.cfg.MinADX)}
	}
	return FactorResult{Agrees: true, Reason: fmt.Sprintf("ADX %.1f", adx)}
}

// checkTrendConfirmation wants the 3-bar-old close on the wrong side of
// the latest close, i.e. price has kept moving the trend's way.
func (g *ComprehensiveValidationGate) checkTrendConfirmation(direction market.Direction, s *market.Series) FactorResult {
	closes := s.Closes()
	if len(closes) < 4 {
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("only %d closes, need 4 for confirmation", len(closes))}
	}

	old := closes[len(closes)-4]
	latest := closes[len(closes)-1]
	if direction == market.Bullish {
		if latest > old {
			return FactorResult{Agrees: true, Reason: fmt.Sprintf("close advanced %.2f over 3 bars", latest-old)}
		}
		return FactorResult{Agrees: false, Reason: fmt.Sprintf("close %.2f has not advanced on 3 bars ago %.2f", latest, old)}
	}
	if latest < old {
		return FactorResult{Agrees: true, Reason: fmt.Sprintf("close declined %.2f over 3 bars", old-latest)}
	}
	return FactorResult{Agrees: false, Reason: fmt.Sprintf("close %.2f has not declined on 3 bars ago %.2f", latest, old)}
}
