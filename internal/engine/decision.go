package engine

import (
	"context"
	"time"

	"index-signal-engine/internal/market"
	"index-signal-engine/internal/pipeline"
)

// TradeDecision is the engine's output: one actionable signal for one
// index, with the full validation evidence attached. Downstream order
// entry consumes it; the engine never places orders itself.
type TradeDecision struct {
	ID                string           `json:"id"`
	Index             string           `json:"index"`
	Direction         market.Direction `json:"direction"`
	Score             float64          `json:"score"`
	ScalingMultiplier int              `json:"scaling_multiplier"`
	Breakdown         Breakdown        `json:"breakdown"`
	At                time.Time        `json:"at"`
}

// Breakdown collects every stage's verdict behind an emitted decision.
// The validator entries stay nil on the composite-score path, which
// skips them.
type Breakdown struct {
	Primary      *pipeline.TimeframeResult  `json:"primary"`
	Confirmation *pipeline.TimeframeResult  `json:"confirmation,omitempty"`
	Trend        pipeline.TrendScore        `json:"trend"`
	Direction    *pipeline.ValidationResult `json:"direction,omitempty"`
	Momentum     *pipeline.ValidationResult `json:"momentum,omitempty"`
	Volatility   *pipeline.VolatilityResult `json:"volatility,omitempty"`
	Gate         pipeline.GateResult        `json:"gate"`
}

// DecisionSink receives emitted decisions. The loop calls it
// synchronously, so implementations should hand off quickly.
type DecisionSink interface {
	Emit(ctx context.Context, d TradeDecision)
}

// SinkFunc adapts a plain function to the DecisionSink interface.
type SinkFunc func(ctx context.Context, d TradeDecision)

func (f SinkFunc) Emit(ctx context.Context, d TradeDecision) { f(ctx, d) }
