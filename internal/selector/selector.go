// Package selector ranks the configured indices by composite trend
// score and picks one winner per cycle through a deterministic
// tie-break ladder.
package selector

import (
	"context"
	"fmt"
	"sort"

	"index-signal-engine/internal/market"
	"index-signal-engine/internal/marketdata"
	"index-signal-engine/internal/pipeline"

	"github.com/rs/zerolog"
)

// Selection reasons, one per ladder rule.
const (
	ReasonHighestScore = "highest_trend_score"
	ReasonMomentum     = "momentum"
	ReasonLiquidity    = "liquidity"
	ReasonStableOrder  = "stable_order"
)

// Config parameterizes one selection pass.
type Config struct {
	// Indices are scored in the order given; that order is the final
	// tie-breaker.
	Indices []string

	PrimaryTimeframe      string
	ConfirmationTimeframe string

	// MinTrendScore filters candidates before the ladder runs.
	MinTrendScore float64

	// TieBand is how close to the top score a candidate must be to
	// enter the tie-break ladder.
	TieBand float64
}

// DefaultConfig returns the standard selection parameters.
func DefaultConfig() Config {
	return Config{
		PrimaryTimeframe:      "5",
		ConfirmationTimeframe: "15",
		MinTrendScore:         15.0,
		TieBand:               2.0,
	}
}

// Candidate is one qualifying index in a selection pass.
type Candidate struct {
	Index     string              `json:"index"`
	Score     float64             `json:"score"`
	Breakdown pipeline.TrendScore `json:"breakdown"`
}

// Selection is the outcome of one pass: the winner, the rule that chose
// it, and every candidate that qualified, best first.
type Selection struct {
	Winner     Candidate   `json:"winner"`
	Reason     string      `json:"reason"`
	Candidates []Candidate `json:"candidates"`
}

// IndexSelector scores every configured index and picks the best one.
type IndexSelector struct {
	source marketdata.CandleSource
	scorer *pipeline.TrendScorer
	cfg    Config
	logger zerolog.Logger
}

// New builds a selector over the shared candle source and scorer.
func New(source marketdata.CandleSource, scorer *pipeline.TrendScorer, cfg Config, logger zerolog.Logger) *IndexSelector {
	if cfg.TieBand <= 0 {
		cfg.TieBand = 2.0
	}
	return &IndexSelector{
		source: source,
		scorer: scorer,
		cfg:    cfg,
		logger: logger.With().Str("component", "IndexSelector").Logger(),
	}
}

// SelectBest scores all configured indices and returns the winning
// candidate, or nil when none clears the score floor. An index whose
// candles cannot be fetched is logged and skipped, never fatal to the
// pass.
func (s *IndexSelector) SelectBest(ctx context.Context) *Selection {
	var candidates []Candidate
	for _, index := range s.cfg.Indices {
		primary, confirmation, err := s.seriesFor(ctx, index)
		if err != nil {
			s.logger.Warn().Err(err).Str("index", index).Msg("Skipping index in selection pass")
			continue
		}

		breakdown := s.scorer.Score(primary, confirmation)
		total := breakdown.Total()
		if total < s.cfg.MinTrendScore {
			s.logger.Debug().
				Str("index", index).
				Float64("score", total).
				Float64("min", s.cfg.MinTrendScore).
				Msg("Index below score floor")
			continue
		}
		candidates = append(candidates, Candidate{Index: index, Score: total, Breakdown: breakdown})
	}

	if len(candidates) == 0 {
		s.logger.Debug().Msg("No index qualified this cycle")
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	winner, reason := pickWinner(candidates, s.cfg.TieBand)
	s.logger.Info().
		Str("index", winner.Index).
		Float64("score", winner.Score).
		Str("reason", reason).
		Int("candidates", len(candidates)).
		Msg("Index selected")

	return &Selection{Winner: winner, Reason: reason, Candidates: candidates}
}

func (s *IndexSelector) seriesFor(ctx context.Context, index string) (*market.Series, *market.Series, error) {
	primary, err := s.source.Candles(ctx, index, s.cfg.PrimaryTimeframe)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %sm candles for %s: %w", s.cfg.PrimaryTimeframe, index, err)
	}
	if primary.Len() == 0 {
		return nil, nil, fmt.Errorf("no %sm candles for %s", s.cfg.PrimaryTimeframe, index)
	}

	var confirmation *market.Series
	if s.cfg.ConfirmationTimeframe != "" {
		confirmation, err = s.source.Candles(ctx, index, s.cfg.ConfirmationTimeframe)
		if err != nil {
			s.logger.Debug().Err(err).Str("index", index).Msg("Confirmation series unavailable, scoring unconfirmed")
			confirmation = nil
		}
	}
	return primary, confirmation, nil
}

// pickWinner applies the tie-break ladder to candidates sorted best
// first. A lead of at least band wins outright; otherwise the
// candidates within band of the top compete on the price-action
// component, then the indicator component, then sort order.
func pickWinner(sorted []Candidate, band float64) (Candidate, string) {
	top := sorted[0]
	if len(sorted) == 1 || top.Score-sorted[1].Score >= band {
		return top, ReasonHighestScore
	}

	var near []Candidate
	for _, c := range sorted {
		if top.Score-c.Score < band {
			near = append(near, c)
		}
	}

	maxPA := near[0].Breakdown.PA
	for _, c := range near[1:] {
		if c.Breakdown.PA > maxPA {
			maxPA = c.Breakdown.PA
		}
	}
	var paLeaders []Candidate
	for _, c := range near {
		if c.Breakdown.PA == maxPA {
			paLeaders = append(paLeaders, c)
		}
	}
	if len(paLeaders) == 1 {
		return paLeaders[0], ReasonMomentum
	}

	maxInd := paLeaders[0].Breakdown.Indicator
	for _, c := range paLeaders[1:] {
		if c.Breakdown.Indicator > maxInd {
			maxInd = c.Breakdown.Indicator
		}
	}
	var indLeaders []Candidate
	for _, c := range paLeaders {
		if c.Breakdown.Indicator == maxInd {
			indLeaders = append(indLeaders, c)
		}
	}
	if len(indLeaders) == 1 {
		return indLeaders[0], ReasonLiquidity
	}

	return indLeaders[0], ReasonStableOrder
}
