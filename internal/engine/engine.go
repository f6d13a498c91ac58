// Package engine drives the per-index evaluation loop: timeframe
// analysis, direction combination, the configured signal path, the
// comprehensive gate, and scaling-state bookkeeping. Each pass emits at
// most one TradeDecision per index; any stage declining the cycle
// clears that index's scaling streak instead.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"index-signal-engine/internal/circuit"
	"index-signal-engine/internal/events"
	"index-signal-engine/internal/market"
	"index-signal-engine/internal/pipeline"
	"index-signal-engine/internal/scaling"
	"index-signal-engine/internal/selector"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Signal path names. The multi-factor path runs the direction, momentum
// and volatility validators in order; the trend-score path accepts the
// cycle when the composite score alone resolves the combined direction.
const (
	PathMultiFactor = "multi_factor"
	PathTrendScore  = "trend_score"
)

// maxRecent bounds the in-memory decision history served to the API.
const maxRecent = 50

// Config drives the evaluation loop.
type Config struct {
	Indices               []string
	PrimaryTimeframe      string
	ConfirmationTimeframe string // empty disables confirmation analysis
	SignalPath            string
	CyclePeriod           time.Duration
	InterIndexDelay       time.Duration
	Scaling               scaling.Config
}

// DefaultConfig returns the NSE intraday defaults.
func DefaultConfig() Config {
	return Config{
		Indices:               []string{"NIFTY", "BANKNIFTY", "SENSEX"},
		PrimaryTimeframe:      "5",
		ConfirmationTimeframe: "15",
		SignalPath:            PathMultiFactor,
		CyclePeriod:           30 * time.Second,
		InterIndexDelay:       5 * time.Second,
		Scaling:               scaling.DefaultConfig(),
	}
}

// Deps are the collaborators the engine evaluates with. Selector and
// Sink are optional; everything else is required.
type Deps struct {
	Analyzer   *pipeline.TimeframeAnalyzer
	Scorer     *pipeline.TrendScorer
	Direction  *pipeline.DirectionValidator
	Momentum   *pipeline.MomentumValidator
	Volatility *pipeline.VolatilityValidator
	Gate       *pipeline.ComprehensiveValidationGate
	Tracker    *scaling.Tracker
	Selector   *selector.IndexSelector
	Breaker    *circuit.Breaker
	Bus        *events.Bus
	Sink       DecisionSink
}

// Status is the loop snapshot served by the status endpoint.
type Status struct {
	Running    bool                   `json:"running"`
	SignalPath string                 `json:"signal_path"`
	Indices    []string               `json:"indices"`
	Passes     int                    `json:"passes"`
	Decisions  int                    `json:"decisions"`
	LastPassAt time.Time              `json:"last_pass_at"`
	LastPassMs int64                  `json:"last_pass_ms"`
	Breaker    map[string]interface{} `json:"breaker"`
}

// Engine owns the background evaluation loop and is the only writer of
// scaling state. The API reads everything through its snapshot methods.
type Engine struct {
	deps   Deps
	cfg    Config
	logger zerolog.Logger

	now func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	running       bool
	passes        int
	decisionCount int
	lastPassAt    time.Time
	lastPassTook  time.Duration
	recent        []TradeDecision
	lastSelection *selector.Selection
}

// New wires the engine and bridges the breaker's trip and reset
// callbacks onto the event bus.
func New(deps Deps, cfg Config, logger zerolog.Logger) *Engine {
	cfg.SignalPath = strings.ToLower(cfg.SignalPath)
	if cfg.SignalPath == "" {
		cfg.SignalPath = PathMultiFactor
	}
	e := &Engine{
		deps:     deps,
		cfg:      cfg,
		logger:   logger.With().Str("component", "Engine").Logger(),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	deps.Breaker.OnTrip(func(reason string) { deps.Bus.PublishBreakerTripped(reason) })
	deps.Breaker.OnReset(func() { deps.Bus.PublishBreakerReset() })
	return e
}

// Start launches the evaluation loop in its own goroutine. The context
// is plumbed into every fetch; the loop itself imposes no timeout, so a
// host wanting one cancels the context.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(ctx)
	e.logger.Info().
		Strs("indices", e.cfg.Indices).
		Str("signal_path", e.cfg.SignalPath).
		Dur("cycle", e.cfg.CyclePeriod).
		Msg("Evaluation loop started")
}

// Stop shuts the loop down and waits for the current pass to finish.
// Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	for {
		// An open breaker is terminal: the loop exits and stays down
		// until an operator resets the breaker and restarts the host.
		if halted, reason := e.deps.Breaker.Halted(); halted {
			e.logger.Error().Str("reason", reason).Msg("Circuit breaker open, evaluation loop exiting")
			return
		}
		e.runPass(ctx)
		if !e.pause(ctx, e.cfg.CyclePeriod) {
			e.logger.Info().Msg("Evaluation loop stopped")
			return
		}
	}
}

// pause sleeps for d, returning false when the engine is stopping.
func (e *Engine) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-e.stopChan:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-e.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

// runPass evaluates every configured index in order, then runs the
// cross-index selection when a selector is wired.
func (e *Engine) runPass(ctx context.Context) {
	start := time.Now()
	decisions := 0
	for i, index := range e.cfg.Indices {
		if i > 0 && !e.pause(ctx, e.cfg.InterIndexDelay) {
			return
		}
		if d := e.evaluateIndex(ctx, index); d != nil {
			decisions++
		}
	}

	if e.deps.Selector != nil {
		if sel := e.deps.Selector.SelectBest(ctx); sel != nil {
			e.mu.Lock()
			e.lastSelection = sel
			e.mu.Unlock()
			e.deps.Bus.PublishSelection(sel.Winner.Index, sel.Reason, sel.Winner.Score)
		}
	}

	took := time.Since(start)
	e.mu.Lock()
	e.passes++
	e.lastPassAt = start
	e.lastPassTook = took
	e.mu.Unlock()

	e.deps.Bus.PublishPassCompleted(len(e.cfg.Indices), decisions, took)
	e.logger.Debug().
		Int("indices", len(e.cfg.Indices)).
		Int("decisions", decisions).
		Dur("took", took).
		Msg("Pass completed")
}

// evaluateIndex runs one index through the full chain. Any stage that
// declines the cycle resets the scaling streak; only a fully validated
// cycle records it. A panic is contained to this index so the pass can
// continue with the next one.
func (e *Engine) evaluateIndex(ctx context.Context, index string) (decision *TradeDecision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("index", index).Interface("panic", r).Msg("Evaluation panicked")
			e.deps.Breaker.RecordFailure(fmt.Sprintf("%s panic: %v", index, r))
			e.deps.Bus.PublishError("engine", "evaluation panic on "+index, fmt.Errorf("%v", r))
			e.deps.Tracker.Reset(ctx, index)
			decision = nil
		}
	}()

	primary, err := e.deps.Analyzer.Analyze(ctx, index, e.cfg.PrimaryTimeframe)
	if err != nil {
		return e.fail(ctx, index, "primary analysis", err)
	}
	if primary.Status == pipeline.StatusNoData {
		e.deps.Breaker.RecordSuccess()
		e.reject(ctx, index, "primary analysis", "no candle data")
		return nil
	}

	var confirmation *pipeline.TimeframeResult
	hasConfirmation := e.cfg.ConfirmationTimeframe != ""
	if hasConfirmation {
		confirmation, err = e.deps.Analyzer.Analyze(ctx, index, e.cfg.ConfirmationTimeframe)
		if err != nil {
			return e.fail(ctx, index, "confirmation analysis", err)
		}
	}
	e.deps.Breaker.RecordSuccess()

	confDirection := market.Avoid
	var confSeries *market.Series
	if confirmation != nil {
		confDirection = confirmation.Direction
		confSeries = confirmation.Series
	}
	combined := pipeline.CombineTimeframes(primary.Direction, confDirection, hasConfirmation)
	if !combined.Actionable() {
		e.reject(ctx, index, "timeframe combination", fmt.Sprintf("combined direction %s", combined))
		return nil
	}

	score := e.deps.Scorer.Score(primary.Series, confSeries)
	breakdown := Breakdown{Primary: primary, Confirmation: confirmation, Trend: score}

	switch e.cfg.SignalPath {
	case PathTrendScore:
		resolved := e.deps.Scorer.DirectionFor(score.Total())
		if resolved != combined {
			e.reject(ctx, index, "trend score", fmt.Sprintf("composite %.1f resolves to %s, not %s", score.Total(), resolved, combined))
			return nil
		}
	default:
		dir := e.deps.Direction.Validate(ctx, index, combined, primary.Series)
		breakdown.Direction = &dir
		if !dir.Valid {
			e.reject(ctx, index, "direction validation", strings.Join(dir.Reasons, "; "))
			return nil
		}
		mom := e.deps.Momentum.Validate(index, combined, primary.Series)
		breakdown.Momentum = &mom
		if !mom.Valid {
			e.reject(ctx, index, "momentum validation", strings.Join(mom.Reasons, "; "))
			return nil
		}
		vol := e.deps.Volatility.Validate(primary.Series)
		breakdown.Volatility = &vol
		if !vol.Valid {
			e.reject(ctx, index, "volatility validation", strings.Join(vol.Reasons, "; "))
			return nil
		}
	}

	gate := e.deps.Gate.Validate(e.now(), index, combined, primary.Series)
	breakdown.Gate = gate
	if !gate.Valid {
		e.reject(ctx, index, "comprehensive gate", gate.Reason)
		return nil
	}

	last, _ := primary.Series.Last()
	scaled := e.deps.Tracker.Record(ctx, index, combined, last.Timestamp, e.cfg.Scaling)

	d := TradeDecision{
		ID:                uuid.New().String(),
		Index:             index,
		Direction:         combined,
		Score:             score.Total(),
		ScalingMultiplier: scaled.Multiplier,
		Breakdown:         breakdown,
		At:                e.now(),
	}
	e.remember(d)
	if e.deps.Sink != nil {
		e.deps.Sink.Emit(ctx, d)
	}
	e.deps.Bus.PublishDecision(d.ID, d.Index, d.Direction.String(), d.Score, d.ScalingMultiplier)
	e.logger.Info().
		Str("index", d.Index).
		Str("direction", d.Direction.String()).
		Float64("score", d.Score).
		Int("multiplier", d.ScalingMultiplier).
		Int("streak", scaled.Count).
		Msg("Trade decision emitted")
	return &d
}

// fail handles a collaborator error: it feeds the breaker's failure
// streak, surfaces the error on the bus, and clears the index's state.
func (e *Engine) fail(ctx context.Context, index, stage string, err error) *TradeDecision {
	e.logger.Error().Err(err).Str("index", index).Str("stage", stage).Msg("Evaluation failed")
	e.deps.Breaker.RecordFailure(fmt.Sprintf("%s %s: %v", index, stage, err))
	e.deps.Bus.PublishError("engine", stage+" failed for "+index, err)
	e.deps.Tracker.Reset(ctx, index)
	return nil
}

// reject handles an ordinary no-trade outcome.
func (e *Engine) reject(ctx context.Context, index, stage, why string) {
	e.logger.Debug().Str("index", index).Str("stage", stage).Str("reason", why).Msg("Cycle rejected")
	e.deps.Tracker.Reset(ctx, index)
}

func (e *Engine) remember(d TradeDecision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decisionCount++
	e.recent = append(e.recent, d)
	if len(e.recent) > maxRecent {
		e.recent = e.recent[len(e.recent)-maxRecent:]
	}
}

// RecentDecisions returns up to n decisions, newest first.
func (e *Engine) RecentDecisions(n int) []TradeDecision {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n <= 0 || n > len(e.recent) {
		n = len(e.recent)
	}
	out := make([]TradeDecision, n)
	for i := 0; i < n; i++ {
		out[i] = e.recent[len(e.recent)-1-i]
	}
	return out
}

// LastSelection returns the most recent cross-index ranking, or nil
// when no selection pass has completed yet.
func (e *Engine) LastSelection() *selector.Selection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSelection
}

// ScalingState exposes the stored streak for one index.
func (e *Engine) ScalingState(ctx context.Context, index string) (scaling.State, bool) {
	return e.deps.Tracker.State(ctx, index)
}

// Status reports the loop counters and the breaker state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Running:    e.running,
		SignalPath: e.cfg.SignalPath,
		Indices:    e.cfg.Indices,
		Passes:     e.passes,
		Decisions:  e.decisionCount,
		LastPassAt: e.lastPassAt,
		LastPassMs: e.lastPassTook.Milliseconds(),
		Breaker:    e.deps.Breaker.Stats(),
	}
}
