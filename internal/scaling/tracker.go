package scaling

import (
	"context"
	"strings"
	"time"

	"index-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

// Tracker owns streak state. Record and Reset are the only mutating
// entry points; nothing else may write to the store.
type Tracker struct {
	store  Store
	logger zerolog.Logger
}

// NewTracker builds a tracker over the injected store.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With().Str("component", "StateTracker").Logger(),
	}
}

func stateKey(index string) string {
	return strings.ToUpper(index)
}

// Record folds one valid signal into the streak for index and returns
// the streak count plus the capped position multiplier.
//
// With scaling disabled the call is stateless: count 1 for an
// actionable direction, 0 otherwise, multiplier always 1, store
// untouched. Otherwise the count grows only when the direction repeats
// on a fresh candle; the same candle holds the count and a direction
// change restarts it at 1.
func (t *Tracker) Record(ctx context.Context, index string, direction market.Direction, candleTS time.Time, cfg Config) Result {
	if !cfg.Enabled {
		count := 0
		if direction.Actionable() {
			count = 1
		}
		return Result{Count: count, Multiplier: 1}
	}

	key := stateKey(index)
	prev, ok := t.store.Get(ctx, key)

	var count int
	switch {
	case !ok:
		count = 1
	case prev.Direction == direction && candleTS.After(prev.LastCandle):
		count = prev.Count + 1
	case prev.Direction == direction:
		count = prev.Count
		if count < 1 {
			count = 1
		}
	default:
		count = 1
	}

	ttl := time.Duration(cfg.DecaySeconds) * time.Second
	if ttl < 0 {
		ttl = 0
	}
	state := State{
		Direction:  direction,
		Count:      count,
		LastCandle: candleTS,
		LastSeen:   time.Now(),
	}
	if err := t.store.Set(ctx, key, state, ttl); err != nil {
		t.logger.Warn().Err(err).Str("index", index).Msg("Failed to persist scaling state")
	}

	multiplier := count
	if multiplier > cfg.MaxMultiplier {
		multiplier = cfg.MaxMultiplier
	}
	if multiplier < 1 {
		multiplier = 1
	}

	t.logger.Debug().
		Str("index", index).
		Str("direction", direction.String()).
		Int("count", count).
		Int("multiplier", multiplier).
		Msg("Scaling state recorded")

	return Result{Count: count, Multiplier: multiplier}
}

// Reset clears the streak for index. The engine calls this on every
// cycle that fails to produce a valid signal, so scaling never persists
// across a broken streak.
func (t *Tracker) Reset(ctx context.Context, index string) {
	if err := t.store.Delete(ctx, stateKey(index)); err != nil {
		t.logger.Warn().Err(err).Str("index", index).Msg("Failed to clear scaling state")
	}
}

// State returns the stored streak for index, if any.
func (t *Tracker) State(ctx context.Context, index string) (State, bool) {
	return t.store.Get(ctx, stateKey(index))
}
