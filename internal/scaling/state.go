// Package scaling tracks consecutive same-direction signals per index
// and turns the streak into a position-scaling multiplier. Streak state
// is the only data in the engine that outlives an evaluation cycle.
package scaling

import (
	"context"
	"time"

	"index-signal-engine/internal/market"
)

// State is the stored streak for one index. Only the Tracker writes it.
type State struct {
	Direction  market.Direction `json:"direction"`
	Count      int              `json:"count"`
	LastCandle time.Time        `json:"last_candle"`
	LastSeen   time.Time        `json:"last_seen"`
}

// Config is the scaling policy for one index.
type Config struct {
	Enabled       bool `json:"enabled" mapstructure:"enabled"`
	DecaySeconds  int  `json:"decay_seconds" mapstructure:"decay_seconds"`
	MaxMultiplier int  `json:"max_multiplier" mapstructure:"max_multiplier"`
}

// DefaultConfig caps streaks at 3x size and decays them after fifteen
// minutes without a signal.
func DefaultConfig() Config {
	return Config{Enabled: true, DecaySeconds: 900, MaxMultiplier: 3}
}

// Result of one Record call.
type Result struct {
	Count      int `json:"count"`
	Multiplier int `json:"multiplier"`
}

// Store persists streak state with a TTL. A zero or negative TTL means
// the entry never expires. Implementations must be safe for concurrent
// use.
type Store interface {
	Get(ctx context.Context, key string) (State, bool)
	Set(ctx context.Context, key string, state State, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
