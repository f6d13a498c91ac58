// Package circuit provides the engine's halt switch. A tripped breaker
// stops the evaluation loop until an operator resets it; there is no
// automatic cooldown.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State of the breaker.
type State string

const (
	// StateClosed is normal operation.
	StateClosed State = "closed"

	// StateOpen means evaluation is halted.
	StateOpen State = "open"
)

// Config holds the breaker policy.
type Config struct {
	// MaxConsecutiveFailures trips the breaker after this many failed
	// evaluation cycles in a row. Zero disables auto-tripping; manual
	// trips still work.
	MaxConsecutiveFailures int `json:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
}

// Breaker is a thread-safe open/closed switch with trip callbacks and
// an optional consecutive-failure auto-trip.
type Breaker struct {
	mu        sync.RWMutex
	cfg       Config
	state     State
	reason    string
	trippedAt time.Time
	failures  int
	onTrip    func(reason string)
	onReset   func()
	logger    zerolog.Logger
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg Config, logger zerolog.Logger) *Breaker {
	return &Breaker{
		cfg:    cfg,
		state:  StateClosed,
		logger: logger.With().Str("component", "CircuitBreaker").Logger(),
	}
}

// OnTrip sets the callback fired when the breaker opens. The callback
// runs on its own goroutine.
func (b *Breaker) OnTrip(handler func(reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = handler
}

// OnReset sets the callback fired when the breaker closes again.
func (b *Breaker) OnReset(handler func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReset = handler
}

// Trip opens the breaker with the given reason. Tripping an already
// open breaker is a no-op: the first reason stands.
func (b *Breaker) Trip(reason string) {
	b.mu.Lock()
	if b.state == StateOpen {
		b.mu.Unlock()
		return
	}
	b.state = StateOpen
	b.reason = reason
	b.trippedAt = time.Now()
	handler := b.onTrip
	b.mu.Unlock()

	b.logger.Warn().Str("reason", reason).Msg("Circuit breaker tripped, evaluation halted")
	if handler != nil {
		go handler(reason)
	}
}

// Reset closes the breaker and clears the failure streak.
func (b *Breaker) Reset() {
	b.mu.Lock()
	wasOpen := b.state == StateOpen
	b.state = StateClosed
	b.reason = ""
	b.failures = 0
	handler := b.onReset
	b.mu.Unlock()

	if wasOpen {
		b.logger.Info().Msg("Circuit breaker reset")
		if handler != nil {
			go handler()
		}
	}
}

// Halted reports whether evaluation is halted, with the trip reason.
func (b *Breaker) Halted() (bool, string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == StateOpen, b.reason
}

// RecordFailure counts one failed evaluation cycle and trips the
// breaker when the configured streak is reached. Returns true if this
// call tripped it.
func (b *Breaker) RecordFailure(source string) bool {
	b.mu.Lock()
	b.failures++
	failures := b.failures
	shouldTrip := b.cfg.MaxConsecutiveFailures > 0 &&
		failures >= b.cfg.MaxConsecutiveFailures &&
		b.state == StateClosed
	b.mu.Unlock()

	if !shouldTrip {
		return false
	}
	b.Trip(fmt.Sprintf("%d consecutive evaluation failures (last: %s)", failures, source))
	return true
}

// RecordSuccess clears the failure streak.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

// Stats returns a snapshot for the status API.
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := map[string]interface{}{
		"state":                string(b.state),
		"consecutive_failures": b.failures,
	}
	if b.state == StateOpen {
		stats["reason"] = b.reason
		stats["tripped_at"] = b.trippedAt
	}
	return stats
}
