package pipeline

import "strings"

// IndexThresholds carries the per-index minimums used by the direction
// and momentum validators. Index option liquidity differs enough that
// one global ADX floor misfires on the heavier contracts.
type IndexThresholds struct {
	// MinADX is the floor applied to both primary and higher-timeframe
	// ADX agreement checks.
	MinADX float64 `json:"min_adx"`

	// PremiumSpeedPct is the minimum absolute close-to-close percentage
	// move for the velocity confirmation.
	PremiumSpeedPct float64 `json:"premium_speed_pct"`
}

// ThresholdTable resolves per-index thresholds with an explicit default
// entry for unknown indices. Lookups are case-insensitive.
type ThresholdTable struct {
	entries  map[string]IndexThresholds
	fallback IndexThresholds
}

// NewThresholdTable builds a table from explicit entries plus the
// fallback returned for unlisted indices.
func NewThresholdTable(entries map[string]IndexThresholds, fallback IndexThresholds) *ThresholdTable {
	normalized := make(map[string]IndexThresholds, len(entries))
	for k, v := range entries {
		normalized[strings.ToUpper(k)] = v
	}
	return &ThresholdTable{entries: normalized, fallback: fallback}
}

// DefaultThresholdTable covers the NSE/BSE index underlyings this
// engine trades. BANKNIFTY runs a higher ADX floor because its wider
// intraday range produces more false trend readings at low strength.
func DefaultThresholdTable() *ThresholdTable {
	def := IndexThresholds{MinADX: 5, PremiumSpeedPct: 0.01}
	return NewThresholdTable(map[string]IndexThresholds{
		"NIFTY":     {MinADX: 5, PremiumSpeedPct: 0.01},
		"BANKNIFTY": {MinADX: 6, PremiumSpeedPct: 0.01},
		"SENSEX":    {MinADX: 5, PremiumSpeedPct: 0.01},
		"FINNIFTY":  {MinADX: 5, PremiumSpeedPct: 0.01},
	}, def)
}

// For returns the thresholds for an index, falling back to the default
// entry when the index is not listed.
func (t *ThresholdTable) For(index string) IndexThresholds {
	if t == nil {
		return IndexThresholds{}
	}
	if v, ok := t.entries[strings.ToUpper(index)]; ok {
		return v
	}
	return t.fallback
}
