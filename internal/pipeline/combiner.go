package pipeline

import "index-signal-engine/internal/market"

// CombineTimeframes merges the primary verdict with an optional
// confirmation verdict. Pure and total:
//
//	no confirmation configured -> primary
//	either side avoid          -> avoid
//	both equal                 -> that direction
//	disagreement               -> avoid
//
// There is no partial agreement and no weighting.
func CombineTimeframes(primary, confirmation market.Direction, hasConfirmation bool) market.Direction {
	if !hasConfirmation {
		return primary
	}
	if primary == market.Avoid || confirmation == market.Avoid {
		return market.Avoid
	}
	if primary == confirmation {
		return primary
	}
	return market.Avoid
}
