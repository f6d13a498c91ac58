package pipeline

import "testing"

func TestThresholdTableLookup(t *testing.T) {
	table := DefaultThresholdTable()

	cases := []struct {
		index  string
		minADX float64
	}{
		{"NIFTY", 5},
		{"banknifty", 6}, // case-insensitive
		{"BANKNIFTY", 6},
		{"SENSEX", 5},
		{"MIDCPNIFTY", 5}, // unlisted falls back to default
	}
	for _, tc := range cases {
		got := table.For(tc.index)
		if got.MinADX != tc.minADX {
			t.Errorf("For(%q).MinADX = %.0f, want %.0f", tc.index, got.MinADX, tc.minADX)
		}
		if got.PremiumSpeedPct != 0.01 {
			t.Errorf("For(%q).PremiumSpeedPct = %v, want 0.01", tc.index, got.PremiumSpeedPct)
		}
	}
}

func TestThresholdTableNilSafe(t *testing.T) {
	var table *ThresholdTable
	if got := table.For("NIFTY"); got != (IndexThresholds{}) {
		t.Errorf("nil table should return zero thresholds, got %+v", got)
	}
}
