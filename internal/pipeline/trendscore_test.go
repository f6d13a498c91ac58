package pipeline

import (
	"testing"

	"index-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

func testScorer() *TrendScorer {
	return NewTrendScorer(DefaultTrendScorerConfig(), zerolog.Nop())
}

func assertComponentBounds(t *testing.T, s TrendScore) {
	t.Helper()
	for name, v := range map[string]float64{"pa": s.PA, "indicator": s.Indicator, "mtf": s.MTF} {
		if v < 0 || v > 7 {
			t.Errorf("%s component %v outside [0,7]", name, v)
		}
	}
	if total := s.Total(); total != s.PA+s.Indicator+s.MTF {
		t.Errorf("total %v != sum of components %v", total, s.PA+s.Indicator+s.MTF)
	}
}

func TestScoreComponentsStayBounded(t *testing.T) {
	ts := testScorer()
	series := []*market.Series{
		driftSeries("NIFTY", "5", 60, 100, 0.5),
		driftSeries("NIFTY", "5", 60, 200, -0.5),
		chopSeries("NIFTY", "5", 60),
		driftSeries("NIFTY", "5", 3, 100, 0.5),
	}
	for _, primary := range series {
		for _, confirmation := range append([]*market.Series{nil}, series...) {
			assertComponentBounds(t, ts.Score(primary, confirmation))
		}
	}
}

func TestScoreShortSeriesHasZeroPA(t *testing.T) {
	ts := testScorer()
	s := ts.Score(driftSeries("NIFTY", "5", 2, 100, 0.5), nil)
	if s.PA != 0 {
		t.Errorf("price action on 2 closes = %v, want 0", s.PA)
	}
}

func TestScoreRanksTrendAboveChop(t *testing.T) {
	ts := testScorer()
	trending := ts.Score(driftSeries("NIFTY", "5", 60, 100, 0.5), driftSeries("NIFTY", "15", 60, 100, 1.5))
	choppy := ts.Score(chopSeries("NIFTY", "5", 60), chopSeries("NIFTY", "15", 60))

	if trending.Total() <= choppy.Total() {
		t.Errorf("trending total %v should beat choppy total %v", trending.Total(), choppy.Total())
	}
}

func TestScoreMTFFallbackDepths(t *testing.T) {
	ts := testScorer()

	deep := ts.Score(driftSeries("NIFTY", "5", 25, 100, 0.5), nil)
	if deep.MTF != 3.5 {
		t.Errorf("unconfirmed MTF with 25 candles = %v, want 3.5", deep.MTF)
	}

	shallow := ts.Score(driftSeries("NIFTY", "5", 10, 100, 0.5), nil)
	if shallow.MTF != 1.5 {
		t.Errorf("unconfirmed MTF with 10 candles = %v, want 1.5", shallow.MTF)
	}
}

func TestScoreMTFAlignmentRewardsAgreement(t *testing.T) {
	ts := testScorer()

	aligned := ts.Score(
		driftSeries("NIFTY", "5", 60, 100, 0.5),
		driftSeries("NIFTY", "15", 60, 100, 1.5),
	)
	split := ts.Score(
		driftSeries("NIFTY", "5", 60, 100, 0.5),
		driftSeries("NIFTY", "15", 60, 200, -1.5),
	)
	if aligned.MTF <= split.MTF {
		t.Errorf("aligned MTF %v should beat split MTF %v", aligned.MTF, split.MTF)
	}
}

func TestDirectionForThresholds(t *testing.T) {
	ts := testScorer()
	cases := []struct {
		total float64
		want  market.Direction
	}{
		{14.0, market.Bullish},
		{18.5, market.Bullish},
		{13.9, market.None},
		{7.1, market.None},
		{7.0, market.Bearish},
		{2.0, market.Bearish},
	}
	for _, c := range cases {
		if got := ts.DirectionFor(c.total); got != c.want {
			t.Errorf("DirectionFor(%v) = %s, want %s", c.total, got, c.want)
		}
	}
}

func TestDirectionForUnresolvedIsNotAvoid(t *testing.T) {
	ts := testScorer()
	if got := ts.DirectionFor(10.0); got == market.Avoid {
		t.Error("mid-band score must resolve to none, not avoid")
	}
}
