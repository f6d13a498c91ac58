package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"index-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

func testDirectionValidator(src *fakeSource, minAgreement int) *DirectionValidator {
	cfg := DefaultDirectionConfig()
	cfg.MinAgreement = minAgreement
	return NewDirectionValidator(src, DefaultThresholdTable(), cfg, zerolog.Nop())
}

func TestDirectionValidatorRejectsBadMinAgreement(t *testing.T) {
	for _, bad := range []int{0, 7, -1} {
		v := testDirectionValidator(newFakeSource(), bad)
		res := v.Validate(context.Background(), "NIFTY", market.Bullish, driftSeries("NIFTY", "5", 60, 100, 0.5))

		if res.Valid {
			t.Errorf("min_agreement %d should be rejected", bad)
		}
		if res.Score != 0 || res.Direction != market.Avoid {
			t.Errorf("invalid input result = score %d direction %s, want 0/avoid", res.Score, res.Direction)
		}
		if len(res.Reasons) == 0 || !strings.Contains(res.Reasons[0], "invalid input") {
			t.Errorf("missing invalid-input reason: %v", res.Reasons)
		}
	}
}

func TestDirectionValidatorRejectsNonTradeableDirection(t *testing.T) {
	v := testDirectionValidator(newFakeSource(), 4)
	for _, d := range []market.Direction{market.Avoid, market.None} {
		res := v.Validate(context.Background(), "NIFTY", d, driftSeries("NIFTY", "5", 60, 100, 0.5))
		if res.Valid || res.Direction != market.Avoid {
			t.Errorf("direction %s should be rejected as invalid input", d)
		}
	}
}

func TestHTFAgreementADXFloor(t *testing.T) {
	limits := DefaultThresholdTable().For("BANKNIFTY")
	if limits.MinADX != 6 {
		t.Fatalf("BANKNIFTY ADX floor = %v, want 6", limits.MinADX)
	}

	pass := htfAgreement("60", market.Bullish, market.Bullish, 6, true, limits)
	if !pass.Agrees {
		t.Errorf("ADX exactly at the floor should agree: %s", pass.Reason)
	}

	fail := htfAgreement("60", market.Bullish, market.Bullish, 4, true, limits)
	if fail.Agrees {
		t.Error("ADX 4 below floor 6 should not agree despite matching trend")
	}
	if !strings.Contains(fail.Reason, "below minimum") {
		t.Errorf("reason should name the floor: %s", fail.Reason)
	}

	mismatch := htfAgreement("60", market.Bearish, market.Bullish, 50, true, limits)
	if mismatch.Agrees {
		t.Error("trend mismatch should never agree, whatever the ADX")
	}
}

func TestDirectionValidatorBullishTrend(t *testing.T) {
	src := newFakeSource()
	src.put("NIFTY", "5", driftSeries("NIFTY", "5", 60, 100, 0.5))
	src.put("NIFTY", "60", driftSeries("NIFTY", "60", 60, 100, 2))
	v := testDirectionValidator(src, 4)

	primary, _ := src.Candles(context.Background(), "NIFTY", "5")
	res := v.Validate(context.Background(), "NIFTY", market.Bullish, primary)

	if res.Score != countAgrees(res.Factors) {
		t.Errorf("score %d != agreeing factors %d", res.Score, countAgrees(res.Factors))
	}
	if len(res.Factors) != 6 {
		t.Fatalf("expected 6 factors, got %d", len(res.Factors))
	}

	// A one-way drift never confirms swing points, so the structure
	// break checks cannot agree; everything else should.
	for _, name := range []string{FactorHTFSupertrend, FactorADXStrength, FactorVWAPPosition, FactorCandleStructure} {
		if !res.Factors[name].Agrees {
			t.Errorf("%s should agree on a clean uptrend: %s", name, res.Factors[name].Reason)
		}
	}
	for _, name := range []string{FactorBOSAlignment, FactorCHOCHAlignment} {
		if res.Factors[name].Agrees {
			t.Errorf("%s cannot agree without confirmed swings", name)
		}
	}

	if !res.Valid || res.Score != 4 {
		t.Errorf("clean uptrend with min 4: valid=%v score=%d", res.Valid, res.Score)
	}
	if len(res.Reasons) != 0 {
		t.Errorf("valid result should carry no failure reasons: %v", res.Reasons)
	}
}

func TestDirectionValidatorWrongWayCandidate(t *testing.T) {
	src := newFakeSource()
	src.put("NIFTY", "5", driftSeries("NIFTY", "5", 60, 100, 0.5))
	src.put("NIFTY", "60", driftSeries("NIFTY", "60", 60, 100, 2))
	v := testDirectionValidator(src, 4)

	primary, _ := src.Candles(context.Background(), "NIFTY", "5")
	res := v.Validate(context.Background(), "NIFTY", market.Bearish, primary)

	if res.Valid {
		t.Fatal("bearish candidate on a clean uptrend must not validate")
	}
	if res.Score != countAgrees(res.Factors) {
		t.Errorf("score %d != agreeing factors %d", res.Score, countAgrees(res.Factors))
	}
	if len(res.Reasons) == 0 {
		t.Fatal("invalid result must carry reasons")
	}
	last := res.Reasons[len(res.Reasons)-1]
	if !strings.Contains(last, "/6 factors agree") {
		t.Errorf("missing summary line, got %q", last)
	}
	// Trend strength is direction-neutral; it still agrees here.
	if !res.Factors[FactorADXStrength].Agrees {
		t.Error("ADX strength should agree regardless of candidate direction")
	}
	if res.Factors[FactorVWAPPosition].Agrees {
		t.Error("VWAP position cannot agree for bearish above VWAP")
	}
}

func TestDirectionValidatorIsolatesCollaboratorFailure(t *testing.T) {
	src := newFakeSource()
	src.put("NIFTY", "5", driftSeries("NIFTY", "5", 60, 100, 0.5))
	src.fail("NIFTY", "60", errors.New("upstream timeout"))
	v := testDirectionValidator(src, 4)

	primary, _ := src.Candles(context.Background(), "NIFTY", "5")
	res := v.Validate(context.Background(), "NIFTY", market.Bullish, primary)

	htf := res.Factors[FactorHTFSupertrend]
	if htf.Agrees {
		t.Error("failed fetch cannot agree")
	}
	if !strings.Contains(htf.Reason, "upstream timeout") {
		t.Errorf("collaborator error should surface in the reason: %s", htf.Reason)
	}
	if len(res.Factors) != 6 {
		t.Errorf("one failing check must not stop the others: %d factors", len(res.Factors))
	}
	if res.Score != countAgrees(res.Factors) {
		t.Errorf("score %d != agreeing factors %d", res.Score, countAgrees(res.Factors))
	}
}

func TestDirectionValidatorReasonsAlwaysPopulated(t *testing.T) {
	src := newFakeSource()
	src.put("NIFTY", "5", chopSeries("NIFTY", "5", 60))
	src.put("NIFTY", "60", chopSeries("NIFTY", "60", 60))
	v := testDirectionValidator(src, 6)

	primary, _ := src.Candles(context.Background(), "NIFTY", "5")
	res := v.Validate(context.Background(), "NIFTY", market.Bullish, primary)

	for name, f := range res.Factors {
		if f.Reason == "" {
			t.Errorf("factor %s has an empty reason", name)
		}
	}
	if res.Valid {
		t.Error("chop should not satisfy all six factors")
	}
	if len(res.Reasons) == 0 {
		t.Error("invalid result must carry reasons")
	}
}
