package fragility

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/adherence/adherence/internal/measure"
	"github.com/adherence/adherence/internal/pdc"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func boolPtr(b bool) *bool { return &b }

// salvageable returns a PDC result that lands in the F-tier branch:
// not yet compliant, target still reachable.
func salvageable(gapRemaining, daysToYearEnd int) pdc.Result {
	return pdc.Result{
		PDCStatusQuo:     70,
		PDCPerfect:       95,
		GapDaysRemaining: gapRemaining,
		DaysToYearEnd:    daysToYearEnd,
		DaysUntilRunout:  15,
	}
}

// ---------------------------------------------------------------------------
// Decision order
// ---------------------------------------------------------------------------

func TestClassify_CompliantWinsFirst(t *testing.T) {
	// Status quo already >= 80: terminal, even with a hopeless-looking gap.
	in := Input{
		PDC: pdc.Result{
			PDCStatusQuo:     82,
			PDCPerfect:       60, // would be unsalvageable if checked first
			GapDaysRemaining: -10,
			DaysUntilRunout:  5,
		},
		RefillsRemaining: 3,
		MeasureTypes:     []measure.Type{measure.MAC},
		CurrentDate:      d(2025, 11, 1),
	}
	res := Classify(in)
	if res.Tier != TierCompliant {
		t.Fatalf("tier = %s, want COMPLIANT", res.Tier)
	}
	if !res.Flags.IsCompliant || res.Flags.IsUnsalvageable {
		t.Errorf("flags = %+v", res.Flags)
	}
	if res.TierLevel != 6 {
		t.Errorf("tier level = %d, want 6", res.TierLevel)
	}
	if res.Flags.Q4Tightened {
		t.Error("COMPLIANT must never be Q4-tightened")
	}
}

func TestClassify_UnsalvageableByPerfectPDC(t *testing.T) {
	in := Input{
		PDC: pdc.Result{
			PDCStatusQuo:     50,
			PDCPerfect:       63.0,
			GapDaysRemaining: 40, // plenty of gap days; tier is still T5
			DaysUntilRunout:  10,
		},
		RefillsRemaining: 2,
		MeasureTypes:     []measure.Type{measure.MAD},
		CurrentDate:      d(2025, 6, 1),
	}
	res := Classify(in)
	if res.Tier != TierUnsalvageable {
		t.Fatalf("tier = %s, want T5_UNSALVAGEABLE", res.Tier)
	}
	if res.TierLevel != 0 {
		t.Errorf("tier level = %d, want 0", res.TierLevel)
	}
	if res.Bonuses.Base != 0 {
		t.Errorf("T5 base score = %d, want 0", res.Bonuses.Base)
	}
}

func TestClassify_UnsalvageableByOverspentGapBudget(t *testing.T) {
	in := Input{
		PDC: pdc.Result{
			PDCStatusQuo:     60,
			PDCPerfect:       85,
			GapDaysRemaining: -3,
			DaysUntilRunout:  10,
		},
		RefillsRemaining: 4,
		MeasureTypes:     []measure.Type{measure.MAH},
		CurrentDate:      d(2025, 6, 1),
	}
	res := Classify(in)
	if res.Tier != TierUnsalvageable {
		t.Fatalf("tier = %s, want T5_UNSALVAGEABLE for negative gap budget", res.Tier)
	}
}

// ---------------------------------------------------------------------------
// Delay-budget tiers
// ---------------------------------------------------------------------------

func TestClassify_DelayBudgetTiers(t *testing.T) {
	cases := []struct {
		gapRemaining int
		refills      int
		want         Tier
	}{
		{2, 1, TierImminent},     // budget 2
		{10, 5, TierImminent},    // budget 2
		{5, 1, TierFragile},      // budget 5
		{9, 3, TierFragile},      // budget 3
		{10, 1, TierModerate},    // budget 10
		{18, 3, TierModerate},    // budget 6
		{20, 1, TierComfortable}, // budget 20
		{33, 3, TierComfortable}, // budget 11
		{21, 1, TierSafe},        // budget 21
		{63, 3, TierSafe},        // budget 21
	}
	for _, c := range cases {
		in := Input{
			PDC:              salvageable(c.gapRemaining, 200),
			RefillsRemaining: c.refills,
			MeasureTypes:     []measure.Type{measure.MAC},
			CurrentDate:      d(2025, 5, 1),
		}
		if got := Classify(in).Tier; got != c.want {
			t.Errorf("gap=%d refills=%d: tier = %s, want %s",
				c.gapRemaining, c.refills, got, c.want)
		}
	}
}

func TestClassify_ZeroRefillsIsSafe(t *testing.T) {
	in := Input{
		PDC:              salvageable(4, 200),
		RefillsRemaining: 0,
		MeasureTypes:     []measure.Type{measure.MAC},
		CurrentDate:      d(2025, 5, 1),
	}
	res := Classify(in)
	if res.Tier != TierSafe {
		t.Errorf("tier = %s, want F5_SAFE with no refills remaining", res.Tier)
	}
	if !res.DelayBudgetPerRefill.Unlimited() {
		t.Errorf("delay budget = %v, want unlimited", res.DelayBudgetPerRefill)
	}
}

// ---------------------------------------------------------------------------
// Q4 tightening
// ---------------------------------------------------------------------------

func TestClassify_Q4TighteningPromotesOneLevel(t *testing.T) {
	cases := []struct {
		gapRemaining int
		refills      int
		base         Tier
		want         Tier
	}{
		{5, 1, TierFragile, TierImminent},
		{5, 0, TierSafe, TierComfortable}, // unlimited budget still tightens
	}
	for _, c := range cases {
		in := Input{
			PDC:              salvageable(c.gapRemaining, 30), // <60 days left
			RefillsRemaining: c.refills,
			MeasureTypes:     []measure.Type{measure.MAC},
			CurrentDate:      d(2025, 12, 1),
		}
		res := Classify(in)
		if res.Tier != c.want {
			t.Errorf("base %s: tier = %s, want %s", c.base, res.Tier, c.want)
		}
		if !res.Flags.Q4Tightened {
			t.Errorf("base %s: Q4Tightened flag not set", c.base)
		}
	}
}

func TestClassify_Q4TighteningNeedsBothConditions(t *testing.T) {
	// Gap nearly spent but 100 days remain: no tightening.
	in := Input{
		PDC:              salvageable(5, 100),
		RefillsRemaining: 1,
		MeasureTypes:     []measure.Type{measure.MAC},
		CurrentDate:      d(2025, 9, 20),
	}
	if res := Classify(in); res.Flags.Q4Tightened {
		t.Errorf("tightened with %d days to year end", in.PDC.DaysToYearEnd)
	}

	// Late in the year but comfortable gap budget: no tightening.
	in = Input{
		PDC:              salvageable(15, 30),
		RefillsRemaining: 1,
		MeasureTypes:     []measure.Type{measure.MAC},
		CurrentDate:      d(2025, 12, 1),
	}
	if res := Classify(in); res.Flags.Q4Tightened {
		t.Errorf("tightened with %d gap days remaining", in.PDC.GapDaysRemaining)
	}
}

func TestClassify_Q4TighteningNeverPromotesF1(t *testing.T) {
	in := Input{
		PDC:              salvageable(1, 20),
		RefillsRemaining: 1,
		MeasureTypes:     []measure.Type{measure.MAC},
		CurrentDate:      d(2025, 12, 15),
	}
	res := Classify(in)
	if res.Tier != TierImminent {
		t.Fatalf("tier = %s, want F1_IMMINENT", res.Tier)
	}
	if res.Flags.Q4Tightened {
		t.Error("F1 must not report a Q4 promotion")
	}
}

// ---------------------------------------------------------------------------
// Priority score and urgency
// ---------------------------------------------------------------------------

func TestClassify_PriorityScoreCeiling(t *testing.T) {
	in := Input{
		PDC: pdc.Result{
			PDCStatusQuo:     65,
			PDCPerfect:       85,
			GapDaysRemaining: 2,
			DaysToYearEnd:    45,
			DaysUntilRunout:  -3, // already out of medication
		},
		RefillsRemaining: 1, // budget 2 -> F1
		MeasureTypes:     []measure.Type{measure.MAC, measure.MAD, measure.MAH},
		IsNewPatient:     true,
		CurrentDate:      d(2025, 11, 15), // Q4
	}
	res := Classify(in)
	if res.Tier != TierImminent {
		t.Fatalf("tier = %s, want F1_IMMINENT", res.Tier)
	}
	if res.PriorityScore != 180 {
		t.Errorf("priority score = %d, want 180", res.PriorityScore)
	}
	if res.UrgencyLevel != UrgencyExtreme {
		t.Errorf("urgency = %s, want EXTREME", res.UrgencyLevel)
	}
	want := Bonuses{Base: 100, OutOfMeds: 30, Q4: 25, MultipleMeasures: 15, NewPatient: 10}
	if res.Bonuses != want {
		t.Errorf("bonuses = %+v, want %+v", res.Bonuses, want)
	}
}

func TestClassify_UrgencyThresholds(t *testing.T) {
	cases := []struct {
		score int
		want  Urgency
	}{
		{180, UrgencyExtreme},
		{150, UrgencyExtreme},
		{149, UrgencyHigh},
		{100, UrgencyHigh},
		{99, UrgencyModerate},
		{50, UrgencyModerate},
		{49, UrgencyLow},
		{0, UrgencyLow},
	}
	for _, c := range cases {
		if got := urgencyFor(c.score); got != c.want {
			t.Errorf("urgencyFor(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestClassify_Q4Override(t *testing.T) {
	in := Input{
		PDC:              salvageable(30, 200),
		RefillsRemaining: 1,
		MeasureTypes:     []measure.Type{measure.MAC},
		CurrentDate:      d(2025, 3, 1), // not Q4 by calendar
		Q4Override:       boolPtr(true),
	}
	res := Classify(in)
	if !res.Flags.IsQ4 || res.Bonuses.Q4 != 25 {
		t.Errorf("override ignored: flags=%+v bonuses=%+v", res.Flags, res.Bonuses)
	}

	in.CurrentDate = d(2025, 11, 1)
	in.Q4Override = boolPtr(false)
	res = Classify(in)
	if res.Flags.IsQ4 || res.Bonuses.Q4 != 0 {
		t.Errorf("override to false ignored: flags=%+v bonuses=%+v", res.Flags, res.Bonuses)
	}
}

func TestClassify_Q4AutoDetection(t *testing.T) {
	for month := time.January; month <= time.December; month++ {
		in := Input{
			PDC:              salvageable(30, 200),
			RefillsRemaining: 1,
			MeasureTypes:     []measure.Type{measure.MAC},
			CurrentDate:      d(2025, month, 10),
		}
		res := Classify(in)
		wantQ4 := month >= time.October
		if res.Flags.IsQ4 != wantQ4 {
			t.Errorf("month %s: IsQ4 = %v, want %v", month, res.Flags.IsQ4, wantQ4)
		}
	}
}

// ---------------------------------------------------------------------------
// Contact windows and serialization
// ---------------------------------------------------------------------------

func TestContactWindowsCoverAllTiers(t *testing.T) {
	for tier := range tierLevels {
		if contactWindows[tier] == "" {
			t.Errorf("tier %s has no contact window", tier)
		}
		if actions[tier] == "" {
			t.Errorf("tier %s has no action", tier)
		}
	}
}

func TestDelayBudget_JSONRoundTrip(t *testing.T) {
	for _, v := range []DelayBudget{DelayBudget(6.5), DelayBudget(math.Inf(1))} {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %v: %v", v, err)
		}
		var back DelayBudget
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if v.Unlimited() != back.Unlimited() || (!v.Unlimited() && v != back) {
			t.Errorf("round trip changed value: %v -> %s -> %v", v, b, back)
		}
	}
	b, _ := json.Marshal(DelayBudget(math.Inf(1)))
	if string(b) != `"unlimited"` {
		t.Errorf("infinite budget marshals to %s, want \"unlimited\"", b)
	}
}
