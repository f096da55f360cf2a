// Package fragility classifies a patient's adherence risk from a PDC
// result. Tier math lives here and only here; callers consume the
// classification, they never re-derive it.
package fragility

import (
	"encoding/json"
	"math"
	"time"

	"github.com/adherence/adherence/internal/measure"
	"github.com/adherence/adherence/internal/pdc"
)

// Tier is the discrete outreach-priority classification.
type Tier string

const (
	TierUnsalvageable Tier = "T5_UNSALVAGEABLE"
	TierImminent      Tier = "F1_IMMINENT"
	TierFragile       Tier = "F2_FRAGILE"
	TierModerate      Tier = "F3_MODERATE"
	TierComfortable   Tier = "F4_COMFORTABLE"
	TierSafe          Tier = "F5_SAFE"
	TierCompliant     Tier = "COMPLIANT"
)

// tierLevels fixes the rank used for comparison and tie-breaking:
// 0 = unsalvageable ... 6 = compliant.
var tierLevels = map[Tier]int{
	TierUnsalvageable: 0,
	TierImminent:      1,
	TierFragile:       2,
	TierModerate:      3,
	TierComfortable:   4,
	TierSafe:          5,
	TierCompliant:     6,
}

// Level returns the tier's fixed rank; -1 for an unknown tier.
func (t Tier) Level() int {
	lvl, ok := tierLevels[t]
	if !ok {
		return -1
	}
	return lvl
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierLevels[t]
	return ok
}

// Urgency buckets the priority score for triage displays.
type Urgency string

const (
	UrgencyExtreme  Urgency = "EXTREME"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyModerate Urgency = "MODERATE"
	UrgencyLow      Urgency = "LOW"
)

// Base scores per tier. Bonuses are added on top, so the ceiling is
// 100 + 30 + 25 + 15 + 10 = 180.
var baseScores = map[Tier]int{
	TierImminent:      100,
	TierFragile:       80,
	TierModerate:      60,
	TierComfortable:   40,
	TierSafe:          20,
	TierCompliant:     0,
	TierUnsalvageable: 0,
}

const (
	bonusOutOfMeds        = 30
	bonusQ4               = 25
	bonusMultipleMeasures = 15
	bonusNewPatient       = 10
)

// Q4 tightening applies when fewer than this many days remain in the
// year and the gap budget is nearly spent.
const (
	q4TighteningDayLimit = 60
	q4TighteningGapLimit = 5
)

var contactWindows = map[Tier]string{
	TierImminent:      "within 24 hours",
	TierFragile:       "within 48 hours",
	TierModerate:      "within 1 week",
	TierComfortable:   "within 2 weeks",
	TierSafe:          "monthly check-in",
	TierCompliant:     "no outreach needed",
	TierUnsalvageable: "case review",
}

var actions = map[Tier]string{
	TierImminent:      "Call today; patient misses the adherence target if the next refill slips more than 2 days",
	TierFragile:       "Schedule outreach call; refill delay budget is 3-5 days",
	TierModerate:      "Queue for routine outreach; refill delay budget is 6-10 days",
	TierComfortable:   "Add to weekly outreach list; refill delay budget is 11-20 days",
	TierSafe:          "Monitor; over 20 days of delay budget per refill",
	TierCompliant:     "Monitor only; adherence target already secured for the year",
	TierUnsalvageable: "Flag for clinical review; the 80% target is out of reach this measurement year",
}

// Input is everything the classifier consumes. CurrentDate drives Q4
// detection and is never read from the wall clock.
type Input struct {
	PDC              pdc.Result     `json:"pdc"`
	RefillsRemaining int            `json:"refills_remaining"`
	MeasureTypes     []measure.Type `json:"measure_types"`
	IsNewPatient     bool           `json:"is_new_patient"`
	CurrentDate      time.Time      `json:"current_date"`

	// Q4Override forces the Q4 bonus on or off regardless of CurrentDate.
	Q4Override *bool `json:"q4_override,omitempty"`
}

// Flags are the boolean facets of a classification.
type Flags struct {
	IsCompliant        bool `json:"is_compliant"`
	IsUnsalvageable    bool `json:"is_unsalvageable"`
	IsOutOfMeds        bool `json:"is_out_of_meds"`
	IsQ4               bool `json:"is_q4"`
	IsMultipleMeasures bool `json:"is_multiple_measures"`
	IsNewPatient       bool `json:"is_new_patient"`
	Q4Tightened        bool `json:"q4_tightened"`
}

// Bonuses is the additive score breakdown.
type Bonuses struct {
	Base             int `json:"base"`
	OutOfMeds        int `json:"out_of_meds"`
	Q4               int `json:"q4"`
	MultipleMeasures int `json:"multiple_measures"`
	NewPatient       int `json:"new_patient"`
}

// DelayBudget is days of allowable refill delay. It may be infinite
// (no refills remaining), which FHIR JSON cannot represent as a number,
// so it marshals to the string "unlimited" in that case.
type DelayBudget float64

// Unlimited reports whether the budget is infinite.
func (d DelayBudget) Unlimited() bool {
	return math.IsInf(float64(d), 1)
}

func (d DelayBudget) MarshalJSON() ([]byte, error) {
	if d.Unlimited() {
		return []byte(`"unlimited"`), nil
	}
	return json.Marshal(float64(d))
}

func (d *DelayBudget) UnmarshalJSON(b []byte) error {
	if string(b) == `"unlimited"` {
		*d = DelayBudget(math.Inf(1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = DelayBudget(v)
	return nil
}

// Result is the classifier's output, derived solely from its input.
type Result struct {
	Tier                 Tier        `json:"tier"`
	TierLevel            int         `json:"tier_level"`
	DelayBudgetPerRefill DelayBudget `json:"delay_budget_per_refill"`
	ContactWindow        string      `json:"contact_window"`
	Action               string      `json:"action"`
	PriorityScore        int         `json:"priority_score"`
	UrgencyLevel         Urgency     `json:"urgency_level"`
	Flags                Flags       `json:"flags"`
	Bonuses              Bonuses     `json:"bonuses"`
}

// Classify runs the ordered decision procedure: compliant first, then
// unsalvageable, then the delay-budget tiers with Q4 tightening. The
// order is load-bearing; tiers are not derivable from thresholds alone.
func Classify(in Input) Result {
	res := Result{}

	res.Flags.IsNewPatient = in.IsNewPatient
	res.Flags.IsMultipleMeasures = len(in.MeasureTypes) >= 2
	res.Flags.IsOutOfMeds = in.PDC.DaysUntilRunout <= 0
	res.Flags.IsQ4 = isQ4(in)

	res.DelayBudgetPerRefill = DelayBudget(delayBudget(in.PDC.GapDaysRemaining, in.RefillsRemaining))

	switch {
	case in.PDC.PDCStatusQuo >= pdc.AdherenceTarget:
		res.Tier = TierCompliant
		res.Flags.IsCompliant = true

	case in.PDC.PDCPerfect < pdc.AdherenceTarget || in.PDC.GapDaysRemaining < 0:
		// Even flawless refilling cannot reach the target, or the gap
		// budget is already overspent.
		res.Tier = TierUnsalvageable
		res.Flags.IsUnsalvageable = true

	default:
		res.Tier = budgetTier(float64(res.DelayBudgetPerRefill))
		if res.Tier != TierImminent && shouldTighten(in.PDC) {
			res.Tier = promote(res.Tier)
			res.Flags.Q4Tightened = true
		}
	}

	res.TierLevel = res.Tier.Level()
	res.ContactWindow = contactWindows[res.Tier]
	res.Action = actions[res.Tier]

	res.Bonuses = Bonuses{Base: baseScores[res.Tier]}
	if res.Flags.IsOutOfMeds {
		res.Bonuses.OutOfMeds = bonusOutOfMeds
	}
	if res.Flags.IsQ4 {
		res.Bonuses.Q4 = bonusQ4
	}
	if res.Flags.IsMultipleMeasures {
		res.Bonuses.MultipleMeasures = bonusMultipleMeasures
	}
	if res.Flags.IsNewPatient {
		res.Bonuses.NewPatient = bonusNewPatient
	}
	res.PriorityScore = res.Bonuses.Base + res.Bonuses.OutOfMeds +
		res.Bonuses.Q4 + res.Bonuses.MultipleMeasures + res.Bonuses.NewPatient

	res.UrgencyLevel = urgencyFor(res.PriorityScore)

	return res
}

// delayBudget is the average number of days each remaining refill can be
// late without breaching the target. With no refills left there is
// nothing to be late on, so the budget is unbounded.
func delayBudget(gapDaysRemaining, refillsRemaining int) float64 {
	if refillsRemaining <= 0 {
		return math.Inf(1)
	}
	return float64(gapDaysRemaining) / float64(refillsRemaining)
}

func budgetTier(budget float64) Tier {
	switch {
	case budget <= 2:
		return TierImminent
	case budget <= 5:
		return TierFragile
	case budget <= 10:
		return TierModerate
	case budget <= 20:
		return TierComfortable
	default:
		return TierSafe
	}
}

// shouldTighten reports whether the late-year escalation rule applies.
func shouldTighten(r pdc.Result) bool {
	return r.DaysToYearEnd < q4TighteningDayLimit && r.GapDaysRemaining <= q4TighteningGapLimit
}

// promote moves an F-tier one level toward imminent. COMPLIANT,
// T5_UNSALVAGEABLE, and F1 are never promoted.
func promote(t Tier) Tier {
	switch t {
	case TierSafe:
		return TierComfortable
	case TierComfortable:
		return TierModerate
	case TierModerate:
		return TierFragile
	case TierFragile:
		return TierImminent
	default:
		return t
	}
}

func isQ4(in Input) bool {
	if in.Q4Override != nil {
		return *in.Q4Override
	}
	return in.CurrentDate.Month() >= time.October
}

func urgencyFor(score int) Urgency {
	switch {
	case score >= 150:
		return UrgencyExtreme
	case score >= 100:
		return UrgencyHigh
	case score >= 50:
		return UrgencyModerate
	default:
		return UrgencyLow
	}
}
