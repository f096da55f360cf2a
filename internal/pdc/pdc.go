// Package pdc computes Proportion of Days Covered, the HEDIS adherence
// metric, from medication fill records. Every function is pure: the caller
// supplies the current date, so identical inputs always produce identical
// results.
package pdc

import (
	"math"
	"sort"
	"time"
)

const (
	// AdherenceTarget is the PDC percentage a patient must reach for the
	// measurement year to count as adherent.
	AdherenceTarget = 80.0

	// GapBudgetRatio is the fraction of treatment days a patient may leave
	// uncovered and still reach the adherence target.
	GapBudgetRatio = 0.20

	// DefaultDaysSupply is assumed when a dispense carries no days-supply
	// quantity and when projecting future refills.
	DefaultDaysSupply = 30
)

// Fill is one dispense event relevant to coverage.
type Fill struct {
	Date       time.Time `json:"date"`
	DaysSupply int       `json:"days_supply"`
}

// Period is the treatment window over which coverage is measured.
// Start is the first fill of the year (or Jan 1); End is Dec 31.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Input carries everything Calculate needs. CurrentDate must be supplied
// by the caller; the calculator never reads the wall clock.
type Input struct {
	Fills       []Fill    `json:"fills"`
	Period      Period    `json:"period"`
	CurrentDate time.Time `json:"current_date"`

	// TypicalDaysSupply is used when projecting how many refills are still
	// needed. Zero means DefaultDaysSupply. The fixed default is
	// authoritative; inferring a typical supply from fill history is the
	// caller's business if it wants different behavior.
	TypicalDaysSupply int `json:"typical_days_supply,omitempty"`
}

// Result is the calculator's output. A pure value; no field is mutated
// after Calculate returns.
type Result struct {
	PDC              float64    `json:"pdc"`
	CoveredDays      int        `json:"covered_days"`
	TreatmentDays    int        `json:"treatment_days"`
	GapDaysUsed      int        `json:"gap_days_used"`
	GapDaysAllowed   int        `json:"gap_days_allowed"`
	GapDaysRemaining int        `json:"gap_days_remaining"`
	PDCStatusQuo     float64    `json:"pdc_status_quo"`
	PDCPerfect       float64    `json:"pdc_perfect"`
	DaysUntilRunout  int        `json:"days_until_runout"`
	CurrentSupply    int        `json:"current_supply"`
	RefillsNeeded    int        `json:"refills_needed"`
	LastFillDate     *time.Time `json:"last_fill_date,omitempty"`
	FillCount        int        `json:"fill_count"`
	DaysToYearEnd    int        `json:"days_to_year_end"`
}

// GapBudget breaks down how much of the allowed gap-day budget is spent.
type GapBudget struct {
	Used      int `json:"used"`
	Allowed   int `json:"allowed"`
	Remaining int `json:"remaining"`
}

// interval is a half-open [start, end) day range used only by the merge.
type interval struct {
	start time.Time
	end   time.Time
}

// CoveredDaysFromFills counts the calendar days covered by the given fills,
// clipped to treatmentEnd (inclusive). Overlapping and adjacent fills are
// merged first so no day is ever counted twice, per HEDIS day-counting
// rules. The input order of fills does not matter.
func CoveredDaysFromFills(fills []Fill, treatmentEnd time.Time) int {
	if len(fills) == 0 {
		return 0
	}

	// treatmentEnd is inclusive; the merge works on half-open intervals.
	limit := AddDays(treatmentEnd, 1)

	ivs := make([]interval, 0, len(fills))
	for _, f := range fills {
		if f.DaysSupply <= 0 {
			continue
		}
		start := DateOf(f.Date)
		end := AddDays(f.Date, f.DaysSupply)
		if !start.Before(limit) {
			continue
		}
		if end.After(limit) {
			end = limit
		}
		ivs = append(ivs, interval{start: start, end: end})
	}
	if len(ivs) == 0 {
		return 0
	}

	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start.Before(ivs[j].start) })

	covered := 0
	cur := ivs[0]
	for _, iv := range ivs[1:] {
		if !iv.start.After(cur.end) {
			// Overlapping or immediately adjacent spans coalesce.
			if iv.end.After(cur.end) {
				cur.end = iv.end
			}
			continue
		}
		covered += DaysBetween(cur.start, cur.end)
		cur = iv
	}
	covered += DaysBetween(cur.start, cur.end)
	return covered
}

// TreatmentPeriodDays counts the days from firstFillDate through Dec 31 of
// measurementYear, both endpoints included.
func TreatmentPeriodDays(firstFillDate time.Time, measurementYear int) int {
	return InclusiveDays(firstFillDate, YearEnd(measurementYear))
}

// GapDays derives the gap budget for a treatment period. Remaining is
// signed: negative means the patient has already exceeded the allowed gap
// budget for the measurement year.
func GapDays(treatmentDays, coveredDays int) GapBudget {
	used := treatmentDays - coveredDays
	if used < 0 {
		used = 0
	}
	allowed := int(math.Floor(float64(treatmentDays) * GapBudgetRatio))
	return GapBudget{
		Used:      used,
		Allowed:   allowed,
		Remaining: allowed - used,
	}
}

// PDCStatusQuo projects the year-end PDC if the patient refills nothing
// further: covered days plus whatever of the current supply fits before
// year end. Capped at 100.
func PDCStatusQuo(coveredDays, currentSupplyDays, daysToYearEnd, treatmentDays int) float64 {
	if treatmentDays <= 0 {
		return 0
	}
	usable := currentSupplyDays
	if daysToYearEnd < usable {
		usable = daysToYearEnd
	}
	return capPercent(float64(coveredDays+usable) / float64(treatmentDays) * 100)
}

// PDCPerfect projects the best achievable year-end PDC assuming flawless
// refilling from today through year end. Always >= PDCStatusQuo. Capped
// at 100.
func PDCPerfect(coveredDays, daysToYearEnd, treatmentDays int) float64 {
	if treatmentDays <= 0 {
		return 0
	}
	return capPercent(float64(coveredDays+daysToYearEnd) / float64(treatmentDays) * 100)
}

// DaysToRunout returns the signed day count until the most recent fill is
// exhausted. Zero means the supply runs out exactly today; negative means
// the patient has been out for that many days.
func DaysToRunout(lastFillDate time.Time, daysSupply int, currentDate time.Time) int {
	return DaysBetween(currentDate, AddDays(lastFillDate, daysSupply))
}

// CurrentSupplyDays returns how many days of medication remain on hand
// from the most recent fill, never negative.
func CurrentSupplyDays(lastFillDate time.Time, daysSupply int, currentDate time.Time) int {
	remaining := daysSupply - DaysBetween(lastFillDate, currentDate)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RefillsNeeded returns how many refills of typicalDaysSupply it takes to
// cover the shortfall between the current supply and year end. Any
// positive shortfall yields at least one refill.
func RefillsNeeded(daysToYearEnd, currentSupply, typicalDaysSupply int) int {
	if typicalDaysSupply <= 0 {
		typicalDaysSupply = DefaultDaysSupply
	}
	shortfall := daysToYearEnd - currentSupply
	if shortfall <= 0 {
		return 0
	}
	return int(math.Ceil(float64(shortfall) / float64(typicalDaysSupply)))
}

// Calculate runs the full PDC computation. An empty fill list is the valid
// "never started" state and produces a zero-coverage result, not an error.
// Structural validation (positive days supply, ordered period) belongs to
// the input boundary; this function assumes validated input.
func Calculate(in Input) Result {
	current := DateOf(in.CurrentDate)
	end := DateOf(in.Period.End)

	daysToYearEnd := DaysBetween(current, end)
	if daysToYearEnd < 0 {
		daysToYearEnd = 0
	}

	res := Result{
		DaysToYearEnd: daysToYearEnd,
		FillCount:     len(in.Fills),
	}

	start := DateOf(in.Period.Start)
	first, last, ok := firstAndLastFill(in.Fills)
	if ok && first.Date.After(start) {
		start = DateOf(first.Date)
	}
	res.TreatmentDays = InclusiveDays(start, end)
	if res.TreatmentDays < 0 {
		res.TreatmentDays = 0
	}

	res.CoveredDays = CoveredDaysFromFills(in.Fills, end)

	budget := GapDays(res.TreatmentDays, res.CoveredDays)
	res.GapDaysUsed = budget.Used
	res.GapDaysAllowed = budget.Allowed
	res.GapDaysRemaining = budget.Remaining

	if ok {
		lastDate := DateOf(last.Date)
		res.LastFillDate = &lastDate
		res.DaysUntilRunout = DaysToRunout(last.Date, last.DaysSupply, current)
		res.CurrentSupply = CurrentSupplyDays(last.Date, last.DaysSupply, current)
	}

	if res.TreatmentDays > 0 {
		res.PDC = capPercent(float64(res.CoveredDays) / float64(res.TreatmentDays) * 100)
	}
	res.PDCStatusQuo = PDCStatusQuo(res.CoveredDays, res.CurrentSupply, daysToYearEnd, res.TreatmentDays)
	res.PDCPerfect = PDCPerfect(res.CoveredDays, daysToYearEnd, res.TreatmentDays)
	res.RefillsNeeded = RefillsNeeded(daysToYearEnd, res.CurrentSupply, in.TypicalDaysSupply)

	return res
}

// firstAndLastFill scans for the earliest and latest fills without
// requiring a sorted input.
func firstAndLastFill(fills []Fill) (first, last Fill, ok bool) {
	for _, f := range fills {
		if !ok {
			first, last, ok = f, f, true
			continue
		}
		if f.Date.Before(first.Date) {
			first = f
		}
		if f.Date.After(last.Date) {
			last = f
		}
	}
	return first, last, ok
}

func capPercent(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}
