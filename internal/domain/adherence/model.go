package adherence

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adherence/adherence/internal/fragility"
	"github.com/adherence/adherence/internal/measure"
	"github.com/adherence/adherence/internal/pdc"
	"github.com/adherence/adherence/internal/platform/fhir"
)

// Review maps to the adherence_review table: one row per patient, measure
// and measurement year, refreshed on every recalculation.
type Review struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	FHIRID      string       `db:"fhir_id" json:"fhir_id"`
	PatientID   uuid.UUID    `db:"patient_id" json:"patient_id"`
	MeasureType measure.Type `db:"measure_type" json:"measure_type"`
	Year        int          `db:"year" json:"year"`

	PDC              float64    `db:"pdc" json:"pdc"`
	CoveredDays      int        `db:"covered_days" json:"covered_days"`
	TreatmentDays    int        `db:"treatment_days" json:"treatment_days"`
	GapDaysUsed      int        `db:"gap_days_used" json:"gap_days_used"`
	GapDaysAllowed   int        `db:"gap_days_allowed" json:"gap_days_allowed"`
	GapDaysRemaining int        `db:"gap_days_remaining" json:"gap_days_remaining"`
	PDCStatusQuo     float64    `db:"pdc_status_quo" json:"pdc_status_quo"`
	PDCPerfect       float64    `db:"pdc_perfect" json:"pdc_perfect"`
	DaysUntilRunout  int        `db:"days_until_runout" json:"days_until_runout"`
	CurrentSupply    int        `db:"current_supply" json:"current_supply"`
	RefillsNeeded    int        `db:"refills_needed" json:"refills_needed"`
	FillCount        int        `db:"fill_count" json:"fill_count"`
	DaysToYearEnd    int        `db:"days_to_year_end" json:"days_to_year_end"`
	LastFillDate     *time.Time `db:"last_fill_date" json:"last_fill_date,omitempty"`

	Tier                 fragility.Tier        `db:"tier" json:"tier"`
	TierLevel            int                   `db:"tier_level" json:"tier_level"`
	DelayBudgetPerRefill fragility.DelayBudget `db:"delay_budget_per_refill" json:"delay_budget_per_refill"`
	ContactWindow        string                `db:"contact_window" json:"contact_window"`
	Action               string                `db:"action" json:"action"`
	PriorityScore        int                   `db:"priority_score" json:"priority_score"`
	UrgencyLevel         fragility.Urgency     `db:"urgency_level" json:"urgency_level"`

	IsCompliant        bool `db:"is_compliant" json:"is_compliant"`
	IsUnsalvageable    bool `db:"is_unsalvageable" json:"is_unsalvageable"`
	IsOutOfMeds        bool `db:"is_out_of_meds" json:"is_out_of_meds"`
	IsQ4               bool `db:"is_q4" json:"is_q4"`
	IsMultipleMeasures bool `db:"is_multiple_measures" json:"is_multiple_measures"`
	IsNewPatient       bool `db:"is_new_patient" json:"is_new_patient"`
	Q4Tightened        bool `db:"q4_tightened" json:"q4_tightened"`

	CalculatedAt time.Time `db:"calculated_at" json:"calculated_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// NewReview assembles a Review from the calculator and classifier outputs.
func NewReview(patientID uuid.UUID, m measure.Type, year int, p pdc.Result, f fragility.Result, calculatedAt time.Time) *Review {
	return &Review{
		PatientID:   patientID,
		MeasureType: m,
		Year:        year,

		PDC:              p.PDC,
		CoveredDays:      p.CoveredDays,
		TreatmentDays:    p.TreatmentDays,
		GapDaysUsed:      p.GapDaysUsed,
		GapDaysAllowed:   p.GapDaysAllowed,
		GapDaysRemaining: p.GapDaysRemaining,
		PDCStatusQuo:     p.PDCStatusQuo,
		PDCPerfect:       p.PDCPerfect,
		DaysUntilRunout:  p.DaysUntilRunout,
		CurrentSupply:    p.CurrentSupply,
		RefillsNeeded:    p.RefillsNeeded,
		FillCount:        p.FillCount,
		DaysToYearEnd:    p.DaysToYearEnd,
		LastFillDate:     p.LastFillDate,

		Tier:                 f.Tier,
		TierLevel:            f.TierLevel,
		DelayBudgetPerRefill: f.DelayBudgetPerRefill,
		ContactWindow:        f.ContactWindow,
		Action:               f.Action,
		PriorityScore:        f.PriorityScore,
		UrgencyLevel:         f.UrgencyLevel,

		IsCompliant:        f.Flags.IsCompliant,
		IsUnsalvageable:    f.Flags.IsUnsalvageable,
		IsOutOfMeds:        f.Flags.IsOutOfMeds,
		IsQ4:               f.Flags.IsQ4,
		IsMultipleMeasures: f.Flags.IsMultipleMeasures,
		IsNewPatient:       f.Flags.IsNewPatient,
		Q4Tightened:        f.Flags.Q4Tightened,

		CalculatedAt: calculatedAt,
	}
}

// ToFHIR renders the review as an Observation so downstream FHIR consumers
// can read adherence results alongside the rest of the clinical record.
func (r *Review) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Observation",
		"id":           r.FHIRID,
		"status":       "final",
		"code": fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				Code:    string(r.MeasureType),
				Display: r.MeasureType.Display(),
			}},
			Text: fmt.Sprintf("Proportion of days covered, %s, %d", r.MeasureType.Display(), r.Year),
		},
		"subject": fhir.Reference{Reference: fhir.FormatReference("Patient", r.PatientID.String())},
		"effectiveDateTime": r.CalculatedAt.Format(time.RFC3339),
		"valueQuantity": map[string]interface{}{
			"value":  r.PDC,
			"unit":   "%",
			"system": "http://unitsofmeasure.org",
			"code":   "%",
		},
		"interpretation": []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{Code: string(r.Tier)}},
			Text:   r.ContactWindow,
		}},
		"meta": fhir.Meta{LastUpdated: r.UpdatedAt},
	}

	component := []map[string]interface{}{
		numericComponent("pdc-status-quo", "Projected PDC with no further refills", r.PDCStatusQuo, "%"),
		numericComponent("pdc-perfect", "Projected PDC with perfect refills", r.PDCPerfect, "%"),
		numericComponent("gap-days-remaining", "Gap days remaining", float64(r.GapDaysRemaining), "d"),
		numericComponent("priority-score", "Outreach priority score", float64(r.PriorityScore), "{score}"),
	}
	if !r.DelayBudgetPerRefill.Unlimited() {
		component = append(component,
			numericComponent("delay-budget", "Delay budget per refill", float64(r.DelayBudgetPerRefill), "d"))
	}
	result["component"] = component

	if r.Note() != "" {
		result["note"] = []map[string]string{{"text": r.Note()}}
	}
	return result
}

// Note summarizes the recommended action for display surfaces.
func (r *Review) Note() string {
	return r.Action
}

func numericComponent(code, display string, value float64, unit string) map[string]interface{} {
	return map[string]interface{}{
		"code": fhir.CodeableConcept{
			Coding: []fhir.Coding{{Code: code, Display: display}},
		},
		"valueQuantity": map[string]interface{}{
			"value": value,
			"unit":  unit,
		},
	}
}
