package dispense

import (
	"time"

	"github.com/google/uuid"

	"github.com/adherence/adherence/internal/measure"
	"github.com/adherence/adherence/internal/platform/fhir"
)

// MedicationDispense maps to the medication_dispense table (FHIR
// MedicationDispense resource). Each row is one pharmacy fill event.
type MedicationDispense struct {
	ID                uuid.UUID    `db:"id" json:"id"`
	FHIRID            string       `db:"fhir_id" json:"fhir_id"`
	Status            string       `db:"status" json:"status"`
	PatientID         uuid.UUID    `db:"patient_id" json:"patient_id"`
	MeasureType       measure.Type `db:"measure_type" json:"measure_type"`
	MedicationCode    string       `db:"medication_code" json:"medication_code"`
	MedicationDisplay string       `db:"medication_display" json:"medication_display"`
	QuantityValue     *float64     `db:"quantity_value" json:"quantity_value,omitempty"`
	QuantityUnit      *string      `db:"quantity_unit" json:"quantity_unit,omitempty"`
	DaysSupply        *int         `db:"days_supply" json:"days_supply,omitempty"`
	WhenPrepared      *time.Time   `db:"when_prepared" json:"when_prepared,omitempty"`
	WhenHandedOver    *time.Time   `db:"when_handed_over" json:"when_handed_over,omitempty"`
	Note              *string      `db:"note" json:"note,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// FillDate returns the effective fill date used for adherence math:
// whenHandedOver when present, otherwise whenPrepared. Nil when the
// dispense carries no usable date.
func (md *MedicationDispense) FillDate() *time.Time {
	if md.WhenHandedOver != nil {
		return md.WhenHandedOver
	}
	return md.WhenPrepared
}

func (md *MedicationDispense) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "MedicationDispense",
		"id":           md.FHIRID,
		"status":       md.Status,
		"medicationCodeableConcept": fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  "http://www.nlm.nih.gov/research/umls/rxnorm",
				Code:    md.MedicationCode,
				Display: md.MedicationDisplay,
			}},
			Text: md.MedicationDisplay,
		},
		"subject": fhir.Reference{Reference: fhir.FormatReference("Patient", md.PatientID.String())},
		"meta":    fhir.Meta{LastUpdated: md.UpdatedAt},
	}
	if md.MeasureType.Valid() {
		result["category"] = fhir.CodeableConcept{
			Coding: []fhir.Coding{{Code: string(md.MeasureType), Display: md.MeasureType.Display()}},
		}
	}
	if md.QuantityValue != nil {
		result["quantity"] = map[string]interface{}{
			"value": *md.QuantityValue,
			"unit":  strVal(md.QuantityUnit),
		}
	}
	if md.DaysSupply != nil {
		result["daysSupply"] = map[string]interface{}{
			"value":  *md.DaysSupply,
			"unit":   "days",
			"system": "http://unitsofmeasure.org",
			"code":   "d",
		}
	}
	if md.WhenPrepared != nil {
		result["whenPrepared"] = md.WhenPrepared.Format(time.RFC3339)
	}
	if md.WhenHandedOver != nil {
		result["whenHandedOver"] = md.WhenHandedOver.Format(time.RFC3339)
	}
	if md.Note != nil {
		result["note"] = []map[string]string{{"text": *md.Note}}
	}
	return result
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
