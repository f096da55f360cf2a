package dispense

import (
	"context"

	"github.com/google/uuid"

	"github.com/adherence/adherence/internal/measure"
)

type Repository interface {
	Create(ctx context.Context, md *MedicationDispense) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicationDispense, error)
	GetByFHIRID(ctx context.Context, fhirID string) (*MedicationDispense, error)
	Update(ctx context.Context, md *MedicationDispense) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicationDispense, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*MedicationDispense, int, error)
	// ListForPatientYear returns the completed fills for one patient,
	// measure and calendar year, ordered by fill date.
	ListForPatientYear(ctx context.Context, patientID uuid.UUID, m measure.Type, year int) ([]*MedicationDispense, error)
	// ListPatientsWithDispenses returns every patient/measure pair with at
	// least one completed fill in the given year.
	ListPatientsWithDispenses(ctx context.Context, year int) ([]PatientMeasure, error)
}

// PatientMeasure identifies one patient's fill history for one measure.
type PatientMeasure struct {
	PatientID   uuid.UUID
	MeasureType measure.Type
}
