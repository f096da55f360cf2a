package adherence

import (
	"context"

	"github.com/google/uuid"

	"github.com/adherence/adherence/internal/fragility"
	"github.com/adherence/adherence/internal/measure"
)

// WorklistFilter narrows the outreach worklist. Zero values mean no filter.
type WorklistFilter struct {
	Year        int
	MeasureType measure.Type
	Tier        fragility.Tier
	Urgency     fragility.Urgency
	// MinPriority drops rows scoring below the threshold.
	MinPriority int
}

type Repository interface {
	// Upsert inserts the review or replaces the existing row for the same
	// patient, measure and year.
	Upsert(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*Review, error)
	GetByFHIRID(ctx context.Context, fhirID string) (*Review, error)
	GetForPatient(ctx context.Context, patientID uuid.UUID, m measure.Type, year int) (*Review, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, year int) ([]*Review, error)
	// Worklist returns reviews ordered by priority score, highest first.
	Worklist(ctx context.Context, f WorklistFilter, limit, offset int) ([]*Review, int, error)
}
