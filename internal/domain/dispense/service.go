package dispense

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/adherence/adherence/internal/measure"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

var validStatuses = map[string]bool{
	"preparation": true, "in-progress": true, "cancelled": true, "on-hold": true,
	"completed": true, "entered-in-error": true, "stopped": true, "declined": true, "unknown": true,
}

func (s *Service) Create(ctx context.Context, md *MedicationDispense) error {
	if md.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if md.MedicationCode == "" {
		return fmt.Errorf("medication_code is required")
	}
	if !md.MeasureType.Valid() {
		return fmt.Errorf("invalid measure_type: %s", md.MeasureType)
	}
	if md.Status == "" {
		md.Status = "completed"
	}
	if !validStatuses[md.Status] {
		return fmt.Errorf("invalid status: %s", md.Status)
	}
	if md.DaysSupply != nil && *md.DaysSupply <= 0 {
		return fmt.Errorf("days_supply must be positive, got %d", *md.DaysSupply)
	}
	return s.repo.Create(ctx, md)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*MedicationDispense, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByFHIRID(ctx context.Context, fhirID string) (*MedicationDispense, error) {
	return s.repo.GetByFHIRID(ctx, fhirID)
}

func (s *Service) Update(ctx context.Context, md *MedicationDispense) error {
	if md.Status != "" && !validStatuses[md.Status] {
		return fmt.Errorf("invalid status: %s", md.Status)
	}
	if md.MeasureType != "" && !md.MeasureType.Valid() {
		return fmt.Errorf("invalid measure_type: %s", md.MeasureType)
	}
	if md.DaysSupply != nil && *md.DaysSupply <= 0 {
		return fmt.Errorf("days_supply must be positive, got %d", *md.DaysSupply)
	}
	return s.repo.Update(ctx, md)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicationDispense, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*MedicationDispense, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

func (s *Service) ListForPatientYear(ctx context.Context, patientID uuid.UUID, m measure.Type, year int) ([]*MedicationDispense, error) {
	return s.repo.ListForPatientYear(ctx, patientID, m, year)
}

func (s *Service) ListPatientsWithDispenses(ctx context.Context, year int) ([]PatientMeasure, error) {
	return s.repo.ListPatientsWithDispenses(ctx, year)
}
