package adherence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adherence/adherence/internal/domain/dispense"
	"github.com/adherence/adherence/internal/fragility"
	"github.com/adherence/adherence/internal/measure"
	"github.com/adherence/adherence/internal/pdc"
	"github.com/adherence/adherence/internal/platform/batch"
)

// newPatientWindowDays bounds how recently a patient's first fill must be
// for the new-patient priority bonus to apply.
const newPatientWindowDays = 90

// DispenseSource is the slice of the dispense domain the review service
// reads. Satisfied by dispense.Service.
type DispenseSource interface {
	ListForPatientYear(ctx context.Context, patientID uuid.UUID, m measure.Type, year int) ([]*dispense.MedicationDispense, error)
	ListPatientsWithDispenses(ctx context.Context, year int) ([]dispense.PatientMeasure, error)
}

// RecalcOptions tune a single recalculation. The zero value means current
// wall-clock date, refills inferred from the projection, no Q4 override.
type RecalcOptions struct {
	CurrentDate      time.Time `json:"current_date,omitempty"`
	RefillsRemaining *int      `json:"refills_remaining,omitempty"`
	IsNewPatient     *bool     `json:"is_new_patient,omitempty"`
	Q4Override       *bool     `json:"q4_override,omitempty"`
}

type Service struct {
	dispenses DispenseSource
	reviews   Repository
	runner    *batch.Runner
	logger    zerolog.Logger
}

func NewService(dispenses DispenseSource, reviews Repository, runner *batch.Runner, logger zerolog.Logger) *Service {
	return &Service{dispenses: dispenses, reviews: reviews, runner: runner, logger: logger}
}

// Recalculate recomputes one patient's review for one measure and persists
// it. Returns the stored review.
func (s *Service) Recalculate(ctx context.Context, patientID uuid.UUID, m measure.Type, year int, opts RecalcOptions) (*Review, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid measure: %s", m)
	}
	currentDate := opts.CurrentDate
	if currentDate.IsZero() {
		currentDate = time.Now().UTC()
	}

	fills, err := s.dispenses.ListForPatientYear(ctx, patientID, m, year)
	if err != nil {
		return nil, fmt.Errorf("load fills for patient %s: %w", patientID, err)
	}

	in := dispense.ToPDCInput(fills, year, currentDate)
	pdcResult := pdc.Calculate(in)

	activeMeasures, err := s.activeMeasures(ctx, patientID, year)
	if err != nil {
		return nil, fmt.Errorf("load measures for patient %s: %w", patientID, err)
	}

	refills := pdcResult.RefillsNeeded
	if opts.RefillsRemaining != nil {
		refills = *opts.RefillsRemaining
	}

	isNew := s.isNewPatient(pdcResult, currentDate)
	if opts.IsNewPatient != nil {
		isNew = *opts.IsNewPatient
	}

	classification := fragility.Classify(fragility.Input{
		PDC:              pdcResult,
		RefillsRemaining: refills,
		MeasureTypes:     activeMeasures,
		IsNewPatient:     isNew,
		CurrentDate:      currentDate,
		Q4Override:       opts.Q4Override,
	})

	review := NewReview(patientID, m, year, pdcResult, classification, currentDate)
	if err := s.reviews.Upsert(ctx, review); err != nil {
		return nil, fmt.Errorf("store review: %w", err)
	}

	s.logger.Debug().
		Str("patient_id", patientID.String()).
		Str("measure", string(m)).
		Float64("pdc", pdcResult.PDC).
		Str("tier", string(classification.Tier)).
		Int("priority", classification.PriorityScore).
		Msg("review recalculated")

	return review, nil
}

// RecalculateAll refreshes every patient/measure pair with fills in the
// given year. Per-patient failures are collected, not fatal.
func (s *Service) RecalculateAll(ctx context.Context, year int, opts RecalcOptions) (batch.Summary, error) {
	pairs, err := s.dispenses.ListPatientsWithDispenses(ctx, year)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("list patients with fills: %w", err)
	}

	jobs := make([]batch.Job, len(pairs))
	for i, p := range pairs {
		jobs[i] = batch.Job{PatientID: p.PatientID, MeasureType: p.MeasureType}
	}

	summary := s.runner.Run(ctx, jobs, func(ctx context.Context, j batch.Job) error {
		_, err := s.Recalculate(ctx, j.PatientID, j.MeasureType, year, opts)
		return err
	})
	return summary, nil
}

func (s *Service) GetReview(ctx context.Context, id uuid.UUID) (*Review, error) {
	return s.reviews.GetByID(ctx, id)
}

func (s *Service) GetReviewByFHIRID(ctx context.Context, fhirID string) (*Review, error) {
	return s.reviews.GetByFHIRID(ctx, fhirID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, year int) ([]*Review, error) {
	return s.reviews.ListByPatient(ctx, patientID, year)
}

func (s *Service) Worklist(ctx context.Context, f WorklistFilter, limit, offset int) ([]*Review, int, error) {
	return s.reviews.Worklist(ctx, f, limit, offset)
}

// activeMeasures returns the measures with at least one fill for the
// patient in the year. Drives the multiple-measures priority bonus.
func (s *Service) activeMeasures(ctx context.Context, patientID uuid.UUID, year int) ([]measure.Type, error) {
	var active []measure.Type
	for _, m := range measure.All() {
		fills, err := s.dispenses.ListForPatientYear(ctx, patientID, m, year)
		if err != nil {
			return nil, err
		}
		if len(fills) > 0 {
			active = append(active, m)
		}
	}
	return active, nil
}

// isNewPatient treats a patient as new when therapy started recently: a
// single fill so far, taken within the last 90 days.
func (s *Service) isNewPatient(p pdc.Result, currentDate time.Time) bool {
	if p.FillCount != 1 || p.LastFillDate == nil {
		return false
	}
	age := pdc.DaysBetween(*p.LastFillDate, pdc.DateOf(currentDate))
	return age >= 0 && age <= newPatientWindowDays
}
