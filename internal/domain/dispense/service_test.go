package dispense

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/adherence/adherence/internal/measure"
)

type mockRepo struct {
	dispenses map[uuid.UUID]*MedicationDispense
}

func newMockRepo() *mockRepo {
	return &mockRepo{dispenses: make(map[uuid.UUID]*MedicationDispense)}
}

func (m *mockRepo) Create(_ context.Context, md *MedicationDispense) error {
	md.ID = uuid.New()
	if md.FHIRID == "" {
		md.FHIRID = md.ID.String()
	}
	m.dispenses[md.ID] = md
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicationDispense, error) {
	md, ok := m.dispenses[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return md, nil
}

func (m *mockRepo) GetByFHIRID(_ context.Context, fhirID string) (*MedicationDispense, error) {
	for _, md := range m.dispenses {
		if md.FHIRID == fhirID {
			return md, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockRepo) Update(_ context.Context, md *MedicationDispense) error {
	if _, ok := m.dispenses[md.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.dispenses[md.ID] = md
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.dispenses, id)
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicationDispense, int, error) {
	var items []*MedicationDispense
	for _, md := range m.dispenses {
		if md.PatientID == patientID {
			items = append(items, md)
		}
	}
	return items, len(items), nil
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*MedicationDispense, int, error) {
	var items []*MedicationDispense
	for _, md := range m.dispenses {
		if s, ok := params["status"]; ok && md.Status != s {
			continue
		}
		items = append(items, md)
	}
	return items, len(items), nil
}

func (m *mockRepo) ListForPatientYear(_ context.Context, patientID uuid.UUID, mt measure.Type, year int) ([]*MedicationDispense, error) {
	var items []*MedicationDispense
	for _, md := range m.dispenses {
		if md.PatientID != patientID || md.MeasureType != mt || md.Status != "completed" {
			continue
		}
		d := md.FillDate()
		if d == nil || d.Year() != year {
			continue
		}
		items = append(items, md)
	}
	return items, nil
}

func (m *mockRepo) ListPatientsWithDispenses(_ context.Context, year int) ([]PatientMeasure, error) {
	seen := make(map[PatientMeasure]bool)
	var pairs []PatientMeasure
	for _, md := range m.dispenses {
		if md.Status != "completed" {
			continue
		}
		d := md.FillDate()
		if d == nil || d.Year() != year {
			continue
		}
		pm := PatientMeasure{PatientID: md.PatientID, MeasureType: md.MeasureType}
		if !seen[pm] {
			seen[pm] = true
			pairs = append(pairs, pm)
		}
	}
	return pairs, nil
}

func validDispense() *MedicationDispense {
	handedOver := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	supply := 30
	return &MedicationDispense{
		PatientID:         uuid.New(),
		MeasureType:       measure.MAC,
		MedicationCode:    "617312",
		MedicationDisplay: "atorvastatin 20 MG Oral Tablet",
		DaysSupply:        &supply,
		WhenHandedOver:    &handedOver,
	}
}

func TestCreate_Valid(t *testing.T) {
	svc := NewService(newMockRepo())
	md := validDispense()
	if err := svc.Create(context.Background(), md); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.Status != "completed" {
		t.Errorf("default status = %q, want completed", md.Status)
	}
	if md.ID == uuid.Nil || md.FHIRID == "" {
		t.Error("ids not assigned")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(newMockRepo())

	cases := []struct {
		name   string
		mutate func(*MedicationDispense)
	}{
		{"missing patient", func(md *MedicationDispense) { md.PatientID = uuid.Nil }},
		{"missing code", func(md *MedicationDispense) { md.MedicationCode = "" }},
		{"bad measure", func(md *MedicationDispense) { md.MeasureType = "XYZ" }},
		{"bad status", func(md *MedicationDispense) { md.Status = "delivered" }},
		{"zero days supply", func(md *MedicationDispense) { zero := 0; md.DaysSupply = &zero }},
		{"negative days supply", func(md *MedicationDispense) { neg := -5; md.DaysSupply = &neg }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			md := validDispense()
			tc.mutate(md)
			if err := svc.Create(context.Background(), md); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestUpdate_RejectsInvalidStatus(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	md := validDispense()
	if err := svc.Create(context.Background(), md); err != nil {
		t.Fatal(err)
	}

	md.Status = "shipped"
	if err := svc.Update(context.Background(), md); err == nil {
		t.Error("expected error for invalid status")
	}

	md.Status = "cancelled"
	if err := svc.Update(context.Background(), md); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestListForPatientYear_FiltersStatusAndYear(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	patientID := uuid.New()

	add := func(status string, when time.Time) {
		md := validDispense()
		md.PatientID = patientID
		md.Status = status
		md.WhenHandedOver = &when
		if err := svc.Create(context.Background(), md); err != nil {
			t.Fatal(err)
		}
	}
	add("completed", time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC))
	add("completed", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	add("cancelled", time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	add("completed", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))

	items, err := svc.ListForPatientYear(context.Background(), patientID, measure.MAC, 2025)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("got %d fills, want 2 completed 2025 fills", len(items))
	}
}

func TestListPatientsWithDispenses_Distinct(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	patientID := uuid.New()

	for i := 0; i < 3; i++ {
		md := validDispense()
		md.PatientID = patientID
		when := time.Date(2025, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
		md.WhenHandedOver = &when
		if err := svc.Create(context.Background(), md); err != nil {
			t.Fatal(err)
		}
	}

	pairs, err := svc.ListPatientsWithDispenses(context.Background(), 2025)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 {
		t.Errorf("got %d pairs, want 1 distinct patient/measure", len(pairs))
	}
}
