package dispense

import (
	"testing"
	"time"
)

func TestFillDate(t *testing.T) {
	handed := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	prepared := time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)

	md := &MedicationDispense{WhenHandedOver: &handed, WhenPrepared: &prepared}
	if d := md.FillDate(); d == nil || !d.Equal(handed) {
		t.Errorf("FillDate = %v, want whenHandedOver", d)
	}

	md = &MedicationDispense{WhenPrepared: &prepared}
	if d := md.FillDate(); d == nil || !d.Equal(prepared) {
		t.Errorf("FillDate = %v, want whenPrepared fallback", d)
	}

	md = &MedicationDispense{}
	if md.FillDate() != nil {
		t.Error("FillDate should be nil without dates")
	}
}

func TestToFHIR(t *testing.T) {
	md := validDispense()
	res := md.ToFHIR()

	if res["resourceType"] != "MedicationDispense" {
		t.Errorf("resourceType = %v", res["resourceType"])
	}
	if res["status"] != md.Status {
		t.Errorf("status = %v", res["status"])
	}
	if _, ok := res["daysSupply"]; !ok {
		t.Error("expected daysSupply element")
	}
	if _, ok := res["whenHandedOver"]; !ok {
		t.Error("expected whenHandedOver element")
	}
	if _, ok := res["whenPrepared"]; ok {
		t.Error("whenPrepared should be omitted when unset")
	}
}
