package dispense

import (
	"testing"
	"time"

	"github.com/adherence/adherence/internal/pdc"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dispenseAt(when time.Time, supply int) *MedicationDispense {
	md := validDispense()
	md.WhenHandedOver = &when
	md.DaysSupply = &supply
	return md
}

func TestToPDCInput_Basic(t *testing.T) {
	dispenses := []*MedicationDispense{
		dispenseAt(date(2025, time.March, 15), 30),
		dispenseAt(date(2025, time.April, 20), 90),
	}

	in := ToPDCInput(dispenses, 2025, date(2025, time.June, 1))

	if len(in.Fills) != 2 {
		t.Fatalf("got %d fills", len(in.Fills))
	}
	if !in.Period.Start.Equal(date(2025, time.March, 15)) {
		t.Errorf("period start = %v, want first fill date", in.Period.Start)
	}
	if !in.Period.End.Equal(date(2025, time.December, 31)) {
		t.Errorf("period end = %v", in.Period.End)
	}
	if in.Fills[1].DaysSupply != 90 {
		t.Errorf("days supply = %d", in.Fills[1].DaysSupply)
	}
}

func TestToPDCInput_DropsUndatedDispenses(t *testing.T) {
	undated := validDispense()
	undated.WhenHandedOver = nil
	undated.WhenPrepared = nil

	in := ToPDCInput([]*MedicationDispense{
		undated,
		dispenseAt(date(2025, time.May, 1), 30),
	}, 2025, date(2025, time.June, 1))

	if len(in.Fills) != 1 {
		t.Errorf("got %d fills, want undated dispense dropped", len(in.Fills))
	}
}

func TestToPDCInput_WhenPreparedFallback(t *testing.T) {
	md := validDispense()
	md.WhenHandedOver = nil
	prepared := date(2025, time.May, 3)
	md.WhenPrepared = &prepared

	in := ToPDCInput([]*MedicationDispense{md}, 2025, date(2025, time.June, 1))
	if len(in.Fills) != 1 || !in.Fills[0].Date.Equal(prepared) {
		t.Errorf("fills = %v, want whenPrepared fallback", in.Fills)
	}
}

func TestToPDCInput_DefaultsDaysSupply(t *testing.T) {
	md := validDispense()
	when := date(2025, time.May, 1)
	md.WhenHandedOver = &when
	md.DaysSupply = nil

	in := ToPDCInput([]*MedicationDispense{md}, 2025, date(2025, time.June, 1))
	if in.Fills[0].DaysSupply != pdc.DefaultDaysSupply {
		t.Errorf("days supply = %d, want default %d", in.Fills[0].DaysSupply, pdc.DefaultDaysSupply)
	}
}

func TestToPDCInput_ExcludesOutOfYearFills(t *testing.T) {
	in := ToPDCInput([]*MedicationDispense{
		dispenseAt(date(2024, time.December, 20), 30),
		dispenseAt(date(2025, time.January, 5), 30),
		dispenseAt(date(2026, time.January, 2), 30),
	}, 2025, date(2025, time.June, 1))

	if len(in.Fills) != 1 {
		t.Fatalf("got %d fills, want only the in-year fill", len(in.Fills))
	}
	if !in.Fills[0].Date.Equal(date(2025, time.January, 5)) {
		t.Errorf("fill date = %v", in.Fills[0].Date)
	}
}

func TestToPDCInput_NoFills(t *testing.T) {
	in := ToPDCInput(nil, 2025, date(2025, time.June, 1))
	if len(in.Fills) != 0 {
		t.Fatal("expected no fills")
	}
	if !in.Period.Start.Equal(date(2025, time.January, 1)) {
		t.Errorf("period start = %v, want Jan 1", in.Period.Start)
	}
}

func TestToPDCInput_FeedsCalculator(t *testing.T) {
	in := ToPDCInput([]*MedicationDispense{
		dispenseAt(date(2025, time.January, 1), 30),
		dispenseAt(date(2025, time.February, 1), 30),
	}, 2025, date(2025, time.March, 1))

	res := pdc.Calculate(in)
	if res.CoveredDays != 60 {
		t.Errorf("covered days = %d, want 60", res.CoveredDays)
	}
	if res.TreatmentDays != 365 {
		t.Errorf("treatment days = %d", res.TreatmentDays)
	}
}
