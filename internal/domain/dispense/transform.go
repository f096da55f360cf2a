package dispense

import (
	"time"

	"github.com/adherence/adherence/internal/pdc"
)

// ToPDCInput converts a patient's fill history into the calculator's input.
// Dispenses without a usable date are dropped; a missing days supply falls
// back to the 30-day default. Fills outside the measurement year are
// excluded. The treatment period runs from the first in-year fill through
// December 31.
func ToPDCInput(dispenses []*MedicationDispense, year int, currentDate time.Time) pdc.Input {
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	var fills []pdc.Fill
	for _, md := range dispenses {
		d := md.FillDate()
		if d == nil {
			continue
		}
		day := pdc.DateOf(*d)
		if day.Before(yearStart) || day.After(yearEnd) {
			continue
		}
		supply := pdc.DefaultDaysSupply
		if md.DaysSupply != nil && *md.DaysSupply > 0 {
			supply = *md.DaysSupply
		}
		fills = append(fills, pdc.Fill{Date: day, DaysSupply: supply})
	}

	start := yearStart
	for i, f := range fills {
		if i == 0 || f.Date.Before(start) {
			start = f.Date
		}
	}

	return pdc.Input{
		Fills:       fills,
		Period:      pdc.Period{Start: start, End: yearEnd},
		CurrentDate: pdc.DateOf(currentDate),
	}
}
