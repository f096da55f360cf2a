// Package measure defines the CMS Medicare-adherence measure categories
// this service tracks.
package measure

import "fmt"

// Type is one of the three MA adherence measures.
type Type string

const (
	MAC Type = "MAC" // cholesterol (statins)
	MAD Type = "MAD" // diabetes (non-insulin)
	MAH Type = "MAH" // hypertension (RAS antagonists)
)

// All lists the supported measures in display order. Returns a fresh
// slice so callers can append without aliasing.
func All() []Type {
	return []Type{MAC, MAD, MAH}
}

var displays = map[Type]string{
	MAC: "Medication Adherence for Cholesterol",
	MAD: "Medication Adherence for Diabetes Medications",
	MAH: "Medication Adherence for Hypertension",
}

// Valid reports whether t is a known measure type.
func (t Type) Valid() bool {
	_, ok := displays[t]
	return ok
}

// Display returns the human-readable measure name.
func (t Type) Display() string {
	return displays[t]
}

// Parse converts a string to a Type, rejecting unknown values.
func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown measure type: %q", s)
	}
	return t, nil
}
