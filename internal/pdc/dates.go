package pdc

import "time"

// DateOf truncates t to midnight UTC. All day arithmetic in this package
// operates on these normalized dates so that wall-clock components and
// time zones never change a day count.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days after t (n may be negative).
func AddDays(t time.Time, n int) time.Time {
	return DateOf(t).AddDate(0, 0, n)
}

// DaysBetween returns b - a in whole days. Negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// InclusiveDays counts the days from a through b, both endpoints included.
// Jan 1 through Dec 31 of a 365-day year yields 365.
func InclusiveDays(a, b time.Time) int {
	return DaysBetween(a, b) + 1
}

// YearStart returns Jan 1 of the given year (UTC midnight).
func YearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// YearEnd returns Dec 31 of the given year (UTC midnight).
func YearEnd(year int) time.Time {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}
