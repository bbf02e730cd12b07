// Package calendar holds pure date-math helpers shared by the instrument
// store's symbol-fallback expiry derivation and the expiry classifier. Both
// operate on a wall-clock date in exchange-local time, passed explicitly,
// per spec.md §9's REDESIGN FLAGS note: no implicit process-local timezone.
package calendar

import (
	"strings"
	"time"
)

// LastThursdayOfMonth returns the last Thursday of the given year/month at
// midnight in loc.
func LastThursdayOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	// Start at the first day of the next month, then walk backward to the
	// last Thursday — avoids any dependency on how many days the month has.
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
	d := firstOfNext.AddDate(0, 0, -1)
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// IsLastThursday reports whether t (a Thursday) is the last Thursday of its
// month: true when t+7 days falls in a later calendar month.
func IsLastThursday(t time.Time) bool {
	if t.Weekday() != time.Thursday {
		return false
	}
	return t.AddDate(0, 0, 7).Month() != t.Month()
}

var month3 = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Month3 looks up a 3-letter month abbreviation (case-insensitive).
func Month3(abbr string) (time.Month, bool) {
	m, ok := month3[strings.ToUpper(abbr)]
	return m, ok
}
