package recurrence

import (
	"fmt"
	"strings"
)

// Weekday is a day-of-week index under a fixed Saturday-first convention:
// 0 = Saturday, 1 = Sunday, 2 = Monday ... 6 = Friday.
//
// Stored dayOfWeek values are meaningless without this mapping, so it must
// never change. It intentionally differs from time.Weekday.
type Weekday int

const (
	Saturday Weekday = iota
	Sunday
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
)

var weekdayNames = [...]string{"saturday", "sunday", "monday", "tuesday", "wednesday", "thursday", "friday"}

// WeekdayOf computes the weekday of a Gregorian date with Zeller's congruence.
// January and February are counted as months 13 and 14 of the previous year.
// Inputs are not validated.
func WeekdayOf(day, month, year int) Weekday {
	if month == 1 || month == 2 {
		month += 12
		year--
	}

	k := year % 100 // year of the century
	j := year / 100 // zero-based century

	h := (day + (13*(month+1))/5 + k + k/4 + j/4 - 2*j) % 7
	if h < 0 {
		h += 7
	}
	return Weekday(h)
}

// Valid reports whether w is within [0, 6].
func (w Weekday) Valid() bool { return w >= Saturday && w <= Friday }

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// ParseWeekday maps an English day name (full or three-letter) to its index.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range weekdayNames {
		if s == name || s == name[:3] {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
