package recurrence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Timezone-less calendar date
// =============================================================================

// DateLayout is the only date format accepted on the wire.
const DateLayout = "2006-01-02"

// Date is a calendar date with no time-of-day and no zone. Two dates are equal
// iff year, month and day match, regardless of any time noise in Time.
//
// The zero Date (0001-01-01) means "no date": IsZero reports it, String
// renders it as "" and Range.Validate treats it as missing. The parsers
// refuse to produce it, so a zero Date never comes off the wire.
type Date struct {
	Time time.Time
}

// DateKey is the normalized (year, month, day) tuple used for exact-match
// comparisons and as the key of an ExclusionSet.
type DateKey struct {
	Year  int
	Month time.Month
	Day   int
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf takes the calendar date of t as written in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return parsedDate(s, t)
}

// ParseDateLoose accepts YYYY-MM-DD or an RFC 3339 timestamp; for the latter
// the calendar date as written is kept and the offset is ignored.
func ParseDateLoose(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return parsedDate(s, t)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC 3339)", s)
	}
	return parsedDate(s, t)
}

// parsedDate rejects 0001-01-01, which would read back as a missing date.
func parsedDate(s string, t time.Time) (Date, error) {
	d := DateOf(t)
	if d.IsZero() {
		return Date{}, fmt.Errorf("invalid date %q: 0001-01-01 is reserved for a missing date", s)
	}
	return d, nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Key normalizes the date into its comparison key.
func (d Date) Key() DateKey {
	y, m, day := d.Time.Date()
	return DateKey{Year: y, Month: m, Day: day}
}

// Date converts the key back into a Date.
func (k DateKey) Date() Date { return NewDate(k.Year, k.Month, k.Day) }

// Compare returns -1, 0 or +1.
func (k DateKey) Compare(o DateKey) int {
	switch {
	case k.Year != o.Year:
		return cmpInt(k.Year, o.Year)
	case k.Month != o.Month:
		return cmpInt(int(k.Month), int(o.Month))
	default:
		return cmpInt(k.Day, o.Day)
	}
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Comparison
func (d Date) Compare(o Date) int        { return d.Key().Compare(o.Key()) }
func (d Date) Before(o Date) bool        { return d.Compare(o) < 0 }
func (d Date) Equal(o Date) bool         { return d.Compare(o) == 0 }
func (d Date) After(o Date) bool         { return d.Compare(o) > 0 }
func (d Date) BeforeOrEqual(o Date) bool { return d.Compare(o) <= 0 }
func (d Date) AfterOrEqual(o Date) bool  { return d.Compare(o) >= 0 }

// AddDays moves n calendar days, normalizing month and year overflow.
func (d Date) AddDays(n int) Date {
	k := d.Key()
	return NewDate(k.Year, k.Month, k.Day+n)
}

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }

// IsZero reports the missing date. 0001-01-01 doubles as that marker.
func (d Date) IsZero() bool { return d.Time.IsZero() }

// Weekday returns the weekday under the Saturday-first convention.
func (d Date) Weekday() Weekday {
	k := d.Key()
	return WeekdayOf(k.Day, int(k.Month), k.Year)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Key().Date().Time.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysInMonth returns the number of days of month in year.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// =============================================================================
// RANGE - Closed [Start, End] query window
// =============================================================================

// Range is a closed calendar window. Occurrences are always materialized for
// a Range, never open-ended.
type Range struct {
	Start Date
	End   Date
}

// NewRange builds and validates a range.
func NewRange(start, end Date) (Range, error) {
	r := Range{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// ParseRange parses two YYYY-MM-DD strings into a validated range.
func ParseRange(start, end string) (Range, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Range{}, fmt.Errorf("startDate: %w", err)
	}
	e, err := ParseDate(end)
	if err != nil {
		return Range{}, fmt.Errorf("endDate: %w", err)
	}
	return NewRange(s, e)
}

// Validate rejects ranges whose start is after their end.
func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return &RangeError{Start: r.Start, End: r.End, Reason: "start and end are required"}
	}
	if r.Start.After(r.End) {
		return &RangeError{Start: r.Start, End: r.End, Reason: "start after end"}
	}
	return nil
}

// Contains returns true if d is within [Start, End].
func (r Range) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Days returns the number of calendar days covered, inclusive.
func (r Range) Days() int {
	return int(r.End.Key().Date().Time.Sub(r.Start.Key().Date().Time).Hours()/24) + 1
}

func (r Range) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
