package recurrence

import (
	"iter"
	"time"
)

// Expand enumerates the concrete dates of t inside r.
//
// The sequence is lazy and restartable: every range-over recomputes from
// scratch. Exclusions are checked when each date is yielded, so dates excluded
// between two iterations are honored. A template missing the field its
// frequency requires yields nothing. r is assumed valid.
//
//   - unique:  AnchorDate, if inside r
//   - weekly:  every day of r whose WeekdayOf equals DayOfWeek, O(days)
//   - monthly: min(DayOfMonth, days in month) for every month of r, O(months)
func Expand(t Template, r Range) iter.Seq[Date] {
	return func(yield func(Date) bool) {
		if t.CheckRule() != nil {
			return
		}
		switch t.Frequency {
		case FrequencyUnique:
			expandUnique(t, r, yield)
		case FrequencyWeekly:
			expandWeekly(t, r, yield)
		case FrequencyMonthly:
			expandMonthly(t, r, yield)
		}
	}
}

func expandUnique(t Template, r Range, yield func(Date) bool) {
	d := t.AnchorDate.Key().Date()
	if r.Contains(d) && !t.IsExcluded(d) {
		yield(d)
	}
}

func expandWeekly(t Template, r Range, yield func(Date) bool) {
	target := t.DayOfWeek.MustGet()
	end := r.End.Key()

	for d := r.Start.Key().Date(); d.Key().Compare(end) <= 0; d = d.AddDays(1) {
		if d.Weekday() != target || t.IsExcluded(d) {
			continue
		}
		if !yield(d) {
			return
		}
	}
}

func expandMonthly(t Template, r Range, yield func(Date) bool) {
	dayOfMonth := t.DayOfMonth.MustGet()
	start, end := r.Start.Key(), r.End.Key()

	year, month := start.Year, start.Month
	for year < end.Year || (year == end.Year && month <= end.Month) {
		actualDay := min(dayOfMonth, DaysInMonth(year, month))
		d := NewDate(year, month, actualDay)

		if r.Contains(d) && !t.IsExcluded(d) {
			if !yield(d) {
				return
			}
		}

		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
}

// ExpandAll collects Expand into a slice.
func ExpandAll(t Template, r Range) []Date {
	var dates []Date
	for d := range Expand(t, r) {
		dates = append(dates, d)
	}
	return dates
}
