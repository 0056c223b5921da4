package recurrence_test

import (
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurrence-engine/recurrence"
)

// =============================================================================
// UNIQUE
// =============================================================================

func TestExpand_Unique_InsideRange(t *testing.T) {
	tmpl := uniqueTemplate("coffee", "2024-03-10")

	got := recurrence.ExpandAll(tmpl, dateRange(t, "2024-03-01", "2024-03-31"))

	assert.Equal(t, []string{"2024-03-10"}, dateStrings(got))
}

func TestExpand_Unique_RangeBoundsAreInclusive(t *testing.T) {
	tmpl := uniqueTemplate("coffee", "2024-03-10")

	assert.Len(t, recurrence.ExpandAll(tmpl, dateRange(t, "2024-03-10", "2024-03-10")), 1)
	assert.Len(t, recurrence.ExpandAll(tmpl, dateRange(t, "2024-03-01", "2024-03-10")), 1)
	assert.Len(t, recurrence.ExpandAll(tmpl, dateRange(t, "2024-03-10", "2024-03-20")), 1)
}

func TestExpand_Unique_OutsideRange(t *testing.T) {
	tmpl := uniqueTemplate("coffee", "2024-03-10")

	assert.Empty(t, recurrence.ExpandAll(tmpl, dateRange(t, "2024-03-11", "2024-04-30")))
	assert.Empty(t, recurrence.ExpandAll(tmpl, dateRange(t, "2024-01-01", "2024-03-09")))
}

func TestExpand_Unique_Excluded(t *testing.T) {
	tmpl := uniqueTemplate("coffee", "2024-03-10")
	tmpl.Exclusions = recurrence.NewExclusionSet(date("2024-03-10"))

	assert.Empty(t, recurrence.ExpandAll(tmpl, dateRange(t, "2024-03-01", "2024-03-31")))
}

// =============================================================================
// WEEKLY
// =============================================================================

func TestExpand_Weekly_MondaysOfJanuary2024(t *testing.T) {
	// GIVEN: weekly template on dayOfWeek 2 (Monday)
	tmpl := weeklyTemplate("groceries", 2)

	// WHEN: expanding over January 2024
	got := recurrence.ExpandAll(tmpl, dateRange(t, "2024-01-01", "2024-01-31"))

	// THEN: the five Mondays
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"}, dateStrings(got))
}

func TestExpand_Weekly_EveryMatchingDayExactlyOnce(t *testing.T) {
	r := dateRange(t, "2023-11-15", "2024-03-20")

	for dow := recurrence.Saturday; dow <= recurrence.Friday; dow++ {
		tmpl := weeklyTemplate("w", dow)
		got := recurrence.ExpandAll(tmpl, r)

		var want []string
		for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
			if d.Weekday() == dow {
				want = append(want, d.String())
			}
		}
		assert.Equal(t, want, dateStrings(got), "dayOfWeek %v", dow)
	}
}

func TestExpand_Weekly_SkipsExcludedDates(t *testing.T) {
	tmpl := weeklyTemplate("groceries", recurrence.Monday)
	tmpl.Exclusions = recurrence.NewExclusionSet(date("2024-01-15"))

	got := recurrence.ExpandAll(tmpl, dateRange(t, "2024-01-01", "2024-01-31"))

	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-22", "2024-01-29"}, dateStrings(got))
}

// =============================================================================
// MONTHLY
// =============================================================================

func TestExpand_Monthly_ClampsToEndOfFebruary(t *testing.T) {
	// GIVEN: rent on the 31st
	tmpl := monthlyTemplate("rent", 31)

	// WHEN: range spans February of a non-leap year
	got := recurrence.ExpandAll(tmpl, dateRange(t, "2023-01-01", "2023-04-30"))

	// THEN: February lands on the 28th and April on the 30th, nothing skipped
	assert.Equal(t, []string{"2023-01-31", "2023-02-28", "2023-03-31", "2023-04-30"}, dateStrings(got))
}

func TestExpand_Monthly_LeapYearFebruary(t *testing.T) {
	tmpl := monthlyTemplate("rent", 30)

	got := recurrence.ExpandAll(tmpl, dateRange(t, "2024-02-01", "2024-02-29"))

	assert.Equal(t, []string{"2024-02-29"}, dateStrings(got))
}

func TestExpand_Monthly_PartialMonthsAtRangeEdges(t *testing.T) {
	tmpl := monthlyTemplate("gym", 15)

	got := recurrence.ExpandAll(tmpl, dateRange(t, "2024-01-20", "2024-03-10"))

	assert.Equal(t, []string{"2024-02-15"}, dateStrings(got))
}

func TestExpand_Monthly_AcrossYearBoundary(t *testing.T) {
	tmpl := monthlyTemplate("salary", 25)

	got := recurrence.ExpandAll(tmpl, dateRange(t, "2023-11-01", "2024-02-28"))

	assert.Equal(t, []string{"2023-11-25", "2023-12-25", "2024-01-25", "2024-02-25"}, dateStrings(got))
}

func TestExpand_Monthly_SkipsExcludedDates(t *testing.T) {
	tmpl := monthlyTemplate("rent", 31)
	tmpl.Exclusions = recurrence.NewExclusionSet(date("2023-02-28"))

	got := recurrence.ExpandAll(tmpl, dateRange(t, "2023-01-01", "2023-03-31"))

	assert.Equal(t, []string{"2023-01-31", "2023-03-31"}, dateStrings(got))
}

// =============================================================================
// MALFORMED TEMPLATES AND LAZINESS
// =============================================================================

func TestExpand_MissingRequiredField_YieldsNothing(t *testing.T) {
	r := dateRange(t, "2024-01-01", "2024-12-31")

	weekly := weeklyTemplate("w", recurrence.Monday)
	weekly.DayOfWeek = mo.None[recurrence.Weekday]()

	monthly := monthlyTemplate("m", 1)
	monthly.DayOfMonth = mo.None[int]()

	unique := uniqueTemplate("u", "2024-05-05")
	unique.AnchorDate = recurrence.Date{}

	outOfBounds := weeklyTemplate("x", recurrence.Weekday(7))
	unknown := monthlyTemplate("y", 1)
	unknown.Frequency = "yearly"

	for _, tmpl := range []recurrence.Template{weekly, monthly, unique, outOfBounds, unknown} {
		assert.Empty(t, recurrence.ExpandAll(tmpl, r), "template %s", tmpl.ID)
	}
}

func TestExpand_IsRestartableAndChecksExclusionsAtYieldTime(t *testing.T) {
	// GIVEN: one sequence value for a weekly template
	tmpl := weeklyTemplate("groceries", recurrence.Monday)
	tmpl.Exclusions = recurrence.NewExclusionSet()
	seq := recurrence.Expand(tmpl, dateRange(t, "2024-01-01", "2024-01-31"))

	var first []recurrence.Date
	for d := range seq {
		first = append(first, d)
	}
	require.Len(t, first, 5)

	// WHEN: an exclusion is added after the first pass
	require.NoError(t, tmpl.Exclusions.Add(date("2024-01-08")))

	// THEN: ranging over the same sequence again honors it
	var second []recurrence.Date
	for d := range seq {
		second = append(second, d)
	}
	assert.Equal(t, []string{"2024-01-01", "2024-01-15", "2024-01-22", "2024-01-29"}, dateStrings(second))
}

func TestExpand_StopsWhenConsumerBreaks(t *testing.T) {
	tmpl := weeklyTemplate("groceries", recurrence.Monday)

	count := 0
	for range recurrence.Expand(tmpl, dateRange(t, "2024-01-01", "2024-12-31")) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}
