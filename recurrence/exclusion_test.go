package recurrence_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurrence-engine/recurrence"
)

func TestExclusionSet_AddAndContains(t *testing.T) {
	set := recurrence.NewExclusionSet()

	require.NoError(t, set.Add(date("2024-01-15")))

	assert.True(t, set.Contains(date("2024-01-15")))
	assert.False(t, set.Contains(date("2024-01-16")))
	assert.Equal(t, 1, set.Len())
}

func TestExclusionSet_AddTwiceReportsConflict(t *testing.T) {
	set := recurrence.NewExclusionSet(date("2024-01-15"))

	err := set.Add(date("2024-01-15"))

	assert.True(t, errors.Is(err, recurrence.ErrAlreadyExcluded))
	assert.Equal(t, 1, set.Len(), "set must not hold duplicates")
}

func TestExclusionSet_MembershipIgnoresTimeOfDay(t *testing.T) {
	// Stored exclusions sometimes carry a time component; only the calendar date counts.
	noisy := recurrence.Date{Time: time.Date(2024, time.January, 15, 18, 30, 12, 0, time.UTC)}
	set := recurrence.NewExclusionSet(noisy)

	assert.True(t, set.Contains(date("2024-01-15")))
	assert.ErrorIs(t, set.Add(date("2024-01-15")), recurrence.ErrAlreadyExcluded)
}

func TestExclusionSet_DatesAreSorted(t *testing.T) {
	set := recurrence.NewExclusionSet(date("2024-03-01"), date("2023-12-31"), date("2024-01-15"))

	assert.Equal(t, []string{"2023-12-31", "2024-01-15", "2024-03-01"}, dateStrings(set.Dates()))
}

func TestExclusionSet_NilIsEmpty(t *testing.T) {
	var set *recurrence.ExclusionSet

	assert.False(t, set.Contains(date("2024-01-15")))
	assert.Zero(t, set.Len())
	assert.Nil(t, set.Dates())
	assert.Nil(t, set.Clone())
}

func TestExclusionSet_NilRejectsAdd(t *testing.T) {
	var set *recurrence.ExclusionSet

	err := set.Add(date("2024-01-15"))

	assert.ErrorIs(t, err, recurrence.ErrNilExclusionSet)
	assert.False(t, set.Contains(date("2024-01-15")))
}

func TestExclusionSet_CloneIsIndependent(t *testing.T) {
	set := recurrence.NewExclusionSet(date("2024-01-15"))
	clone := set.Clone()

	require.NoError(t, clone.Add(date("2024-01-22")))

	assert.False(t, set.Contains(date("2024-01-22")))
	assert.True(t, clone.Contains(date("2024-01-15")))
}

func TestTemplate_ExcludeAllocatesSet(t *testing.T) {
	tmpl := weeklyTemplate("groceries", recurrence.Monday)
	require.Nil(t, tmpl.Exclusions)

	require.NoError(t, tmpl.Exclude(date("2024-01-08")))

	assert.True(t, tmpl.IsExcluded(date("2024-01-08")))
}

func TestAddExclusion_ReturnsConflictError(t *testing.T) {
	tmpl := weeklyTemplate("groceries", recurrence.Monday)
	require.NoError(t, recurrence.AddExclusion(&tmpl, date("2024-01-08")))

	err := recurrence.AddExclusion(&tmpl, date("2024-01-08"))

	var conflict *recurrence.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, recurrence.TemplateID("groceries"), conflict.TemplateID)
	assert.Equal(t, "2024-01-08", conflict.Date.String())
	assert.True(t, recurrence.IsConflict(err))
}
