package recurrence_test

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurrence-engine/recurrence"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(s string) recurrence.Date {
	return recurrence.MustParseDate(s)
}

func dateRange(t *testing.T, start, end string) recurrence.Range {
	t.Helper()
	r, err := recurrence.ParseRange(start, end)
	require.NoError(t, err)
	return r
}

func expense(amount string, category string) recurrence.Payload {
	return recurrence.Payload{
		Type:           recurrence.EntryExpense,
		Amount:         decimal.RequireFromString(amount),
		Category:       category,
		BudgetCategory: recurrence.BudgetSpending,
	}
}

func uniqueTemplate(id string, anchor string) recurrence.Template {
	return recurrence.Template{
		ID:         recurrence.TemplateID(id),
		ScopeID:    "wallet-1",
		Frequency:  recurrence.FrequencyUnique,
		AnchorDate: date(anchor),
		Payload:    expense("12.50", "cafe"),
	}
}

func weeklyTemplate(id string, dow recurrence.Weekday) recurrence.Template {
	return recurrence.Template{
		ID:         recurrence.TemplateID(id),
		ScopeID:    "wallet-1",
		Frequency:  recurrence.FrequencyWeekly,
		AnchorDate: date("2024-01-01"),
		DayOfWeek:  mo.Some(dow),
		Payload:    expense("40", "compras"),
	}
}

func monthlyTemplate(id string, dom int) recurrence.Template {
	return recurrence.Template{
		ID:         recurrence.TemplateID(id),
		ScopeID:    "wallet-1",
		Frequency:  recurrence.FrequencyMonthly,
		AnchorDate: date("2024-01-01"),
		DayOfMonth: mo.Some(dom),
		Payload:    expense("850", "subscricao"),
	}
}

func dateStrings(dates []recurrence.Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	return out
}

func occurrenceDates(occ []recurrence.Occurrence) []string {
	out := make([]string, len(occ))
	for i, o := range occ {
		out[i] = o.Date.String()
	}
	return out
}

func fixedNow() time.Time {
	return time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
}
