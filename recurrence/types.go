/*
Package recurrence materializes periodic financial entries.

A Template is a compact recurrence rule (once, same weekday every week, same
day-of-month every month) plus an opaque payload. Occurrences are concrete
dated copies of a template inside a caller-supplied [start, end] window. They
are rebuilt from scratch on every query and never stored.

KEY CONCEPTS:
  - Date / Range:   timezone-less calendar values (time.go)
  - Weekday:        Saturday-first index computed by WeekdayOf (weekday.go)
  - Expand:         per-frequency enumeration of one template (expander.go)
  - ExclusionSet:   dates a template must skip (exclusion.go)
  - ExceptionManager: replaces one occurrence by a standalone template (exception.go)
  - QueryService:   expands a batch of templates into a sorted list (query.go)
  - Service:        the above wired to a TemplateStore (service.go)

USAGE:
  r, _ := recurrence.ParseRange("2024-01-01", "2024-01-31")
  occ, err := (&recurrence.QueryService{}).GetOccurrences(ctx, templates, r)
*/
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// TemplateID is unique within its owning scope.
type TemplateID string

// ScopeID identifies the collection (wallet, account) that owns templates.
type ScopeID string

// =============================================================================
// FREQUENCY
// =============================================================================

type Frequency string

const (
	FrequencyUnique  Frequency = "unique"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyUnique, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// =============================================================================
// PAYLOAD - Copied verbatim into every occurrence
// =============================================================================

type EntryType string

const (
	EntryIncome  EntryType = "income"
	EntryExpense EntryType = "expense"
)

// BudgetCategory is the budget bucket an expense draws from.
type BudgetCategory string

const (
	BudgetSpending BudgetCategory = "spending"
	BudgetLeisure  BudgetCategory = "leisure"
	BudgetSavings  BudgetCategory = "savings"
)

const MaxDescriptionLength = 500

// Payload is opaque to the engine.
type Payload struct {
	Type           EntryType
	Amount         decimal.Decimal
	Category       string
	Description    string
	Person         string
	BudgetCategory BudgetCategory
	// IsSalary flags income that counts as salary in budget summaries.
	IsSalary       bool
}

// Equal compares payloads field by field; amounts compare by value, so
// "900" equals "900.00".
func (p Payload) Equal(o Payload) bool {
	return p.Type == o.Type &&
		p.Amount.Equal(o.Amount) &&
		p.Category == o.Category &&
		p.Description == o.Description &&
		p.Person == o.Person &&
		p.BudgetCategory == o.BudgetCategory &&
		p.IsSalary == o.IsSalary
}

// Validate applies the write-time rules for entry payloads.
func (p Payload) Validate() error {
	switch p.Type {
	case EntryIncome, EntryExpense:
	default:
		return fmt.Errorf("invalid type %q: must be income or expense", p.Type)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("invalid amount %s: must be greater than zero", p.Amount)
	}
	if strings.TrimSpace(p.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if len(p.Description) > MaxDescriptionLength {
		return fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	}
	if p.Type == EntryExpense {
		switch p.BudgetCategory {
		case BudgetSpending, BudgetLeisure, BudgetSavings:
		case "":
			return fmt.Errorf("budget category is required for expenses")
		default:
			return fmt.Errorf("invalid budget category %q", p.BudgetCategory)
		}
	}
	return nil
}

// =============================================================================
// TEMPLATE - Stored recurrence rule
// =============================================================================

// Template is a recurrence rule plus payload.
//
// AnchorDate is the occurrence date of a unique template; for weekly and
// monthly templates it is creation metadata only. Exclusions may be nil,
// which means "no exclusions".
type Template struct {
	ID         TemplateID
	ScopeID    ScopeID
	Frequency  Frequency
	AnchorDate Date
	DayOfWeek  mo.Option[Weekday]
	DayOfMonth mo.Option[int]
	Exclusions *ExclusionSet
	Payload

	CreatedBy string
	CreatedAt time.Time
}

// CheckRule verifies that the field required by the template's frequency is
// present and in bounds. It does not look at the payload.
func (t Template) CheckRule() error {
	malformed := func(field, reason string) error {
		return &MalformedTemplateError{TemplateID: t.ID, Frequency: t.Frequency, Field: field, Reason: reason}
	}

	switch t.Frequency {
	case FrequencyUnique:
		if t.AnchorDate.IsZero() {
			return malformed("anchorDate", "is required")
		}
	case FrequencyWeekly:
		dow, ok := t.DayOfWeek.Get()
		if !ok {
			return malformed("dayOfWeek", "is required")
		}
		if !dow.Valid() {
			return malformed("dayOfWeek", "must be between 0 and 6")
		}
	case FrequencyMonthly:
		dom, ok := t.DayOfMonth.Get()
		if !ok {
			return malformed("dayOfMonth", "is required")
		}
		if dom < 1 || dom > 31 {
			return malformed("dayOfMonth", "must be between 1 and 31")
		}
	default:
		return malformed("frequency", "must be unique, weekly or monthly")
	}
	return nil
}

// Validate applies every write-time rule: recurrence fields, anchor date and payload.
func (t Template) Validate() error {
	if strings.TrimSpace(string(t.ID)) == "" {
		return &MalformedTemplateError{TemplateID: t.ID, Frequency: t.Frequency, Field: "id", Reason: "is required"}
	}
	if err := t.CheckRule(); err != nil {
		return err
	}
	if t.AnchorDate.IsZero() {
		return &MalformedTemplateError{TemplateID: t.ID, Frequency: t.Frequency, Field: "date", Reason: "is required"}
	}
	if err := t.Payload.Validate(); err != nil {
		return &MalformedTemplateError{TemplateID: t.ID, Frequency: t.Frequency, Field: "payload", Reason: err.Error()}
	}
	return nil
}

// IsExcluded reports whether d is in the template's exclusion set.
func (t Template) IsExcluded(d Date) bool {
	return t.Exclusions.Contains(d)
}

// Exclude adds d to the exclusion set, allocating it on first use.
// Returns ErrAlreadyExcluded if d was present.
func (t *Template) Exclude(d Date) error {
	if t.Exclusions == nil {
		t.Exclusions = NewExclusionSet()
	}
	return t.Exclusions.Add(d)
}

// Clone returns a copy that shares no mutable state with t.
func (t Template) Clone() Template {
	c := t
	c.Exclusions = t.Exclusions.Clone()
	return c
}

// =============================================================================
// OCCURRENCE - Ephemeral materialization of a template
// =============================================================================

// OccurrenceID identifies an occurrence by the (template, date) pair.
// Re-deriving the same pair always yields the same id.
type OccurrenceID struct {
	TemplateID TemplateID
	Date       Date
}

const occurrenceIDSeparator = "@"

// String is the wire form: "<templateId>@YYYY-MM-DD".
func (id OccurrenceID) String() string {
	return string(id.TemplateID) + occurrenceIDSeparator + id.Date.String()
}

// ParseOccurrenceID reverses OccurrenceID.String. Template ids may themselves
// contain the separator; the date is always the last segment.
func ParseOccurrenceID(s string) (OccurrenceID, error) {
	i := strings.LastIndex(s, occurrenceIDSeparator)
	if i <= 0 || i == len(s)-1 {
		return OccurrenceID{}, fmt.Errorf("%w: %q", ErrInvalidOccurrenceID, s)
	}
	d, err := ParseDate(s[i+1:])
	if err != nil {
		return OccurrenceID{}, fmt.Errorf("%w: %v", ErrInvalidOccurrenceID, err)
	}
	return OccurrenceID{TemplateID: TemplateID(s[:i]), Date: d}, nil
}

// Occurrence is one dated copy of a template. Frequency and the rule day are
// kept for display even though the occurrence is a single instant.
type Occurrence struct {
	ID         OccurrenceID
	ScopeID    ScopeID
	Date       Date
	Frequency  Frequency
	DayOfWeek  mo.Option[Weekday]
	DayOfMonth mo.Option[int]
	Payload
}

func newOccurrence(t Template, d Date) Occurrence {
	o := Occurrence{
		ID:         OccurrenceID{TemplateID: t.ID, Date: d},
		ScopeID:    t.ScopeID,
		Date:       d,
		Frequency:  t.Frequency,
		DayOfWeek:  mo.None[Weekday](),
		DayOfMonth: mo.None[int](),
		Payload:    t.Payload,
	}
	switch t.Frequency {
	case FrequencyWeekly:
		o.DayOfWeek = t.DayOfWeek
	case FrequencyMonthly:
		o.DayOfMonth = t.DayOfMonth
	}
	return o
}
