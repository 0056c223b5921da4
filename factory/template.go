/*
Package factory provides JSON to Go template conversion.

PURPOSE:
  Converts JSON template definitions into recurrence.Template values and
  rejects malformed ones before they are stored. The engine tolerates a
  malformed template at query time; the factory makes sure none get written.

JSON SCHEMA:
  {
    "id": "rent",                      // optional, generated when empty
    "frequency": "monthly",            // unique | weekly | monthly
    "date": "2024-01-31",              // anchor date, YYYY-MM-DD or RFC 3339
    "dayOfWeek": 2,                    // weekly only; 0=Saturday .. 6=Friday or "monday"
    "dayOfMonth": 31,                  // monthly only; 1..31
    "excludedDates": ["2024-02-29"],
    "type": "expense",                 // income | expense
    "amount": 850.00,
    "category": "subscricao",
    "description": "flat",
    "person": "ana",
    "budgetCategory": "spending",      // required for expenses
    "isSalary": false                  // income counted as salary
  }

USAGE:
  f := factory.NewTemplateFactory()
  tmpl, err := f.ParseTemplate("wallet-1", jsonString)

SEE ALSO:
  - recurrence/types.go: Template definition and Validate
  - api/handlers.go: HTTP entry points using the factory
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"github.com/warp/recurrence-engine/recurrence"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TemplateJSON is the JSON representation of a template.
type TemplateJSON struct {
	ID            string       `json:"id,omitempty"`
	Frequency     string       `json:"frequency"`
	Date          string       `json:"date"`
	DayOfWeek     *WeekdayJSON `json:"dayOfWeek,omitempty"`
	DayOfMonth    *int         `json:"dayOfMonth,omitempty"`
	ExcludedDates []string     `json:"excludedDates,omitempty"`
	CreatedBy     string       `json:"createdBy,omitempty"`
	PayloadJSON
}

// PayloadJSON is the JSON representation of the data copied into occurrences.
type PayloadJSON struct {
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Category       string          `json:"category"`
	Description    string          `json:"description,omitempty"`
	Person         string          `json:"person,omitempty"`
	BudgetCategory string          `json:"budgetCategory,omitempty"`
	IsSalary       bool            `json:"isSalary,omitempty"`
}

// WeekdayJSON accepts either the numeric index (0=Saturday) or an English
// weekday name.
type WeekdayJSON recurrence.Weekday

func (w *WeekdayJSON) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		if n, err := strconv.Atoi(name); err == nil {
			*w = WeekdayJSON(n)
			return nil
		}
		wd, err := recurrence.ParseWeekday(name)
		if err != nil {
			return err
		}
		*w = WeekdayJSON(wd)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("dayOfWeek must be an integer or weekday name: %w", err)
	}
	*w = WeekdayJSON(n)
	return nil
}

func (w WeekdayJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(w))
}

// =============================================================================
// TEMPLATE FACTORY
// =============================================================================

// TemplateFactory converts JSON templates to Go structs.
type TemplateFactory struct{}

// NewTemplateFactory creates a new template factory.
func NewTemplateFactory() *TemplateFactory {
	return &TemplateFactory{}
}

// ParseTemplate parses a JSON string into a template owned by scope.
func (f *TemplateFactory) ParseTemplate(scope recurrence.ScopeID, jsonStr string) (recurrence.Template, error) {
	var tj TemplateJSON
	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tj); err != nil {
		return recurrence.Template{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return f.FromJSON(scope, tj)
}

// FromJSON converts a TemplateJSON into a recurrence.Template.
//
// Fields that don't belong to the frequency (dayOfMonth on a weekly
// template, for example) are dropped rather than rejected. An empty id is
// left empty; the service assigns one on insert. Every other rule of
// Template.Validate is applied here so the caller gets the error before
// touching the store.
func (f *TemplateFactory) FromJSON(scope recurrence.ScopeID, tj TemplateJSON) (recurrence.Template, error) {
	freq := recurrence.Frequency(strings.ToLower(strings.TrimSpace(tj.Frequency)))
	if freq == "" {
		freq = recurrence.FrequencyUnique
	}

	t := recurrence.Template{
		ID:         recurrence.TemplateID(strings.TrimSpace(tj.ID)),
		ScopeID:    scope,
		Frequency:  freq,
		DayOfWeek:  mo.None[recurrence.Weekday](),
		DayOfMonth: mo.None[int](),
		Exclusions: recurrence.NewExclusionSet(),
		CreatedBy:  tj.CreatedBy,
	}

	malformed := func(field, reason string) error {
		return &recurrence.MalformedTemplateError{TemplateID: t.ID, Frequency: freq, Field: field, Reason: reason}
	}

	if strings.TrimSpace(tj.Date) == "" {
		return recurrence.Template{}, malformed("date", "is required")
	}
	anchor, err := recurrence.ParseDateLoose(tj.Date)
	if err != nil {
		return recurrence.Template{}, malformed("date", err.Error())
	}
	t.AnchorDate = anchor

	switch freq {
	case recurrence.FrequencyWeekly:
		if tj.DayOfWeek != nil {
			t.DayOfWeek = mo.Some(recurrence.Weekday(*tj.DayOfWeek))
		}
	case recurrence.FrequencyMonthly:
		if tj.DayOfMonth != nil {
			t.DayOfMonth = mo.Some(*tj.DayOfMonth)
		}
	}

	for _, raw := range tj.ExcludedDates {
		d, err := recurrence.ParseDate(raw)
		if err != nil {
			return recurrence.Template{}, malformed("excludedDates", err.Error())
		}
		// Duplicates in the input collapse to one exclusion.
		_ = t.Exclusions.Add(d)
	}

	t.Payload = f.PayloadFromJSON(tj.PayloadJSON)

	if err := t.CheckRule(); err != nil {
		return recurrence.Template{}, err
	}
	if err := t.Payload.Validate(); err != nil {
		return recurrence.Template{}, malformed("payload", err.Error())
	}
	return t, nil
}

// PayloadFromJSON normalizes enum casing; validation is left to the caller.
func (f *TemplateFactory) PayloadFromJSON(pj PayloadJSON) recurrence.Payload {
	return recurrence.Payload{
		Type:           recurrence.EntryType(strings.ToLower(strings.TrimSpace(pj.Type))),
		Amount:         pj.Amount,
		Category:       strings.TrimSpace(pj.Category),
		Description:    pj.Description,
		Person:         strings.TrimSpace(pj.Person),
		BudgetCategory: recurrence.BudgetCategory(strings.ToLower(strings.TrimSpace(pj.BudgetCategory))),
		IsSalary:       pj.IsSalary,
	}
}

// ToJSON converts a template back to its JSON representation.
func (f *TemplateFactory) ToJSON(t recurrence.Template) TemplateJSON {
	tj := TemplateJSON{
		ID:          string(t.ID),
		Frequency:   string(t.Frequency),
		Date:        t.AnchorDate.String(),
		CreatedBy:   t.CreatedBy,
		PayloadJSON: f.PayloadToJSON(t.Payload),
	}
	if dow, ok := t.DayOfWeek.Get(); ok {
		w := WeekdayJSON(dow)
		tj.DayOfWeek = &w
	}
	if dom, ok := t.DayOfMonth.Get(); ok {
		tj.DayOfMonth = &dom
	}
	for _, d := range t.Exclusions.Dates() {
		tj.ExcludedDates = append(tj.ExcludedDates, d.String())
	}
	return tj
}

// PayloadToJSON converts a payload back to its JSON representation.
func (f *TemplateFactory) PayloadToJSON(p recurrence.Payload) PayloadJSON {
	return PayloadJSON{
		Type:           string(p.Type),
		Amount:         p.Amount,
		Category:       p.Category,
		Description:    p.Description,
		Person:         p.Person,
		BudgetCategory: string(p.BudgetCategory),
		IsSalary:       p.IsSalary,
	}
}
