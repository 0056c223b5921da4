/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built template sets that populate a scope with realistic
	recurring entries. Each scenario shows off a specific part of the engine:
	weekday rules, month-end clamping, exclusions and exceptions.

AVAILABLE SCENARIOS:

	household:       Salary, rent, weekly groceries, subscriptions, one-off bonus
	month-end:       Monthly rules on the 29th, 30th and 31st (clamping)
	exceptions:      Weekly class with skipped weeks and one rescheduled price

HOW SCENARIOS WORK:
 1. Build template JSON for the current year
 2. Parse through the template factory (same validation as the API)
 3. Create templates in the target scope
 4. Optionally add exclusions and exceptions

Loading is idempotent: templates whose id already exists in the scope are
skipped, so a scenario can be loaded twice without conflicts.

USAGE VIA API:

	POST /api/scopes/{scopeID}/scenarios/load
	{"scenarioId": "household"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, scope, year)
 3. Add case to LoadScenario handler

SEE ALSO:
  - handlers.go: Template and exception handlers
  - factory/template.go: Template JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/recurrence-engine/recurrence"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "household",
		Name:        "Household Budget",
		Description: "Monthly salary and rent, weekly groceries, subscriptions and a one-off bonus",
	},
	{
		ID:          "month-end",
		Name:        "Month-End Clamping",
		Description: "Monthly entries on the 29th, 30th and 31st, clamped in short months",
	},
	{
		ID:          "exceptions",
		Name:        "Exclusions & Exceptions",
		Description: "Weekly class with skipped weeks and one occurrence replaced by a different price",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into a scope.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	scope := scopeParam(r)

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, "Invalid request body", badRequest(err))
		return
	}

	ctx := r.Context()
	year := h.now().Year()
	loader := &scenarioLoader{h: h, scope: scope}

	var err error
	switch req.ScenarioID {
	case "household":
		err = loader.loadHousehold(ctx, year)
	case "month-end":
		err = loader.loadMonthEnd(ctx, year)
	case "exceptions":
		err = loader.loadExceptions(ctx, year)
	default:
		h.respondError(w, r, "Unknown scenario", badRequest(fmt.Errorf("unknown scenario %q", req.ScenarioID)))
		return
	}

	if err != nil {
		h.respondError(w, r, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Status:   "loaded",
		Scenario: req.ScenarioID,
		ScopeID:  string(scope),
		Created:  loader.created,
		Skipped:  loader.skipped,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type scenarioLoader struct {
	h       *Handler
	scope   recurrence.ScopeID
	created []string
	skipped []string
}

func (l *scenarioLoader) loadHousehold(ctx context.Context, year int) error {
	jan1 := fmt.Sprintf("%d-01-01", year)
	return l.createAll(ctx,
		monthlyJSON("salary", jan1, 25, "income", "3200", "salary", ""),
		monthlyJSON("rent", jan1, 1, "expense", "950", "housing", "spending"),
		monthlyJSON("streaming", jan1, 12, "expense", "12.99", "subscriptions", "leisure"),
		monthlyJSON("savings-transfer", jan1, 26, "expense", "400", "savings", "savings"),
		weeklyJSON("groceries", jan1, recurrence.Saturday, "expense", "85", "groceries", "spending"),
		uniqueJSON("bonus", fmt.Sprintf("%d-12-15", year), "income", "1500", "salary", ""),
	)
}

func (l *scenarioLoader) loadMonthEnd(ctx context.Context, year int) error {
	jan1 := fmt.Sprintf("%d-01-01", year)
	return l.createAll(ctx,
		monthlyJSON("insurance", jan1, 29, "expense", "60", "insurance", "spending"),
		monthlyJSON("card-payment", jan1, 30, "expense", "250", "credit-card", "spending"),
		monthlyJSON("payroll", jan1, 31, "income", "2800", "salary", ""),
	)
}

func (l *scenarioLoader) loadExceptions(ctx context.Context, year int) error {
	jan1 := recurrence.NewDate(year, 1, 1)
	if err := l.createAll(ctx,
		weeklyJSON("yoga", jan1.String(), recurrence.Wednesday, "expense", "15", "yoga", "leisure"),
	); err != nil {
		return err
	}

	// Skip the first two Wednesdays of February.
	first := firstWeekday(recurrence.NewDate(year, 2, 1), recurrence.Wednesday)
	for _, d := range []recurrence.Date{first, first.AddDays(7)} {
		err := l.h.Service.AddExclusion(ctx, l.scope, "yoga", d)
		if err != nil && !errors.Is(err, recurrence.ErrAlreadyExcluded) {
			return err
		}
	}

	// The first March class costs more.
	march := firstWeekday(recurrence.NewDate(year, 3, 1), recurrence.Wednesday)
	override := recurrence.Payload{
		Type:           recurrence.EntryExpense,
		Amount:         decimal.RequireFromString("25"),
		Category:       "yoga",
		Description:    "workshop",
		BudgetCategory: recurrence.BudgetLeisure,
	}
	exc, err := l.h.Service.CreateException(ctx, l.scope, "yoga", march, override, "scenario")
	if err != nil {
		return err
	}
	if exc.Replayed {
		l.skipped = append(l.skipped, string(exc.Replacement.ID))
	} else {
		l.created = append(l.created, string(exc.Replacement.ID))
	}
	return nil
}

// createAll parses and stores each template, skipping ids already present.
func (l *scenarioLoader) createAll(ctx context.Context, jsons ...string) error {
	for _, js := range jsons {
		tmpl, err := l.h.Factory.ParseTemplate(l.scope, js)
		if err != nil {
			return fmt.Errorf("scenario template: %w", err)
		}
		if _, err := l.h.Service.CreateTemplate(ctx, tmpl); err != nil {
			if errors.Is(err, recurrence.ErrDuplicateTemplate) {
				l.skipped = append(l.skipped, string(tmpl.ID))
				continue
			}
			return err
		}
		l.created = append(l.created, string(tmpl.ID))
	}
	return nil
}

// =============================================================================
// TEMPLATE JSON BUILDERS
// =============================================================================

func monthlyJSON(id, date string, dayOfMonth int, typ, amount, category, budget string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"frequency": "monthly",
		"date": %q,
		"dayOfMonth": %d,
		"type": %q,
		"amount": %q,
		"category": %q,
		"budgetCategory": %q,
		"createdBy": "scenario"
	}`, id, date, dayOfMonth, typ, amount, category, budget)
}

func weeklyJSON(id, date string, dayOfWeek recurrence.Weekday, typ, amount, category, budget string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"frequency": "weekly",
		"date": %q,
		"dayOfWeek": %d,
		"type": %q,
		"amount": %q,
		"category": %q,
		"budgetCategory": %q,
		"createdBy": "scenario"
	}`, id, date, int(dayOfWeek), typ, amount, category, budget)
}

func uniqueJSON(id, date, typ, amount, category, budget string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"frequency": "unique",
		"date": %q,
		"type": %q,
		"amount": %q,
		"category": %q,
		"budgetCategory": %q,
		"createdBy": "scenario"
	}`, id, date, typ, amount, category, budget)
}

// firstWeekday returns the first date on or after d falling on w.
func firstWeekday(d recurrence.Date, w recurrence.Weekday) recurrence.Date {
	for d.Weekday() != w {
		d = d.AddDays(1)
	}
	return d
}
