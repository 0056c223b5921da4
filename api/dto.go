/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with clients. DTOs decouple the wire
  format from the engine types, so internal changes don't break clients.

NAMING CONVENTION:
  - *DTO:      Response objects (outgoing)
  - *Request:  Request objects (incoming)
  - *Response: Wrapper responses

AMOUNTS:
  The engine keeps amounts as exact decimals. Responses send them as JSON
  numbers; request bodies accept either numbers or numeric strings.

DATES:
  Always YYYY-MM-DD. Occurrence ids use the "<templateId>@YYYY-MM-DD" form.

SEE ALSO:
  - handlers.go: Uses these DTOs
  - factory/template.go: Template JSON schema shared with request bodies
*/
package api

import (
	"time"

	"github.com/warp/recurrence-engine/factory"
	"github.com/warp/recurrence-engine/recurrence"
)

// =============================================================================
// TEMPLATE DTOs
// =============================================================================

// TemplateDTO is the API representation of a stored template.
type TemplateDTO struct {
	ID             string   `json:"id"`
	ScopeID        string   `json:"scopeId"`
	Frequency      string   `json:"frequency"`
	Date           string   `json:"date"`
	DayOfWeek      *int     `json:"dayOfWeek,omitempty"`
	DayOfWeekName  string   `json:"dayOfWeekName,omitempty"`
	DayOfMonth     *int     `json:"dayOfMonth,omitempty"`
	ExcludedDates  []string `json:"excludedDates"`
	Type           string   `json:"type"`
	Amount         float64  `json:"amount"`
	Category       string   `json:"category"`
	Description    string   `json:"description,omitempty"`
	Person         string   `json:"person,omitempty"`
	BudgetCategory string   `json:"budgetCategory,omitempty"`
	IsSalary       bool     `json:"isSalary"`
	CreatedBy      string   `json:"createdBy,omitempty"`
	CreatedAt      string   `json:"createdAt,omitempty"`
}

// CreateTemplateRequest is the body of POST /templates. It follows the
// factory JSON schema.
type CreateTemplateRequest = factory.TemplateJSON

// UpdateTemplateRequest is the body of PUT /templates/{id}. Its id, when
// present, must match the URL; excludedDates are ignored because exclusions
// only change through the exclusion and exception endpoints.
type UpdateTemplateRequest = factory.TemplateJSON

// =============================================================================
// OCCURRENCE DTOs
// =============================================================================

// OccurrenceDTO is one materialized occurrence.
type OccurrenceDTO struct {
	ID             string  `json:"id"`
	TemplateID     string  `json:"templateId"`
	ScopeID        string  `json:"scopeId"`
	Date           string  `json:"date"`
	Frequency      string  `json:"frequency"`
	DayOfWeek      *int    `json:"dayOfWeek,omitempty"`
	DayOfMonth     *int    `json:"dayOfMonth,omitempty"`
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	Category       string  `json:"category"`
	Description    string  `json:"description,omitempty"`
	Person         string  `json:"person,omitempty"`
	BudgetCategory string  `json:"budgetCategory,omitempty"`
	IsSalary       bool    `json:"isSalary"`
}

// OccurrencesResponse wraps a range query result with the window it covers.
type OccurrencesResponse struct {
	StartDate   string          `json:"startDate"`
	EndDate     string          `json:"endDate"`
	Scopes      []string        `json:"scopes"`
	Count       int             `json:"count"`
	Occurrences []OccurrenceDTO `json:"occurrences"`
}

// =============================================================================
// EXCLUSION / EXCEPTION DTOs
// =============================================================================

// ExclusionRequest suppresses one occurrence of a template.
type ExclusionRequest struct {
	Date string `json:"date"`
}

// ExclusionDTO confirms a stored exclusion.
type ExclusionDTO struct {
	TemplateID string `json:"templateId"`
	ScopeID    string `json:"scopeId"`
	Date       string `json:"date"`
}

// ExceptionRequest replaces the occurrence of a template on Date.
type ExceptionRequest struct {
	Date      string              `json:"date"`
	Override  factory.PayloadJSON `json:"override"`
	CreatedBy string              `json:"createdBy,omitempty"`
}

// OccurrenceExceptionRequest replaces the occurrence named in the URL.
type OccurrenceExceptionRequest struct {
	Override  factory.PayloadJSON `json:"override"`
	CreatedBy string              `json:"createdBy,omitempty"`
}

// ExceptionDTO describes the result of an exception.
type ExceptionDTO struct {
	OriginalTemplateID string      `json:"originalTemplateId"`
	OccurrenceID       string      `json:"occurrenceId"`
	Date               string      `json:"date"`
	Replacement        TemplateDTO `json:"replacement"`
	AlreadyExcluded    bool        `json:"alreadyExcluded"`
	Replayed           bool        `json:"replayed"`
}

// =============================================================================
// SCENARIO DTOs
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load into a scope.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

// LoadScenarioResponse lists the template ids created or already present.
type LoadScenarioResponse struct {
	Status   string   `json:"status"`
	Scenario string   `json:"scenario"`
	ScopeID  string   `json:"scopeId"`
	Created  []string `json:"created"`
	Skipped  []string `json:"skipped"`
}

// =============================================================================
// COMMON
// =============================================================================

// HealthDTO is returned by GET /api/health.
type HealthDTO struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Time    string `json:"time"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toTemplateDTO(t recurrence.Template) TemplateDTO {
	dto := TemplateDTO{
		ID:             string(t.ID),
		ScopeID:        string(t.ScopeID),
		Frequency:      string(t.Frequency),
		Date:           t.AnchorDate.String(),
		ExcludedDates:  []string{},
		Type:           string(t.Type),
		Amount:         t.Amount.InexactFloat64(),
		Category:       t.Category,
		Description:    t.Description,
		Person:         t.Person,
		BudgetCategory: string(t.BudgetCategory),
		IsSalary:       t.IsSalary,
		CreatedBy:      t.CreatedBy,
	}
	if dow, ok := t.DayOfWeek.Get(); ok {
		n := int(dow)
		dto.DayOfWeek = &n
		dto.DayOfWeekName = dow.String()
	}
	if dom, ok := t.DayOfMonth.Get(); ok {
		dto.DayOfMonth = &dom
	}
	for _, d := range t.Exclusions.Dates() {
		dto.ExcludedDates = append(dto.ExcludedDates, d.String())
	}
	if !t.CreatedAt.IsZero() {
		dto.CreatedAt = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toTemplateDTOs(templates []recurrence.Template) []TemplateDTO {
	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateDTO(t)
	}
	return dtos
}

func toOccurrenceDTO(o recurrence.Occurrence) OccurrenceDTO {
	dto := OccurrenceDTO{
		ID:             o.ID.String(),
		TemplateID:     string(o.ID.TemplateID),
		ScopeID:        string(o.ScopeID),
		Date:           o.Date.String(),
		Frequency:      string(o.Frequency),
		Type:           string(o.Type),
		Amount:         o.Amount.InexactFloat64(),
		Category:       o.Category,
		Description:    o.Description,
		Person:         o.Person,
		BudgetCategory: string(o.BudgetCategory),
		IsSalary:       o.IsSalary,
	}
	if dow, ok := o.DayOfWeek.Get(); ok {
		n := int(dow)
		dto.DayOfWeek = &n
	}
	if dom, ok := o.DayOfMonth.Get(); ok {
		dto.DayOfMonth = &dom
	}
	return dto
}

func toOccurrencesResponse(r recurrence.Range, scopes []recurrence.ScopeID, occ []recurrence.Occurrence) OccurrencesResponse {
	resp := OccurrencesResponse{
		StartDate:   r.Start.String(),
		EndDate:     r.End.String(),
		Scopes:      make([]string, len(scopes)),
		Count:       len(occ),
		Occurrences: make([]OccurrenceDTO, len(occ)),
	}
	for i, s := range scopes {
		resp.Scopes[i] = string(s)
	}
	for i, o := range occ {
		resp.Occurrences[i] = toOccurrenceDTO(o)
	}
	return resp
}

func toExceptionDTO(e recurrence.Exception) ExceptionDTO {
	return ExceptionDTO{
		OriginalTemplateID: string(e.Original),
		OccurrenceID:       recurrence.OccurrenceID{TemplateID: e.Original, Date: e.Date}.String(),
		Date:               e.Date.String(),
		Replacement:        toTemplateDTO(e.Replacement),
		AlreadyExcluded:    e.AlreadyExcluded,
		Replayed:           e.Replayed,
	}
}
