/*
handlers.go - HTTP API handlers for the recurrence engine

PURPOSE:
  Exposes the recurrence engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to recurrence.Service.

ENDPOINTS:
  Health:
    GET    /api/health                                  Liveness + storage ping

  Templates:
    GET    /api/scopes/{scopeID}/templates              List templates of a scope
    POST   /api/scopes/{scopeID}/templates              Create template from JSON
    GET    /api/scopes/{scopeID}/templates/export       Export templates as factory JSON
    GET    /api/scopes/{scopeID}/templates/{id}         Get template
    PUT    /api/scopes/{scopeID}/templates/{id}         Replace rule and payload
    DELETE /api/scopes/{scopeID}/templates/{id}         Delete template

  Exclusions / exceptions:
    POST   /api/scopes/{scopeID}/templates/{id}/exclusions             Suppress one occurrence
    POST   /api/scopes/{scopeID}/templates/{id}/exceptions             Replace one occurrence
    POST   /api/scopes/{scopeID}/occurrences/{occurrenceID}/exception  Replace by occurrence id

  Occurrences:
    GET    /api/scopes/{scopeID}/occurrences?startDate=&endDate=       One scope
    GET    /api/occurrences?scopes=a,b&startDate=&endDate=             Several scopes

  Scenarios:
    GET    /api/scenarios                               List demo scenarios
    POST   /api/scopes/{scopeID}/scenarios/load         Load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (factory for templates, date parsing for queries)
  3. Call recurrence.Service
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON {error, code, details}:
  - 400: Invalid range, malformed template, bad dates or body
  - 404: Template not found
  - 409: Date already excluded, duplicate template id
  - 503: Request cancelled or timed out
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. Scopes are trusted as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/recurrence-engine/factory"
	"github.com/warp/recurrence-engine/logging"
	"github.com/warp/recurrence-engine/recurrence"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *recurrence.Service
	Factory *factory.TemplateFactory
	Logger  *logging.Logger

	// Storage names the backend in health responses.
	Storage string
	// Pinger is optional; without it health only reports the process is up.
	Pinger Pinger
	// Now stamps health responses. Defaults to time.Now.
	Now func() time.Time
}

// NewHandler creates a new handler around service.
func NewHandler(service *recurrence.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		Service: service,
		Factory: factory.NewTemplateFactory(),
		Logger:  logger,
		Now:     time.Now,
	}
}

// errBadRequest marks request input the engine never saw.
var errBadRequest = errors.New("bad request")

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports process liveness and, when configured, storage reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthDTO{Status: "ok", Storage: h.Storage, Time: h.now().UTC().Format(time.RFC3339)}

	if h.Pinger != nil {
		if err := h.Pinger.Ping(r.Context()); err != nil {
			logging.FromContext(r.Context()).Failure(r.Context(), "Storage ping failed", err)
			resp.Status = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

// ListTemplates returns every template of a scope.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	scope := scopeParam(r)

	templates, err := h.Service.Templates(r.Context(), scope)
	if err != nil {
		h.respondError(w, r, "Failed to list templates", err)
		return
	}

	writeJSON(w, http.StatusOK, toTemplateDTOs(templates))
}

// CreateTemplate validates a template definition and stores it.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	scope := scopeParam(r)

	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, "Invalid request body", badRequest(err))
		return
	}

	tmpl, err := h.Factory.FromJSON(scope, req)
	if err != nil {
		h.respondError(w, r, "Invalid template", err)
		return
	}

	created, err := h.Service.CreateTemplate(r.Context(), tmpl)
	if err != nil {
		h.respondError(w, r, "Failed to create template", err)
		return
	}

	logging.FromContext(r.Context()).Info("Template created",
		logging.FieldOperation, logging.OpCreate,
		logging.FieldScopeID, scope,
		logging.FieldTemplateID, created.ID)
	writeJSON(w, http.StatusCreated, toTemplateDTO(created))
}

// ExportTemplates returns the templates of a scope in the factory JSON schema,
// ready to be posted back to another scope.
func (h *Handler) ExportTemplates(w http.ResponseWriter, r *http.Request) {
	scope := scopeParam(r)

	templates, err := h.Service.Templates(r.Context(), scope)
	if err != nil {
		h.respondError(w, r, "Failed to export templates", err)
		return
	}

	out := make([]factory.TemplateJSON, len(templates))
	for i, t := range templates {
		out[i] = h.Factory.ToJSON(t)
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateTemplate replaces the rule and payload of a template. Exclusions are
// kept.
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	scope, id := scopeParam(r), templateParam(r)

	var req UpdateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, "Invalid request body", badRequest(err))
		return
	}
	if req.ID != "" && req.ID != string(id) {
		h.respondError(w, r, "Invalid template", badRequest(fmt.Errorf("id %q does not match URL id %q", req.ID, id)))
		return
	}
	req.ID = string(id)
	req.ExcludedDates = nil

	tmpl, err := h.Factory.FromJSON(scope, req)
	if err != nil {
		h.respondError(w, r, "Invalid template", err)
		return
	}

	updated, err := h.Service.UpdateTemplate(r.Context(), tmpl)
	if err != nil {
		h.respondError(w, r, "Failed to update template", err)
		return
	}

	logging.FromContext(r.Context()).Info("Template updated",
		logging.FieldOperation, logging.OpUpdate,
		logging.FieldScopeID, scope,
		logging.FieldTemplateID, id)
	writeJSON(w, http.StatusOK, toTemplateDTO(updated))
}

// GetTemplate returns a single template.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	scope, id := scopeParam(r), templateParam(r)

	tmpl, err := h.Service.Template(r.Context(), scope, id)
	if err != nil {
		h.respondError(w, r, "Failed to get template", err)
		return
	}

	writeJSON(w, http.StatusOK, toTemplateDTO(tmpl))
}

// DeleteTemplate removes a template and its exclusions.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	scope, id := scopeParam(r), templateParam(r)

	if err := h.Service.DeleteTemplate(r.Context(), scope, id); err != nil {
		h.respondError(w, r, "Failed to delete template", err)
		return
	}

	logging.FromContext(r.Context()).Info("Template deleted",
		logging.FieldOperation, logging.OpDelete,
		logging.FieldScopeID, scope,
		logging.FieldTemplateID, id)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// OCCURRENCE HANDLERS
// =============================================================================

// ListOccurrences materializes the templates of one scope over a date range.
func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	scope := scopeParam(r)

	rng, err := parseRangeQuery(r)
	if err != nil {
		h.respondError(w, r, "Invalid date range", err)
		return
	}

	occ, err := h.Service.Occurrences(r.Context(), scope, rng)
	if err != nil {
		h.respondError(w, r, "Failed to compute occurrences", err)
		return
	}

	writeJSON(w, http.StatusOK, toOccurrencesResponse(rng, []recurrence.ScopeID{scope}, occ))
}

// ListOccurrencesForScopes merges the occurrences of several scopes.
func (h *Handler) ListOccurrencesForScopes(w http.ResponseWriter, r *http.Request) {
	var scopes []recurrence.ScopeID
	for _, s := range strings.Split(r.URL.Query().Get("scopes"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, recurrence.ScopeID(s))
		}
	}
	if len(scopes) == 0 {
		h.respondError(w, r, "Invalid scopes", badRequest(errors.New("scopes is required")))
		return
	}

	rng, err := parseRangeQuery(r)
	if err != nil {
		h.respondError(w, r, "Invalid date range", err)
		return
	}

	occ, err := h.Service.OccurrencesForScopes(r.Context(), scopes, rng)
	if err != nil {
		h.respondError(w, r, "Failed to compute occurrences", err)
		return
	}

	writeJSON(w, http.StatusOK, toOccurrencesResponse(rng, scopes, occ))
}

// =============================================================================
// EXCLUSION / EXCEPTION HANDLERS
// =============================================================================

// AddExclusion suppresses the occurrence of a template on one date.
func (h *Handler) AddExclusion(w http.ResponseWriter, r *http.Request) {
	scope, id := scopeParam(r), templateParam(r)

	var req ExclusionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, "Invalid request body", badRequest(err))
		return
	}
	date, err := parseDateField("date", req.Date)
	if err != nil {
		h.respondError(w, r, "Invalid date", err)
		return
	}

	if err := h.Service.AddExclusion(r.Context(), scope, id, date); err != nil {
		h.respondError(w, r, "Failed to add exclusion", err)
		return
	}

	writeJSON(w, http.StatusCreated, ExclusionDTO{
		TemplateID: string(id),
		ScopeID:    string(scope),
		Date:       date.String(),
	})
}

// CreateException replaces the occurrence of a template on one date with a
// standalone unique template.
func (h *Handler) CreateException(w http.ResponseWriter, r *http.Request) {
	scope, id := scopeParam(r), templateParam(r)

	var req ExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, "Invalid request body", badRequest(err))
		return
	}
	date, err := parseDateField("date", req.Date)
	if err != nil {
		h.respondError(w, r, "Invalid date", err)
		return
	}

	h.createException(w, r, scope, id, date, req.Override, req.CreatedBy)
}

// CreateOccurrenceException is CreateException addressed by occurrence id.
func (h *Handler) CreateOccurrenceException(w http.ResponseWriter, r *http.Request) {
	scope := scopeParam(r)

	occID, err := recurrence.ParseOccurrenceID(chi.URLParam(r, "occurrenceID"))
	if err != nil {
		h.respondError(w, r, "Invalid occurrence id", err)
		return
	}

	var req OccurrenceExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, "Invalid request body", badRequest(err))
		return
	}

	h.createException(w, r, scope, occID.TemplateID, occID.Date, req.Override, req.CreatedBy)
}

func (h *Handler) createException(w http.ResponseWriter, r *http.Request, scope recurrence.ScopeID, id recurrence.TemplateID, date recurrence.Date, override factory.PayloadJSON, actor string) {
	exc, err := h.Service.CreateException(r.Context(), scope, id, date, h.Factory.PayloadFromJSON(override), actor)
	if err != nil {
		h.respondError(w, r, "Failed to create exception", err)
		return
	}

	logging.FromContext(r.Context()).Info("Exception created",
		logging.FieldOperation, logging.OpException,
		logging.FieldScopeID, scope,
		logging.FieldTemplateID, id,
		logging.FieldDate, date.String(),
		"replayed", exc.Replayed)
	writeJSON(w, http.StatusCreated, toExceptionDTO(exc))
}

// =============================================================================
// HELPERS
// =============================================================================

func scopeParam(r *http.Request) recurrence.ScopeID {
	return recurrence.ScopeID(chi.URLParam(r, "scopeID"))
}

func templateParam(r *http.Request) recurrence.TemplateID {
	return recurrence.TemplateID(chi.URLParam(r, "id"))
}

func parseRangeQuery(r *http.Request) (recurrence.Range, error) {
	q := r.URL.Query()
	start, end := q.Get("startDate"), q.Get("endDate")
	if start == "" || end == "" {
		return recurrence.Range{}, badRequest(errors.New("startDate and endDate are required"))
	}

	rng, err := recurrence.ParseRange(start, end)
	if err != nil {
		if recurrence.IsClientError(err) {
			return recurrence.Range{}, err
		}
		return recurrence.Range{}, badRequest(err)
	}
	return rng, nil
}

func parseDateField(field, value string) (recurrence.Date, error) {
	if value == "" {
		return recurrence.Date{}, badRequest(fmt.Errorf("%s is required", field))
	}
	d, err := recurrence.ParseDate(value)
	if err != nil {
		return recurrence.Date{}, badRequest(fmt.Errorf("%s: %w", field, err))
	}
	return d, nil
}

// classify maps an error to its HTTP status and machine-readable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, recurrence.ErrInvalidRange):
		return http.StatusBadRequest, "invalid_range"
	case errors.Is(err, recurrence.ErrMalformedTemplate):
		return http.StatusBadRequest, "malformed_template"
	case errors.Is(err, recurrence.ErrInvalidOccurrenceID):
		return http.StatusBadRequest, "invalid_occurrence_id"
	case recurrence.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, recurrence.ErrAlreadyExcluded):
		return http.StatusConflict, "already_excluded"
	case errors.Is(err, recurrence.ErrDuplicateTemplate):
		return http.StatusConflict, "duplicate_template"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

// errorDetails exposes the structured part of engine errors to clients.
func errorDetails(err error) any {
	var rangeErr *recurrence.RangeError
	var malformed *recurrence.MalformedTemplateError
	switch {
	case errors.As(err, &rangeErr):
		return map[string]string{
			"startDate": rangeErr.Start.String(),
			"endDate":   rangeErr.End.String(),
			"reason":    rangeErr.Reason,
		}
	case errors.As(err, &malformed):
		return map[string]string{
			"templateId": string(malformed.TemplateID),
			"frequency":  string(malformed.Frequency),
			"field":      malformed.Field,
			"reason":     malformed.Reason,
		}
	}
	return err.Error()
}

// respondError classifies err, logs it and writes the error body. Internal
// errors are logged in full but only the message reaches the client.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := classify(err)
	logger := logging.FromContext(r.Context())

	resp := ErrorResponse{Error: message, Code: code}
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		logger.Failure(r.Context(), message, err)
	case status == http.StatusServiceUnavailable:
		logger.Warn(message, logging.FieldError, err)
		resp.Details = err.Error()
	default:
		logger.Debug(message, logging.FieldError, err)
		resp.Details = errorDetails(err)
	}
	writeJSON(w, status, resp)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
