/*
handlers_test.go - Tests for the HTTP API

Tests for:
- Template CRUD, update, export and write-time validation
- Range queries (single and multi-scope) and error mapping
- Exclusions (201 / 409 / 404) and exceptions
- Health endpoint
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurrence-engine/factory"
	"github.com/warp/recurrence-engine/logging"
	"github.com/warp/recurrence-engine/recurrence"
	"github.com/warp/recurrence-engine/recurrence/store"
)

var testNow = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

type testServer struct {
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T, s recurrence.TemplateStore) *testServer {
	t.Helper()
	if s == nil {
		s = store.NewMemory()
	}
	svc := recurrence.NewService(s, nil)
	svc.Now = func() time.Time { return testNow }
	svc.Exceptions.Now = svc.Now

	h := NewHandler(svc, logging.Discard())
	h.Storage = "memory"
	h.Now = svc.Now
	return &testServer{
		handler: h,
		router:  NewRouter(h, RouterConfig{AllowedOrigins: []string{"http://localhost:5173"}}),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const rentJSON = `{
	"id": "rent",
	"frequency": "monthly",
	"date": "2023-01-31",
	"dayOfMonth": 31,
	"type": "expense",
	"amount": 850.5,
	"category": "housing",
	"budgetCategory": "spending"
}`

const gymJSON = `{
	"id": "gym",
	"frequency": "weekly",
	"date": "2024-01-01",
	"dayOfWeek": "monday",
	"type": "expense",
	"amount": "30",
	"category": "health",
	"budgetCategory": "leisure"
}`

func (s *testServer) mustCreate(t *testing.T, scope, body string) TemplateDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/scopes/"+scope+"/templates", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[TemplateDTO](t, rec)
}

// =============================================================================
// HEALTH
// =============================================================================

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[HealthDTO](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "memory", health.Storage)
	assert.Equal(t, "2024-01-02T09:30:00Z", health.Time)
}

func TestHealth_StorageDown(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.handler.Pinger = pingerFunc(func(context.Context) error { return errors.New("database is locked") })

	rec := srv.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[HealthDTO](t, rec).Status)
}

// =============================================================================
// TEMPLATES
// =============================================================================

func TestCreateTemplate_Success(t *testing.T) {
	// GIVEN: An empty scope
	srv := newTestServer(t, nil)

	// WHEN: Creating a monthly template
	created := srv.mustCreate(t, "wallet-1", rentJSON)

	// THEN: The stored template is returned
	assert.Equal(t, "rent", created.ID)
	assert.Equal(t, "wallet-1", created.ScopeID)
	assert.Equal(t, "monthly", created.Frequency)
	require.NotNil(t, created.DayOfMonth)
	assert.Equal(t, 31, *created.DayOfMonth)
	assert.Nil(t, created.DayOfWeek)
	assert.Equal(t, 850.5, created.Amount)
	assert.Equal(t, []string{}, created.ExcludedDates)
	assert.Equal(t, "2024-01-02T09:30:00Z", created.CreatedAt)

	// AND: It can be fetched and listed
	rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/templates/rent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decode[TemplateDTO](t, rec))

	rec = srv.do(t, http.MethodGet, "/api/scopes/wallet-1/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TemplateDTO](t, rec), 1)

	rec = srv.do(t, http.MethodGet, "/api/scopes/wallet-2/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]TemplateDTO](t, rec))
}

func TestCreateTemplate_GeneratesID(t *testing.T) {
	srv := newTestServer(t, nil)

	created := srv.mustCreate(t, "wallet-1", `{"date":"2024-03-10","type":"income","amount":100,"category":"gift"}`)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "unique", created.Frequency)
}

func TestCreateTemplate_WeeklyReportsWeekdayName(t *testing.T) {
	srv := newTestServer(t, nil)

	created := srv.mustCreate(t, "wallet-1", gymJSON)

	require.NotNil(t, created.DayOfWeek)
	assert.Equal(t, int(recurrence.Monday), *created.DayOfWeek)
	assert.Equal(t, "monday", created.DayOfWeekName)
	assert.Equal(t, 30.0, created.Amount)
}

func TestCreateTemplate_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"monthly without dayOfMonth", `{"id":"x","frequency":"monthly","date":"2024-01-01","type":"income","amount":1,"category":"c"}`, "dayOfMonth"},
		{"weekly without dayOfWeek", `{"id":"x","frequency":"weekly","date":"2024-01-01","type":"income","amount":1,"category":"c"}`, "dayOfWeek"},
		{"dayOfMonth out of bounds", `{"id":"x","frequency":"monthly","date":"2024-01-01","dayOfMonth":32,"type":"income","amount":1,"category":"c"}`, "dayOfMonth"},
		{"missing date", `{"id":"x","type":"income","amount":1,"category":"c"}`, "date"},
		{"zero amount", `{"id":"x","date":"2024-01-01","type":"income","amount":0,"category":"c"}`, "payload"},
		{"expense without budget", `{"id":"x","date":"2024-01-01","type":"expense","amount":5,"category":"c"}`, "payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)

			rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, "malformed_template", resp.Code)
			details, ok := resp.Details.(map[string]any)
			require.True(t, ok, "details should be structured: %v", resp.Details)
			assert.Equal(t, tt.field, details["field"])
		})
	}
}

func TestCreateTemplate_InvalidBody(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates", `{"id":`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, rec).Code)
}

func TestCreateTemplate_Duplicate(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", rentJSON)

	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates", rentJSON)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_template", decode[ErrorResponse](t, rec).Code)

	// Same id in another scope is fine.
	srv.mustCreate(t, "wallet-2", rentJSON)
}

func TestGetTemplate_NotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/templates/nope", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "not_found", resp.Code)
	assert.Equal(t, "Failed to get template", resp.Error)
}

func TestDeleteTemplate(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", rentJSON)

	rec := srv.do(t, http.MethodDelete, "/api/scopes/wallet-1/templates/rent", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/scopes/wallet-1/templates/rent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateTemplate(t *testing.T) {
	// GIVEN: A monthly rent with one excluded date
	srv := newTestServer(t, nil)
	created := srv.mustCreate(t, "wallet-1", rentJSON)
	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/rent/exclusions", ExclusionRequest{Date: "2023-02-28"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Moving it to the 15th at 900
	rec = srv.do(t, http.MethodPut, "/api/scopes/wallet-1/templates/rent", `{
		"frequency": "monthly",
		"date": "2023-01-15",
		"dayOfMonth": 15,
		"type": "expense",
		"amount": 900,
		"category": "housing",
		"budgetCategory": "spending"
	}`)

	// THEN: Rule and payload change; exclusions and creation time stay
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[TemplateDTO](t, rec)
	require.NotNil(t, updated.DayOfMonth)
	assert.Equal(t, 15, *updated.DayOfMonth)
	assert.Equal(t, 900.0, updated.Amount)
	assert.Equal(t, []string{"2023-02-28"}, updated.ExcludedDates)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	rec = srv.do(t, http.MethodGet, "/api/scopes/wallet-1/occurrences?startDate=2023-03-01&endDate=2023-03-31", nil)
	occ := decode[OccurrencesResponse](t, rec).Occurrences
	require.Len(t, occ, 1)
	assert.Equal(t, "2023-03-15", occ[0].Date)
}

func TestUpdateTemplate_Errors(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", gymJSON)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown template", "/api/scopes/wallet-1/templates/nope",
			`{"frequency":"weekly","date":"2024-01-01","dayOfWeek":"friday","type":"expense","amount":30,"category":"health","budgetCategory":"leisure"}`,
			http.StatusNotFound, "not_found"},
		{"id mismatch", "/api/scopes/wallet-1/templates/rent", gymJSON, http.StatusBadRequest, "invalid_request"},
		{"weekly without day", "/api/scopes/wallet-1/templates/gym",
			`{"frequency":"weekly","date":"2024-01-01","type":"expense","amount":30,"category":"health","budgetCategory":"leisure"}`,
			http.StatusBadRequest, "malformed_template"},
		{"invalid body", "/api/scopes/wallet-1/templates/gym", `{`, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPut, tt.path, tt.body)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}

	// AND: The stored template is untouched
	rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/templates/gym", nil)
	assert.Equal(t, "monday", decode[TemplateDTO](t, rec).DayOfWeekName)
}

func TestExportTemplates(t *testing.T) {
	// GIVEN: Two templates, one with an exclusion
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", rentJSON)
	srv.mustCreate(t, "wallet-1", gymJSON)
	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exclusions", ExclusionRequest{Date: "2024-01-08"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: Exporting the scope
	rec = srv.do(t, http.MethodGet, "/api/scopes/wallet-1/templates/export", nil)

	// THEN: Factory JSON comes back, and posting it to another scope reproduces the schedule
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	exported := decode[[]factory.TemplateJSON](t, rec)
	require.Len(t, exported, 2)
	assert.Equal(t, "gym", exported[0].ID)
	assert.Equal(t, []string{"2024-01-08"}, exported[0].ExcludedDates)

	for _, tj := range exported {
		rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-2/templates", tj)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	assert.Equal(t,
		srv.occurrenceDates(t, "wallet-1", "2024-01-01", "2024-02-29"),
		srv.occurrenceDates(t, "wallet-2", "2024-01-01", "2024-02-29"))
}

func TestCreateTemplate_IsSalary(t *testing.T) {
	srv := newTestServer(t, nil)

	created := srv.mustCreate(t, "wallet-1",
		`{"id":"salary","frequency":"monthly","date":"2024-01-25","dayOfMonth":25,"type":"income","amount":2100,"category":"salario","isSalary":true}`)

	assert.True(t, created.IsSalary)
	rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/occurrences?startDate=2024-01-01&endDate=2024-01-31", nil)
	occ := decode[OccurrencesResponse](t, rec).Occurrences
	require.Len(t, occ, 1)
	assert.True(t, occ[0].IsSalary)
}

// =============================================================================
// OCCURRENCES
// =============================================================================

func TestListOccurrences_MonthlyClamping(t *testing.T) {
	// GIVEN: A monthly template on day 31
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", rentJSON)

	// WHEN: Querying Jan-Apr 2023
	rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/occurrences?startDate=2023-01-01&endDate=2023-04-30", nil)

	// THEN: Short months clamp to their last day
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[OccurrencesResponse](t, rec)
	assert.Equal(t, "2023-01-01", resp.StartDate)
	assert.Equal(t, "2023-04-30", resp.EndDate)
	assert.Equal(t, []string{"wallet-1"}, resp.Scopes)
	require.Equal(t, 4, resp.Count)

	var dates []string
	for _, o := range resp.Occurrences {
		dates = append(dates, o.Date)
		assert.Equal(t, "rent@"+o.Date, o.ID)
		assert.Equal(t, "rent", o.TemplateID)
		assert.Equal(t, 850.5, o.Amount)
		require.NotNil(t, o.DayOfMonth)
		assert.Equal(t, 31, *o.DayOfMonth)
	}
	assert.Equal(t, []string{"2023-01-31", "2023-02-28", "2023-03-31", "2023-04-30"}, dates)
}

func TestListOccurrences_EmptyScope(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/occurrences?startDate=2024-01-01&endDate=2024-12-31", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(decode[map[string]json.RawMessage](t, rec)["occurrences"]))
}

func TestListOccurrences_BadRanges(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"start after end", "startDate=2024-02-01&endDate=2024-01-01", "invalid_range"},
		{"missing end", "startDate=2024-02-01", "invalid_request"},
		{"unparseable start", "startDate=01/02/2024&endDate=2024-03-01", "invalid_request"},
		{"impossible date", "startDate=2024-02-30&endDate=2024-03-01", "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)

			rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/occurrences?"+tt.query, nil)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestListOccurrences_RangeErrorDetails(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/occurrences?startDate=2024-02-01&endDate=2024-01-01", nil)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, map[string]any{
		"startDate": "2024-02-01",
		"endDate":   "2024-01-01",
		"reason":    "start after end",
	}, resp.Details)
}

func TestListOccurrencesForScopes(t *testing.T) {
	// GIVEN: Templates in two scopes
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-b", gymJSON)
	srv.mustCreate(t, "wallet-a", gymJSON)

	// WHEN: Querying both scopes for the first two weeks of January 2024
	rec := srv.do(t, http.MethodGet, "/api/occurrences?scopes=wallet-b,wallet-a,&startDate=2024-01-01&endDate=2024-01-14", nil)

	// THEN: Occurrences are merged by date, then scope
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[OccurrencesResponse](t, rec)
	assert.Equal(t, []string{"wallet-b", "wallet-a"}, resp.Scopes)
	require.Len(t, resp.Occurrences, 4)

	var got []string
	for _, o := range resp.Occurrences {
		got = append(got, o.Date+" "+o.ScopeID)
	}
	assert.Equal(t, []string{
		"2024-01-01 wallet-a",
		"2024-01-01 wallet-b",
		"2024-01-08 wallet-a",
		"2024-01-08 wallet-b",
	}, got)
}

func TestListOccurrencesForScopes_RequiresScopes(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/occurrences?scopes=,&startDate=2024-01-01&endDate=2024-01-14", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// EXCLUSIONS AND EXCEPTIONS
// =============================================================================

func TestAddExclusion(t *testing.T) {
	// GIVEN: A weekly template
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", gymJSON)

	// WHEN: Excluding 2024-01-08
	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exclusions", ExclusionRequest{Date: "2024-01-08"})

	// THEN: 201, and the occurrence disappears
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, ExclusionDTO{TemplateID: "gym", ScopeID: "wallet-1", Date: "2024-01-08"}, decode[ExclusionDTO](t, rec))

	rec = srv.do(t, http.MethodGet, "/api/scopes/wallet-1/occurrences?startDate=2024-01-01&endDate=2024-01-15", nil)
	var dates []string
	for _, o := range decode[OccurrencesResponse](t, rec).Occurrences {
		dates = append(dates, o.Date)
	}
	assert.Equal(t, []string{"2024-01-01", "2024-01-15"}, dates)

	// AND: Excluding again conflicts
	rec = srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exclusions", ExclusionRequest{Date: "2024-01-08"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_excluded", decode[ErrorResponse](t, rec).Code)
}

func TestAddExclusion_Errors(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", gymJSON)

	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/nope/exclusions", ExclusionRequest{Date: "2024-01-08"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exclusions", ExclusionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exclusions", ExclusionRequest{Date: "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateException(t *testing.T) {
	// GIVEN: A weekly template
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", gymJSON)

	// WHEN: Replacing the 2024-01-08 occurrence
	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exceptions", `{
		"date": "2024-01-08",
		"createdBy": "ana",
		"override": {"type": "expense", "amount": 45, "category": "health", "budgetCategory": "leisure", "description": "drop-in class"}
	}`)

	// THEN: The exception is stored with a unique replacement
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	exc := decode[ExceptionDTO](t, rec)
	assert.Equal(t, "gym", exc.OriginalTemplateID)
	assert.Equal(t, "gym@2024-01-08", exc.OccurrenceID)
	assert.Equal(t, "unique", exc.Replacement.Frequency)
	assert.Equal(t, "2024-01-08", exc.Replacement.Date)
	assert.Equal(t, "ana", exc.Replacement.CreatedBy)
	assert.False(t, exc.AlreadyExcluded)
	assert.False(t, exc.Replayed)

	// AND: The week shows the override instead of the original
	rec = srv.do(t, http.MethodGet, "/api/scopes/wallet-1/occurrences?startDate=2024-01-08&endDate=2024-01-08", nil)
	occ := decode[OccurrencesResponse](t, rec).Occurrences
	require.Len(t, occ, 1)
	assert.Equal(t, exc.Replacement.ID, occ[0].TemplateID)
	assert.Equal(t, 45.0, occ[0].Amount)
	assert.Equal(t, "drop-in class", occ[0].Description)
}

func TestCreateException_RetryIsReplayed(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", gymJSON)
	body := ExceptionRequest{Date: "2024-01-08"}
	body.Override.Type = "income"
	body.Override.Category = "refund"
	body.Override.Amount = decimal.NewFromInt(12)

	first := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exceptions", body)
	second := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exceptions", body)

	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	a, b := decode[ExceptionDTO](t, first), decode[ExceptionDTO](t, second)
	assert.Equal(t, a.Replacement.ID, b.Replacement.ID)
	assert.True(t, b.AlreadyExcluded)
	assert.True(t, b.Replayed)

	rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/templates", nil)
	assert.Len(t, decode[[]TemplateDTO](t, rec), 2)
}

func TestCreateException_InvalidOverride(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", gymJSON)

	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exceptions", `{"date":"2024-01-08","override":{}}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed_template", decode[ErrorResponse](t, rec).Code)

	rec = srv.do(t, http.MethodGet, "/api/scopes/wallet-1/templates/gym", nil)
	assert.Empty(t, decode[TemplateDTO](t, rec).ExcludedDates)
}

func TestCreateException_NewOverrideUpdatesReplacement(t *testing.T) {
	// GIVEN: An exception replacing the 2024-01-08 class with 900
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", gymJSON)
	body := ExceptionRequest{Date: "2024-01-08"}
	body.Override.Type = "expense"
	body.Override.Category = "health"
	body.Override.BudgetCategory = "leisure"
	body.Override.Amount = decimal.NewFromInt(900)
	first := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exceptions", body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	// WHEN: The same date is overridden with 950
	body.Override.Amount = decimal.NewFromInt(950)
	second := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exceptions", body)

	// THEN: The existing replacement carries 950 and the call is not a replay
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	exc := decode[ExceptionDTO](t, second)
	assert.False(t, exc.Replayed)
	assert.Equal(t, decode[ExceptionDTO](t, first).Replacement.ID, exc.Replacement.ID)

	rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/occurrences?startDate=2024-01-08&endDate=2024-01-08", nil)
	occ := decode[OccurrencesResponse](t, rec).Occurrences
	require.Len(t, occ, 1)
	assert.Equal(t, 950.0, occ[0].Amount)
}

func TestExclusionAndExceptionDates_RejectTimestamps(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", gymJSON)

	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exclusions", ExclusionRequest{Date: "2024-01-08T00:00:00Z"})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, rec).Code)

	rec = srv.do(t, http.MethodPost, "/api/scopes/wallet-1/templates/gym/exceptions", `{
		"date": "2024-01-08T10:00:00+01:00",
		"override": {"type": "expense", "amount": 45, "category": "health", "budgetCategory": "leisure"}
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, rec).Code)

	rec = srv.do(t, http.MethodGet, "/api/scopes/wallet-1/templates/gym", nil)
	assert.Empty(t, decode[TemplateDTO](t, rec).ExcludedDates)
}

func TestCreateOccurrenceException(t *testing.T) {
	// GIVEN: A monthly template and one of its occurrence ids
	srv := newTestServer(t, nil)
	srv.mustCreate(t, "wallet-1", rentJSON)

	// WHEN: Replacing the occurrence by id
	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/occurrences/rent@2023-02-28/exception",
		`{"override": {"type": "expense", "amount": 900, "category": "housing", "budgetCategory": "spending"}}`)

	// THEN: The id is parsed back into (template, date)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	exc := decode[ExceptionDTO](t, rec)
	assert.Equal(t, "rent", exc.OriginalTemplateID)
	assert.Equal(t, "2023-02-28", exc.Date)

	rec = srv.do(t, http.MethodGet, "/api/scopes/wallet-1/templates/rent", nil)
	assert.Equal(t, []string{"2023-02-28"}, decode[TemplateDTO](t, rec).ExcludedDates)
}

func TestCreateOccurrenceException_InvalidID(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/scopes/wallet-1/occurrences/rent-2023-02-28/exception", `{"override":{}}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_occurrence_id", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// errStore fails every load with err.
type errStore struct {
	recurrence.TemplateStore
	err error
}

func (s errStore) LoadTemplates(context.Context, recurrence.ScopeID) ([]recurrence.Template, error) {
	return nil, s.err
}

func TestErrorMapping_StoreFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, "unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "unavailable"},
		{"internal", errors.New("disk I/O error"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, errStore{TemplateStore: store.NewMemory(), err: tt.err})

			rec := srv.do(t, http.MethodGet, "/api/scopes/wallet-1/templates", nil)

			require.Equal(t, tt.status, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Nil(t, resp.Details, "internal errors are not exposed")
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/nope", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", decode[ErrorResponse](t, rec).Error)
}
