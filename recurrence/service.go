package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultScopeConcurrency bounds the multi-scope fan-out.
const DefaultScopeConcurrency = 4

// Service wires the engine to a TemplateStore: it fetches templates, runs the
// range query and applies exclusions and exceptions.
type Service struct {
	Store      TemplateStore
	Query      *QueryService
	Exceptions *ExceptionManager
	Logger     *slog.Logger

	// ScopeConcurrency bounds OccurrencesForScopes. Defaults to DefaultScopeConcurrency.
	ScopeConcurrency int
	// Now stamps created templates. Defaults to time.Now.
	Now func() time.Time
}

// NewService creates a service with default collaborators.
func NewService(store TemplateStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:      store,
		Query:      &QueryService{Malformed: MalformedSkip, Logger: logger},
		Exceptions: &ExceptionManager{},
		Logger:     logger,
	}
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// =============================================================================
// RANGE QUERIES
// =============================================================================

// Occurrences loads the scope's templates and materializes them over r.
func (s *Service) Occurrences(ctx context.Context, scope ScopeID, r Range) ([]Occurrence, error) {
	if err := s.Query.ValidateRange(r); err != nil {
		return nil, err
	}

	templates, err := s.Store.LoadTemplates(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load templates for scope %q: %w", scope, err)
	}

	occ, err := s.Query.GetOccurrences(ctx, templates, r)
	if err != nil {
		return nil, err
	}

	s.log().DebugContext(ctx, "Materialized occurrences",
		"scope_id", scope,
		"range", r.String(),
		"templates", len(templates),
		"occurrences", len(occ))
	return occ, nil
}

// OccurrencesForScopes runs Occurrences for several scopes concurrently and
// merges the results in the usual order. The first failure cancels the rest.
func (s *Service) OccurrencesForScopes(ctx context.Context, scopes []ScopeID, r Range) ([]Occurrence, error) {
	if err := s.Query.ValidateRange(r); err != nil {
		return nil, err
	}

	scopes = uniqueScopes(scopes)
	limit := s.ScopeConcurrency
	if limit <= 0 {
		limit = DefaultScopeConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	perScope := make([][]Occurrence, len(scopes))
	for i, scope := range scopes {
		g.Go(func() error {
			occ, err := s.Occurrences(gctx, scope, r)
			if err != nil {
				return err
			}
			perScope[i] = occ
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := []Occurrence{}
	for _, occ := range perScope {
		merged = append(merged, occ...)
	}
	SortOccurrences(merged)
	return merged, nil
}

func uniqueScopes(scopes []ScopeID) []ScopeID {
	seen := make(map[ScopeID]bool, len(scopes))
	out := make([]ScopeID, 0, len(scopes))
	for _, sc := range scopes {
		if sc == "" || seen[sc] {
			continue
		}
		seen[sc] = true
		out = append(out, sc)
	}
	return out
}

// =============================================================================
// TEMPLATES
// =============================================================================

// CreateTemplate validates t and persists it. Malformed templates are
// rejected here, at write time. An empty id is filled with a random UUID.
func (s *Service) CreateTemplate(ctx context.Context, t Template) (Template, error) {
	if t.ID == "" {
		t.ID = TemplateID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	if t.Exclusions == nil {
		t.Exclusions = NewExclusionSet()
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}

	if _, err := s.Store.InsertTemplate(ctx, t); err != nil {
		return Template{}, err
	}

	s.log().InfoContext(ctx, "Template created",
		"scope_id", t.ScopeID,
		"template_id", t.ID,
		"frequency", t.Frequency)
	return t, nil
}

func (s *Service) Template(ctx context.Context, scope ScopeID, id TemplateID) (Template, error) {
	return s.Store.GetTemplate(ctx, scope, id)
}

func (s *Service) Templates(ctx context.Context, scope ScopeID) ([]Template, error) {
	return s.Store.LoadTemplates(ctx, scope)
}

// UpdateTemplate replaces the rule and payload of an existing template. The
// update is validated like a create; the id, scope, creation time and
// exclusion set of the stored template are kept. An empty CreatedBy keeps the
// stored author.
func (s *Service) UpdateTemplate(ctx context.Context, t Template) (Template, error) {
	var updated Template
	run := func(store TemplateStore) error {
		existing, err := store.GetTemplate(ctx, t.ScopeID, t.ID)
		if err != nil {
			return err
		}

		updated = t
		updated.CreatedAt = existing.CreatedAt
		updated.Exclusions = existing.Exclusions
		if updated.CreatedBy == "" {
			updated.CreatedBy = existing.CreatedBy
		}
		if err := updated.Validate(); err != nil {
			return err
		}
		return store.UpdateTemplate(ctx, updated)
	}

	var err error
	if txStore, ok := s.Store.(TxTemplateStore); ok {
		err = txStore.WithTx(ctx, run)
	} else {
		err = run(s.Store)
	}
	if err != nil {
		return Template{}, err
	}

	s.log().InfoContext(ctx, "Template updated",
		"scope_id", updated.ScopeID,
		"template_id", updated.ID,
		"frequency", updated.Frequency)
	return updated, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, scope ScopeID, id TemplateID) error {
	if err := s.Store.DeleteTemplate(ctx, scope, id); err != nil {
		return err
	}
	s.log().InfoContext(ctx, "Template deleted", "scope_id", scope, "template_id", id)
	return nil
}

// =============================================================================
// EXCLUSIONS AND EXCEPTIONS
// =============================================================================

// AddExclusion suppresses the occurrence of a template on date. It returns a
// *ConflictError if the date was already excluded and a *NotFoundError if the
// template doesn't exist.
func (s *Service) AddExclusion(ctx context.Context, scope ScopeID, id TemplateID, date Date) error {
	date = date.Key().Date()

	res, err := s.Store.AppendExclusion(ctx, scope, id, date)
	if err != nil {
		return fmt.Errorf("append exclusion: %w", err)
	}

	switch res {
	case AppendNotFound:
		return &NotFoundError{ScopeID: scope, TemplateID: id}
	case AppendAlreadyExcluded:
		return &ConflictError{ScopeID: scope, TemplateID: id, Date: date}
	}

	s.log().InfoContext(ctx, "Exclusion added",
		"scope_id", scope,
		"template_id", id,
		"date", date.String())
	return nil
}

// CreateException excludes the occurrence of a template on date and stores a
// unique replacement carrying override.
//
// With a TxTemplateStore both writes commit together. Otherwise each step is
// retry-safe on its own: an existing exclusion is tolerated and the
// replacement id is derived from (template, date), so a second attempt finds
// the stored replacement instead of inserting a duplicate. The second attempt
// is reported as Replayed only when its override matches the stored payload;
// a different override is written onto the existing replacement.
func (s *Service) CreateException(ctx context.Context, scope ScopeID, id TemplateID, date Date, override Payload, actor string) (Exception, error) {
	date = date.Key().Date()
	if err := override.Validate(); err != nil {
		return Exception{}, &MalformedTemplateError{TemplateID: id, Frequency: FrequencyUnique, Field: "override", Reason: err.Error()}
	}

	var result Exception
	run := func(store TemplateStore) error {
		original, err := store.GetTemplate(ctx, scope, id)
		if err != nil {
			return err
		}

		res, err := store.AppendExclusion(ctx, scope, id, date)
		if err != nil {
			return fmt.Errorf("append exclusion: %w", err)
		}
		switch res {
		case AppendNotFound:
			return &NotFoundError{ScopeID: scope, TemplateID: id}
		case AppendAlreadyExcluded:
			result.AlreadyExcluded = true
		}

		replacement := s.Exceptions.Replacement(original, date, override)
		if actor != "" {
			replacement.CreatedBy = actor
		}

		if _, err := store.InsertTemplate(ctx, replacement); err != nil {
			if !errors.Is(err, ErrDuplicateTemplate) {
				return fmt.Errorf("insert replacement: %w", err)
			}
			stored, err := store.GetTemplate(ctx, scope, replacement.ID)
			if err != nil {
				return fmt.Errorf("load replayed replacement: %w", err)
			}
			if stored.Payload.Equal(override) {
				replacement = stored
				result.Replayed = true
			} else {
				// A second exception on the same date with a new override
				// replaces the payload of the existing replacement.
				stored.Payload = override
				if actor != "" {
					stored.CreatedBy = actor
				}
				if err := store.UpdateTemplate(ctx, stored); err != nil {
					return fmt.Errorf("update replacement: %w", err)
				}
				replacement = stored
			}
		}

		result.Original = id
		result.Date = date
		result.Replacement = replacement
		return nil
	}

	var err error
	if txStore, ok := s.Store.(TxTemplateStore); ok {
		err = txStore.WithTx(ctx, run)
	} else {
		err = run(s.Store)
	}
	if err != nil {
		return Exception{}, err
	}

	s.log().InfoContext(ctx, "Exception created",
		"scope_id", scope,
		"template_id", id,
		"date", date.String(),
		"replacement_id", result.Replacement.ID,
		"already_excluded", result.AlreadyExcluded,
		"replayed", result.Replayed)
	return result, nil
}
