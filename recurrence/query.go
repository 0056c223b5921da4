package recurrence

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// MalformedPolicy decides what a range query does with a template that lacks
// the field its frequency requires.
type MalformedPolicy string

const (
	// MalformedSkip drops the template's contribution and keeps going.
	MalformedSkip MalformedPolicy = "skip"
	// MalformedReject fails the whole query.
	MalformedReject MalformedPolicy = "reject"
)

func (p MalformedPolicy) Valid() bool {
	return p == "" || p == MalformedSkip || p == MalformedReject
}

// QueryService expands a batch of already-fetched templates over a range.
// It holds no mutable state and is safe for concurrent use.
type QueryService struct {
	// Malformed defaults to MalformedSkip.
	Malformed MalformedPolicy
	// MaxRangeDays rejects wider ranges when > 0.
	MaxRangeDays int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (s *QueryService) logger() *slog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// ValidateRange applies the range checks done before any expansion.
func (s *QueryService) ValidateRange(r Range) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if s != nil && s.MaxRangeDays > 0 && r.Days() > s.MaxRangeDays {
		return &RangeError{Start: r.Start, End: r.End, Reason: fmt.Sprintf("spans %d days, max %d", r.Days(), s.MaxRangeDays)}
	}
	return nil
}

// GetOccurrences materializes every template over r and returns the
// occurrences sorted by date, then scope, then template id.
//
// The range is validated eagerly. ctx is checked between templates so an
// abandoned request stops promptly.
func (s *QueryService) GetOccurrences(ctx context.Context, templates []Template, r Range) ([]Occurrence, error) {
	if err := s.ValidateRange(r); err != nil {
		return nil, err
	}

	result := []Occurrence{}
	for _, t := range templates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := t.CheckRule(); err != nil {
			if s != nil && s.Malformed == MalformedReject {
				return nil, err
			}
			s.logger().WarnContext(ctx, "Skipping malformed template",
				"scope_id", t.ScopeID,
				"template_id", t.ID,
				"error", err)
			continue
		}

		for d := range Expand(t, r) {
			result = append(result, newOccurrence(t, d))
		}
	}

	SortOccurrences(result)
	return result, nil
}

// SortOccurrences orders by date; ties are broken by scope then template id
// so the order is reproducible.
func SortOccurrences(occ []Occurrence) {
	slices.SortStableFunc(occ, compareOccurrences)
}

func compareOccurrences(a, b Occurrence) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	if a.ScopeID != b.ScopeID {
		if a.ScopeID < b.ScopeID {
			return -1
		}
		return 1
	}
	switch {
	case a.ID.TemplateID < b.ID.TemplateID:
		return -1
	case a.ID.TemplateID > b.ID.TemplateID:
		return 1
	}
	return 0
}
