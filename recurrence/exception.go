package recurrence

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// replacementNamespace seeds name-based ids of replacement templates.
var replacementNamespace = uuid.MustParse("6f1c2a8e-3d4b-5e6f-8a9b-0c1d2e3f4a5b")

// ReplacementID derives the id of the template that replaces the occurrence
// of original on date. The same pair always yields the same id, so a retried
// exception converges to one record instead of duplicating it.
func ReplacementID(original TemplateID, date Date) TemplateID {
	return TemplateID(uuid.NewSHA1(replacementNamespace, []byte(OccurrenceID{TemplateID: original, Date: date}.String())).String())
}

// Exception is the outcome of replacing one occurrence.
type Exception struct {
	Original    TemplateID
	Date        Date
	Replacement Template

	// AlreadyExcluded is set when the original occurrence was suppressed
	// before this call.
	AlreadyExcluded bool
	// Replayed is set when an earlier attempt already stored a replacement
	// with the same payload; Replacement then holds the stored record.
	Replayed bool
}

// ExceptionManager turns one occurrence of a recurring template into a
// standalone unique template.
type ExceptionManager struct {
	// NewID names replacement templates. Defaults to ReplacementID.
	NewID func(original TemplateID, date Date) TemplateID
	// Now stamps CreatedAt. Defaults to time.Now.
	Now func() time.Time
}

// CreateException excludes date from t and builds the replacement template
// from override. An existing exclusion is tolerated and reported via
// Exception.AlreadyExcluded. The replacement is returned for the caller to
// persist; t is mutated in place.
func (m *ExceptionManager) CreateException(t *Template, date Date, override Payload) (Exception, error) {
	date = date.Key().Date()

	alreadyExcluded := false
	if err := t.Exclude(date); err != nil {
		if !errors.Is(err, ErrAlreadyExcluded) {
			return Exception{}, err
		}
		alreadyExcluded = true
	}

	return Exception{
		Original:        t.ID,
		Date:            date,
		Replacement:     m.Replacement(*t, date, override),
		AlreadyExcluded: alreadyExcluded,
	}, nil
}

// Replacement builds the unique template standing in for t on date: no
// dayOfWeek, no dayOfMonth, empty exclusions.
func (m *ExceptionManager) Replacement(t Template, date Date, override Payload) Template {
	newID := ReplacementID
	if m != nil && m.NewID != nil {
		newID = m.NewID
	}
	now := time.Now
	if m != nil && m.Now != nil {
		now = m.Now
	}

	return Template{
		ID:         newID(t.ID, date),
		ScopeID:    t.ScopeID,
		Frequency:  FrequencyUnique,
		AnchorDate: date.Key().Date(),
		DayOfWeek:  mo.None[Weekday](),
		DayOfMonth: mo.None[int](),
		Exclusions: NewExclusionSet(),
		Payload:    override,
		CreatedBy:  t.CreatedBy,
		CreatedAt:  now().UTC(),
	}
}

// AddExclusion excludes date from t directly. Unlike CreateException it
// reports an existing exclusion as a *ConflictError.
func AddExclusion(t *Template, date Date) error {
	if err := t.Exclude(date); err != nil {
		if errors.Is(err, ErrAlreadyExcluded) {
			return &ConflictError{ScopeID: t.ScopeID, TemplateID: t.ID, Date: date.Key().Date()}
		}
		return err
	}
	return nil
}
