/*
store.go - Template persistence collaborator

The engine never persists anything itself. It consumes a TemplateStore:

  LoadTemplates(scope)            -> all templates of a scope
  AppendExclusion(scope, id, day) -> success | alreadyExcluded | notFound
  InsertTemplate(template)        -> id
  UpdateTemplate(template)        -> rule and payload replaced, exclusions kept

ATOMIC EXCLUSION:
  AppendExclusion is the only synchronization point of the engine. Two
  concurrent requests for the same (template, date) race on it; the store
  must insert atomically so the loser observes AppendAlreadyExcluded.

TRANSACTIONS:
  Stores that also implement TxTemplateStore let Service run the two writes
  of an exception (exclude + insert replacement) all-or-nothing.

IMPLEMENTATIONS:
  - recurrence/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:     SQLite
*/
package recurrence

import "context"

// AppendResult is the outcome of AppendExclusion.
type AppendResult int

const (
	AppendSuccess AppendResult = iota
	AppendAlreadyExcluded
	AppendNotFound
)

func (r AppendResult) String() string {
	switch r {
	case AppendSuccess:
		return "success"
	case AppendAlreadyExcluded:
		return "already_excluded"
	case AppendNotFound:
		return "not_found"
	}
	return "unknown"
}

// TemplateStore persists templates and their exclusion sets.
type TemplateStore interface {
	// LoadTemplates returns every template of the scope, exclusions included.
	LoadTemplates(ctx context.Context, scope ScopeID) ([]Template, error)

	// GetTemplate returns a *NotFoundError if the template doesn't exist.
	GetTemplate(ctx context.Context, scope ScopeID, id TemplateID) (Template, error)

	// AppendExclusion atomically inserts date unless already present.
	AppendExclusion(ctx context.Context, scope ScopeID, id TemplateID, date Date) (AppendResult, error)

	// InsertTemplate returns ErrDuplicateTemplate if the id is taken in its scope.
	InsertTemplate(ctx context.Context, t Template) (TemplateID, error)

	// UpdateTemplate replaces the rule, payload and author of an existing
	// template. The stored exclusions and creation time are kept. Returns a
	// *NotFoundError if the template doesn't exist.
	UpdateTemplate(ctx context.Context, t Template) error

	// DeleteTemplate returns a *NotFoundError if the template doesn't exist.
	DeleteTemplate(ctx context.Context, scope ScopeID, id TemplateID) error
}

// TxTemplateStore runs several writes all-or-nothing.
type TxTemplateStore interface {
	TemplateStore

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(TemplateStore) error) error
}
