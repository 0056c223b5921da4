// Package store provides TemplateStore implementations.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/warp/recurrence-engine/recurrence"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps templates per scope. Every read returns clones, so callers
// never alias stored exclusion sets.
type Memory struct {
	mu        sync.RWMutex
	templates map[key]recurrence.Template
}

type key struct {
	ScopeID    recurrence.ScopeID
	TemplateID recurrence.TemplateID
}

func keyOf(t recurrence.Template) key {
	return key{ScopeID: t.ScopeID, TemplateID: t.ID}
}

func NewMemory() *Memory {
	return &Memory{templates: make(map[key]recurrence.Template)}
}

func (m *Memory) LoadTemplates(_ context.Context, scope recurrence.ScopeID) ([]recurrence.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(scope), nil
}

func (m *Memory) GetTemplate(_ context.Context, scope recurrence.ScopeID, id recurrence.TemplateID) (recurrence.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(scope, id)
}

// AppendExclusion is a compare-and-insert under the write lock, so of two
// racing calls for the same date exactly one sees AppendSuccess.
func (m *Memory) AppendExclusion(_ context.Context, scope recurrence.ScopeID, id recurrence.TemplateID, date recurrence.Date) (recurrence.AppendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendExclusionLocked(scope, id, date), nil
}

func (m *Memory) InsertTemplate(_ context.Context, t recurrence.Template) (recurrence.TemplateID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(t)
}

func (m *Memory) UpdateTemplate(_ context.Context, t recurrence.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(t)
}

func (m *Memory) DeleteTemplate(_ context.Context, scope recurrence.ScopeID, id recurrence.TemplateID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(scope, id)
}

func (m *Memory) loadLocked(scope recurrence.ScopeID) []recurrence.Template {
	result := []recurrence.Template{}
	for k, t := range m.templates {
		if k.ScopeID == scope {
			result = append(result, t.Clone())
		}
	}
	// Map order is random; keep loads reproducible.
	slices.SortFunc(result, func(a, b recurrence.Template) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return result
}

func (m *Memory) getLocked(scope recurrence.ScopeID, id recurrence.TemplateID) (recurrence.Template, error) {
	t, ok := m.templates[key{ScopeID: scope, TemplateID: id}]
	if !ok {
		return recurrence.Template{}, &recurrence.NotFoundError{ScopeID: scope, TemplateID: id}
	}
	return t.Clone(), nil
}

func (m *Memory) appendExclusionLocked(scope recurrence.ScopeID, id recurrence.TemplateID, date recurrence.Date) recurrence.AppendResult {
	k := key{ScopeID: scope, TemplateID: id}
	t, ok := m.templates[k]
	if !ok {
		return recurrence.AppendNotFound
	}
	// Copy-on-write keeps snapshots taken by WithTx intact.
	t = t.Clone()
	if err := t.Exclude(date); err != nil {
		return recurrence.AppendAlreadyExcluded
	}
	m.templates[k] = t
	return recurrence.AppendSuccess
}

func (m *Memory) insertLocked(t recurrence.Template) (recurrence.TemplateID, error) {
	k := keyOf(t)
	if _, exists := m.templates[k]; exists {
		return "", recurrence.ErrDuplicateTemplate
	}
	m.templates[k] = t.Clone()
	return t.ID, nil
}

func (m *Memory) updateLocked(t recurrence.Template) error {
	k := keyOf(t)
	stored, ok := m.templates[k]
	if !ok {
		return &recurrence.NotFoundError{ScopeID: t.ScopeID, TemplateID: t.ID}
	}
	updated := t.Clone()
	updated.Exclusions = stored.Exclusions.Clone()
	updated.CreatedAt = stored.CreatedAt
	m.templates[k] = updated
	return nil
}

func (m *Memory) deleteLocked(scope recurrence.ScopeID, id recurrence.TemplateID) error {
	k := key{ScopeID: scope, TemplateID: id}
	if _, ok := m.templates[k]; !ok {
		return &recurrence.NotFoundError{ScopeID: scope, TemplateID: id}
	}
	delete(m.templates, k)
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(recurrence.TemplateStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[key]recurrence.Template, len(m.templates))
	for k, t := range m.templates {
		snapshot[k] = t
	}

	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.templates = snapshot
		return err
	}
	return nil
}

// txMemoryView operates on the parent while its lock is held by WithTx.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) LoadTemplates(_ context.Context, scope recurrence.ScopeID) ([]recurrence.Template, error) {
	return tv.parent.loadLocked(scope), nil
}

func (tv *txMemoryView) GetTemplate(_ context.Context, scope recurrence.ScopeID, id recurrence.TemplateID) (recurrence.Template, error) {
	return tv.parent.getLocked(scope, id)
}

func (tv *txMemoryView) AppendExclusion(_ context.Context, scope recurrence.ScopeID, id recurrence.TemplateID, date recurrence.Date) (recurrence.AppendResult, error) {
	return tv.parent.appendExclusionLocked(scope, id, date), nil
}

func (tv *txMemoryView) InsertTemplate(_ context.Context, t recurrence.Template) (recurrence.TemplateID, error) {
	return tv.parent.insertLocked(t)
}

func (tv *txMemoryView) UpdateTemplate(_ context.Context, t recurrence.Template) error {
	return tv.parent.updateLocked(t)
}

func (tv *txMemoryView) DeleteTemplate(_ context.Context, scope recurrence.ScopeID, id recurrence.TemplateID) error {
	return tv.parent.deleteLocked(scope, id)
}
