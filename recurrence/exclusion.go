package recurrence

import (
	"slices"
)

// ExclusionSet holds the dates at which a template must not produce an
// occurrence. Membership is by DateKey, so time-of-day noise in stored values
// never matters. It never contains duplicates. A nil *ExclusionSet reads as
// empty and rejects Add.
//
// ExclusionSet is not safe for concurrent mutation; concurrent exclusion
// requests are serialized by the TemplateStore (see AppendExclusion).
type ExclusionSet struct {
	keys map[DateKey]struct{}
}

func NewExclusionSet(dates ...Date) *ExclusionSet {
	s := &ExclusionSet{keys: make(map[DateKey]struct{}, len(dates))}
	for _, d := range dates {
		s.keys[d.Key()] = struct{}{}
	}
	return s
}

// Contains reports membership. A nil set contains nothing.
func (s *ExclusionSet) Contains(d Date) bool {
	if s == nil {
		return false
	}
	_, ok := s.keys[d.Key()]
	return ok
}

// Add inserts d. It returns ErrAlreadyExcluded instead of silently doing
// nothing when d is already present; callers wanting "exclude if absent"
// check Contains first. A nil set is read-only and returns ErrNilExclusionSet.
func (s *ExclusionSet) Add(d Date) error {
	if s == nil {
		return ErrNilExclusionSet
	}
	k := d.Key()
	if _, ok := s.keys[k]; ok {
		return ErrAlreadyExcluded
	}
	if s.keys == nil {
		s.keys = make(map[DateKey]struct{})
	}
	s.keys[k] = struct{}{}
	return nil
}

func (s *ExclusionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Dates returns the excluded dates in ascending order.
func (s *ExclusionSet) Dates() []Date {
	if s == nil {
		return nil
	}
	keys := make([]DateKey, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, DateKey.Compare)

	dates := make([]Date, len(keys))
	for i, k := range keys {
		dates[i] = k.Date()
	}
	return dates
}

// Clone returns an independent copy. Cloning nil yields nil.
func (s *ExclusionSet) Clone() *ExclusionSet {
	if s == nil {
		return nil
	}
	c := &ExclusionSet{keys: make(map[DateKey]struct{}, len(s.keys))}
	for k := range s.keys {
		c.keys[k] = struct{}{}
	}
	return c
}
