// Package ds provides small generic data structures shared by the runtime.
package ds

import (
	"encoding/json"
	"fmt"
)

type StringSet = Set[string]

// Set is an ordered set with O(1) membership testing and insertion-order
// iteration. Behavior composition relies on the stable order when merging
// resource declarations across mixins.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

func (s *Set[T]) String() string {
	return fmt.Sprintf("%v", s.order)
}

// Add adds the given id to the set. No-op if already present. (mutates)
func (s *Set[T]) Add(id T) {
	if s.contains(id) {
		return
	}
	s.items[id] = struct{}{}
	s.order = append(s.order, id)
}

// Len returns the number of elements in the set.
func (s *Set[T]) Len() int { return len(s.items) }

// Remove removes the given ids from the set, preserving the order of the
// remaining elements. (mutates)
func (s *Set[T]) Remove(ids ...T) {
	if len(ids) == 0 {
		return
	}

	toRemove := make(map[T]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.items[id]; ok {
			toRemove[id] = struct{}{}
			delete(s.items, id)
		}
	}
	if len(toRemove) == 0 {
		return
	}

	kept := s.order[:0]
	for _, id := range s.order {
		if _, drop := toRemove[id]; !drop {
			kept = append(kept, id)
		}
	}
	s.order = kept
}

// Contains reports whether id is in the set.
func (s *Set[T]) Contains(id T) bool { return s.contains(id) }

func (s *Set[T]) contains(id T) bool {
	if s.items == nil {
		return false
	}
	_, ok := s.items[id]
	return ok
}

// Values returns the elements in insertion order. The returned slice is a copy.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}

// At returns the i-th element in insertion order.
func (s *Set[T]) At(i int) T { return s.order[i] }

// Clear removes all elements. (mutates)
func (s *Set[T]) Clear() {
	s.items = make(map[T]struct{})
	s.order = nil
}

func (s *Set[T]) MarshalJSON() ([]byte, error) { return json.Marshal(s.order) }

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var vals []T
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	*s = *NewSet(vals...)
	return nil
}

// NewSet creates a set containing the given values.
func NewSet[T comparable](vals ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(vals))}
	for _, v := range vals {
		s.Add(v)
	}
	return s
}
