// internal/booking/selection.go
package booking

import "fmt"

// Toggle is the target state of a selection toggle.
type Toggle string

const (
	Select   Toggle = "select"
	Deselect Toggle = "deselect"
)

// ParseToggle validates a toggle action received from a caller.
func ParseToggle(s string) (Toggle, error) {
	switch Toggle(s) {
	case Select, Deselect:
		return Toggle(s), nil
	default:
		return "", fmt.Errorf("unknown selection action %q", s)
	}
}

// SelectionSet is the set of book ids queued for the next batch reservation.
// Iteration follows insertion order. The zero value is an empty set.
type SelectionSet struct {
	ids   []string
	index map[string]struct{}
}

// NewSelectionSet returns a set holding ids, duplicates dropped.
func NewSelectionSet(ids ...string) *SelectionSet {
	s := &SelectionSet{}
	for _, id := range ids {
		s.Toggle(id, Select)
	}
	return s
}

// Toggle adds id for Select and removes it for Deselect. Selecting a present
// id or deselecting an absent one is a no-op. It reports whether the set
// changed.
func (s *SelectionSet) Toggle(id string, target Toggle) bool {
	switch target {
	case Select:
		if s.Contains(id) {
			return false
		}
		if s.index == nil {
			s.index = make(map[string]struct{})
		}
		s.index[id] = struct{}{}
		s.ids = append(s.ids, id)
		return true
	case Deselect:
		return s.Remove(id) > 0
	default:
		return false
	}
}

func (s *SelectionSet) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[id]
	return ok
}

func (s *SelectionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns the selected ids in insertion order.
func (s *SelectionSet) IDs() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Remove drops every given id and returns how many were present.
func (s *SelectionSet) Remove(ids ...string) int {
	removed := 0
	for _, id := range ids {
		if !s.Contains(id) {
			continue
		}
		delete(s.index, id)
		removed++
	}
	if removed == 0 {
		return 0
	}
	kept := s.ids[:0]
	for _, id := range s.ids {
		if _, ok := s.index[id]; ok {
			kept = append(kept, id)
		}
	}
	clear(s.ids[len(kept):])
	s.ids = kept
	return removed
}

func (s *SelectionSet) Clear() {
	s.ids = nil
	s.index = nil
}

// Clone returns an independent copy of s.
func (s *SelectionSet) Clone() *SelectionSet {
	return NewSelectionSet(s.IDs()...)
}
