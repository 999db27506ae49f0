// Package peers holds the ordered set of live connections serviced by one
// multiplexer goroutine. A Set is not safe for concurrent use; the service
// loop that owns it is its only user.
package peers

import (
	"slices"

	"echoplex/pkg/transport"
)

// Set keeps endpoints in arrival order.
type Set struct {
	entries []transport.Endpoint
}

// Add appends e and returns its position.
func (s *Set) Add(e transport.Endpoint) int {
	s.entries = append(s.entries, e)
	return len(s.entries) - 1
}

func (s *Set) Len() int { return len(s.entries) }

// At returns the endpoint at position i.
func (s *Set) At(i int) transport.Endpoint { return s.entries[i] }

// RemoveFunc drops every endpoint for which drop returns true, keeping the
// remaining ones in order, and returns how many were removed. Removed
// endpoints are not closed.
func (s *Set) RemoveFunc(drop func(transport.Endpoint) bool) int {
	before := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, drop)
	return before - len(s.entries)
}

// CloseAll closes every endpoint and empties the set.
func (s *Set) CloseAll() {
	for _, e := range s.entries {
		_ = e.Close()
	}
	s.entries = nil
}
