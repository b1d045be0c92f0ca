/*
Package location shares the user's position with the room and keeps the roster of
companion locations.

This file defines the Roster: derived state rebuilt from the backend snapshot and then
updated incrementally from the live channel, one entry per nickname, latest wins.
*/
package location

import (
	"cmp"
	"slices"
	"sync"
)

// CompanionLocation is the last known position of one room member.
type CompanionLocation struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	Nickname         string  `json:"nickname"`
	ProfileImagePath string  `json:"profileImagePath,omitempty"`
}

// Roster maps nickname to the latest known location.
type Roster struct {
	mu      sync.RWMutex
	entries map[string]CompanionLocation
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{entries: make(map[string]CompanionLocation)}
}

// Reset replaces the roster with a snapshot. A nil snapshot empties it.
func (r *Roster) Reset(snapshot []CompanionLocation) {
	entries := make(map[string]CompanionLocation, len(snapshot))
	for _, loc := range snapshot {
		if loc.Nickname == "" {
			continue
		}
		entries[loc.Nickname] = loc
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
}

// Apply records loc as the latest position of its nickname. Entries without a
// nickname are ignored and reported as not applied.
func (r *Roster) Apply(loc CompanionLocation) bool {
	if loc.Nickname == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[loc.Nickname]; ok && loc.ProfileImagePath == "" {
		loc.ProfileImagePath = prev.ProfileImagePath
	}
	r.entries[loc.Nickname] = loc
	return true
}

// Get returns the location of nickname, if known.
func (r *Roster) Get(nickname string) (CompanionLocation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.entries[nickname]
	return loc, ok
}

// Len returns the number of distinct members on the roster.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns the roster sorted by nickname.
func (r *Roster) Snapshot() []CompanionLocation {
	r.mu.RLock()
	out := make([]CompanionLocation, 0, len(r.entries))
	for _, loc := range r.entries {
		out = append(out, loc)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b CompanionLocation) int {
		return cmp.Compare(a.Nickname, b.Nickname)
	})
	return out
}
