// Package registry holds the state shared between workers and the monitor.
// Every mutation and every snapshot goes through a single mutex per
// registry and no I/O happens while it is held.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
)

var (
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrUnknownIdentity   = errors.New("unknown worker identity")
)

// Entry is the current lifecycle of one worker. Generation counts sessions
// opened under the same identity by a reconnecting worker.
type Entry struct {
	Identity   lifecycle.Identity `json:"identity"`
	State      lifecycle.State    `json:"state"`
	Generation int                `json:"generation"`
	Reason     string             `json:"reason,omitempty"`
	Since      time.Time          `json:"since"`
}

// States maps worker identity to lifecycle entry. Keys are never removed.
type States struct {
	mu      sync.RWMutex
	entries map[lifecycle.Identity]*Entry
	now     func() time.Time
}

func NewStates() *States {
	return &States{
		entries: make(map[lifecycle.Identity]*Entry),
		now:     time.Now,
	}
}

// Begin registers id in Connecting. An identity already present may only be
// restarted with a higher generation once its previous session is terminal.
func (s *States) Begin(id lifecycle.Identity, generation int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[id]; ok {
		if generation <= existing.Generation || !existing.State.IsTerminal() {
			return fmt.Errorf("%w: restart %s gen %d from %s gen %d",
				ErrInvalidTransition, id, generation, existing.State, existing.Generation)
		}
	}
	s.entries[id] = &Entry{
		Identity:   id,
		State:      lifecycle.Connecting,
		Generation: generation,
		Since:      s.now(),
	}
	return nil
}

// Transition moves id forward. Backward or skipping moves are refused and
// leave the entry untouched.
func (s *States) Transition(id lifecycle.Identity, to lifecycle.State, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
	}
	if !lifecycle.CanTransition(e.State, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, e.State, to)
	}
	e.State = to
	e.Reason = reason
	e.Since = s.now()
	return nil
}

// End marks a voluntarily finished session Closed. Sessions that never got
// past Pending keep their last state.
func (s *States) End(id lifecycle.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok && e.State == lifecycle.Active {
		e.State = lifecycle.Closed
		e.Reason = ""
		e.Since = s.now()
	}
}

func (s *States) Get(id lifecycle.Identity) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (s *States) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of every entry ordered by identity.
func (s *States) Snapshot() []Entry {
	s.mu.RLock()
	result := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		result = append(result, *e)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Identity.Less(result[j].Identity)
	})
	return result
}

// CountByState tallies the given entries.
func CountByState(entries []Entry) map[lifecycle.State]int {
	counts := make(map[lifecycle.State]int, len(lifecycle.All))
	for _, e := range entries {
		counts[e.State]++
	}
	return counts
}
