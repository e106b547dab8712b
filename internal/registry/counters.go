package registry

import (
	"fmt"
	"sync"

	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
)

// TargetCounters are the live numbers of one target. Total only grows;
// Active equals the size of the target's membership set.
type TargetCounters struct {
	Target   string `json:"target"`
	Active   int    `json:"active"`
	Total    int    `json:"total"`
	Rejected int    `json:"rejected"`
	Errored  int    `json:"errored"`
}

// Counters tracks per-target activity of short-lived workers. Membership
// and counters change together under one lock so a snapshot never sees an
// increment without its paired total or a removal without its decrement.
type Counters struct {
	mu      sync.Mutex
	order   []string
	targets map[string]*TargetCounters
	members map[string]map[lifecycle.Identity]struct{}
}

// NewCounters pre-registers targets so they show up before any traffic.
func NewCounters(targets ...string) *Counters {
	c := &Counters{
		targets: make(map[string]*TargetCounters),
		members: make(map[string]map[lifecycle.Identity]struct{}),
	}
	for _, t := range targets {
		c.ensureLocked(t)
	}
	return c
}

func (c *Counters) ensureLocked(target string) *TargetCounters {
	tc, ok := c.targets[target]
	if !ok {
		tc = &TargetCounters{Target: target}
		c.targets[target] = tc
		c.members[target] = make(map[lifecycle.Identity]struct{})
		c.order = append(c.order, target)
	}
	return tc
}

// Begin adds id to its target's membership and bumps Active and Total.
// A worker counts from the moment it is launched, before its start delay.
func (c *Counters) Begin(id lifecycle.Identity, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tc := c.ensureLocked(id.Target)
	if _, ok := c.members[id.Target][id]; ok {
		return fmt.Errorf("%w: %s already active", ErrInvalidTransition, id)
	}
	c.members[id.Target][id] = struct{}{}
	tc.Active++
	tc.Total++
	return nil
}

// Transition tallies Rejected and Errored outcomes. Other states leave
// the counters untouched.
func (c *Counters) Transition(id lifecycle.Identity, to lifecycle.State, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tc, ok := c.targets[id.Target]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
	}
	if _, ok := c.members[id.Target][id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
	}
	switch to {
	case lifecycle.Rejected:
		tc.Rejected++
	case lifecycle.Errored:
		tc.Errored++
	}
	return nil
}

// End drops id from its target's membership and decrements Active in the
// same critical section. Unknown identities are ignored.
func (c *Counters) End(id lifecycle.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	members, ok := c.members[id.Target]
	if !ok {
		return
	}
	if _, ok := members[id]; !ok {
		return
	}
	delete(members, id)
	c.targets[id.Target].Active--
}

// Active returns the current active count of target.
func (c *Counters) Active(target string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tc, ok := c.targets[target]; ok {
		return tc.Active
	}
	return 0
}

// Snapshot copies every target's counters in registration order.
func (c *Counters) Snapshot() []TargetCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]TargetCounters, 0, len(c.order))
	for _, t := range c.order {
		result = append(result, *c.targets[t])
	}
	return result
}
