// Package gate implements the Staged-Launch Gate (C6): the mechanism that
// defers slot k+1's launch until slot k has either picked a task or
// exited. It generalizes the "shared waiter list plus monotone counter"
// strategy spec.md's design notes call out, using a broadcasting
// sync.Cond rather than per-waiter channels so a single release wakes
// every satisfied waiter in one step.
package gate

import "sync"

// Gate maintains a monotonically increasing "picked" counter. Slot k+1
// calls WaitForPicked(k) before launching; slot k calls
// ReleasePickedReadiness exactly once, whether it picked a task or simply
// exited without one.
type Gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	picked int
	closed bool
}

// New returns a Gate with its counter at zero.
func New() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// WaitForPicked blocks until the picked counter reaches at least target or
// the gate is closed. Returns immediately if the counter already satisfies
// target. Slot 1 never calls this.
func (g *Gate) WaitForPicked(target int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.picked < target && !g.closed {
		g.cond.Wait()
	}
}

// Close unblocks every current and future waiter unconditionally. The
// Loop Controller's runIteration defers it, so it runs once the
// iteration's slots have all returned.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cond.Broadcast()
}

// ReleasePickedReadiness atomically increments the counter and wakes every
// waiter whose target has now been satisfied. Idempotent release-ordering
// is the caller's responsibility: each slot must call this exactly once.
func (g *Gate) ReleasePickedReadiness() {
	g.mu.Lock()
	g.picked++
	g.mu.Unlock()
	g.cond.Broadcast()
}

// Picked returns the current counter value, for tests and for the
// "picked ≥ k-1 at spawn time" invariant check.
func (g *Gate) Picked() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.picked
}
