// Package shutdown implements the Shutdown Guard (C10): a single object
// owning a shutting-down flag and the live set of tracked child
// processes, so a SIGINT/SIGTERM cleanly kills every in-flight agent
// before the process exits.
//
// The signal.Notify(os.Interrupt, syscall.SIGTERM) wiring mirrors
// cmd/vc/execute.go's graceful-shutdown setup in the teacher repo,
// generalized from "stop one executor" to "kill every tracked child and
// let the outer loop observe isShuttingDown() at its next cooperative
// boundary."
package shutdown

import (
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/steveyegge/ouroboros/internal/ouro/spawn"
)

// ExitInterrupt and ExitTerminate are the process exit codes spec.md's
// external interfaces section assigns to the two signal kinds.
const (
	ExitInterrupt = 130
	ExitTerminate = 143
)

// Notifier is the narrow logging/rendering surface the guard pushes its
// user-visible shutdown notice to. A nil Notifier is valid; the notice is
// then skipped.
type Notifier interface {
	Notice(message string)
}

// Guard tracks live children and exposes a cooperative isShuttingDown
// probe for the Loop Controller.
type Guard struct {
	mu       sync.Mutex
	children map[spawn.ChildHandle]struct{}
	shutdown bool
	signal   os.Signal

	notifier Notifier
	sigCh    chan os.Signal
}

// New returns a Guard with no tracked children and shutdown handling not
// yet armed.
func New(notifier Notifier) *Guard {
	return &Guard{
		children: make(map[spawn.ChildHandle]struct{}),
		notifier: notifier,
	}
}

// Arm registers the process's signal handlers and starts the background
// goroutine that runs Trigger on the first interrupt or terminate signal.
// Call once, near process start.
func (g *Guard) Arm() {
	g.sigCh = make(chan os.Signal, 1)
	signal.Notify(g.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-g.sigCh
		if !ok {
			return
		}
		g.Trigger(sig)
	}()
}

// TrackingCallback returns a function suitable for one spawn.Run call's
// OnChildChange: spawn.Run first calls it with the live handle, then with
// nil once that child's output streams are drained. The closure
// remembers which handle it registered so the nil call untracks exactly
// that one, never another slot's child.
func (g *Guard) TrackingCallback() func(spawn.ChildHandle) {
	var current spawn.ChildHandle
	return func(h spawn.ChildHandle) {
		if current != nil {
			g.Untrack(current)
		}
		current = h
		if h != nil {
			g.Track(h)
		}
	}
}

// Track registers h as a live child. Pair with Untrack.
func (g *Guard) Track(h spawn.ChildHandle) {
	if h == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.children[h] = struct{}{}
}

// Untrack removes h from the live set.
func (g *Guard) Untrack(h spawn.ChildHandle) {
	if h == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.children, h)
}

// IsShuttingDown is the probe the Loop Controller polls between
// iterations and during retry/pause countdowns.
func (g *Guard) IsShuttingDown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shutdown
}

// Trigger runs the shutdown sequence: clear the tracked set, log, and kill
// every child that was tracked (see killChild). No SIGTERM is sent and no
// platform task-kill utility is used, so grandchildren of a killed child
// are not signalled. Idempotent: a second call is a no-op.
func (g *Guard) Trigger(sig os.Signal) {
	g.mu.Lock()
	if g.shutdown {
		g.mu.Unlock()
		return
	}
	g.shutdown = true
	g.signal = sig
	children := make([]spawn.ChildHandle, 0, len(g.children))
	for h := range g.children {
		children = append(children, h)
	}
	g.children = make(map[spawn.ChildHandle]struct{})
	g.mu.Unlock()

	if g.notifier != nil {
		g.notifier.Notice("received " + sig.String() + ", cleaning up…")
	}

	for _, h := range children {
		killChild(h)
	}
}

// killChild calls Kill, and on non-Windows platforms waits 300ms and calls
// Kill a second time whether or not the process is still alive. ChildHandle only
// exposes Kill, which on Unix is SIGKILL; the teacher's repo-wide
// precedent of "try graceful, then force" is honored via the grace
// window even though the handle itself has no separate terminate call.
func killChild(h spawn.ChildHandle) {
	if h == nil {
		return
	}
	_ = h.Kill()
	if runtime.GOOS != "windows" {
		time.Sleep(300 * time.Millisecond)
		_ = h.Kill()
	}
}

// ExitCode maps the triggering signal to the process exit code spec.md's
// external interfaces section specifies: 130 for interrupt, 143 for
// terminate. Returns 0 if Trigger was never called.
func (g *Guard) ExitCode() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.signal == nil {
		return 0
	}
	if g.signal == syscall.SIGTERM {
		return ExitTerminate
	}
	return ExitInterrupt
}

// Finalize performs normal-exit cleanup. Idempotent: safe to call even
// when Trigger already ran.
func (g *Guard) Finalize() {
	g.mu.Lock()
	if g.sigCh != nil {
		signal.Stop(g.sigCh)
	}
	g.mu.Unlock()
}
