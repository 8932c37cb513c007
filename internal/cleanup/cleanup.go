// Package cleanup implements the scoped teardown coordinator (spec.md
// 4.K / 9): a LIFO stack of finalisers installed before any resource
// acquisition, run in order on every exit path. Running it twice is
// safe — each finaliser is expected to tolerate already-removed state,
// matching spec.md's idempotent-cleanup invariant (testable property 8).
package cleanup

import (
	"sync"

	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("checkpoint.cleanup")

// Finalizer is a no-argument teardown step.
type Finalizer func()

// Coordinator runs its registered finalisers in LIFO order, at most the
// effects of running it multiple times are identical to running it once
// provided each Finalizer is itself idempotent.
type Coordinator struct {
	mu   sync.Mutex
	done bool
	fns  []Finalizer
}

// New returns a Coordinator with no finalisers registered.
func New() *Coordinator {
	return &Coordinator{}
}

// Register pushes fn onto the LIFO stack. Call this immediately after
// acquiring the resource fn tears down.
func (c *Coordinator) Register(fn Finalizer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

// Run executes all registered finalisers in LIFO order. Safe to call
// more than once; subsequent calls are no-ops.
func (c *Coordinator) Run() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	fns := c.fns
	c.fns = nil
	c.done = true
	c.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Warningf("finaliser panicked: %v", r)
				}
			}()
			fns[i]()
		}()
	}
}
