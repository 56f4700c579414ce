package ranking

import (
	"context"
	"sync"
	"sync/atomic"
)

// Gate tracks whether the client connection is still usable and whether
// upstream pre-checks have completed. One gate is shared by every task of a
// single request; its lifecycle spans one client connection.
type Gate struct {
	alive     atomic.Bool
	preChecks chan struct{}
	once      sync.Once
}

// NewGate returns a gate that is alive with pre-checks pending.
func NewGate() *Gate {
	g := &Gate{preChecks: make(chan struct{})}
	g.alive.Store(true)
	return g
}

// Alive reports whether deliveries may still be attempted.
func (g *Gate) Alive() bool {
	return g.alive.Load()
}

// MarkDead records a transport failure. A dead gate never turns alive again.
func (g *Gate) MarkDead() {
	g.alive.Store(false)
}

// FinishPreChecks signals that upstream validation completed. Safe to call
// more than once; only the first call has effect.
func (g *Gate) FinishPreChecks() {
	g.once.Do(func() { close(g.preChecks) })
}

// WaitPreChecks blocks the calling task until pre-checks complete or ctx is
// done. Sibling tasks are not blocked.
func (g *Gate) WaitPreChecks(ctx context.Context) error {
	select {
	case <-g.preChecks:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
