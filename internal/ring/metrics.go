package ring

import (
	"context"
	"sync/atomic"
	"time"

	"icering/internal/auditlog"
	"icering/internal/flavour"
	"icering/internal/rwlock"
)

// inventoryCache mirrors the most recently observed FlavourToken servings
// per flavour, so httpapi's /metrics handler and SnapshotNow can read a
// consistent snapshot without ever touching robot state owned by the
// event-loop goroutine. Guarded by rwlock.RWLock rather than sync.RWMutex,
// per spec.md §4.4/§3.6: this is the one place in the ring that exercises it.
type inventoryCache struct {
	lock   *rwlock.RWLock
	values map[flavour.Flavour]uint
}

func newInventoryCache(startingIcecream uint) *inventoryCache {
	values := make(map[flavour.Flavour]uint, len(flavour.All()))
	for _, f := range flavour.All() {
		values[f] = startingIcecream
	}
	return &inventoryCache{lock: rwlock.New(), values: values}
}

func (c *inventoryCache) set(f flavour.Flavour, servings uint) {
	c.lock.Lock()
	c.values[f] = servings
	c.lock.Unlock()
}

func (c *inventoryCache) snapshot() map[flavour.Flavour]uint {
	c.lock.RLock()
	out := make(map[flavour.Flavour]uint, len(c.values))
	for f, v := range c.values {
		out[f] = v
	}
	c.lock.RUnlock()
	return out
}

// StartupError reports why Run failed to bind its listeners, if it did.
// Satisfies httpapi.ReadinessProvider.
func (r *Robot) StartupError() error {
	r.startupMu.Lock()
	defer r.startupMu.Unlock()
	return r.startupErr
}

// Uptime reports how long this robot has been running. Satisfies
// httpapi.ReadinessProvider.
func (r *Robot) Uptime() time.Duration {
	r.startupMu.Lock()
	startedAt := r.startedAt
	r.startupMu.Unlock()
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt)
}

// ServingsRemaining returns a snapshot of the latest servings observed per
// flavour. Satisfies httpapi.RingMetrics.
func (r *Robot) ServingsRemaining() map[flavour.Flavour]uint {
	return r.inventory.snapshot()
}

// TokensObserved reports how many tokens have genuinely arrived from prev
// over this robot's lifetime (bootstrap synthesis and healing resends are
// not counted, since no peer actually sent them). Satisfies
// httpapi.RingMetrics.
func (r *Robot) TokensObserved() uint64 {
	return atomic.LoadUint64(&r.tokensObserved)
}

// RobotsConnected reports RobotCount once this robot has completed its
// first FindNext, and 0 beforehand. A robot only ever knows its own next,
// not the live membership of the whole ring, so this is a proxy for "the
// ring has formed from this robot's point of view" rather than an exact
// count of live peers.
func (r *Robot) RobotsConnected() int {
	if r.bootstrapped.Load() {
		return int(r.cfg.RobotCount)
	}
	return 0
}

// SnapshotNow persists an immediate ring-state snapshot to this robot's
// audit trail, if one is configured. Satisfies httpapi.AuditSnapshotter,
// so it can be wired directly into httpapi.Options.Audit.
func (r *Robot) SnapshotNow(ctx context.Context) (string, error) {
	if r.audit == nil {
		return "", nil
	}
	servings := make(map[string]uint, len(flavour.All()))
	for f, n := range r.ServingsRemaining() {
		servings[f.String()] = n
	}
	return r.audit.Snapshot(ctx, auditlog.Snapshot{
		RobotID:         r.cfg.ID,
		TokensObserved:  r.TokensObserved(),
		RobotsConnected: r.RobotsConnected(),
		Servings:        servings,
	})
}
