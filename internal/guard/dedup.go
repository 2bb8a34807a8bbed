// Package guard implements admission control for inbound webhook events:
// idempotency-key deduplication and per-user throttling. Both are owned by
// the webhook intake and injected, never ambient state.
package guard

import (
	"log/slog"
	"sync"
	"time"
)

// DedupTTL is how long a dedup key suppresses re-processing of the same event.
const DedupTTL = 300 * time.Second

// DedupStore is the durable side of the dedup guard, satisfied by *store.Store.
type DedupStore interface {
	PurgeDedupBefore(cutoff time.Time) error
	InsertDedup(key string, at time.Time) (bool, error)
	DedupSeenAt(key string) (time.Time, bool, error)
	TouchDedup(key string, at time.Time) error
}

// DedupGuard reports whether an idempotency key has been seen within the TTL.
// It writes through to the durable store; on any store failure it degrades to
// an in-process map with identical semantics, so a store outage never fails
// the request (at the cost of a restart-scale durability gap).
type DedupGuard struct {
	store DedupStore
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	local map[string]time.Time
}

// NewDedupGuard creates a dedup guard backed by the given store.
// A nil store means in-memory only.
func NewDedupGuard(s DedupStore) *DedupGuard {
	return &DedupGuard{
		store: s,
		ttl:   DedupTTL,
		now:   time.Now,
		local: make(map[string]time.Time),
	}
}

// Seen reports whether key is a duplicate, recording it as seen if not.
// A key is a duplicate iff a record exists with now-seen_at <= TTL;
// expired records are refreshed and report not-duplicate.
func (g *DedupGuard) Seen(key string) bool {
	now := g.now()

	if g.store != nil {
		dup, err := g.seenDurable(key, now)
		if err == nil {
			return dup
		}
		slog.Warn("dedup store failed, using in-memory fallback", "key", key, "error", err)
	}

	return g.seenLocal(key, now)
}

func (g *DedupGuard) seenDurable(key string, now time.Time) (bool, error) {
	// Bounded lazy cleanup instead of a background sweep.
	if err := g.store.PurgeDedupBefore(now.Add(-g.ttl)); err != nil {
		return false, err
	}

	inserted, err := g.store.InsertDedup(key, now)
	if err != nil {
		return false, err
	}
	if inserted {
		return false, nil
	}

	seenAt, ok, err := g.store.DedupSeenAt(key)
	if err != nil {
		return false, err
	}
	if !ok {
		// Row vanished between insert and read; treat as first sighting.
		return false, g.store.TouchDedup(key, now)
	}
	if now.Sub(seenAt) <= g.ttl {
		return true, nil
	}
	return false, g.store.TouchDedup(key, now)
}

func (g *DedupGuard) seenLocal(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for k, ts := range g.local {
		if now.Sub(ts) > g.ttl {
			delete(g.local, k)
		}
	}

	if ts, ok := g.local[key]; ok && now.Sub(ts) <= g.ttl {
		return true
	}
	g.local[key] = now
	return false
}
