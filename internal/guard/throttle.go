package guard

import (
	"sync"
	"time"
)

// ThrottleWindow is the per-user cool-down during which a second request
// is rejected.
const ThrottleWindow = 12 * time.Second

// ThrottleGuard is a blunt per-user concurrency limiter: at most one admitted
// request per user per window. It exists to stop duplicate agent invocations
// from rapid repeated taps, not to rate-limit traffic volume.
//
// State is process-local only; a restart resets throttling, which is
// acceptable at a seconds-scale window.
type ThrottleGuard struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	running map[string]time.Time
}

// NewThrottleGuard creates a throttle guard with the default window.
func NewThrottleGuard() *ThrottleGuard {
	return &ThrottleGuard{
		window:  ThrottleWindow,
		now:     time.Now,
		running: make(map[string]time.Time),
	}
}

// TryAdmit reports whether userID may proceed. An admitted user occupies the
// window; a throttled call does not refresh the existing record.
func (g *ThrottleGuard) TryAdmit(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for u, ts := range g.running {
		if now.Sub(ts) > g.window {
			delete(g.running, u)
		}
	}

	if ts, ok := g.running[userID]; ok && now.Sub(ts) <= g.window {
		return false
	}
	g.running[userID] = now
	return true
}
