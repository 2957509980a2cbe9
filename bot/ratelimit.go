package bot

import (
	"sync"
	"time"
)

// The gateway can redeliver an event, and the heat tracker does not
// deduplicate, so the handler gates identical (guild, actor) pairs to one
// evaluation per window.
const observeWindow = 500 * time.Millisecond

type limiterKey struct {
	GuildID string
	ActorID string
}

type observeLimiter struct {
	mu   sync.Mutex
	last map[limiterKey]time.Time
}

func newObserveLimiter() *observeLimiter {
	return &observeLimiter{last: make(map[limiterKey]time.Time)}
}

func (l *observeLimiter) allow(guildID, actorID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := limiterKey{GuildID: guildID, ActorID: actorID}

	if seen, ok := l.last[key]; ok && now.Sub(seen) < observeWindow {
		return false
	}

	// opportunistic prune so the map cannot grow without bound
	if len(l.last) > 50000 {
		for k, seen := range l.last {
			if now.Sub(seen) >= observeWindow {
				delete(l.last, k)
			}
		}
	}

	l.last[key] = now
	return true
}
