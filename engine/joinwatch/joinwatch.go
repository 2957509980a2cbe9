// Package joinwatch detects raid-like join bursts per guild and applies the
// per-actor join gate (account age, avatar presence).
package joinwatch

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/guardianbot/guardian/guildconfig"
)

// GateReason explains why the join gate rejected an actor.
type GateReason string

const (
	ReasonNewAccount GateReason = "new_account"
	ReasonNoAvatar   GateReason = "no_avatar"
)

// Result is what one observed join produced. A mass join takes precedence
// over any gate rejection: a raid is a guild-wide emergency signal and must
// surface even when the individual joiner would also have failed the gate.
type Result struct {
	MassJoin   bool
	JoinCount  int
	GateReason GateReason // empty when the gate passed or was not reached
}

const (
	// DefaultCapacity bounds tracked guilds; least recently active beyond
	// it are evicted.
	DefaultCapacity = 1000

	// staleAfter is how long a guild's window may sit untouched before the
	// sweep drops it entirely.
	staleAfter = 10 * time.Minute
)

type joinEntry struct {
	ActorID          string
	JoinedAt         time.Time
	AccountAgeAtJoin time.Duration
}

type joinWindow struct {
	mu         sync.Mutex
	entries    []joinEntry
	span       time.Duration // configured window at last observe
	lastActive time.Time
}

// Detector owns all per-guild join windows.
type Detector struct {
	// Now is the clock; replaceable in tests.
	Now func() time.Time

	windows *lru.Cache[string, *joinWindow]
}

func NewDetector() (*Detector, error) {
	return NewDetectorWithCapacity(DefaultCapacity)
}

func NewDetectorWithCapacity(capacity int) (*Detector, error) {
	windows, err := lru.New[string, *joinWindow](capacity)

	if err != nil {
		return nil, err
	}

	return &Detector{
		Now:     time.Now,
		windows: windows,
	}, nil
}

// ObserveJoin records a join and returns the verdict for it.
//
// The sliding-window raid check always runs and always records the join,
// regardless of the gate checks: pruning the window to the configured span,
// appending the new entry and comparing the count against the join limit.
// Only when no raid triggered does the join gate get a say.
func (d *Detector) ObserveJoin(actorID, guildID string, accountCreatedAt time.Time, hasAvatar bool, cfg *guildconfig.GuildConfig) Result {
	now := d.Now()
	span := time.Duration(cfg.RaidControl.WindowSeconds) * time.Second

	w, ok := d.windows.Get(guildID)
	if !ok {
		w = &joinWindow{}
		d.windows.Add(guildID, w)
	}

	w.mu.Lock()

	cutoff := now.Add(-span)
	kept := w.entries[:0]
	for _, e := range w.entries {
		if e.JoinedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}

	w.entries = append(kept, joinEntry{
		ActorID:          actorID,
		JoinedAt:         now,
		AccountAgeAtJoin: now.Sub(accountCreatedAt),
	})
	w.span = span
	w.lastActive = now

	count := len(w.entries)

	w.mu.Unlock()

	if count > cfg.RaidControl.JoinLimit {
		return Result{MassJoin: true, JoinCount: count}
	}

	if cfg.RaidControl.JoinGate.Enabled {
		minAge := time.Duration(cfg.RaidControl.JoinGate.MinAccountAgeDays) * 24 * time.Hour

		if now.Sub(accountCreatedAt) < minAge {
			return Result{GateReason: ReasonNewAccount}
		}

		if cfg.RaidControl.JoinGate.RequireAvatar && !hasAvatar {
			return Result{GateReason: ReasonNoAvatar}
		}
	}

	return Result{}
}

// Len returns the number of tracked guilds.
func (d *Detector) Len() int {
	return d.windows.Len()
}

// Sweep prunes stale entries from every window and drops windows that have
// gone quiet entirely.
func (d *Detector) Sweep() (dropped int) {
	now := d.Now()

	for _, guildID := range d.windows.Keys() {
		w, ok := d.windows.Peek(guildID)
		if !ok {
			continue
		}

		w.mu.Lock()

		cutoff := now.Add(-w.span)
		kept := w.entries[:0]
		for _, e := range w.entries {
			if e.JoinedAt.After(cutoff) {
				kept = append(kept, e)
			}
		}
		w.entries = kept

		stale := len(w.entries) == 0 && now.Sub(w.lastActive) > staleAfter

		w.mu.Unlock()

		if stale {
			d.windows.Remove(guildID)
			dropped++
		}
	}

	return dropped
}
