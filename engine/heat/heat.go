// Package heat tracks a decaying per-actor "heat" score used for spam
// classification. Heat rises with each suspicious message and cools off
// proportionally to idle time, so a long quiet period wipes more heat than a
// short one.
package heat

import (
	"regexp"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/guardianbot/guardian/guildconfig"
)

const (
	// DefaultDecayPeriod is how much idle time removes one point of heat.
	DefaultDecayPeriod = 10 * time.Second

	// DefaultHeatCap bounds heat so a single burst can never make an actor
	// unrecoverable.
	DefaultHeatCap = 50

	// DefaultIdleTTL is how long an actor may stay idle before the sweep
	// evicts their state.
	DefaultIdleTTL = 5 * time.Minute

	// DefaultCapacity bounds tracked actors across all guilds; the LRU
	// evicts the least recently active beyond it.
	DefaultCapacity = 10000

	// maxRecent bounds the rolling content history used for duplicate
	// detection.
	maxRecent = 10

	rapidRepost = 2 * time.Second
)

// Spam score weights for each independent rule hit.
const (
	scoreDuplicate    = 3
	scoreRapidRepost  = 2
	scoreOverCharacters = 2
	scoreOverEmoji    = 2
	scoreOverMentions = 3
	scoreOverNewlines = 2
)

var (
	emojiPattern   = regexp.MustCompile(`<a?:[^:]+:\d+>`)
	mentionPattern = regexp.MustCompile(`<@[!&]?\d+>`)
)

type actorKey struct {
	GuildID string
	ActorID string
}

type actorState struct {
	mu          sync.Mutex
	heat        int
	lastMessage time.Time
	recent      []string // lowercased, bounded to maxRecent
}

// Tracker owns all per-actor heat state. The decay and bound constants are
// tunable fields, not invariants; zero values fall back to the defaults.
type Tracker struct {
	DecayPeriod time.Duration
	HeatCap     int
	IdleTTL     time.Duration

	// Now is the clock; replaceable in tests.
	Now func() time.Time

	states *lru.Cache[actorKey, *actorState]
}

func NewTracker() (*Tracker, error) {
	return NewTrackerWithCapacity(DefaultCapacity)
}

func NewTrackerWithCapacity(capacity int) (*Tracker, error) {
	states, err := lru.New[actorKey, *actorState](capacity)

	if err != nil {
		return nil, err
	}

	return &Tracker{
		DecayPeriod: DefaultDecayPeriod,
		HeatCap:     DefaultHeatCap,
		IdleTTL:     DefaultIdleTTL,
		Now:         time.Now,
		states:      states,
	}, nil
}

// Observe scores one message for an actor and returns the heat after the
// message plus whether it now meets the guild's spam threshold.
//
// Callers are expected to rate limit duplicate deliveries of the same event
// (one observe per actor/guild pair per ~500ms); the tracker itself does not
// deduplicate.
func (t *Tracker) Observe(actorID, guildID, content string, cfg *guildconfig.GuildConfig) (heatAfter int, triggered bool) {
	key := actorKey{GuildID: guildID, ActorID: actorID}
	now := t.Now()

	st, ok := t.states.Get(key)
	if !ok {
		st = &actorState{lastMessage: now}
		t.states.Add(key, st)
	}

	normalized := strings.ToLower(content)

	st.mu.Lock()
	defer st.mu.Unlock()

	// Proportional cooldown: each full decay period of idle time removes a
	// point of heat.
	elapsed := now.Sub(st.lastMessage)
	if decay := int(elapsed / t.DecayPeriod); decay > 0 {
		st.heat -= decay
		if st.heat < 0 {
			st.heat = 0
		}
	}

	score := 0

	for _, prev := range st.recent {
		if prev == normalized {
			score += scoreDuplicate
			break
		}
	}

	if elapsed < rapidRepost {
		score += scoreRapidRepost
	}

	if len(content) > cfg.AntiSpam.CharacterLimit {
		score += scoreOverCharacters
	}

	if len(emojiPattern.FindAllString(content, -1)) > cfg.AntiSpam.EmojiLimit {
		score += scoreOverEmoji
	}

	if len(mentionPattern.FindAllString(content, -1)) > cfg.AntiSpam.MentionLimit {
		score += scoreOverMentions
	}

	if strings.Count(content, "\n") > cfg.AntiSpam.NewlineLimit {
		score += scoreOverNewlines
	}

	st.heat += score
	if st.heat > t.HeatCap {
		st.heat = t.HeatCap
	}

	st.lastMessage = now
	st.recent = append(st.recent, normalized)
	if len(st.recent) > maxRecent {
		st.recent = st.recent[len(st.recent)-maxRecent:]
	}

	return st.heat, st.heat >= cfg.AntiSpam.HeatThreshold
}

// Clear drops an actor's state after a corrective action so one burst is not
// punished twice.
func (t *Tracker) Clear(actorID, guildID string) {
	t.states.Remove(actorKey{GuildID: guildID, ActorID: actorID})
}

// Len returns the number of tracked actors.
func (t *Tracker) Len() int {
	return t.states.Len()
}

// Sweep evicts actors idle beyond IdleTTL. Locking is per-entry, so an
// in-flight Observe is never blocked for longer than one entry inspection.
func (t *Tracker) Sweep() (evicted int) {
	cutoff := t.Now().Add(-t.IdleTTL)

	for _, key := range t.states.Keys() {
		st, ok := t.states.Peek(key)
		if !ok {
			continue
		}

		st.mu.Lock()
		idle := st.lastMessage.Before(cutoff)
		st.mu.Unlock()

		if idle {
			t.states.Remove(key)
			evicted++
		}
	}

	return evicted
}
