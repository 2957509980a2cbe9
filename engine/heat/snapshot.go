package heat

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Heat state is transient and rebuildable from zero, but a snapshot lets it
// survive a process restart within a bounded recency window. Entries idle for
// longer than restoreWindow are dropped on restore since decay would have
// zeroed them anyway.
const restoreWindow = time.Hour

type snapshotEntry struct {
	GuildID     string    `msgpack:"g"`
	ActorID     string    `msgpack:"a"`
	Heat        int       `msgpack:"h"`
	LastMessage time.Time `msgpack:"t"`
	Recent      []string  `msgpack:"r"`
}

type snapshotData struct {
	TakenAt time.Time       `msgpack:"at"`
	Entries []snapshotEntry `msgpack:"e"`
}

// Snapshot serializes all tracked actor state.
func (t *Tracker) Snapshot() ([]byte, error) {
	data := snapshotData{
		TakenAt: t.Now(),
	}

	for _, key := range t.states.Keys() {
		st, ok := t.states.Peek(key)
		if !ok {
			continue
		}

		st.mu.Lock()
		entry := snapshotEntry{
			GuildID:     key.GuildID,
			ActorID:     key.ActorID,
			Heat:        st.heat,
			LastMessage: st.lastMessage,
			Recent:      append([]string(nil), st.recent...),
		}
		st.mu.Unlock()

		data.Entries = append(data.Entries, entry)
	}

	return msgpack.Marshal(data)
}

// Restore loads a snapshot, discarding entries outside the recency window.
func (t *Tracker) Restore(data []byte) error {
	var snap snapshotData

	err := msgpack.Unmarshal(data, &snap)

	if err != nil {
		return err
	}

	cutoff := t.Now().Add(-restoreWindow)

	for _, entry := range snap.Entries {
		if entry.LastMessage.Before(cutoff) {
			continue
		}

		t.states.Add(actorKey{GuildID: entry.GuildID, ActorID: entry.ActorID}, &actorState{
			heat:        entry.Heat,
			lastMessage: entry.LastMessage,
			recent:      entry.Recent,
		})
	}

	return nil
}
