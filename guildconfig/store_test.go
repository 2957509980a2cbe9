package guildconfig

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guardianbot/guardian/bytestore"
	"github.com/guardianbot/guardian/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	backing, err := bytestore.New(&config.Storage{
		Type: "local",
		Path: t.TempDir(),
	})
	require.NoError(t, err)

	return NewStore(zap.NewNop(), backing)
}

func TestGetMissingGuildReturnsDefaults(t *testing.T) {
	s := testStore(t)

	cfg := s.Get(context.Background(), "guild-1")

	assert.False(t, cfg.AntiSpam.Enabled)
	assert.Equal(t, 3, cfg.AntiSpam.HeatThreshold)
	assert.Equal(t, 5, cfg.RaidControl.JoinLimit)
	assert.Equal(t, 30, cfg.RaidControl.WindowSeconds)
	assert.Equal(t, 7, cfg.RaidControl.JoinGate.MinAccountAgeDays)
	assert.Equal(t, 24, cfg.Tickets.AutoCloseHours)
	assert.NotNil(t, cfg.Stats.ViolationCounts)
	assert.NotNil(t, cfg.ChannelRestrictions)
}

func TestSaveGetRoundTripIsByteStable(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	cfg := s.Get(ctx, "guild-1")
	cfg.AntiSpam.Enabled = true
	cfg.ContentFilter.BannedPhrases = NewStringSet("zeta", "alpha", "mu")
	require.True(t, s.Save(ctx, "guild-1", cfg))

	first, err := s.Backing.Read(ctx, "guilds", "guild-1.json")
	require.NoError(t, err)

	// read back and re-save without modification
	require.True(t, s.Save(ctx, "guild-1", s.Get(ctx, "guild-1")))

	second, err := s.Backing.Read(ctx, "guilds", "guild-1.json")
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestSaveClampsThresholds(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	cfg := s.Get(ctx, "guild-1")
	cfg.AntiSpam.HeatThreshold = 99
	cfg.RaidControl.JoinLimit = 0
	cfg.RaidControl.WindowSeconds = 100000
	require.True(t, s.Save(ctx, "guild-1", cfg))

	loaded := s.Get(ctx, "guild-1")
	assert.Equal(t, 10, loaded.AntiSpam.HeatThreshold)
	assert.Equal(t, 2, loaded.RaidControl.JoinLimit)
	assert.Equal(t, 600, loaded.RaidControl.WindowSeconds)
}

func TestGetMergesPartialRecordOverDefaults(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	partial := `{"anti_spam":{"enabled":true,"heat_threshold":5}}`
	require.NoError(t, s.Backing.Save(ctx, "guilds", "guild-1.json", bytes.NewBufferString(partial)))

	cfg := s.Get(ctx, "guild-1")

	assert.True(t, cfg.AntiSpam.Enabled)
	assert.Equal(t, 5, cfg.AntiSpam.HeatThreshold)
	// everything the record omitted keeps its default
	assert.Equal(t, 2000, cfg.AntiSpam.CharacterLimit)
	assert.Equal(t, 5, cfg.RaidControl.JoinLimit)
	assert.Equal(t, 24, cfg.Tickets.AutoCloseHours)
}

func TestGetQuarantinesCorruptRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Backing.Save(ctx, "guilds", "guild-1.json", bytes.NewBufferString("{{{{not json")))

	cfg := s.Get(ctx, "guild-1")
	assert.Equal(t, 3, cfg.AntiSpam.HeatThreshold) // defaults

	quarantined, err := s.Backing.List(ctx, "quarantine/guilds")
	require.NoError(t, err)
	assert.Len(t, quarantined, 1)
}

func TestGetQuarantinesOversizedRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	huge := `{"pad":"` + strings.Repeat("x", maxRecordSize) + `"}`
	require.NoError(t, s.Backing.Save(ctx, "guilds", "guild-1.json", bytes.NewBufferString(huge)))

	cfg := s.Get(ctx, "guild-1")
	assert.False(t, cfg.AntiSpam.Enabled)

	quarantined, err := s.Backing.List(ctx, "quarantine/guilds")
	require.NoError(t, err)
	assert.Len(t, quarantined, 1)
}

func TestWithLockSerializesStatUpdates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := s.WithLock("guild-1", func() error {
				cfg := s.Get(ctx, "guild-1")
				cfg.Stats.ActionsToday++
				require.True(t, s.Save(ctx, "guild-1", cfg))
				return nil
			})
			require.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, n, s.Get(ctx, "guild-1").Stats.ActionsToday)
}

func TestListGuilds(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.True(t, s.Save(ctx, "guild-1", Default()))
	require.True(t, s.Save(ctx, "guild-2", Default()))

	guilds, err := s.ListGuilds(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"guild-1", "guild-2"}, guilds)
}

func TestStringSetMarshalIsSorted(t *testing.T) {
	set := NewStringSet("zeta", "alpha", "mu")

	data, err := set.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["alpha","mu","zeta"]`, string(data))

	var decoded StringSet
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, decoded.Has("mu"))
	assert.False(t, decoded.Has("omega"))
}
