package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guardianbot/guardian/bytestore"
	"github.com/guardianbot/guardian/config"
	"github.com/guardianbot/guardian/engine/classifier"
	"github.com/guardianbot/guardian/engine/heat"
	"github.com/guardianbot/guardian/engine/joinwatch"
	"github.com/guardianbot/guardian/guildconfig"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()

	backing, err := bytestore.New(&config.Storage{
		Type: "local",
		Path: t.TempDir(),
	})
	require.NoError(t, err)

	tracker, err := heat.NewTracker()
	require.NoError(t, err)

	joins, err := joinwatch.NewDetector()
	require.NoError(t, err)

	return &Engine{
		Logger: zap.NewNop(),
		Store:  guildconfig.NewStore(zap.NewNop(), backing),
		Heat:   tracker,
		Joins:  joins,
	}
}

func enableAntiSpam(t *testing.T, e *Engine, guildID string) {
	t.Helper()

	_, err := e.UpdateConfig(context.Background(), guildID, func(cfg *guildconfig.GuildConfig) {
		cfg.AntiSpam.Enabled = true
		cfg.AntiSpam.HeatThreshold = 3
	})
	require.NoError(t, err)
}

func TestEvaluateMessageSpamEscalation(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	enableAntiSpam(t, e, "guild")

	evt := MessageEvent{
		ActorID:   "actor",
		GuildID:   "guild",
		ChannelID: "channel",
		Content:   "buy now buy now",
	}

	// first message only picks up the rapid bonus, below threshold
	res := e.EvaluateMessage(ctx, evt)
	assert.Equal(t, VerdictNone, res.Verdict.Kind)
	assert.Equal(t, ActionNone, res.Action.Kind)

	// second identical message: duplicate + rapid pushes past the threshold
	res = e.EvaluateMessage(ctx, evt)
	assert.Equal(t, VerdictSpam, res.Verdict.Kind)
	assert.GreaterOrEqual(t, res.Verdict.HeatAtTrigger, 5)
	assert.Equal(t, ActionWarn, res.Action.Kind)
	assert.True(t, res.Action.DeleteMessage)
	assert.Equal(t, 1, res.Stats.ActionsToday)

	// heat keeps accumulating across triggers; the fourth message crosses
	// the severe band and escalates to a mute
	res = e.EvaluateMessage(ctx, evt)
	assert.Equal(t, ActionWarn, res.Action.Kind)

	res = e.EvaluateMessage(ctx, evt)
	assert.Equal(t, VerdictSpam, res.Verdict.Kind)
	assert.Greater(t, res.Verdict.HeatAtTrigger, severeHeat)
	assert.Equal(t, ActionMute, res.Action.Kind)
	assert.Equal(t, 10*time.Minute, res.Action.MuteDuration)
	assert.True(t, res.Action.DeleteMessage)

	stats := e.GetConfig(ctx, "guild").Stats
	assert.Equal(t, 3, stats.ActionsToday)
	assert.Equal(t, 3, stats.ViolationCounts["spam"])
}

func TestEvaluateMessageContentViolation(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.UpdateConfig(ctx, "guild", func(cfg *guildconfig.GuildConfig) {
		cfg.ContentFilter.Enabled = true
		cfg.ContentFilter.Links.Enabled = true
		cfg.ContentFilter.Links.Denylist.Add("evil.example")
	})
	require.NoError(t, err)

	res := e.EvaluateMessage(ctx, MessageEvent{
		ActorID:   "actor",
		GuildID:   "guild",
		ChannelID: "channel",
		Content:   "go to https://evil.example/scam",
	})

	assert.Equal(t, VerdictContentViolation, res.Verdict.Kind)
	assert.Equal(t, []classifier.Violation{classifier.ViolationBlacklistedLink}, res.Verdict.Violations)
	assert.Equal(t, ActionDeleteAndNotify, res.Action.Kind)
	assert.Equal(t, "This link is blocked.", res.Action.Reason)
	assert.Equal(t, 1, res.Stats.ViolationCounts["content"])
}

func TestEvaluateMessageExemptRoleBypassesEverything(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.UpdateConfig(ctx, "guild", func(cfg *guildconfig.GuildConfig) {
		cfg.AntiSpam.Enabled = true
		cfg.AntiSpam.HeatThreshold = 1
		cfg.ContentFilter.Enabled = true
		cfg.ContentFilter.BannedPhrases.Add("buy now")
		cfg.ExemptRoles.Add("role-admin")
	})
	require.NoError(t, err)

	evt := MessageEvent{
		ActorID:    "actor",
		GuildID:    "guild",
		ChannelID:  "channel",
		Content:    "buy now buy now",
		ActorRoles: []string{"role-admin"},
	}

	for i := 0; i < 5; i++ {
		res := e.EvaluateMessage(ctx, evt)
		assert.Equal(t, VerdictNone, res.Verdict.Kind)
		assert.Equal(t, ActionNone, res.Action.Kind)
	}
}

func TestEvaluateMessageSpamShortCircuitsContentCheck(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.UpdateConfig(ctx, "guild", func(cfg *guildconfig.GuildConfig) {
		cfg.AntiSpam.Enabled = true
		cfg.AntiSpam.HeatThreshold = 3
		cfg.ContentFilter.Enabled = true
		cfg.ContentFilter.BannedPhrases.Add("buy now")
	})
	require.NoError(t, err)

	evt := MessageEvent{
		ActorID:   "actor",
		GuildID:   "guild",
		ChannelID: "channel",
		Content:   "buy now buy now",
	}

	// first message is below the spam threshold, so the content check runs
	res := e.EvaluateMessage(ctx, evt)
	assert.Equal(t, VerdictContentViolation, res.Verdict.Kind)

	// duplicate triggers spam, which short-circuits the content check
	res = e.EvaluateMessage(ctx, evt)
	assert.Equal(t, VerdictSpam, res.Verdict.Kind)
	assert.Empty(t, res.Verdict.Violations)

	stats := e.GetConfig(ctx, "guild").Stats
	assert.Equal(t, 1, stats.ViolationCounts["content"])
	assert.Equal(t, 1, stats.ViolationCounts["spam"])
}

func TestEvaluateJoinRaidActivatesPanicMode(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.UpdateConfig(ctx, "guild", func(cfg *guildconfig.GuildConfig) {
		cfg.RaidControl.Enabled = true
		cfg.RaidControl.JoinLimit = 5
		cfg.RaidControl.WindowSeconds = 30
	})
	require.NoError(t, err)

	oldAccount := time.Now().Add(-365 * 24 * time.Hour)

	var res Result
	for i := 0; i < 6; i++ {
		res = e.EvaluateJoin(ctx, JoinEvent{
			ActorID:          fmt.Sprintf("actor-%d", i),
			GuildID:          "guild",
			AccountCreatedAt: oldAccount,
			HasAvatar:        true,
		})
	}

	assert.Equal(t, VerdictMassJoin, res.Verdict.Kind)
	assert.Equal(t, 6, res.Verdict.JoinCount)
	assert.Equal(t, ActionRaidAlert, res.Action.Kind)

	cfg := e.GetConfig(ctx, "guild")
	assert.True(t, cfg.RaidControl.PanicMode)
	require.NotNil(t, cfg.RaidControl.PanicActivatedAt)
	assert.Equal(t, 1, cfg.Stats.ViolationCounts["raid"])
}

func TestEvaluateJoinGateKicksNewAccount(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.UpdateConfig(ctx, "guild", func(cfg *guildconfig.GuildConfig) {
		cfg.RaidControl.Enabled = true
		cfg.RaidControl.JoinGate.Enabled = true
		cfg.RaidControl.JoinGate.MinAccountAgeDays = 7
	})
	require.NoError(t, err)

	res := e.EvaluateJoin(ctx, JoinEvent{
		ActorID:          "actor",
		GuildID:          "guild",
		AccountCreatedAt: time.Now().Add(-2 * 24 * time.Hour),
		HasAvatar:        true,
	})

	assert.Equal(t, VerdictJoinGateRejected, res.Verdict.Kind)
	assert.Equal(t, joinwatch.ReasonNewAccount, res.Verdict.GateReason)
	assert.Equal(t, ActionKick, res.Action.Kind)
	assert.NotEmpty(t, res.Action.Reason)
}

func TestEvaluateJoinDisabledRaidControl(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		res := e.EvaluateJoin(ctx, JoinEvent{
			ActorID:          fmt.Sprintf("actor-%d", i),
			GuildID:          "guild",
			AccountCreatedAt: time.Now().Add(-time.Hour),
			HasAvatar:        false,
		})
		assert.Equal(t, VerdictNone, res.Verdict.Kind)
	}
}

func TestConcurrentSpamTriggersLoseNoIncrements(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	enableAntiSpam(t, e, "guild")

	// a single message over the mention limit plus the rapid bonus scores 5,
	// enough to trigger on the first observe
	mentions := make([]string, 6)
	for i := range mentions {
		mentions[i] = fmt.Sprintf("<@%d>", 100000+i)
	}
	content := strings.Join(mentions, " ")

	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			res := e.EvaluateMessage(ctx, MessageEvent{
				ActorID:   fmt.Sprintf("actor-%d", i),
				GuildID:   "guild",
				ChannelID: "channel",
				Content:   content,
			})
			assert.Equal(t, VerdictSpam, res.Verdict.Kind)
		}()
	}

	wg.Wait()

	stats := e.GetConfig(ctx, "guild").Stats
	assert.Equal(t, n, stats.ActionsToday)
	assert.Equal(t, n, stats.ViolationCounts["spam"])
}

func TestDetectorPanicFailsOpen(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	enableAntiSpam(t, e, "guild")

	// a nil tracker makes the spam check panic; the coordinator must treat
	// that as no verdict rather than crashing or punishing
	e.Heat = nil

	res := e.EvaluateMessage(ctx, MessageEvent{
		ActorID:   "actor",
		GuildID:   "guild",
		ChannelID: "channel",
		Content:   "hello",
	})

	assert.Equal(t, VerdictNone, res.Verdict.Kind)
	assert.Equal(t, ActionNone, res.Action.Kind)
}

func TestRunMaintenanceSweep(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	longAgo := time.Now().UTC().Add(-8 * 24 * time.Hour)
	panicSince := time.Now().UTC().Add(-3 * time.Hour)

	_, err := e.UpdateConfig(ctx, "guild", func(cfg *guildconfig.GuildConfig) {
		cfg.Stats.ActionsToday = 5
		cfg.Stats.ActionsWeek = 9
		cfg.Stats.ActionsTotal = 40
		cfg.Stats.LastResetAt = longAgo
		cfg.RaidControl.PanicMode = true
		cfg.RaidControl.PanicActivatedAt = &panicSince
	})
	require.NoError(t, err)

	e.RunMaintenanceSweep(ctx)

	cfg := e.GetConfig(ctx, "guild")
	assert.Equal(t, 0, cfg.Stats.ActionsToday)
	assert.Equal(t, 0, cfg.Stats.ActionsWeek)
	assert.Equal(t, 40, cfg.Stats.ActionsTotal)
	assert.False(t, cfg.RaidControl.PanicMode)
	assert.Nil(t, cfg.RaidControl.PanicActivatedAt)
}

func TestRunMaintenanceSweepKeepsRecentPanicMode(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	panicSince := time.Now().UTC().Add(-30 * time.Minute)

	_, err := e.UpdateConfig(ctx, "guild", func(cfg *guildconfig.GuildConfig) {
		cfg.RaidControl.PanicMode = true
		cfg.RaidControl.PanicActivatedAt = &panicSince
	})
	require.NoError(t, err)

	e.RunMaintenanceSweep(ctx)

	cfg := e.GetConfig(ctx, "guild")
	assert.True(t, cfg.RaidControl.PanicMode)
}
