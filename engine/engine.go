// Package engine coordinates the moderation detectors per inbound event and
// decides what corrective action the integration layer should execute.
//
// The engine only decides; executing the platform side effect (deleting the
// message, timing out the member) is the caller's job and nothing here
// depends on its outcome.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/guardianbot/guardian/engine/classifier"
	"github.com/guardianbot/guardian/engine/heat"
	"github.com/guardianbot/guardian/engine/joinwatch"
	"github.com/guardianbot/guardian/guildconfig"
)

const (
	// severeHeat is the band above which a spam trigger escalates from a
	// warn to a mute.
	severeHeat = 15

	muteDuration = 10 * time.Minute

	// panicExpiry is how long panic mode stays up before the maintenance
	// sweep clears it.
	panicExpiry = 2 * time.Hour
)

type Engine struct {
	Logger *zap.Logger
	Store  *guildconfig.Store
	Heat   *heat.Tracker
	Joins  *joinwatch.Detector
}

// EvaluateMessage runs one message through the spam and content checks and
// returns the verdict, the decided action and the guild's updated stats.
//
// A detector failure must never crash event processing or apply a punitive
// action, so panics are recovered at this boundary and treated as a no
// verdict for that check.
func (e *Engine) EvaluateMessage(ctx context.Context, evt MessageEvent) Result {
	cfg := e.Store.Get(ctx, evt.GuildID)

	res := Result{
		Verdict: Verdict{Kind: VerdictNone},
		Action:  Action{Kind: ActionNone},
		Stats:   cfg.Stats,
	}

	// Fully exempt roles bypass all automated checks.
	for _, role := range evt.ActorRoles {
		if cfg.ExemptRoles.Has(role) {
			return res
		}
	}

	heatAfter, triggered := e.observeHeat(evt, cfg)

	if triggered {
		res.Verdict = Verdict{Kind: VerdictSpam, HeatAtTrigger: heatAfter}

		// Heat is intentionally not cleared here: a repeat offense
		// within the cooldown keeps accumulating.
		if heatAfter > severeHeat {
			res.Action = Action{
				Kind:          ActionMute,
				DeleteMessage: true,
				MuteDuration:  muteDuration,
				Reason:        "Severe spam detected",
			}
		} else {
			res.Action = Action{
				Kind:          ActionWarn,
				DeleteMessage: true,
				Reason:        "Anti-spam triggered",
			}
		}

		res.Stats = e.recordAction(ctx, evt.GuildID, "spam")
		return res
	}

	violations := e.classifyContent(evt, cfg)

	if len(violations) > 0 {
		res.Verdict = Verdict{Kind: VerdictContentViolation, Violations: violations}
		res.Action = Action{
			Kind:          ActionDeleteAndNotify,
			DeleteMessage: true,
			Reason:        violationReason(violations),
		}
		res.Stats = e.recordAction(ctx, evt.GuildID, "content")
	}

	return res
}

// EvaluateJoin runs one member join through the raid and join-gate checks.
func (e *Engine) EvaluateJoin(ctx context.Context, evt JoinEvent) Result {
	cfg := e.Store.Get(ctx, evt.GuildID)

	res := Result{
		Verdict: Verdict{Kind: VerdictNone},
		Action:  Action{Kind: ActionNone},
		Stats:   cfg.Stats,
	}

	if !cfg.RaidControl.Enabled {
		return res
	}

	jr := e.observeJoin(evt, cfg)

	switch {
	case jr.MassJoin:
		res.Verdict = Verdict{Kind: VerdictMassJoin, JoinCount: jr.JoinCount}
		res.Action = Action{Kind: ActionRaidAlert, Reason: "Mass join detected"}
		res.Stats = e.activatePanicMode(ctx, evt.GuildID)
	case jr.GateReason != "":
		res.Verdict = Verdict{Kind: VerdictJoinGateRejected, GateReason: jr.GateReason}
		res.Action = Action{Kind: ActionKick, Reason: gateKickReason(jr.GateReason)}
	}

	return res
}

// GetConfig returns the guild's configuration for administrative commands.
func (e *Engine) GetConfig(ctx context.Context, guildID string) *guildconfig.GuildConfig {
	return e.Store.Get(ctx, guildID)
}

// UpdateConfig applies patch to the guild's configuration under the
// per-guild lock and persists the result. Lock timeouts and persistence
// failures are surfaced to the caller, never silently dropped.
func (e *Engine) UpdateConfig(ctx context.Context, guildID string, patch func(*guildconfig.GuildConfig)) (*guildconfig.GuildConfig, error) {
	var out *guildconfig.GuildConfig

	err := e.Store.WithLock(guildID, func() error {
		cfg := e.Store.Get(ctx, guildID)
		patch(cfg)

		if !e.Store.Save(ctx, guildID, cfg) {
			return errors.New("failed to persist guild config")
		}

		out = cfg
		return nil
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

func (e *Engine) observeHeat(evt MessageEvent, cfg *guildconfig.GuildConfig) (heatAfter int, triggered bool) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error("Heat tracker panicked", zap.Any("error", r), zap.String("guildId", evt.GuildID), zap.String("actorId", evt.ActorID))
			heatAfter, triggered = 0, false
		}
	}()

	if !cfg.AntiSpam.Enabled {
		return 0, false
	}

	return e.Heat.Observe(evt.ActorID, evt.GuildID, evt.Content, cfg)
}

func (e *Engine) classifyContent(evt MessageEvent, cfg *guildconfig.GuildConfig) (violations []classifier.Violation) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error("Content classifier panicked", zap.Any("error", r), zap.String("guildId", evt.GuildID), zap.String("actorId", evt.ActorID))
			violations = nil
		}
	}()

	return classifier.Classify(evt.Content, cfg, cfg.ChannelRestrictions[evt.ChannelID], evt.ActorRoles)
}

func (e *Engine) observeJoin(evt JoinEvent, cfg *guildconfig.GuildConfig) (res joinwatch.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error("Join detector panicked", zap.Any("error", r), zap.String("guildId", evt.GuildID), zap.String("actorId", evt.ActorID))
			res = joinwatch.Result{}
		}
	}()

	return e.Joins.ObserveJoin(evt.ActorID, evt.GuildID, evt.AccountCreatedAt, evt.HasAvatar, cfg)
}

// recordAction increments the guild's action counters under the per-guild
// lock. Stats are read-modify-write, so the config is re-read after the lock
// is held rather than reusing an earlier snapshot. Persistence is best
// effort: a failed save is logged but never blocks the already-decided
// action from being reported.
func (e *Engine) recordAction(ctx context.Context, guildID, violationKind string) guildconfig.Stats {
	var stats guildconfig.Stats

	err := e.Store.WithLock(guildID, func() error {
		cfg := e.Store.Get(ctx, guildID)

		cfg.Stats.ActionsToday++
		cfg.Stats.ActionsWeek++
		cfg.Stats.ActionsTotal++
		cfg.Stats.ViolationCounts[violationKind]++

		if !e.Store.Save(ctx, guildID, cfg) {
			e.Logger.Warn("Failed to persist stats update", zap.String("guildId", guildID))
		}

		stats = cfg.Stats
		return nil
	})

	if err != nil {
		e.Logger.Error("Failed to record moderation action", zap.String("guildId", guildID), zap.Error(err))
		return e.Store.Get(ctx, guildID).Stats
	}

	return stats
}

func (e *Engine) activatePanicMode(ctx context.Context, guildID string) guildconfig.Stats {
	var stats guildconfig.Stats

	err := e.Store.WithLock(guildID, func() error {
		cfg := e.Store.Get(ctx, guildID)

		now := time.Now().UTC()
		cfg.RaidControl.PanicMode = true
		cfg.RaidControl.PanicActivatedAt = &now

		cfg.Stats.ActionsToday++
		cfg.Stats.ActionsWeek++
		cfg.Stats.ActionsTotal++
		cfg.Stats.ViolationCounts["raid"]++

		if !e.Store.Save(ctx, guildID, cfg) {
			e.Logger.Warn("Failed to persist panic mode activation", zap.String("guildId", guildID))
		}

		stats = cfg.Stats
		return nil
	})

	if err != nil {
		e.Logger.Error("Failed to activate panic mode", zap.String("guildId", guildID), zap.Error(err))
		return e.Store.Get(ctx, guildID).Stats
	}

	return stats
}

func gateKickReason(reason joinwatch.GateReason) string {
	switch reason {
	case joinwatch.ReasonNewAccount:
		return "Account too new to join this server"
	case joinwatch.ReasonNoAvatar:
		return "An avatar is required to join this server"
	default:
		return string(reason)
	}
}
