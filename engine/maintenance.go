package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/guardianbot/guardian/guildconfig"
)

// RunMaintenanceSweep performs the periodic housekeeping: heat and join
// window eviction, daily/weekly stats rollover and panic mode expiry.
//
// Sweeps are maintenance, not correctness-critical synchronization; a skipped
// or delayed run only means state stays around a little longer.
func (e *Engine) RunMaintenanceSweep(ctx context.Context) {
	evicted := e.Heat.Sweep()
	dropped := e.Joins.Sweep()

	e.Logger.Debug("Maintenance sweep", zap.Int("heatEvicted", evicted), zap.Int("joinWindowsDropped", dropped))

	guilds, err := e.Store.ListGuilds(ctx)

	if err != nil {
		e.Logger.Error("Failed to list guilds for maintenance sweep", zap.Error(err))
		return
	}

	now := time.Now().UTC()

	for _, guildID := range guilds {
		err := e.Store.WithLock(guildID, func() error {
			cfg := e.Store.Get(ctx, guildID)

			changed := rolloverStats(&cfg.Stats, now)

			if expirePanicMode(&cfg.RaidControl, now) {
				e.Logger.Info("Panic mode expired", zap.String("guildId", guildID))
				changed = true
			}

			if changed && !e.Store.Save(ctx, guildID, cfg) {
				e.Logger.Warn("Failed to persist maintenance update", zap.String("guildId", guildID))
			}

			return nil
		})

		if err != nil {
			e.Logger.Error("Maintenance sweep skipped guild", zap.String("guildId", guildID), zap.Error(err))
		}
	}
}

// rolloverStats zeroes the daily counter on a new UTC day and the weekly
// counter on a new ISO week.
func rolloverStats(stats *guildconfig.Stats, now time.Time) bool {
	last := stats.LastResetAt.UTC()

	sameDay := last.Year() == now.Year() && last.YearDay() == now.YearDay()
	if sameDay {
		return false
	}

	stats.ActionsToday = 0

	lastYear, lastWeek := last.ISOWeek()
	nowYear, nowWeek := now.ISOWeek()
	if lastYear != nowYear || lastWeek != nowWeek {
		stats.ActionsWeek = 0
	}

	stats.LastResetAt = now
	return true
}

func expirePanicMode(rc *guildconfig.RaidControl, now time.Time) bool {
	if !rc.PanicMode || rc.PanicActivatedAt == nil {
		return false
	}

	if now.Sub(*rc.PanicActivatedAt) < panicExpiry {
		return false
	}

	rc.PanicMode = false
	rc.PanicActivatedAt = nil
	return true
}
