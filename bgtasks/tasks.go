package bgtasks

import (
	"time"

	"github.com/guardianbot/guardian/engine"
	"github.com/guardianbot/guardian/engine/heat"
	"github.com/guardianbot/guardian/snapshots"
	"github.com/guardianbot/guardian/state"
)

// MaintenanceSweep evicts idle heat state and stale join windows, rolls over
// daily/weekly stats and expires panic mode.
type MaintenanceSweep struct {
	Engine   *engine.Engine
	Interval time.Duration
}

func (t MaintenanceSweep) Enabled() bool { return true }

func (t MaintenanceSweep) Duration() time.Duration { return t.Interval }

func (t MaintenanceSweep) Name() string { return "maintenance_sweep" }

func (t MaintenanceSweep) Description() string {
	return "Evicts idle trackers, rolls over stats and expires panic mode"
}

func (t MaintenanceSweep) Run() error {
	t.Engine.RunMaintenanceSweep(state.Context)
	return nil
}

// HeatSnapshot periodically persists the heat tracker state so a restart
// within the snapshot window keeps recent heat.
type HeatSnapshot struct {
	Tracker   *heat.Tracker
	Snapshots *snapshots.Store
	Interval  time.Duration
}

func (t HeatSnapshot) Enabled() bool { return true }

func (t HeatSnapshot) Duration() time.Duration { return t.Interval }

func (t HeatSnapshot) Name() string { return "heat_snapshot" }

func (t HeatSnapshot) Description() string {
	return "Persists heat tracker state for warm restarts"
}

func (t HeatSnapshot) Run() error {
	data, err := t.Tracker.Snapshot()

	if err != nil {
		return err
	}

	return t.Snapshots.SaveHeat(state.Context, data)
}
