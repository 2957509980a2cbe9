package engine

import (
	"strings"
	"time"

	"github.com/guardianbot/guardian/engine/classifier"
	"github.com/guardianbot/guardian/engine/joinwatch"
	"github.com/guardianbot/guardian/guildconfig"
)

// VerdictKind describes what a detector observed, not what to do about it.
type VerdictKind string

const (
	VerdictNone             VerdictKind = "none"
	VerdictSpam             VerdictKind = "spam"
	VerdictContentViolation VerdictKind = "content_violation"
	VerdictMassJoin         VerdictKind = "mass_join"
	VerdictJoinGateRejected VerdictKind = "join_gate_rejected"
)

type Verdict struct {
	Kind          VerdictKind
	HeatAtTrigger int                    // spam only
	Violations    []classifier.Violation // content violations only
	JoinCount     int                    // mass join only
	GateReason    joinwatch.GateReason   // join gate only
}

// ActionKind is the corrective step the external layer should execute.
type ActionKind string

const (
	ActionNone            ActionKind = "none"
	ActionWarn            ActionKind = "warn"
	ActionDeleteAndNotify ActionKind = "delete_and_notify"
	ActionMute            ActionKind = "mute"
	ActionKick            ActionKind = "kick"
	ActionRaidAlert       ActionKind = "raid_alert"
)

type Action struct {
	Kind          ActionKind
	DeleteMessage bool
	MuteDuration  time.Duration
	Reason        string
}

// Result is what an evaluation hands back to the integration layer.
type Result struct {
	Verdict Verdict
	Action  Action
	Stats   guildconfig.Stats
}

// violationReason picks the single human-readable reason for a filtered
// message: link reasons first, then channel restrictions, then invites, and
// only then a generic join of the raw violation kinds.
func violationReason(violations []classifier.Violation) string {
	has := func(v classifier.Violation) bool {
		for _, cur := range violations {
			if cur == v {
				return true
			}
		}
		return false
	}

	switch {
	case has(classifier.ViolationNonWhitelistedLink):
		return "Links are not allowed in this channel."
	case has(classifier.ViolationBlacklistedLink):
		return "This link is blocked."
	case has(classifier.ViolationNonCommandInCommandsChannel):
		return "Only commands are allowed in this channel."
	case has(classifier.ViolationNonMediaInMediaChannel):
		return "Only images/videos/links are allowed in this channel."
	case has(classifier.ViolationMediaInTextOnlyChannel):
		return "Only text messages are allowed in this channel."
	case has(classifier.ViolationInvite):
		return "Discord invites are not allowed."
	}

	kinds := make([]string, len(violations))
	for i, v := range violations {
		kinds[i] = string(v)
	}
	return strings.Join(kinds, ", ")
}
