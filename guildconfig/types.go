package guildconfig

import (
	"time"
)

// RestrictionKind constrains what kind of content a channel accepts.
type RestrictionKind string

const (
	RestrictionCommandsOnly RestrictionKind = "commands_only"
	RestrictionMediaOnly    RestrictionKind = "media_only"
	RestrictionTextOnly     RestrictionKind = "text_only"
)

// GuildConfig is the per-guild moderation configuration plus running
// statistics. It is always fully populated after load; missing fields fall
// back to the defaults in Default().
type GuildConfig struct {
	AntiSpam            AntiSpam                   `json:"anti_spam"`
	ContentFilter       ContentFilter              `json:"content_filter"`
	RaidControl         RaidControl                `json:"raid_control"`
	Tickets             Tickets                    `json:"tickets"`
	ChannelRestrictions map[string]RestrictionKind `json:"channel_restrictions"`
	ExemptRoles         StringSet                  `json:"exempt_roles"`
	Stats               Stats                      `json:"stats"`
}

type AntiSpam struct {
	Enabled       bool `json:"enabled"`
	HeatThreshold int  `json:"heat_threshold"`
	CharacterLimit int `json:"character_limit"`
	EmojiLimit    int  `json:"emoji_limit"`
	MentionLimit  int  `json:"mention_limit"`
	NewlineLimit  int  `json:"newline_limit"`
}

type ContentFilter struct {
	Enabled       bool        `json:"enabled"`
	BannedPhrases StringSet   `json:"banned_phrases"`
	NSFWEnabled   bool        `json:"nsfw_enabled"`
	Links         LinkFilter  `json:"links"`
	InviteLinks   InviteLinks `json:"invite_links"`
}

type LinkFilter struct {
	Enabled     bool      `json:"enabled"`
	Allowlist   StringSet `json:"allowlist"`
	Denylist    StringSet `json:"denylist"`
	ExemptRoles StringSet `json:"exempt_roles"`
}

type InviteLinks struct {
	Enabled     bool      `json:"enabled"`
	ExemptRoles StringSet `json:"exempt_roles"`
}

type RaidControl struct {
	Enabled          bool       `json:"enabled"`
	JoinLimit        int        `json:"join_limit"`
	WindowSeconds    int        `json:"window_seconds"`
	PanicMode        bool       `json:"panic_mode"`
	PanicActivatedAt *time.Time `json:"panic_activated_at"`
	JoinGate         JoinGate   `json:"join_gate"`
}

type JoinGate struct {
	Enabled           bool `json:"enabled"`
	MinAccountAgeDays int  `json:"min_account_age_days"`
	RequireAvatar     bool `json:"require_avatar"`
}

type Tickets struct {
	AutoCloseHours int `json:"auto_close_hours"`
}

type Stats struct {
	ActionsToday    int            `json:"actions_today"`
	ActionsWeek     int            `json:"actions_week"`
	ActionsTotal    int            `json:"actions_total"`
	ViolationCounts map[string]int `json:"violation_counts"`
	LastResetAt     time.Time      `json:"last_reset_at"`
}

// Default returns a fully populated configuration with all protection
// disabled, mirroring what a guild gets before any setup command runs.
func Default() *GuildConfig {
	return &GuildConfig{
		AntiSpam: AntiSpam{
			Enabled:        false,
			HeatThreshold:  3,
			CharacterLimit: 2000,
			EmojiLimit:     10,
			MentionLimit:   5,
			NewlineLimit:   10,
		},
		ContentFilter: ContentFilter{
			Enabled:       false,
			BannedPhrases: NewStringSet(),
			NSFWEnabled:   false,
			Links: LinkFilter{
				Enabled:     false,
				Allowlist:   NewStringSet(),
				Denylist:    NewStringSet(),
				ExemptRoles: NewStringSet(),
			},
			InviteLinks: InviteLinks{
				Enabled:     false,
				ExemptRoles: NewStringSet(),
			},
		},
		RaidControl: RaidControl{
			Enabled:       false,
			JoinLimit:     5,
			WindowSeconds: 30,
			PanicMode:     false,
			JoinGate: JoinGate{
				Enabled:           false,
				MinAccountAgeDays: 7,
				RequireAvatar:     false,
			},
		},
		Tickets: Tickets{
			AutoCloseHours: 24,
		},
		ChannelRestrictions: map[string]RestrictionKind{},
		ExemptRoles:         NewStringSet(),
		Stats: Stats{
			ViolationCounts: map[string]int{},
			LastResetAt:     time.Now().UTC(),
		},
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp forces every numeric threshold into its documented bounds. Applied
// on every save and load so a hand-edited record can never smuggle an
// out-of-range value into the detectors.
func (g *GuildConfig) Clamp() {
	g.AntiSpam.HeatThreshold = clampInt(g.AntiSpam.HeatThreshold, 1, 10)
	g.AntiSpam.CharacterLimit = clampInt(g.AntiSpam.CharacterLimit, 50, 4000)
	g.AntiSpam.EmojiLimit = clampInt(g.AntiSpam.EmojiLimit, 1, 100)
	g.AntiSpam.MentionLimit = clampInt(g.AntiSpam.MentionLimit, 1, 50)
	g.AntiSpam.NewlineLimit = clampInt(g.AntiSpam.NewlineLimit, 1, 100)
	g.RaidControl.JoinLimit = clampInt(g.RaidControl.JoinLimit, 2, 100)
	g.RaidControl.WindowSeconds = clampInt(g.RaidControl.WindowSeconds, 5, 600)
	g.RaidControl.JoinGate.MinAccountAgeDays = clampInt(g.RaidControl.JoinGate.MinAccountAgeDays, 0, 365)
	g.Tickets.AutoCloseHours = clampInt(g.Tickets.AutoCloseHours, 1, 168)

	if g.ChannelRestrictions == nil {
		g.ChannelRestrictions = map[string]RestrictionKind{}
	}

	if g.Stats.ViolationCounts == nil {
		g.Stats.ViolationCounts = map[string]int{}
	}
}
