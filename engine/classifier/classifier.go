// Package classifier evaluates message content against a guild's filter
// rules. Classification is a pure function of its inputs; all state lives in
// the configuration passed per call.
package classifier

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/guardianbot/guardian/guildconfig"
)

type Violation string

const (
	ViolationBlacklistedLink             Violation = "blacklisted_link"
	ViolationNonWhitelistedLink          Violation = "non_whitelisted_link"
	ViolationInvalidLink                 Violation = "invalid_link"
	ViolationNonCommandInCommandsChannel Violation = "non_command_in_commands_channel"
	ViolationNonMediaInMediaChannel      Violation = "non_media_in_media_channel"
	ViolationMediaInTextOnlyChannel      Violation = "media_in_text_only_channel"
	ViolationBannedPhrase                Violation = "banned_phrase"
	ViolationNSFW                        Violation = "nsfw"
	ViolationInvite                      Violation = "discord_invite"
)

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s]+`)
	invitePattern = regexp.MustCompile(`(?i)discord\.gg/[a-zA-Z0-9]+`)

	nsfwPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)n[s5][f4][w\\/]`),
		regexp.MustCompile(`(?i)p[o0]rn`),
		regexp.MustCompile(`(?i)[s5][e3][x\\/]`),
	}
)

// Classify runs every filter rule over the message and returns the union of
// violations. An empty result means the message passed. Rules are
// independent; only the banned-phrase scan short-circuits (on its first
// match, for cost control).
func Classify(content string, cfg *guildconfig.GuildConfig, restriction guildconfig.RestrictionKind, actorRoles []string) []Violation {
	if !cfg.ContentFilter.Enabled {
		return nil
	}

	var violations []Violation

	violations = append(violations, classifyLinks(content, &cfg.ContentFilter.Links, actorRoles)...)
	violations = append(violations, classifyRestriction(content, restriction)...)

	if v, ok := matchBannedPhrase(content, cfg.ContentFilter.BannedPhrases); ok {
		violations = append(violations, v)
	}

	if cfg.ContentFilter.NSFWEnabled {
		lowered := strings.ToLower(content)
		for _, pattern := range nsfwPatterns {
			if pattern.MatchString(lowered) {
				violations = append(violations, ViolationNSFW)
				break
			}
		}
	}

	if cfg.ContentFilter.InviteLinks.Enabled && !hasAnyRole(actorRoles, cfg.ContentFilter.InviteLinks.ExemptRoles) {
		if invitePattern.MatchString(content) {
			violations = append(violations, ViolationInvite)
		}
	}

	return violations
}

// classifyLinks resolves each URL's hostname and checks it against the
// guild's deny and allow lists. The denylist always wins: a domain on both
// lists is treated as blacklisted.
func classifyLinks(content string, links *guildconfig.LinkFilter, actorRoles []string) []Violation {
	if !links.Enabled || hasAnyRole(actorRoles, links.ExemptRoles) {
		return nil
	}

	var violations []Violation

	for _, raw := range urlPattern.FindAllString(content, -1) {
		u, err := url.Parse(raw)

		if err != nil || u.Hostname() == "" {
			violations = append(violations, ViolationInvalidLink)
			continue
		}

		domain := strings.ToLower(u.Hostname())

		if links.Denylist.Has(domain) {
			violations = append(violations, ViolationBlacklistedLink)
			continue
		}

		if len(links.Allowlist) > 0 && !links.Allowlist.Has(domain) {
			violations = append(violations, ViolationNonWhitelistedLink)
		}
	}

	return violations
}

func classifyRestriction(content string, restriction guildconfig.RestrictionKind) []Violation {
	switch restriction {
	case guildconfig.RestrictionCommandsOnly:
		if !strings.HasPrefix(content, "/") && !strings.HasPrefix(content, "!") {
			return []Violation{ViolationNonCommandInCommandsChannel}
		}
	case guildconfig.RestrictionMediaOnly:
		hasMedia := strings.Contains(content, "http") ||
			strings.Contains(content, "discord.gg") ||
			strings.Contains(content, "tenor.com") ||
			strings.Contains(content, "giphy.com")
		if !hasMedia {
			return []Violation{ViolationNonMediaInMediaChannel}
		}
	case guildconfig.RestrictionTextOnly:
		if urlPattern.MatchString(content) {
			return []Violation{ViolationMediaInTextOnlyChannel}
		}
	}

	return nil
}

func matchBannedPhrase(content string, phrases guildconfig.StringSet) (Violation, bool) {
	if len(phrases) == 0 {
		return "", false
	}

	lowered := strings.ToLower(content)

	for phrase := range phrases {
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			return ViolationBannedPhrase, true
		}
	}

	return "", false
}

func hasAnyRole(actorRoles []string, exempt guildconfig.StringSet) bool {
	for _, role := range actorRoles {
		if exempt.Has(role) {
			return true
		}
	}
	return false
}
