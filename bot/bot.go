// Package bot wires the moderation engine to the Discord gateway: it
// translates gateway events into engine evaluations and executes the decided
// actions via the API. The engine never sees any discordgo types.
package bot

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/guardianbot/guardian/engine"
	"github.com/guardianbot/guardian/state"
)

type Bot struct {
	Logger  *zap.Logger
	Session *discordgo.Session
	Engine  *engine.Engine

	limiter *observeLimiter
}

func New(logger *zap.Logger, session *discordgo.Session, eng *engine.Engine) *Bot {
	b := &Bot{
		Logger:  logger,
		Session: session,
		Engine:  eng,
		limiter: newObserveLimiter(),
	}

	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onGuildMemberAdd)

	return b
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	if !b.limiter.allow(m.GuildID, m.Author.ID, time.Now()) {
		return
	}

	var roles []string
	if m.Member != nil {
		roles = m.Member.Roles
	}

	res := b.Engine.EvaluateMessage(state.Context, engine.MessageEvent{
		ActorID:    m.Author.ID,
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		Content:    m.Content,
		ActorRoles: roles,
	})

	if res.Action.Kind == engine.ActionNone {
		return
	}

	b.Logger.Info("Moderation action decided",
		zap.String("guildId", m.GuildID),
		zap.String("actorId", m.Author.ID),
		zap.String("verdict", string(res.Verdict.Kind)),
		zap.String("action", string(res.Action.Kind)),
	)

	if res.Action.DeleteMessage {
		err := s.ChannelMessageDelete(m.ChannelID, m.ID)

		if err != nil {
			b.Logger.Warn("Failed to delete message", zap.String("messageId", m.ID), zap.Error(err))
		}
	}

	switch res.Action.Kind {
	case engine.ActionMute:
		until := time.Now().Add(res.Action.MuteDuration)

		err := s.GuildMemberTimeout(m.GuildID, m.Author.ID, &until)

		if err != nil {
			b.Logger.Warn("Failed to timeout member", zap.String("actorId", m.Author.ID), zap.Error(err))
			b.notify(m.ChannelID, fmt.Sprintf("%s, severe spam detected! Please slow down.", m.Author.Mention()))
			return
		}

		b.notify(m.ChannelID, fmt.Sprintf("%s, you have been muted for %s due to severe spam.", m.Author.Mention(), res.Action.MuteDuration))
	case engine.ActionWarn:
		b.notify(m.ChannelID, fmt.Sprintf("%s, slow down! Anti-spam triggered.", m.Author.Mention()))
	case engine.ActionDeleteAndNotify:
		b.notify(m.ChannelID, fmt.Sprintf("%s, your message was filtered: %s", m.Author.Mention(), res.Action.Reason))
	}
}

func (b *Bot) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}

	createdAt, err := discordgo.SnowflakeTimestamp(m.User.ID)

	if err != nil {
		b.Logger.Warn("Failed to derive account age from snowflake", zap.String("actorId", m.User.ID), zap.Error(err))
		return
	}

	res := b.Engine.EvaluateJoin(state.Context, engine.JoinEvent{
		ActorID:          m.User.ID,
		GuildID:          m.GuildID,
		AccountCreatedAt: createdAt,
		HasAvatar:        m.User.Avatar != "",
	})

	switch res.Action.Kind {
	case engine.ActionRaidAlert:
		b.Logger.Warn("Raid detected", zap.String("guildId", m.GuildID), zap.Int("joinCount", res.Verdict.JoinCount))
		b.alertOperators(m.GuildID, fmt.Sprintf("🚨 **RAID DETECTED** - %d users joined in a short window. Panic mode is now active.", res.Verdict.JoinCount))
	case engine.ActionKick:
		err := s.GuildMemberDeleteWithReason(m.GuildID, m.User.ID, res.Action.Reason)

		if err != nil {
			b.Logger.Warn("Failed to kick member", zap.String("actorId", m.User.ID), zap.Error(err))
			return
		}

		b.Logger.Info("Join gate kicked member",
			zap.String("guildId", m.GuildID),
			zap.String("actorId", m.User.ID),
			zap.String("reason", string(res.Verdict.GateReason)),
		)
	}
}

func (b *Bot) notify(channelID, content string) {
	_, err := b.Session.ChannelMessageSend(channelID, content)

	if err != nil {
		b.Logger.Warn("Failed to send notice", zap.String("channelId", channelID), zap.Error(err))
	}
}

// alertOperators posts to the guild's admin control channel if one exists.
func (b *Bot) alertOperators(guildID, content string) {
	channels, err := b.Session.GuildChannels(guildID)

	if err != nil {
		b.Logger.Warn("Failed to list channels for raid alert", zap.String("guildId", guildID), zap.Error(err))
		return
	}

	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.Name == "admin-control" {
			b.notify(ch.ID, content)
			return
		}
	}
}
