package engine

import (
	"time"
)

// MessageEvent is an inbound message to moderate. IDs are opaque platform
// snowflakes; the engine never interprets them.
type MessageEvent struct {
	ActorID    string
	GuildID    string
	ChannelID  string
	Content    string
	ActorRoles []string
}

// JoinEvent is an inbound member join to moderate.
type JoinEvent struct {
	ActorID          string
	GuildID          string
	AccountCreatedAt time.Time
	HasAvatar        bool
}
