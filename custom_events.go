package sandwich

import "github.com/WelcomerTeam/Discord/discord"

// EventType enumerates the closed set of high-level, strongly-typed
// events a shard emits via the Client capability handle. The raw wire
// packet is emitted separately as EventPacket and stays untyped, per the
// "duck-typed maybe cached maybe stub" design note: handlers are total
// over both a cached entity and a stub.
type EventType string

const (
	EventPacket EventType = "packet"
	EventDebug  EventType = "debug"
	EventError  EventType = "error"

	EventPreReady EventType = "preReady"
	EventReady    EventType = "ready"
	EventResumed  EventType = "resumed"

	EventGuildCreate      EventType = "guildCreate"
	EventGuildAvailable   EventType = "guildAvailable"
	EventGuildUnavailable EventType = "guildUnavailable"
	EventGuildDelete      EventType = "guildDelete"
	EventGuildMemberChunk EventType = "guildMemberChunk"

	EventVoiceChannelJoin   EventType = "voiceChannelJoin"
	EventVoiceChannelLeave  EventType = "voiceChannelLeave"
	EventVoiceChannelSwitch EventType = "voiceChannelSwitch"

	EventShardStatusUpdate EventType = "shardStatusUpdate"
)

// GuildOrStub models "maybe a cached entity, maybe a stub {id}": dispatch
// handlers that only have an id to go on (the guild was never cached) still
// produce a value callers can read Guild.ID from.
type GuildOrStub struct {
	ID     discord.Snowflake
	Guild  discord.Guild
	Cached bool
}

type PacketPayload struct {
	Packet *Packet
}

type DebugPayload struct {
	Message string
}

type ErrorPayload struct {
	Err error
}

type PreReadyPayload struct{}

type ReadyPayload struct{}

type ResumedPayload struct{}

type GuildCreatePayload struct {
	Guild discord.Guild
}

type GuildAvailablePayload struct {
	Guild discord.Guild
}

type GuildUnavailablePayload struct {
	GuildID discord.Snowflake
}

type GuildDeletePayload struct {
	Guild GuildOrStub
}

type GuildMemberChunkPayload struct {
	GuildID    discord.Snowflake
	Members    []discord.GuildMember
	ChunkIndex int32
	ChunkCount int32
	Nonce      string
}

type VoiceChannelJoinPayload struct {
	GuildID   discord.Snowflake
	UserID    discord.Snowflake
	ChannelID discord.Snowflake
}

type VoiceChannelLeavePayload struct {
	GuildID   discord.Snowflake
	UserID    discord.Snowflake
	ChannelID discord.Snowflake
}

type VoiceChannelSwitchPayload struct {
	GuildID  discord.Snowflake
	UserID   discord.Snowflake
	From, To discord.Snowflake
}

// ShardStatusUpdatePayload reports a shard's session status transitions
// as a custom event alongside the real gateway dispatch events.
type ShardStatusUpdatePayload struct {
	ShardID int32
	Status  SessionStatus
}
