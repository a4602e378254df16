package sandwich

import (
	"context"
	"log/slog"

	"github.com/WelcomerTeam/Discord/discord"
)

// ReactionState is the cached {count, me} pair for one emoji on one
// message, keyed separately by the caller (message ID, emoji key). The
// wire entity (discord.Message.Reactions) is a slice, so this lives as
// its own small map-shaped cache rather than forcing slice semantics
// into something that is mutated one reaction at a time.
type ReactionState struct {
	Count int32
	Me    bool
}

// Client is everything a ShardController needs from its host application:
// the entity cache (StateProvider), a sink for high-level events, and a
// couple of connection parameters the shard does not own itself. A host
// implements this once and hands it to every shard it runs; ShardController
// never keeps its own copy of cached state.
type Client interface {
	StateProvider

	// GetMessageReactions/SetMessageReactions back MESSAGE_REACTION_ADD/
	// REMOVE/REMOVE_ALL/REMOVE_EMOJI handling.
	GetMessageReactions(ctx context.Context, channelID, messageID discord.Snowflake) (map[string]ReactionState, bool)
	SetMessageReactions(ctx context.Context, channelID, messageID discord.Snowflake, reactions map[string]ReactionState)

	// Emit delivers one high-level event to the host. It must not block
	// the gateway read loop for long; implementations that fan out to
	// slow consumers should queue internally.
	Emit(ctx context.Context, shardID int32, event EventType, payload any)

	// GatewayURL is read on each connect attempt that has no stored
	// resume URL. ShardController does not read Options; it keeps the
	// ShardOptions it was constructed with.
	GatewayURL(ctx context.Context) (string, error)
	Options(ctx context.Context) ShardOptions

	// Logger scopes log output to a shard; implementations typically
	// return a child of their own *slog.Logger with a shard_id attribute.
	Logger(shardID int32) *slog.Logger
}

type StateProvider interface {
	// Guilds
	GetGuild(ctx context.Context, guildID discord.Snowflake) (discord.Guild, bool)
	SetGuild(ctx context.Context, guildID discord.Snowflake, guild discord.Guild)
	RemoveGuild(ctx context.Context, guildID discord.Snowflake)

	// Guild Members
	GetGuildMembers(ctx context.Context, guildID discord.Snowflake) ([]discord.GuildMember, bool)

	GetGuildMember(ctx context.Context, guildID, userID discord.Snowflake) (discord.GuildMember, bool)
	SetGuildMember(ctx context.Context, guildID discord.Snowflake, member discord.GuildMember)
	RemoveGuildMember(ctx context.Context, guildID, userID discord.Snowflake)

	// Channels
	GetGuildChannels(ctx context.Context, guildID discord.Snowflake) ([]discord.Channel, bool)
	SetGuildChannels(ctx context.Context, guildID discord.Snowflake, channels []discord.Channel)

	GetGuildChannel(ctx context.Context, guildID, channelID discord.Snowflake) (discord.Channel, bool)
	SetGuildChannel(ctx context.Context, guildID discord.Snowflake, channel discord.Channel)
	RemoveGuildChannel(ctx context.Context, guildID, channelID discord.Snowflake)

	// Roles
	GetGuildRoles(ctx context.Context, guildID discord.Snowflake) ([]discord.Role, bool)
	SetGuildRoles(ctx context.Context, guildID discord.Snowflake, roles []discord.Role)

	GetGuildRole(ctx context.Context, guildID, roleID discord.Snowflake) (discord.Role, bool)
	SetGuildRole(ctx context.Context, guildID discord.Snowflake, role discord.Role)
	RemoveGuildRole(ctx context.Context, guildID, roleID discord.Snowflake)

	// Emojis
	GetGuildEmojis(ctx context.Context, guildID discord.Snowflake) ([]discord.Emoji, bool)
	SetGuildEmojis(ctx context.Context, guildID discord.Snowflake, emojis []discord.Emoji)

	GetGuildEmoji(ctx context.Context, guildID, emojiID discord.Snowflake) (discord.Emoji, bool)
	SetGuildEmoji(ctx context.Context, guildID discord.Snowflake, emoji discord.Emoji)
	RemoveGuildEmoji(ctx context.Context, guildID, emojiID discord.Snowflake)

	// Voice States
	GetVoiceStates(ctx context.Context, guildID discord.Snowflake) ([]discord.VoiceState, bool)

	GetVoiceState(ctx context.Context, guildID, userID discord.Snowflake) (discord.VoiceState, bool)
	SetVoiceState(ctx context.Context, guildID discord.Snowflake, voiceState discord.VoiceState)
	RemoveVoiceState(ctx context.Context, guildID, userID discord.Snowflake)

	// Users
	GetUser(ctx context.Context, userID discord.Snowflake) (discord.User, bool)
	SetUser(ctx context.Context, userID discord.Snowflake, user discord.User)

	// User Mutuals
	GetUserMutualGuilds(ctx context.Context, userID discord.Snowflake) ([]discord.Snowflake, bool)
	AddUserMutualGuild(ctx context.Context, userID, guildID discord.Snowflake)
	RemoveUserMutualGuild(ctx context.Context, userID, guildID discord.Snowflake)

	// Guild shard ownership: which shard is responsible for a guild,
	// set on GUILD_CREATE and cleared on GUILD_DELETE.
	GetGuildShard(ctx context.Context, guildID discord.Snowflake) (int32, bool)
	SetGuildShard(ctx context.Context, guildID discord.Snowflake, shardID int32)
	RemoveGuildShard(ctx context.Context, guildID discord.Snowflake)

	// Channel/thread -> guild reverse lookups, used to clean up a
	// guild's channel/thread entries on GUILD_DELETE without needing a
	// fresh channel list.
	GetChannelGuild(ctx context.Context, channelID discord.Snowflake) (discord.Snowflake, bool)
	SetChannelGuild(ctx context.Context, channelID, guildID discord.Snowflake)
	RemoveChannelGuild(ctx context.Context, channelID discord.Snowflake)

	GetThreadGuild(ctx context.Context, threadID discord.Snowflake) (discord.Snowflake, bool)
	SetThreadGuild(ctx context.Context, threadID, guildID discord.Snowflake)
	RemoveThreadGuild(ctx context.Context, threadID discord.Snowflake)

	// Unavailable guilds: guilds the gateway has flagged as outaged,
	// via either READY or a GUILD_DELETE with unavailable=true. These
	// are deliberately absent from the guild cache itself.
	GetUnavailableGuild(ctx context.Context, guildID discord.Snowflake) (discord.UnavailableGuild, bool)
	SetUnavailableGuild(ctx context.Context, guildID discord.Snowflake, guild discord.UnavailableGuild)
	RemoveUnavailableGuild(ctx context.Context, guildID discord.Snowflake)
}
