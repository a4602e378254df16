package sandwich

import (
	"context"
	"fmt"
	"strconv"

	"github.com/WelcomerTeam/Discord/discord"
)

func init() {
	registerDispatchHandler("READY", handleReady)
	registerDispatchHandler("RESUMED", handleResumed)

	registerDispatchHandler("GUILD_CREATE", handleGuildCreate)
	registerDispatchHandler("GUILD_UPDATE", handleGuildUpdate)
	registerDispatchHandler("GUILD_DELETE", handleGuildDelete)

	registerDispatchHandler("GUILD_MEMBER_ADD", handleGuildMemberAdd)
	registerDispatchHandler("GUILD_MEMBER_UPDATE", handleGuildMemberUpdate)
	registerDispatchHandler("GUILD_MEMBER_REMOVE", handleGuildMemberRemove)
	registerDispatchHandler("GUILD_MEMBERS_CHUNK", handleGuildMembersChunk)

	registerDispatchHandler("GUILD_ROLE_CREATE", handleGuildRoleCreate)
	registerDispatchHandler("GUILD_ROLE_UPDATE", handleGuildRoleUpdate)
	registerDispatchHandler("GUILD_ROLE_DELETE", handleGuildRoleDelete)

	registerDispatchHandler("GUILD_EMOJIS_UPDATE", handleGuildEmojisUpdate)

	registerDispatchHandler("CHANNEL_CREATE", handleChannelCreate)
	registerDispatchHandler("CHANNEL_UPDATE", handleChannelUpdate)
	registerDispatchHandler("CHANNEL_DELETE", handleChannelDelete)

	registerDispatchHandler("VOICE_STATE_UPDATE", handleVoiceStateUpdate)

	registerDispatchHandler("MESSAGE_REACTION_ADD", handleMessageReactionAdd)
	registerDispatchHandler("MESSAGE_REACTION_REMOVE", handleMessageReactionRemove)
	registerDispatchHandler("MESSAGE_REACTION_REMOVE_ALL", handleMessageReactionRemoveAll)
	registerDispatchHandler("MESSAGE_REACTION_REMOVE_EMOJI", handleMessageReactionRemoveEmoji)

	registerDispatchHandler("USER_UPDATE", handleUserUpdate)
}

func handleReady(ctx context.Context, sc *ShardController, packet *Packet) error {
	var ready readyEventData

	if err := unmarshalPayload(packet, &ready); err != nil {
		return fmt.Errorf("failed to unmarshal ready: %w", err)
	}

	sc.session.SetSessionID(ready.SessionID)
	sc.session.SetResumeURL(normalizeResumeURL(ready.ResumeGatewayURL, sc.encodingParam()))
	sc.session.SetPreReady(true)
	sc.session.ResetConnectAttempts()
	sc.session.ResetReconnectInterval()

	sc.client.Emit(ctx, sc.shardID, EventPreReady, PreReadyPayload{})

	for _, ref := range ready.Guilds {
		parsed, err := strconv.ParseInt(ref.ID, 10, 64)
		if err != nil {
			continue
		}

		guildID := discord.Snowflake(parsed)

		sc.client.SetUnavailableGuild(ctx, guildID, discord.UnavailableGuild{
			ID:          guildID,
			Unavailable: ref.Unavailable,
		})
	}

	if sc.options.ChunkGuildsOnStart {
		go sc.chunkAllGuilds(ready.Guilds)
	}

	sc.beginGuildHydration(ctx, ready.Guilds)

	return nil
}

func handleResumed(ctx context.Context, sc *ShardController, _ *Packet) error {
	sc.session.ResetConnectAttempts()
	sc.session.ResetReconnectInterval()

	sc.client.Emit(ctx, sc.shardID, EventResumed, ResumedPayload{})
	sc.markReady()

	return nil
}

// chunkAllGuilds requests members for every guild READY announced as
// available (not in the unavailable list), one at a time, so startup
// chunking does not flood the global bucket.
func (sc *ShardController) chunkAllGuilds(guilds []unavailableRef) {
	ctx := context.Background()

	for _, ref := range guilds {
		if ref.Unavailable {
			continue
		}

		parsed, err := strconv.ParseInt(ref.ID, 10, 64)
		if err != nil {
			continue
		}

		id := discord.Snowflake(parsed)

		if _, err := sc.RequestGuildMembers(ctx, id, RequestGuildMembersOptions{}); err != nil {
			sc.logger.Warn("failed to chunk guild on start", "guild_id", ref.ID, "error", err)
		}
	}
}

// isThreadChannelType reports whether t is one of the thread channel
// types, which route into threadGuildMap rather than channelGuildMap.
func isThreadChannelType(t discord.ChannelType) bool {
	switch t {
	case discord.ChannelTypeAnnouncementThread, discord.ChannelTypeGuildPublicThread, discord.ChannelTypeGuildPrivateThread:
		return true
	default:
		return false
	}
}

// indexGuildChannels records guildID against every one of its channels
// and threads in channelGuildMap/threadGuildMap, so GUILD_DELETE can undo
// the mapping for a guild it otherwise has no cached channel list for.
func indexGuildChannels(ctx context.Context, sc *ShardController, guildID discord.Snowflake, channels, threads []discord.Channel) {
	for _, channel := range channels {
		sc.client.SetChannelGuild(ctx, discord.Snowflake(channel.ID), guildID)
	}

	for _, thread := range threads {
		sc.client.SetThreadGuild(ctx, discord.Snowflake(thread.ID), guildID)
	}
}

func handleGuildCreate(ctx context.Context, sc *ShardController, packet *Packet) error {
	var guild discord.Guild

	if err := unmarshalPayload(packet, &guild); err != nil {
		return fmt.Errorf("failed to unmarshal guild create: %w", err)
	}

	guildID := discord.Snowflake(guild.ID)
	ctx = WithGuildID(ctx, guildID)

	// An outage-flagged guild never reaches the cache: it is evicted (if
	// previously cached) and tracked as unavailable instead, mirroring
	// GUILD_DELETE's unavailable branch rather than an upsert.
	if guild.Unavailable {
		sc.client.RemoveGuild(ctx, guildID)
		sc.client.SetUnavailableGuild(ctx, guildID, discord.UnavailableGuild{ID: guild.ID, Unavailable: true})

		return nil
	}

	_, wasCached := sc.client.GetGuild(ctx, guildID)

	_, wasUnavailable := sc.client.GetUnavailableGuild(ctx, guildID)
	sc.client.RemoveUnavailableGuild(ctx, guildID)

	sc.client.SetGuild(ctx, guildID, guild)
	sc.client.SetGuildShard(ctx, guildID, sc.shardID)

	indexGuildChannels(ctx, sc, guildID, guild.Channels, guild.Threads)

	if wasCached || wasUnavailable {
		sc.client.Emit(ctx, sc.shardID, EventGuildAvailable, GuildAvailablePayload{Guild: guild})
	} else {
		sc.client.Emit(ctx, sc.shardID, EventGuildCreate, GuildCreatePayload{Guild: guild})
	}

	sc.observeGuildHydrated(ctx, guildID)

	return nil
}

func handleGuildUpdate(ctx context.Context, sc *ShardController, packet *Packet) error {
	var guild discord.Guild

	if err := unmarshalPayload(packet, &guild); err != nil {
		return fmt.Errorf("failed to unmarshal guild update: %w", err)
	}

	ctx = WithGuildID(ctx, discord.Snowflake(guild.ID))

	sc.client.SetGuild(ctx, discord.Snowflake(guild.ID), guild)

	return nil
}

type guildDeletePayload struct {
	ID          discord.Snowflake `json:"id"`
	Unavailable bool              `json:"unavailable"`
}

func handleGuildDelete(ctx context.Context, sc *ShardController, packet *Packet) error {
	var payload guildDeletePayload

	if err := unmarshalPayload(packet, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal guild delete: %w", err)
	}

	ctx = WithGuildID(ctx, payload.ID)

	guild, cached := sc.client.GetGuild(ctx, payload.ID)

	stub := GuildOrStub{ID: payload.ID, Guild: guild, Cached: cached}

	sc.client.RemoveGuildShard(ctx, payload.ID)

	if cached {
		for _, channel := range guild.Channels {
			sc.client.RemoveChannelGuild(ctx, discord.Snowflake(channel.ID))
		}

		for _, thread := range guild.Threads {
			sc.client.RemoveThreadGuild(ctx, discord.Snowflake(thread.ID))
		}
	}

	if payload.Unavailable {
		sc.client.RemoveGuild(ctx, payload.ID)
		sc.client.SetUnavailableGuild(ctx, payload.ID, discord.UnavailableGuild{ID: payload.ID, Unavailable: true})
		sc.client.Emit(ctx, sc.shardID, EventGuildUnavailable, GuildUnavailablePayload{GuildID: payload.ID})

		return nil
	}

	// A bot kicked from an uncached guild is reported as a stub with
	// Cached=false rather than silently dropped: the caller still learns
	// the guild ID is gone even though there was nothing to evict.
	sc.client.RemoveGuild(ctx, payload.ID)
	sc.client.Emit(ctx, sc.shardID, EventGuildDelete, GuildDeletePayload{Guild: stub})

	return nil
}

func handleGuildMemberAdd(ctx context.Context, sc *ShardController, packet *Packet) error {
	var member discord.GuildMember

	if err := unmarshalPayload(packet, &member); err != nil {
		return fmt.Errorf("failed to unmarshal guild member add: %w", err)
	}

	guildID, ok := guildIDFromPacket(packet)
	if !ok {
		return nil
	}

	ctx = WithGuildID(ctx, guildID)

	sc.client.SetGuildMember(ctx, guildID, member)

	return nil
}

func handleGuildMemberUpdate(ctx context.Context, sc *ShardController, packet *Packet) error {
	return handleGuildMemberAdd(ctx, sc, packet)
}

type guildMemberRemovePayload struct {
	GuildID discord.Snowflake `json:"guild_id"`
	User    discord.User      `json:"user"`
}

func handleGuildMemberRemove(ctx context.Context, sc *ShardController, packet *Packet) error {
	var payload guildMemberRemovePayload

	if err := unmarshalPayload(packet, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal guild member remove: %w", err)
	}

	ctx = WithGuildID(ctx, payload.GuildID)

	sc.client.RemoveGuildMember(ctx, payload.GuildID, discord.Snowflake(payload.User.ID))

	return nil
}

type guildMembersChunkPayload struct {
	GuildID    discord.Snowflake     `json:"guild_id"`
	Members    []discord.GuildMember `json:"members"`
	ChunkIndex int32                 `json:"chunk_index"`
	ChunkCount int32                 `json:"chunk_count"`
	Nonce      string                `json:"nonce"`
}

func handleGuildMembersChunk(ctx context.Context, sc *ShardController, packet *Packet) error {
	var payload guildMembersChunkPayload

	if err := unmarshalPayload(packet, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal guild members chunk: %w", err)
	}

	ctx = WithGuildID(ctx, payload.GuildID)

	for _, member := range payload.Members {
		sc.client.SetGuildMember(ctx, payload.GuildID, member)
	}

	if payload.Nonce != "" {
		sc.members.Observe(payload.Nonce, payload.Members, payload.ChunkIndex, payload.ChunkCount)
	}

	sc.client.Emit(ctx, sc.shardID, EventGuildMemberChunk, GuildMemberChunkPayload{
		GuildID:    payload.GuildID,
		Members:    payload.Members,
		ChunkIndex: payload.ChunkIndex,
		ChunkCount: payload.ChunkCount,
		Nonce:      payload.Nonce,
	})

	return nil
}

type guildRoleCreatePayload struct {
	GuildID discord.Snowflake `json:"guild_id"`
	Role    discord.Role      `json:"role"`
}

func handleGuildRoleCreate(ctx context.Context, sc *ShardController, packet *Packet) error {
	var payload guildRoleCreatePayload

	if err := unmarshalPayload(packet, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal guild role create: %w", err)
	}

	ctx = WithGuildID(ctx, payload.GuildID)

	sc.client.SetGuildRole(ctx, payload.GuildID, payload.Role)

	return nil
}

func handleGuildRoleUpdate(ctx context.Context, sc *ShardController, packet *Packet) error {
	return handleGuildRoleCreate(ctx, sc, packet)
}

type guildRoleDeletePayload struct {
	GuildID discord.Snowflake `json:"guild_id"`
	RoleID  discord.Snowflake `json:"role_id"`
}

func handleGuildRoleDelete(ctx context.Context, sc *ShardController, packet *Packet) error {
	var payload guildRoleDeletePayload

	if err := unmarshalPayload(packet, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal guild role delete: %w", err)
	}

	ctx = WithGuildID(ctx, payload.GuildID)

	sc.client.RemoveGuildRole(ctx, payload.GuildID, payload.RoleID)

	return nil
}

type guildEmojisUpdatePayload struct {
	GuildID discord.Snowflake `json:"guild_id"`
	Emojis  []discord.Emoji   `json:"emojis"`
}

func handleGuildEmojisUpdate(ctx context.Context, sc *ShardController, packet *Packet) error {
	var payload guildEmojisUpdatePayload

	if err := unmarshalPayload(packet, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal guild emojis update: %w", err)
	}

	ctx = WithGuildID(ctx, payload.GuildID)

	sc.client.SetGuildEmojis(ctx, payload.GuildID, payload.Emojis)

	return nil
}

func handleChannelCreate(ctx context.Context, sc *ShardController, packet *Packet) error {
	var channel discord.Channel

	if err := unmarshalPayload(packet, &channel); err != nil {
		return fmt.Errorf("failed to unmarshal channel create: %w", err)
	}

	if channel.GuildID == nil {
		return nil
	}

	ctx = WithGuildID(ctx, discord.Snowflake(*channel.GuildID))

	guildID := discord.Snowflake(*channel.GuildID)

	sc.client.SetGuildChannel(ctx, guildID, channel)

	if isThreadChannelType(channel.Type) {
		sc.client.SetThreadGuild(ctx, discord.Snowflake(channel.ID), guildID)
	} else {
		sc.client.SetChannelGuild(ctx, discord.Snowflake(channel.ID), guildID)
	}

	return nil
}

func handleChannelUpdate(ctx context.Context, sc *ShardController, packet *Packet) error {
	return handleChannelCreate(ctx, sc, packet)
}

func handleChannelDelete(ctx context.Context, sc *ShardController, packet *Packet) error {
	var channel discord.Channel

	if err := unmarshalPayload(packet, &channel); err != nil {
		return fmt.Errorf("failed to unmarshal channel delete: %w", err)
	}

	if channel.GuildID == nil {
		return nil
	}

	ctx = WithGuildID(ctx, discord.Snowflake(*channel.GuildID))

	sc.client.RemoveGuildChannel(ctx, discord.Snowflake(*channel.GuildID), discord.Snowflake(channel.ID))

	if isThreadChannelType(channel.Type) {
		sc.client.RemoveThreadGuild(ctx, discord.Snowflake(channel.ID))
	} else {
		sc.client.RemoveChannelGuild(ctx, discord.Snowflake(channel.ID))
	}

	return nil
}

func handleVoiceStateUpdate(ctx context.Context, sc *ShardController, packet *Packet) error {
	var voiceState discord.VoiceState

	if err := unmarshalPayload(packet, &voiceState); err != nil {
		return fmt.Errorf("failed to unmarshal voice state update: %w", err)
	}

	if voiceState.GuildID == nil {
		return nil
	}

	guildID := discord.Snowflake(*voiceState.GuildID)
	userID := discord.Snowflake(voiceState.UserID)

	var channelID discord.Snowflake
	if voiceState.ChannelID != nil {
		channelID = *voiceState.ChannelID
	}

	ctx = WithGuildID(ctx, guildID)

	previous, hadPrevious := sc.client.GetVoiceState(ctx, guildID, userID)

	var previousChannelID discord.Snowflake
	if previous.ChannelID != nil {
		previousChannelID = *previous.ChannelID
	}

	if channelID == 0 {
		sc.client.RemoveVoiceState(ctx, guildID, userID)

		if hadPrevious && previousChannelID != 0 {
			sc.client.Emit(ctx, sc.shardID, EventVoiceChannelLeave, VoiceChannelLeavePayload{
				GuildID:   guildID,
				UserID:    userID,
				ChannelID: previousChannelID,
			})
		}

		return nil
	}

	sc.client.SetVoiceState(ctx, guildID, voiceState)

	switch {
	case !hadPrevious || previousChannelID == 0:
		sc.client.Emit(ctx, sc.shardID, EventVoiceChannelJoin, VoiceChannelJoinPayload{
			GuildID:   guildID,
			UserID:    userID,
			ChannelID: channelID,
		})
	case previousChannelID != channelID:
		sc.client.Emit(ctx, sc.shardID, EventVoiceChannelSwitch, VoiceChannelSwitchPayload{
			GuildID: guildID,
			UserID:  userID,
			From:    previousChannelID,
			To:      channelID,
		})
	}

	return nil
}

type messageReactionPayload struct {
	ChannelID discord.Snowflake `json:"channel_id"`
	MessageID discord.Snowflake `json:"message_id"`
	UserID    discord.Snowflake `json:"user_id"`
	Emoji     discord.Emoji     `json:"emoji"`
}

func reactionKey(emoji discord.Emoji) string {
	if emoji.ID != 0 {
		return emoji.ID.String()
	}

	return emoji.Name
}

func handleMessageReactionAdd(ctx context.Context, sc *ShardController, packet *Packet) error {
	var payload messageReactionPayload

	if err := unmarshalPayload(packet, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal message reaction add: %w", err)
	}

	reactions, _ := sc.client.GetMessageReactions(ctx, payload.ChannelID, payload.MessageID)
	if reactions == nil {
		reactions = make(map[string]ReactionState)
	}

	key := reactionKey(payload.Emoji)
	state := reactions[key]
	state.Count++
	reactions[key] = state

	sc.client.SetMessageReactions(ctx, payload.ChannelID, payload.MessageID, reactions)

	return nil
}

func handleMessageReactionRemove(ctx context.Context, sc *ShardController, packet *Packet) error {
	var payload messageReactionPayload

	if err := unmarshalPayload(packet, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal message reaction remove: %w", err)
	}

	reactions, ok := sc.client.GetMessageReactions(ctx, payload.ChannelID, payload.MessageID)
	if !ok {
		return nil
	}

	key := reactionKey(payload.Emoji)

	state, ok := reactions[key]
	if !ok {
		return nil
	}

	state.Count--
	if state.Count <= 0 {
		delete(reactions, key)
	} else {
		reactions[key] = state
	}

	sc.client.SetMessageReactions(ctx, payload.ChannelID, payload.MessageID, reactions)

	return nil
}

type messageReactionRemoveAllPayload struct {
	ChannelID discord.Snowflake `json:"channel_id"`
	MessageID discord.Snowflake `json:"message_id"`
}

func handleMessageReactionRemoveAll(ctx context.Context, sc *ShardController, packet *Packet) error {
	var payload messageReactionRemoveAllPayload

	if err := unmarshalPayload(packet, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal message reaction remove all: %w", err)
	}

	sc.client.SetMessageReactions(ctx, payload.ChannelID, payload.MessageID, map[string]ReactionState{})

	return nil
}

type messageReactionRemoveEmojiPayload struct {
	ChannelID discord.Snowflake `json:"channel_id"`
	MessageID discord.Snowflake `json:"message_id"`
	Emoji     discord.Emoji     `json:"emoji"`
}

func handleMessageReactionRemoveEmoji(ctx context.Context, sc *ShardController, packet *Packet) error {
	var payload messageReactionRemoveEmojiPayload

	if err := unmarshalPayload(packet, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal message reaction remove emoji: %w", err)
	}

	reactions, ok := sc.client.GetMessageReactions(ctx, payload.ChannelID, payload.MessageID)
	if !ok {
		return nil
	}

	delete(reactions, reactionKey(payload.Emoji))
	sc.client.SetMessageReactions(ctx, payload.ChannelID, payload.MessageID, reactions)

	return nil
}

func handleUserUpdate(ctx context.Context, sc *ShardController, packet *Packet) error {
	var user discord.User

	if err := unmarshalPayload(packet, &user); err != nil {
		return fmt.Errorf("failed to unmarshal user update: %w", err)
	}

	sc.client.SetUser(ctx, discord.Snowflake(user.ID), user)

	return nil
}

// guildIDFromPacket recovers a guild_id field some dispatch payloads
// carry alongside an otherwise self-contained entity (GUILD_MEMBER_ADD's
// GuildMember itself has no GuildID field on the wire).
func guildIDFromPacket(packet *Packet) (discord.Snowflake, bool) {
	var wrapper struct {
		GuildID discord.Snowflake `json:"guild_id"`
	}

	if err := unmarshalPayload(packet, &wrapper); err != nil {
		return 0, false
	}

	return wrapper.GuildID, wrapper.GuildID != 0
}
