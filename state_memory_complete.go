package sandwich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/WelcomerTeam/Discord/discord"
	csmap "github.com/mhmtszr/concurrent-swiss-map"
	"github.com/sandwich-gateway/shard/pkg/syncmap"
)

// InMemoryClient is the reference Client implementation: every entity the
// shard reports is cached in process memory behind concurrent-swiss-map
// top-level maps and syncmap.Map per-guild submaps, with no persistence
// and no eviction beyond what GUILD_DELETE/CHANNEL_DELETE/etc. removes.
type InMemoryClient struct {
	logger *slog.Logger

	httpClient *http.Client
	gatewayURL string
	options    ShardOptions

	guilds        *csmap.CsMap[discord.Snowflake, discord.Guild]
	guildMembers  *csmap.CsMap[discord.Snowflake, *syncmap.Map[discord.Snowflake, discord.GuildMember]]
	guildChannels *csmap.CsMap[discord.Snowflake, *syncmap.Map[discord.Snowflake, discord.Channel]]
	guildRoles    *csmap.CsMap[discord.Snowflake, *syncmap.Map[discord.Snowflake, discord.Role]]
	guildEmojis   *csmap.CsMap[discord.Snowflake, *syncmap.Map[discord.Snowflake, discord.Emoji]]
	voiceStates   *csmap.CsMap[discord.Snowflake, *syncmap.Map[discord.Snowflake, discord.VoiceState]]
	users         *csmap.CsMap[discord.Snowflake, discord.User]
	userMutuals   *csmap.CsMap[discord.Snowflake, *syncmap.Map[discord.Snowflake, bool]]

	guildShards       *csmap.CsMap[discord.Snowflake, int32]
	channelGuilds     *csmap.CsMap[discord.Snowflake, discord.Snowflake]
	threadGuilds      *csmap.CsMap[discord.Snowflake, discord.Snowflake]
	unavailableGuilds *csmap.CsMap[discord.Snowflake, discord.UnavailableGuild]

	reactionsMu sync.Mutex
	reactions   map[string]map[string]ReactionState

	eventsMu sync.RWMutex
	handlers []func(ctx context.Context, shardID int32, event EventType, payload any)
}

// NewInMemoryClient builds an InMemoryClient. proxyHost, if non-empty, is
// used via NewProxyClient so GatewayURL's REST lookup goes through a
// gateway proxy (twilight, nirn) instead of discord.com directly.
func NewInMemoryClient(logger *slog.Logger, options ShardOptions, proxyHost string) *InMemoryClient {
	httpClient := http.DefaultClient

	if proxyHost != "" {
		if host, err := url.Parse(proxyHost); err == nil {
			httpClient = NewProxyClient(*http.DefaultClient, *host)
		}
	}

	return &InMemoryClient{
		logger:     logger,
		httpClient: httpClient,
		options:    options,

		guilds:        csmap.Create[discord.Snowflake, discord.Guild](),
		guildMembers:  csmap.Create[discord.Snowflake, *syncmap.Map[discord.Snowflake, discord.GuildMember]](),
		guildChannels: csmap.Create[discord.Snowflake, *syncmap.Map[discord.Snowflake, discord.Channel]](),
		guildRoles:    csmap.Create[discord.Snowflake, *syncmap.Map[discord.Snowflake, discord.Role]](),
		guildEmojis:   csmap.Create[discord.Snowflake, *syncmap.Map[discord.Snowflake, discord.Emoji]](),
		voiceStates:   csmap.Create[discord.Snowflake, *syncmap.Map[discord.Snowflake, discord.VoiceState]](),
		users:         csmap.Create[discord.Snowflake, discord.User](),
		userMutuals:   csmap.Create[discord.Snowflake, *syncmap.Map[discord.Snowflake, bool]](),

		guildShards:       csmap.Create[discord.Snowflake, int32](),
		channelGuilds:     csmap.Create[discord.Snowflake, discord.Snowflake](),
		threadGuilds:      csmap.Create[discord.Snowflake, discord.Snowflake](),
		unavailableGuilds: csmap.Create[discord.Snowflake, discord.UnavailableGuild](),

		reactions: make(map[string]map[string]ReactionState),
	}
}

func (s *InMemoryClient) GetGuild(_ context.Context, guildID discord.Snowflake) (discord.Guild, bool) {
	guild, guildExists := s.guilds.Load(guildID)

	if guildChannels, exists := s.guildChannels.Load(guildID); exists {
		guildChannels.Range(func(_ discord.Snowflake, value discord.Channel) bool {
			guild.Channels = append(guild.Channels, value)

			return true
		})
	}

	if guildRoles, exists := s.guildRoles.Load(guildID); exists {
		guildRoles.Range(func(_ discord.Snowflake, value discord.Role) bool {
			guild.Roles = append(guild.Roles, value)

			return true
		})
	}

	if guildEmojis, exists := s.guildEmojis.Load(guildID); exists {
		guildEmojis.Range(func(_ discord.Snowflake, value discord.Emoji) bool {
			guild.Emojis = append(guild.Emojis, value)

			return true
		})
	}

	return guild, guildExists
}

func (s *InMemoryClient) SetGuild(ctx context.Context, guildID discord.Snowflake, guild discord.Guild) {
	s.SetGuildMembers(ctx, guildID, guild.Members)
	guild.Members = nil

	s.SetGuildChannels(ctx, guildID, guild.Channels)
	guild.Channels = nil

	s.SetGuildRoles(ctx, guildID, guild.Roles)
	guild.Roles = nil

	s.SetGuildEmojis(ctx, guildID, guild.Emojis)
	guild.Emojis = nil

	s.guilds.Store(guildID, guild)
}

// RemoveGuild evicts guildID and every per-guild sub-collection cached
// for it (members, channels, roles, emojis, voice states). Other
// applications sharing this cache are not a concern here: InMemoryClient
// is one shard's own process-local cache, not a shared store.
func (s *InMemoryClient) RemoveGuild(_ context.Context, guildID discord.Snowflake) {
	s.guilds.Delete(guildID)
	s.guildMembers.Delete(guildID)
	s.guildChannels.Delete(guildID)
	s.guildRoles.Delete(guildID)
	s.guildEmojis.Delete(guildID)
	s.voiceStates.Delete(guildID)
}

func (s *InMemoryClient) GetGuildShard(_ context.Context, guildID discord.Snowflake) (int32, bool) {
	return s.guildShards.Load(guildID)
}

func (s *InMemoryClient) SetGuildShard(_ context.Context, guildID discord.Snowflake, shardID int32) {
	s.guildShards.Store(guildID, shardID)
}

func (s *InMemoryClient) RemoveGuildShard(_ context.Context, guildID discord.Snowflake) {
	s.guildShards.Delete(guildID)
}

func (s *InMemoryClient) GetChannelGuild(_ context.Context, channelID discord.Snowflake) (discord.Snowflake, bool) {
	return s.channelGuilds.Load(channelID)
}

func (s *InMemoryClient) SetChannelGuild(_ context.Context, channelID, guildID discord.Snowflake) {
	s.channelGuilds.Store(channelID, guildID)
}

func (s *InMemoryClient) RemoveChannelGuild(_ context.Context, channelID discord.Snowflake) {
	s.channelGuilds.Delete(channelID)
}

func (s *InMemoryClient) GetThreadGuild(_ context.Context, threadID discord.Snowflake) (discord.Snowflake, bool) {
	return s.threadGuilds.Load(threadID)
}

func (s *InMemoryClient) SetThreadGuild(_ context.Context, threadID, guildID discord.Snowflake) {
	s.threadGuilds.Store(threadID, guildID)
}

func (s *InMemoryClient) RemoveThreadGuild(_ context.Context, threadID discord.Snowflake) {
	s.threadGuilds.Delete(threadID)
}

func (s *InMemoryClient) GetUnavailableGuild(_ context.Context, guildID discord.Snowflake) (discord.UnavailableGuild, bool) {
	return s.unavailableGuilds.Load(guildID)
}

func (s *InMemoryClient) SetUnavailableGuild(_ context.Context, guildID discord.Snowflake, guild discord.UnavailableGuild) {
	s.unavailableGuilds.Store(guildID, guild)
}

func (s *InMemoryClient) RemoveUnavailableGuild(_ context.Context, guildID discord.Snowflake) {
	s.unavailableGuilds.Delete(guildID)
}

func (s *InMemoryClient) GetGuildMembers(_ context.Context, guildID discord.Snowflake) ([]discord.GuildMember, bool) {
	guildMembersState, exists := s.guildMembers.Load(guildID)
	if !exists {
		return nil, false
	}

	var guildMembers []discord.GuildMember

	guildMembersState.Range(func(_ discord.Snowflake, value discord.GuildMember) bool {
		guildMembers = append(guildMembers, value)

		return true
	})

	return guildMembers, exists
}

func (s *InMemoryClient) SetGuildMembers(_ context.Context, guildID discord.Snowflake, guildMembers []discord.GuildMember) {
	guildMembersState, ok := s.guildMembers.Load(guildID)
	if !ok {
		guildMembersState = &syncmap.Map[discord.Snowflake, discord.GuildMember]{}

		s.guildMembers.Store(guildID, guildMembersState)
	}

	for _, member := range guildMembers {
		if member.User == nil {
			continue
		}

		guildMembersState.Store(discord.Snowflake(member.User.ID), member)
	}
}

func (s *InMemoryClient) GetGuildMember(_ context.Context, guildID, userID discord.Snowflake) (discord.GuildMember, bool) {
	members, ok := s.guildMembers.Load(guildID)
	if !ok {
		return discord.GuildMember{}, false
	}

	return members.Load(userID)
}

func (s *InMemoryClient) SetGuildMember(_ context.Context, guildID discord.Snowflake, member discord.GuildMember) {
	if member.User == nil {
		return
	}

	guildMembersState, ok := s.guildMembers.Load(guildID)
	if !ok {
		guildMembersState = &syncmap.Map[discord.Snowflake, discord.GuildMember]{}

		s.guildMembers.Store(guildID, guildMembersState)
	}

	guildMembersState.Store(discord.Snowflake(member.User.ID), member)
}

func (s *InMemoryClient) RemoveGuildMember(_ context.Context, guildID, userID discord.Snowflake) {
	guildMembersState, ok := s.guildMembers.Load(guildID)
	if !ok {
		return
	}

	guildMembersState.Delete(userID)
}

func (s *InMemoryClient) GetGuildChannels(_ context.Context, guildID discord.Snowflake) ([]discord.Channel, bool) {
	guildChannelsState, ok := s.guildChannels.Load(guildID)
	if !ok {
		return nil, false
	}

	var guildChannels []discord.Channel

	guildChannelsState.Range(func(_ discord.Snowflake, value discord.Channel) bool {
		guildChannels = append(guildChannels, value)

		return true
	})

	return guildChannels, true
}

func (s *InMemoryClient) SetGuildChannels(_ context.Context, guildID discord.Snowflake, channels []discord.Channel) {
	guildChannelsState, ok := s.guildChannels.Load(guildID)
	if !ok {
		guildChannelsState = &syncmap.Map[discord.Snowflake, discord.Channel]{}

		s.guildChannels.Store(guildID, guildChannelsState)
	}

	for _, channel := range channels {
		guildChannelsState.Store(discord.Snowflake(channel.ID), channel)
	}
}

func (s *InMemoryClient) GetGuildChannel(_ context.Context, guildID, channelID discord.Snowflake) (discord.Channel, bool) {
	guildChannelsState, ok := s.guildChannels.Load(guildID)
	if !ok {
		return discord.Channel{}, false
	}

	return guildChannelsState.Load(channelID)
}

func (s *InMemoryClient) SetGuildChannel(_ context.Context, guildID discord.Snowflake, channel discord.Channel) {
	guildChannelsState, ok := s.guildChannels.Load(guildID)
	if !ok {
		guildChannelsState = &syncmap.Map[discord.Snowflake, discord.Channel]{}

		s.guildChannels.Store(guildID, guildChannelsState)
	}

	guildChannelsState.Store(discord.Snowflake(channel.ID), channel)
}

func (s *InMemoryClient) RemoveGuildChannel(_ context.Context, guildID, channelID discord.Snowflake) {
	guildChannelsState, ok := s.guildChannels.Load(guildID)
	if !ok {
		return
	}

	guildChannelsState.Delete(channelID)
}

func (s *InMemoryClient) GetGuildRoles(_ context.Context, guildID discord.Snowflake) ([]discord.Role, bool) {
	guildRolesState, ok := s.guildRoles.Load(guildID)
	if !ok {
		return nil, false
	}

	var guildRoles []discord.Role

	guildRolesState.Range(func(_ discord.Snowflake, value discord.Role) bool {
		guildRoles = append(guildRoles, value)

		return true
	})

	return guildRoles, true
}

func (s *InMemoryClient) SetGuildRoles(_ context.Context, guildID discord.Snowflake, roles []discord.Role) {
	guildRolesState, ok := s.guildRoles.Load(guildID)
	if !ok {
		guildRolesState = &syncmap.Map[discord.Snowflake, discord.Role]{}

		s.guildRoles.Store(guildID, guildRolesState)
	}

	for _, role := range roles {
		guildRolesState.Store(role.ID, role)
	}
}

func (s *InMemoryClient) GetGuildRole(_ context.Context, guildID, roleID discord.Snowflake) (discord.Role, bool) {
	guildRolesState, ok := s.guildRoles.Load(guildID)
	if !ok {
		return discord.Role{}, false
	}

	return guildRolesState.Load(roleID)
}

func (s *InMemoryClient) SetGuildRole(_ context.Context, guildID discord.Snowflake, role discord.Role) {
	guildRolesState, ok := s.guildRoles.Load(guildID)
	if !ok {
		guildRolesState = &syncmap.Map[discord.Snowflake, discord.Role]{}

		s.guildRoles.Store(guildID, guildRolesState)
	}

	guildRolesState.Store(role.ID, role)
}

func (s *InMemoryClient) RemoveGuildRole(_ context.Context, guildID, roleID discord.Snowflake) {
	guildRolesState, ok := s.guildRoles.Load(guildID)
	if !ok {
		return
	}

	guildRolesState.Delete(roleID)
}

func (s *InMemoryClient) GetGuildEmojis(_ context.Context, guildID discord.Snowflake) ([]discord.Emoji, bool) {
	guildEmojisState, ok := s.guildEmojis.Load(guildID)
	if !ok {
		return nil, false
	}

	var guildEmojis []discord.Emoji

	guildEmojisState.Range(func(_ discord.Snowflake, value discord.Emoji) bool {
		guildEmojis = append(guildEmojis, value)

		return true
	})

	return guildEmojis, true
}

func (s *InMemoryClient) SetGuildEmojis(_ context.Context, guildID discord.Snowflake, emojis []discord.Emoji) {
	guildEmojisState, ok := s.guildEmojis.Load(guildID)
	if !ok {
		guildEmojisState = &syncmap.Map[discord.Snowflake, discord.Emoji]{}

		s.guildEmojis.Store(guildID, guildEmojisState)
	}

	for _, emoji := range emojis {
		guildEmojisState.Store(emoji.ID, emoji)
	}
}

func (s *InMemoryClient) GetGuildEmoji(_ context.Context, guildID, emojiID discord.Snowflake) (discord.Emoji, bool) {
	guildEmojisState, ok := s.guildEmojis.Load(guildID)
	if !ok {
		return discord.Emoji{}, false
	}

	return guildEmojisState.Load(emojiID)
}

func (s *InMemoryClient) SetGuildEmoji(_ context.Context, guildID discord.Snowflake, emoji discord.Emoji) {
	guildEmojisState, ok := s.guildEmojis.Load(guildID)
	if !ok {
		guildEmojisState = &syncmap.Map[discord.Snowflake, discord.Emoji]{}

		s.guildEmojis.Store(guildID, guildEmojisState)
	}

	guildEmojisState.Store(emoji.ID, emoji)
}

func (s *InMemoryClient) RemoveGuildEmoji(_ context.Context, guildID, emojiID discord.Snowflake) {
	guildEmojisState, ok := s.guildEmojis.Load(guildID)
	if !ok {
		return
	}

	guildEmojisState.Delete(emojiID)
}

func (s *InMemoryClient) GetVoiceStates(_ context.Context, guildID discord.Snowflake) ([]discord.VoiceState, bool) {
	voiceStatesState, ok := s.voiceStates.Load(guildID)
	if !ok {
		return nil, false
	}

	var voiceStates []discord.VoiceState

	voiceStatesState.Range(func(_ discord.Snowflake, value discord.VoiceState) bool {
		voiceStates = append(voiceStates, value)

		return true
	})

	return voiceStates, true
}

func (s *InMemoryClient) GetVoiceState(_ context.Context, guildID, userID discord.Snowflake) (discord.VoiceState, bool) {
	voiceStatesState, ok := s.voiceStates.Load(guildID)
	if !ok {
		return discord.VoiceState{}, false
	}

	return voiceStatesState.Load(userID)
}

func (s *InMemoryClient) SetVoiceState(_ context.Context, guildID discord.Snowflake, voiceState discord.VoiceState) {
	voiceStatesState, ok := s.voiceStates.Load(guildID)
	if !ok {
		voiceStatesState = &syncmap.Map[discord.Snowflake, discord.VoiceState]{}

		s.voiceStates.Store(guildID, voiceStatesState)
	}

	voiceStatesState.Store(discord.Snowflake(voiceState.UserID), voiceState)
}

func (s *InMemoryClient) RemoveVoiceState(_ context.Context, guildID, userID discord.Snowflake) {
	voiceStatesState, ok := s.voiceStates.Load(guildID)
	if !ok {
		return
	}

	voiceStatesState.Delete(userID)
}

func (s *InMemoryClient) GetUser(_ context.Context, userID discord.Snowflake) (discord.User, bool) {
	user, ok := s.users.Load(userID)

	return user, ok
}

func (s *InMemoryClient) SetUser(_ context.Context, userID discord.Snowflake, user discord.User) {
	s.users.Store(userID, user)
}

func (s *InMemoryClient) GetUserMutualGuilds(_ context.Context, userID discord.Snowflake) ([]discord.Snowflake, bool) {
	userMutualsState, ok := s.userMutuals.Load(userID)
	if !ok {
		return nil, false
	}

	var userMutuals []discord.Snowflake

	userMutualsState.Range(func(key discord.Snowflake, _ bool) bool {
		userMutuals = append(userMutuals, key)

		return true
	})

	return userMutuals, true
}

func (s *InMemoryClient) AddUserMutualGuild(_ context.Context, userID, guildID discord.Snowflake) {
	userMutualsState, ok := s.userMutuals.Load(userID)
	if !ok {
		userMutualsState = &syncmap.Map[discord.Snowflake, bool]{}

		s.userMutuals.Store(userID, userMutualsState)
	}

	userMutualsState.Store(guildID, true)
}

func (s *InMemoryClient) RemoveUserMutualGuild(_ context.Context, userID, guildID discord.Snowflake) {
	userMutualsState, ok := s.userMutuals.Load(userID)
	if !ok {
		return
	}

	userMutualsState.Delete(guildID)
}

func reactionCacheKey(channelID, messageID discord.Snowflake) string {
	return fmt.Sprintf("%d:%d", channelID, messageID)
}

func (s *InMemoryClient) GetMessageReactions(_ context.Context, channelID, messageID discord.Snowflake) (map[string]ReactionState, bool) {
	s.reactionsMu.Lock()
	defer s.reactionsMu.Unlock()

	reactions, ok := s.reactions[reactionCacheKey(channelID, messageID)]

	return reactions, ok
}

func (s *InMemoryClient) SetMessageReactions(_ context.Context, channelID, messageID discord.Snowflake, reactions map[string]ReactionState) {
	s.reactionsMu.Lock()
	defer s.reactionsMu.Unlock()

	s.reactions[reactionCacheKey(channelID, messageID)] = reactions
}

// OnEvent registers a callback invoked by Emit. Unlike the rest of this
// type, handler registration is expected at startup only; Emit itself
// must stay cheap since it runs on the gateway read loop.
func (s *InMemoryClient) OnEvent(handler func(ctx context.Context, shardID int32, event EventType, payload any)) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	s.handlers = append(s.handlers, handler)
}

func (s *InMemoryClient) Emit(ctx context.Context, shardID int32, event EventType, payload any) {
	s.eventsMu.RLock()
	handlers := s.handlers
	s.eventsMu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, shardID, event, payload)
	}
}

func (s *InMemoryClient) GatewayURL(ctx context.Context) (string, error) {
	if s.gatewayURL != "" {
		return s.gatewayURL, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discord.EndpointGatewayBot, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build gateway bot request: %w", err)
	}

	req.Header.Set("Authorization", "Bot "+s.options.BotToken)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch gateway bot url: %w", err)
	}

	defer resp.Body.Close()

	var gatewayBot discord.GatewayBotResponse

	if err := json.NewDecoder(resp.Body).Decode(&gatewayBot); err != nil {
		return "", fmt.Errorf("failed to decode gateway bot response: %w", err)
	}

	s.gatewayURL = gatewayBot.URL

	return s.gatewayURL, nil
}

func (s *InMemoryClient) Options(_ context.Context) ShardOptions {
	return s.options
}

func (s *InMemoryClient) Logger(shardID int32) *slog.Logger {
	return s.logger.With("shard_id", shardID)
}
