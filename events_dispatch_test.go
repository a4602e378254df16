package sandwich

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingClient wraps an InMemoryClient's cache but records every
// emitted event for assertions, without pulling promhttp or a real
// socket into the test.
type recordingClient struct {
	*InMemoryClient

	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	shardID int32
	event   EventType
	payload any
}

func newRecordingClient(options ShardOptions) *recordingClient {
	return &recordingClient{InMemoryClient: NewInMemoryClient(slog.Default(), options, "")}
}

func (c *recordingClient) Emit(ctx context.Context, shardID int32, event EventType, payload any) {
	c.mu.Lock()
	c.events = append(c.events, recordedEvent{shardID: shardID, event: event, payload: payload})
	c.mu.Unlock()

	c.InMemoryClient.Emit(ctx, shardID, event, payload)
}

func testController(t *testing.T, client Client, options ShardOptions) *ShardController {
	t.Helper()

	return NewShardController(client, options)
}

func TestHandleGuildCreateEmitsCreateThenAvailable(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	packet := &Packet{Data: []byte(`{"id":"100"}`)}

	require.NoError(t, handleGuildCreate(context.Background(), sc, packet))

	guild, ok := client.GetGuild(context.Background(), 100)
	assert.True(t, ok)
	assert.Equal(t, discord.Snowflake(100), guild.ID)

	require.NoError(t, handleGuildCreate(context.Background(), sc, packet))

	client.mu.Lock()
	defer client.mu.Unlock()

	require.Len(t, client.events, 2)
	assert.Equal(t, EventGuildCreate, client.events[0].event)
	assert.Equal(t, EventGuildAvailable, client.events[1].event)
}

func TestHandleGuildDeleteUnavailableVsKicked(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	require.NoError(t, handleGuildCreate(context.Background(), sc, &Packet{Data: []byte(`{"id":"200"}`)}))

	require.NoError(t, handleGuildDelete(context.Background(), sc, &Packet{
		Data: []byte(`{"id":"200","unavailable":true}`),
	}))

	client.mu.Lock()
	last := client.events[len(client.events)-1]
	client.mu.Unlock()

	assert.Equal(t, EventGuildUnavailable, last.event)

	require.NoError(t, handleGuildDelete(context.Background(), sc, &Packet{
		Data: []byte(`{"id":"200"}`),
	}))

	client.mu.Lock()
	last = client.events[len(client.events)-1]
	client.mu.Unlock()

	assert.Equal(t, EventGuildDelete, last.event)

	payload, ok := last.payload.(GuildDeletePayload)
	require.True(t, ok)
	assert.Equal(t, discord.Snowflake(200), payload.Guild.ID)
}

func TestHandleGuildDeleteUncachedStillReportsStub(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	require.NoError(t, handleGuildDelete(context.Background(), sc, &Packet{
		Data: []byte(`{"id":"300"}`),
	}))

	client.mu.Lock()
	last := client.events[len(client.events)-1]
	client.mu.Unlock()

	payload, ok := last.payload.(GuildDeletePayload)
	require.True(t, ok)
	assert.False(t, payload.Guild.Cached)
	assert.Equal(t, discord.Snowflake(300), payload.Guild.ID)
}

func TestHandleGuildMembersChunkObservesAndEmits(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	req := sc.members.Register(discord.Snowflake(1), "nonce-xyz")

	require.NoError(t, handleGuildMembersChunk(context.Background(), sc, &Packet{
		Data: []byte(`{"guild_id":"1","members":[{"user":{"id":"9"}}],"chunk_index":0,"chunk_count":1,"nonce":"nonce-xyz"}`),
	}))

	members, err := sc.members.Wait(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	_, ok := client.GetGuildMember(context.Background(), discord.Snowflake(1), discord.Snowflake(9))
	assert.True(t, ok)
}

func TestHandleVoiceStateUpdateJoinLeaveSwitch(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	require.NoError(t, handleVoiceStateUpdate(context.Background(), sc, &Packet{
		Data: []byte(`{"guild_id":"1","user_id":"9","channel_id":"50"}`),
	}))

	client.mu.Lock()
	last := client.events[len(client.events)-1]
	client.mu.Unlock()
	assert.Equal(t, EventVoiceChannelJoin, last.event)

	require.NoError(t, handleVoiceStateUpdate(context.Background(), sc, &Packet{
		Data: []byte(`{"guild_id":"1","user_id":"9","channel_id":"60"}`),
	}))

	client.mu.Lock()
	last = client.events[len(client.events)-1]
	client.mu.Unlock()
	assert.Equal(t, EventVoiceChannelSwitch, last.event)

	require.NoError(t, handleVoiceStateUpdate(context.Background(), sc, &Packet{
		Data: []byte(`{"guild_id":"1","user_id":"9","channel_id":null}`),
	}))

	client.mu.Lock()
	last = client.events[len(client.events)-1]
	client.mu.Unlock()
	assert.Equal(t, EventVoiceChannelLeave, last.event)
}

func TestHandleMessageReactionAddAndRemove(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	add := &Packet{Data: []byte(`{"channel_id":"1","message_id":"2","user_id":"3","emoji":{"name":"🔥"}}`)}

	require.NoError(t, handleMessageReactionAdd(context.Background(), sc, add))
	require.NoError(t, handleMessageReactionAdd(context.Background(), sc, add))

	reactions, ok := client.GetMessageReactions(context.Background(), 1, 2)
	require.True(t, ok)
	assert.Equal(t, int32(2), reactions["🔥"].Count)

	require.NoError(t, handleMessageReactionRemove(context.Background(), sc, add))

	reactions, ok = client.GetMessageReactions(context.Background(), 1, 2)
	require.True(t, ok)
	assert.Equal(t, int32(1), reactions["🔥"].Count)
}

func TestHandleReadyStoresSessionAndEmits(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	packet := &Packet{Data: []byte(`{"v":10,"session_id":"sess-1","resume_gateway_url":"wss://example.invalid","guilds":[]}`)}

	require.NoError(t, handleReady(context.Background(), sc, packet))

	assert.Equal(t, "sess-1", sc.session.SessionID())
	assert.True(t, sc.session.Ready())

	client.mu.Lock()
	defer client.mu.Unlock()

	require.Len(t, client.events, 2)
	assert.Equal(t, EventPreReady, client.events[0].event)
	assert.Equal(t, EventReady, client.events[1].event)
}

func TestHandleReadyNormalizesResumeURL(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	packet := &Packet{Data: []byte(`{"v":10,"session_id":"sess-1","resume_gateway_url":"wss://example.invalid/?foo=1","guilds":[]}`)}

	require.NoError(t, handleReady(context.Background(), sc, packet))

	assert.Equal(t, "wss://example.invalid/?v=10&encoding=json", sc.session.ResumeURL())
}

func TestHandleReadyDefersReadyUntilGuildsHydrate(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x", GuildCreateTimeout: time.Hour})

	packet := &Packet{Data: []byte(`{"v":10,"session_id":"sess-1","resume_gateway_url":"wss://example.invalid","guilds":[{"id":"100","unavailable":true}]}`)}

	require.NoError(t, handleReady(context.Background(), sc, packet))

	client.mu.Lock()
	readyEmitted := len(client.events) == 2
	client.mu.Unlock()

	assert.False(t, readyEmitted, "ready should stay pending until guild 100 hydrates")
	assert.False(t, sc.session.Ready())

	require.NoError(t, handleGuildCreate(context.Background(), sc, &Packet{Data: []byte(`{"id":"100"}`)}))

	assert.True(t, sc.session.Ready())

	client.mu.Lock()
	defer client.mu.Unlock()

	var sawReady bool

	for _, evt := range client.events {
		if evt.event == EventReady {
			sawReady = true
		}
	}

	assert.True(t, sawReady)
}

func TestHandleGuildCreateIndexesShardAndChannelMaps(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	packet := &Packet{Data: []byte(`{
		"id":"500",
		"channels":[{"id":"501","type":0}],
		"threads":[{"id":"502","type":11}]
	}`)}

	require.NoError(t, handleGuildCreate(context.Background(), sc, packet))

	shardID, ok := client.GetGuildShard(context.Background(), 500)
	require.True(t, ok)
	assert.Equal(t, sc.shardID, shardID)

	guildID, ok := client.GetChannelGuild(context.Background(), 501)
	require.True(t, ok)
	assert.Equal(t, discord.Snowflake(500), guildID)

	guildID, ok = client.GetThreadGuild(context.Background(), 502)
	require.True(t, ok)
	assert.Equal(t, discord.Snowflake(500), guildID)
}

func TestHandleGuildCreateUnavailableStoresUnavailableGuild(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	require.NoError(t, handleGuildCreate(context.Background(), sc, &Packet{
		Data: []byte(`{"id":"600","unavailable":true}`),
	}))

	_, cached := client.GetGuild(context.Background(), 600)
	assert.False(t, cached, "an outage-flagged guild must not enter the guild cache")

	unavailable, ok := client.GetUnavailableGuild(context.Background(), 600)
	require.True(t, ok)
	assert.True(t, unavailable.Unavailable)
}

func TestHandleReadyPopulatesUnavailableGuilds(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x", GuildCreateTimeout: time.Hour})

	packet := &Packet{Data: []byte(`{"v":10,"session_id":"sess-1","resume_gateway_url":"wss://example.invalid","guilds":[{"id":"700","unavailable":true}]}`)}

	require.NoError(t, handleReady(context.Background(), sc, packet))

	unavailable, ok := client.GetUnavailableGuild(context.Background(), 700)
	require.True(t, ok)
	assert.True(t, unavailable.Unavailable)
}

func TestHandleGuildDeleteKickedRemovesFromCache(t *testing.T) {
	t.Parallel()

	client := newRecordingClient(ShardOptions{BotToken: "x"})
	sc := testController(t, client, ShardOptions{BotToken: "x"})

	require.NoError(t, handleGuildCreate(context.Background(), sc, &Packet{
		Data: []byte(`{"id":"400","channels":[{"id":"401","type":0}]}`),
	}))

	_, ok := client.GetGuild(context.Background(), 400)
	require.True(t, ok)

	_, ok = client.GetGuildShard(context.Background(), 400)
	require.True(t, ok)

	require.NoError(t, handleGuildDelete(context.Background(), sc, &Packet{
		Data: []byte(`{"id":"400"}`),
	}))

	_, ok = client.GetGuild(context.Background(), 400)
	assert.False(t, ok, "a kicked guild must be evicted from the cache")

	_, ok = client.GetGuildShard(context.Background(), 400)
	assert.False(t, ok, "guildShardMap entry must be removed on GUILD_DELETE")

	_, ok = client.GetChannelGuild(context.Background(), 401)
	assert.False(t, ok, "channelGuildMap entry must be removed on GUILD_DELETE")
}
