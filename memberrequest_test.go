package sandwich

import (
	"context"
	"testing"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberRequestTableResolvesOnFinalChunk(t *testing.T) {
	t.Parallel()

	table := NewMemberRequestTable(time.Second)

	req := table.Register(discord.Snowflake(1), "nonce-1")

	table.Observe("nonce-1", []discord.GuildMember{{}, {}}, 0, 2)
	table.Observe("nonce-1", []discord.GuildMember{{}}, 1, 2)

	members, err := table.Wait(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, members, 3)
	assert.False(t, req.TimedOut())
	assert.Equal(t, 0, table.Len())
}

func TestMemberRequestTableTimeoutResolvesWithPartialMembers(t *testing.T) {
	t.Parallel()

	table := NewMemberRequestTable(30 * time.Millisecond)

	req := table.Register(discord.Snowflake(1), "nonce-2")

	table.Observe("nonce-2", []discord.GuildMember{{}}, 0, 3)

	members, err := table.Wait(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, members, 1, "partial members accumulated before timeout are still returned")
	assert.True(t, req.TimedOut())
}

func TestMemberRequestTableObserveUnknownNonceIsNoop(t *testing.T) {
	t.Parallel()

	table := NewMemberRequestTable(time.Second)

	// Must not panic or otherwise misbehave for a nonce this table never
	// registered.
	table.Observe("unknown", []discord.GuildMember{{}}, 0, 1)

	assert.Equal(t, 0, table.Len())
}

func TestMemberRequestTablePerCallTimeoutOverride(t *testing.T) {
	t.Parallel()

	// Table default is long; this request's own timeout is short, and
	// must still be the one that fires.
	table := NewMemberRequestTable(time.Hour)

	req := table.RegisterWithTimeout(discord.Snowflake(1), "nonce-3", 20*time.Millisecond)

	members, err := table.Wait(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.True(t, req.TimedOut())
}

func TestMemberRequestTableResetResolvesPendingWithPartialMembers(t *testing.T) {
	t.Parallel()

	table := NewMemberRequestTable(time.Hour)

	req := table.Register(discord.Snowflake(1), "nonce-5")
	table.Observe("nonce-5", []discord.GuildMember{{}, {}}, 0, 3)

	table.Reset()

	members, err := table.Wait(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, members, 2, "members accumulated before Reset are still returned")
	assert.Equal(t, 0, table.Len())
}

func TestMemberRequestTableWaitRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	table := NewMemberRequestTable(time.Hour)

	req := table.Register(discord.Snowflake(1), "nonce-4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := table.Wait(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)
}
