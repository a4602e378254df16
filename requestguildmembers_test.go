package sandwich

import (
	"context"
	"log/slog"
	"testing"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/stretchr/testify/assert"
)

func newTestShardController(t *testing.T, intents int64) *ShardController {
	t.Helper()

	client := NewInMemoryClient(slog.Default(), ShardOptions{BotToken: "x"}, "")

	return NewShardController(client, ShardOptions{BotToken: "x", Intents: intents})
}

func TestRequestGuildMembersTooManyIDsRejectedBeforeSend(t *testing.T) {
	t.Parallel()

	sc := newTestShardController(t, int64(IntentGuildMembers))

	ids := make([]discord.Snowflake, 101)

	_, err := sc.RequestGuildMembers(context.Background(), 1, RequestGuildMembersOptions{UserIDs: ids})
	assert.ErrorIs(t, err, ErrRequestGuildMembersTooManyIDs)
}

func TestRequestGuildMembersAllMembersRequiresGuildMembersIntent(t *testing.T) {
	t.Parallel()

	sc := newTestShardController(t, 0)

	_, err := sc.RequestGuildMembers(context.Background(), 1, RequestGuildMembersOptions{})
	assert.ErrorIs(t, err, ErrRequestGuildMembersMissingIntent)
}

func TestRequestGuildMembersByIDsDoesNotRequireGuildMembersIntent(t *testing.T) {
	t.Parallel()

	sc := newTestShardController(t, 0)

	_, err := sc.RequestGuildMembers(context.Background(), 1, RequestGuildMembersOptions{UserIDs: []discord.Snowflake{9}})
	assert.NotErrorIs(t, err, ErrRequestGuildMembersMissingIntent)
}

func TestRequestGuildMembersPresencesRequiresGuildPresencesIntent(t *testing.T) {
	t.Parallel()

	sc := newTestShardController(t, int64(IntentGuildMembers))

	_, err := sc.RequestGuildMembers(context.Background(), 1, RequestGuildMembersOptions{Presences: true})
	assert.ErrorIs(t, err, ErrRequestGuildMembersMissingPresenceIntent)
}

func TestRequestGuildMembersTooManyIDsCheckedBeforeIntentChecks(t *testing.T) {
	t.Parallel()

	// Over the ID cap and missing every intent: the ID-count check must
	// win so callers always see the same error for the same mistake.
	sc := newTestShardController(t, 0)

	ids := make([]discord.Snowflake, 101)

	_, err := sc.RequestGuildMembers(context.Background(), 1, RequestGuildMembersOptions{UserIDs: ids, Presences: true})
	assert.ErrorIs(t, err, ErrRequestGuildMembersTooManyIDs)
}
