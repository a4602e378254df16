package sandwich

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRouterUsesBuiltinHandlers(t *testing.T) {
	t.Parallel()

	client := NewInMemoryClient(slog.Default(), ShardOptions{BotToken: "x"}, "")
	sc := NewShardController(client, ShardOptions{BotToken: "x"})

	router := NewDispatchRouter()

	err := router.Dispatch(context.Background(), sc, "GUILD_CREATE", &Packet{Data: []byte(`{"id":"1"}`)})
	require.NoError(t, err)

	_, ok := client.GetGuild(context.Background(), 1)
	assert.True(t, ok)
}

func TestDispatchRouterUnknownEventTypeReturnsErrNoDispatchHandler(t *testing.T) {
	t.Parallel()

	client := NewInMemoryClient(slog.Default(), ShardOptions{BotToken: "x"}, "")
	sc := NewShardController(client, ShardOptions{BotToken: "x"})

	router := NewDispatchRouter()

	err := router.Dispatch(context.Background(), sc, "SOME_FUTURE_EVENT_TYPE", &Packet{})
	assert.True(t, errors.Is(err, ErrNoDispatchHandler))
}

func TestDispatchRouterRegisterOverridesOnlyThisInstance(t *testing.T) {
	t.Parallel()

	client := NewInMemoryClient(slog.Default(), ShardOptions{BotToken: "x"}, "")
	sc := NewShardController(client, ShardOptions{BotToken: "x"})

	called := false

	router := NewDispatchRouter()
	router.Register("GUILD_CREATE", func(_ context.Context, _ *ShardController, _ *Packet) error {
		called = true
		return nil
	})

	require.NoError(t, router.Dispatch(context.Background(), sc, "GUILD_CREATE", &Packet{Data: []byte(`{"id":"1"}`)}))
	assert.True(t, called)

	// The package-wide default registry is untouched by Register on one
	// router instance.
	other := NewDispatchRouter()
	_, stillDefault := other.handlers["GUILD_CREATE"]
	assert.True(t, stillDefault)
}
