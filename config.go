package sandwich

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sandwich-gateway/shard/sandwichjson"
)

// ShardOptions configures one ShardController. NewShardController keeps
// its own copy (with defaults filled in) for the controller's lifetime,
// so every connect attempt uses the same values.
type ShardOptions struct {
	BotToken string `json:"bot_token"`

	ShardID    int32 `json:"shard_id"`
	ShardCount int32 `json:"shard_count"`

	Intents int64 `json:"intents"`

	DefaultPresence *Activity `json:"default_presence,omitempty"`
	PresenceStatus  string    `json:"presence_status,omitempty"`

	LargeThreshold int `json:"large_threshold,omitempty"`

	// Compress selects payload compression (zlib-stream) for the
	// connection.
	Compress bool `json:"compress"`

	// Codec selects the wire codec: "json" (default) or "etf".
	Codec string `json:"codec,omitempty"`

	ChunkGuildsOnStart bool `json:"chunk_guilds_on_start"`

	MaxReconnectAttempts int32 `json:"max_reconnect_attempts,omitempty"`

	HeartbeatFailureTolerance int32 `json:"heartbeat_failure_tolerance,omitempty"`

	MemberChunkTimeout time.Duration `json:"member_chunk_timeout,omitempty"`

	// GuildCreateTimeout bounds how long READY waits for the guilds it
	// announced as unavailable to arrive as GUILD_CREATE before declaring
	// the shard ready anyway. Each GUILD_CREATE that clears a pending
	// guild resets the window.
	GuildCreateTimeout time.Duration `json:"guild_create_timeout,omitempty"`
}

func (o ShardOptions) withDefaults() ShardOptions {
	if o.LargeThreshold == 0 {
		o.LargeThreshold = 100
	}

	if o.Codec == "" {
		o.Codec = "json"
	}

	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = 5
	}

	if o.HeartbeatFailureTolerance == 0 {
		o.HeartbeatFailureTolerance = 1
	}

	if o.MemberChunkTimeout == 0 {
		o.MemberChunkTimeout = 3 * time.Second
	}

	if o.PresenceStatus == "" {
		o.PresenceStatus = "online"
	}

	if o.GuildCreateTimeout == 0 {
		o.GuildCreateTimeout = guildCreateTimeout
	}

	return o
}

// FileConfigProvider loads ShardOptions from a JSON file on disk, in the
// same read/write/log shape as the rest of this codebase's config
// handling. Most hosts will construct ShardOptions directly; this exists
// for the cmd/ demo entrypoint.
type FileConfigProvider struct {
	path string
}

func NewFileConfigProvider(path string) FileConfigProvider {
	return FileConfigProvider{path: path}
}

func (c FileConfigProvider) GetConfig(_ context.Context) (*ShardOptions, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var options ShardOptions
	if err := sandwichjson.Unmarshal(data, &options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	slog.Info("loaded shard options", "path", c.path)

	return &options, nil
}

func (c FileConfigProvider) SaveConfig(_ context.Context, options *ShardOptions) error {
	data, err := sandwichjson.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(c.path, data, 0o600)
}
