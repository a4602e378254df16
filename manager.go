package sandwich

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ShardGroup owns every ShardController for one bot token: it sequences
// the staggered start (its lowest-numbered shard first, shard 0 when the
// group owns it, since that one receives the guild list
// the rest of the group's member-request intents will need) and fans
// Stop out to every shard on shutdown.
type ShardGroup struct {
	logger *slog.Logger

	client Client

	mu     sync.RWMutex
	shards map[int32]*ShardController
}

// NewShardGroup builds the ShardControllers for shardIDs out of a shared
// Client and a base ShardOptions; each shard gets its own ShardID set.
func NewShardGroup(client Client, base ShardOptions, shardIDs []int32, shardCount int32) (*ShardGroup, error) {
	if base.BotToken == "" {
		return nil, ErrManagerMissingBotToken
	}

	if len(shardIDs) == 0 {
		return nil, ErrManagerMissingShards
	}

	group := &ShardGroup{
		client: client,
		shards: make(map[int32]*ShardController, len(shardIDs)),
	}

	for _, shardID := range shardIDs {
		opts := base
		opts.ShardID = shardID
		opts.ShardCount = shardCount

		group.shards[shardID] = NewShardController(client, opts)
	}

	group.logger = client.Logger(-1).With("shard_count", shardCount, "shards", len(shardIDs))

	return group, nil
}

// Shard returns the controller for shardID, if this group owns one.
func (g *ShardGroup) Shard(shardID int32) (*ShardController, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	shard, ok := g.shards[shardID]

	return shard, ok
}

// Start connects the group's lowest-numbered shard (shard 0 when the
// group owns it) and waits for it to become ready before connecting the
// rest concurrently. Discord requires an application's
// first shard to finish its READY before further shards identify so
// guild availability settles predictably; the rest of the group has no
// such ordering constraint between each other.
func (g *ShardGroup) Start(ctx context.Context) error {
	g.mu.RLock()
	shards := make(map[int32]*ShardController, len(g.shards))
	for id, shard := range g.shards {
		shards[id] = shard
	}
	g.mu.RUnlock()

	leadID, lead := firstShard(shards)

	if err := lead.ConnectWithRetry(ctx); err != nil {
		return fmt.Errorf("failed to connect leading shard %d: %w", leadID, err)
	}

	go func() {
		if err := lead.Listen(ctx); err != nil {
			g.logger.Warn("leading shard listen loop exited", "shard_id", leadID, "error", err)
		}
	}()

	if err := lead.WaitUntilReady(ctx); err != nil {
		return fmt.Errorf("leading shard %d never became ready: %w", leadID, err)
	}

	var wg sync.WaitGroup

	for id, shard := range shards {
		if id == leadID {
			continue
		}

		wg.Add(1)

		go func(shardID int32, sc *ShardController) {
			defer wg.Done()

			if err := sc.ConnectWithRetry(ctx); err != nil {
				g.logger.Error("shard failed to connect", "shard_id", shardID, "error", err)

				return
			}

			if err := sc.Listen(ctx); err != nil {
				g.logger.Warn("shard listen loop exited", "shard_id", shardID, "error", err)
			}
		}(id, shard)
	}

	wg.Wait()

	return nil
}

// Stop closes every shard's connection. It does not wait for their
// Listen loops to return; callers that need that should cancel ctx and
// wait on whatever they used to launch Start.
func (g *ShardGroup) Stop(ctx context.Context) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, shard := range g.shards {
		shard.Stop(ctx)
	}
}

func firstShard(shards map[int32]*ShardController) (int32, *ShardController) {
	var (
		leadID int32
		lead   *ShardController
		found  bool
	)

	for id, shard := range shards {
		if !found || id < leadID {
			leadID, lead, found = id, shard, true
		}
	}

	return leadID, lead
}
