package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sandwich "github.com/sandwich-gateway/shard"
)

func main() {
	configPath := flag.String("config", "config.json.local", "path to a ShardOptions JSON file")
	shardRange := flag.String("shards", "", "shard IDs to run, e.g. 0-3,5 (default: all of shard_count)")
	proxyHost := flag.String("proxy", "", "HTTP proxy for the gateway-bot REST lookup, e.g. for a twilight/nirn proxy")
	flag.Parse()

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	configProvider := sandwich.NewFileConfigProvider(*configPath)

	options, err := configProvider.GetConfig(ctx)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	client := sandwich.NewInMemoryClient(logger, *options, *proxyHost)

	client.OnEvent(func(_ context.Context, shardID int32, event sandwich.EventType, payload any) {
		logger.Info("event", "shard_id", shardID, "type", event)
	})

	shardIDs := sandwich.ShardRange(*shardRange, options.ShardCount)
	if len(shardIDs) == 0 {
		shardIDs = sandwich.AllShards(options.ShardCount)
	}

	group, err := sandwich.NewShardGroup(client, *options, shardIDs, options.ShardCount)
	if err != nil {
		logger.Error("failed to build shard group", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := group.Start(ctx); err != nil {
			logger.Error("shard group exited", "error", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")

	group.Stop(context.Background())
}
