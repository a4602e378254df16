package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	sandwich "github.com/sandwich-gateway/shard"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// This is a thin demonstration of wiring ShardOptions, an InMemoryClient,
// and a ShardGroup together, logging every event the gateway emits and
// exposing ShardMetrics on :10000/metrics. Swap NewInMemoryClient for a
// Client backed by a real store and NewFileConfigProvider for whatever
// config source fits your deployment; nothing else here needs to change.
func main() {
	go func() {
		server := &http.Server{
			Addr:              ":10000",
			Handler:           promhttp.Handler(),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       10 * time.Second,
		}

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server exited", "error", err)
		}
	}()

	configProvider := sandwich.NewFileConfigProvider("config.json.local")

	options, err := configProvider.GetConfig(context.Background())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	client := sandwich.NewInMemoryClient(slog.Default(), *options, "")

	client.OnEvent(func(_ context.Context, shardID int32, event sandwich.EventType, _ any) {
		slog.Info("dispatch", "shard_id", shardID, "type", event)
	})

	group, err := sandwich.NewShardGroup(client, *options, sandwich.AllShards(options.ShardCount), options.ShardCount)
	if err != nil {
		slog.Error("failed to build shard group", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := group.Start(ctx); err != nil {
			slog.Error("shard group exited", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	group.Stop(context.Background())

	cancel()
}
