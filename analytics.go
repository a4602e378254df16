package sandwich

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sandwich-gateway/shard/pkg/accumulator"
)

// ShardMetrics tracks per-shard connection health. Every gauge/counter is
// labelled by shard_id so one process running several ShardControllers
// (a ShardGroup) reports each shard's numbers independently.
var ShardMetrics = struct {
	Status         *prometheus.GaugeVec
	GatewayLatency *prometheus.GaugeVec
	Reconnects     *prometheus.CounterVec
	HeartbeatAcks  *prometheus.CounterVec
	DispatchEvents *prometheus.CounterVec
	RateLimitWaits *prometheus.CounterVec
	ChunkTimeouts  *prometheus.CounterVec
}{
	Status: promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sandwich_shard_status",
			Help: "Current SessionStatus of the shard",
		},
		[]string{"shard_id"},
	),
	GatewayLatency: promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sandwich_gateway_latency_seconds",
			Help: "Heartbeat round-trip latency in seconds",
		},
		[]string{"shard_id"},
	),
	Reconnects: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_shard_reconnects_total",
			Help: "Number of times the shard has reconnected",
		},
		[]string{"shard_id"},
	),
	HeartbeatAcks: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_shard_heartbeat_acks_total",
			Help: "Number of heartbeat acks received",
		},
		[]string{"shard_id"},
	),
	DispatchEvents: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_shard_dispatch_events_total",
			Help: "Number of dispatch events received, by event name",
		},
		[]string{"shard_id", "event_type"},
	),
	RateLimitWaits: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_shard_rate_limit_waits_total",
			Help: "Number of outbound sends that had to wait on a token bucket",
		},
		[]string{"shard_id", "bucket"},
	),
	ChunkTimeouts: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_shard_chunk_timeouts_total",
			Help: "Number of REQUEST_GUILD_MEMBERS calls that timed out waiting for a chunk",
		},
		[]string{"shard_id"},
	),
}

func shardLabel(shardID int32) string {
	return strconv.Itoa(int(shardID))
}

func recordGatewayLatency(shardID int32, latency time.Duration) {
	ShardMetrics.GatewayLatency.WithLabelValues(shardLabel(shardID)).Set(latency.Seconds())
	latencyHistory(shardID).IncrementBy(latency.Milliseconds())
}

func recordShardStatus(shardID int32, status SessionStatus) {
	ShardMetrics.Status.WithLabelValues(shardLabel(shardID)).Set(float64(status))
}

func recordReconnect(shardID int32) {
	ShardMetrics.Reconnects.WithLabelValues(shardLabel(shardID)).Inc()
}

func recordHeartbeatAck(shardID int32) {
	ShardMetrics.HeartbeatAcks.WithLabelValues(shardLabel(shardID)).Inc()
}

func recordDispatchEvent(shardID int32, eventType string) {
	ShardMetrics.DispatchEvents.WithLabelValues(shardLabel(shardID), eventType).Inc()
}

func recordRateLimitWait(shardID int32, bucket string) {
	ShardMetrics.RateLimitWaits.WithLabelValues(shardLabel(shardID), bucket).Inc()
}

func recordChunkTimeout(shardID int32) {
	ShardMetrics.ChunkTimeouts.WithLabelValues(shardLabel(shardID)).Inc()
}

// latencyHistories keeps a rolling minute-by-minute accumulator of
// heartbeat latency per shard, independent of the Prometheus gauges,
// for hosts that want a short in-process history without scraping a
// metrics endpoint (e.g. to decide whether to delay a restart).
var (
	latencyHistoriesMu sync.Mutex
	latencyHistories   = map[int32]*accumulator.Accumulator{}
)

func latencyHistory(shardID int32) *accumulator.Accumulator {
	latencyHistoriesMu.Lock()
	defer latencyHistoriesMu.Unlock()

	acc, ok := latencyHistories[shardID]
	if !ok {
		acc = accumulator.NewAccumulator(context.Background(), 60, time.Minute)
		go acc.Run()
		latencyHistories[shardID] = acc
	}

	return acc
}
