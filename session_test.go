package sandwich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStateObserveSequence(t *testing.T) {
	t.Parallel()

	s := NewSessionState(1)

	assert.Equal(t, int64(0), s.ObserveSequence(1))
	assert.Equal(t, int64(1), s.Sequence())

	// A gap greater than one is reported but never rejected.
	assert.Equal(t, int64(4), s.ObserveSequence(5))
	assert.Equal(t, int64(5), s.Sequence())

	// A stale or equal sequence never regresses the stored value and
	// reports no gap.
	assert.Equal(t, int64(0), s.ObserveSequence(3))
	assert.Equal(t, int64(5), s.Sequence())
}

func TestSessionStateGrowReconnectIntervalCapsAt30s(t *testing.T) {
	t.Parallel()

	s := NewSessionState(1)

	assert.Equal(t, initialReconnectInterval, s.ReconnectInterval())

	for i := 0; i < 20; i++ {
		s.GrowReconnectInterval(0.999)
	}

	assert.Equal(t, 30*time.Second, s.ReconnectInterval())
}

func TestSessionStateGrowReconnectIntervalMonotonic(t *testing.T) {
	t.Parallel()

	s := NewSessionState(1)

	first := s.GrowReconnectInterval(0.5)
	assert.Greater(t, first, initialReconnectInterval)

	second := s.GrowReconnectInterval(0.5)
	assert.GreaterOrEqual(t, second, first)
}

func TestSessionStateResetKeepsSessionID(t *testing.T) {
	t.Parallel()

	s := NewSessionState(1)
	s.SetSessionID("abc123")
	s.SetSequence(42)
	s.SetReady(true)
	s.MarkHeartbeatSent(time.Now())

	s.Reset()

	assert.Equal(t, "abc123", s.SessionID())
	assert.Equal(t, int64(42), s.Sequence())
	assert.False(t, s.Ready())
	assert.True(t, s.LastHeartbeatAck())
	assert.Equal(t, SessionStatusDisconnected, s.Status())
}

func TestSessionStateHardResetClearsEverything(t *testing.T) {
	t.Parallel()

	s := NewSessionState(1)
	s.SetSessionID("abc123")
	s.SetSequence(42)
	s.IncrementConnectAttempts()
	s.GrowReconnectInterval(0.9)

	s.HardReset()

	assert.Equal(t, "", s.SessionID())
	assert.Equal(t, int64(0), s.Sequence())
	assert.Equal(t, int32(0), s.ConnectAttempts())
	assert.Equal(t, initialReconnectInterval, s.ReconnectInterval())
}

func TestSessionStateHeartbeatAckLatency(t *testing.T) {
	t.Parallel()

	s := NewSessionState(1)

	assert.True(t, s.LastHeartbeatAck(), "no heartbeat sent yet counts as acked")

	sentAt := time.Now()
	s.MarkHeartbeatSent(sentAt)
	assert.False(t, s.LastHeartbeatAck())

	ackAt := sentAt.Add(50 * time.Millisecond)
	latency := s.MarkHeartbeatAck(ackAt)

	assert.True(t, s.LastHeartbeatAck())
	assert.Equal(t, 50*time.Millisecond, latency)
	assert.Equal(t, 50*time.Millisecond, s.Latency())
}
