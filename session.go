package sandwich

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
)

// SessionState holds everything about a shard's current gateway session
// that is not the socket itself: sequence tracking, resume credentials,
// the state-machine status, and heartbeat bookkeeping, collected into
// one struct so these invariants have a single owner.
type SessionState struct {
	mu sync.RWMutex

	id discord.Snowflake

	status SessionStatus

	sequence  int64
	sessionID string
	resumeURL string

	connectAttempts   int32
	reconnectInterval time.Duration

	preReady atomic.Bool
	ready    atomic.Bool

	presence *activityPresence

	lastHeartbeatSent     time.Time
	lastHeartbeatReceived time.Time
	lastHeartbeatAck      bool
	latency               time.Duration
}

const initialReconnectInterval = 1000 * time.Millisecond

func NewSessionState(id discord.Snowflake) *SessionState {
	return &SessionState{
		id:                id,
		status:            SessionStatusDisconnected,
		reconnectInterval: initialReconnectInterval,
		lastHeartbeatAck:  true,
	}
}

// Reset wipes the transient fields back to their construction-time values
// without touching sessionID: a soft reset (reconnect, keeps the session)
// versus a hard reset (disconnect with reconnect=false, clears the
// session).
func (s *SessionState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = SessionStatusDisconnected
	s.lastHeartbeatAck = true
	s.lastHeartbeatSent = time.Time{}
	s.lastHeartbeatReceived = time.Time{}
	s.latency = 0
	s.preReady.Store(false)
	s.ready.Store(false)
}

// HardReset additionally clears the session credentials, forcing the next
// connect() to IDENTIFY rather than RESUME.
func (s *SessionState) HardReset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionID = ""
	s.sequence = 0
	s.connectAttempts = 0
	s.reconnectInterval = initialReconnectInterval
}

func (s *SessionState) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

func (s *SessionState) SetStatus(status SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *SessionState) Sequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sequence
}

// ObserveSequence updates the stored sequence to seq if seq is larger.
// A gap greater than one is reported to the caller so it can be logged,
// but never rejected.
func (s *SessionState) ObserveSequence(seq int64) (gap int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq > s.sequence {
		if diff := seq - s.sequence; diff > 1 {
			gap = diff
		}

		s.sequence = seq
	}

	return gap
}

func (s *SessionState) SetSequence(seq int64) {
	s.mu.Lock()
	s.sequence = seq
	s.mu.Unlock()
}

func (s *SessionState) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sessionID
}

func (s *SessionState) SetSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

func (s *SessionState) ClearSession() {
	s.mu.Lock()
	s.sessionID = ""
	s.sequence = 0
	s.mu.Unlock()
}

func (s *SessionState) ResumeURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.resumeURL
}

func (s *SessionState) SetResumeURL(url string) {
	s.mu.Lock()
	s.resumeURL = url
	s.mu.Unlock()
}

func (s *SessionState) ConnectAttempts() int32 {
	return atomic.LoadInt32(&s.connectAttempts)
}

func (s *SessionState) IncrementConnectAttempts() int32 {
	return atomic.AddInt32(&s.connectAttempts, 1)
}

func (s *SessionState) ResetConnectAttempts() {
	atomic.StoreInt32(&s.connectAttempts, 0)
}

func (s *SessionState) ReconnectInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.reconnectInterval
}

func (s *SessionState) ResetReconnectInterval() {
	s.mu.Lock()
	s.reconnectInterval = initialReconnectInterval
	s.mu.Unlock()
}

// GrowReconnectInterval applies randomized exponential-like backoff:
// interval = min(round(interval * (rand()*2+1)), 30s). jitter must be
// in [0, 1); callers pass math/rand's Float64() so the growth is
// deterministic under test with a fixed source.
func (s *SessionState) GrowReconnectInterval(jitter float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	grown := time.Duration(float64(s.reconnectInterval) * (jitter*2 + 1))

	const maxReconnectInterval = 30 * time.Second
	if grown > maxReconnectInterval {
		grown = maxReconnectInterval
	}

	s.reconnectInterval = grown

	return grown
}

func (s *SessionState) PreReady() bool {
	return s.preReady.Load()
}

func (s *SessionState) SetPreReady(v bool) {
	s.preReady.Store(v)
}

func (s *SessionState) Ready() bool {
	return s.ready.Load()
}

func (s *SessionState) SetReady(v bool) {
	s.ready.Store(v)
}

func (s *SessionState) Presence() *activityPresence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.presence
}

func (s *SessionState) SetPresence(presence *activityPresence) {
	s.mu.Lock()
	s.presence = presence
	s.mu.Unlock()
}

// LastHeartbeatAck reports whether the most recently sent heartbeat has
// been acknowledged; true also when no heartbeat has been sent yet.
func (s *SessionState) LastHeartbeatAck() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastHeartbeatAck
}

func (s *SessionState) MarkHeartbeatSent(at time.Time) {
	s.mu.Lock()
	s.lastHeartbeatSent = at
	s.lastHeartbeatAck = false
	s.mu.Unlock()
}

func (s *SessionState) MarkHeartbeatAck(at time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastHeartbeatAck = true
	s.lastHeartbeatReceived = at

	if !s.lastHeartbeatSent.IsZero() {
		s.latency = at.Sub(s.lastHeartbeatSent)
	}

	return s.latency
}

func (s *SessionState) Latency() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latency
}
