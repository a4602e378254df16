package sandwich

import (
	"context"
	"math/rand/v2"
	"time"
)

// Heartbeat runs the periodic liveness ping: a jittered first beat, then
// a steady interval, suppressed while the session is resuming or
// identifying, and reporting missed acks so the caller can force a
// reconnect.
type Heartbeat struct {
	session *SessionState

	send func(ctx context.Context) error
	miss func()

	interval time.Duration

	ticker *time.Ticker
	done   chan struct{}
}

func NewHeartbeat(session *SessionState, interval time.Duration, send func(ctx context.Context) error, miss func()) *Heartbeat {
	return &Heartbeat{
		session:  session,
		send:     send,
		miss:     miss,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Run blocks, beating until ctx is cancelled or Stop is called. The
// caller starts it in its own goroutine per connection.
func (h *Heartbeat) Run(ctx context.Context) {
	jitter := time.Duration(rand.Int64N(h.interval.Milliseconds()+1)) * time.Millisecond

	h.ticker = time.NewTicker(jitter)
	defer h.ticker.Stop()

	hasJitter := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-h.ticker.C:
			if hasJitter {
				hasJitter = false
				h.ticker.Reset(h.interval)
			}

			// A session mid-handshake must not be heartbeated over:
			// IDENTIFY/RESUME themselves reset the connection clock,
			// and a heartbeat race during the handshake has no
			// session to report a sequence for yet.
			switch h.session.Status() {
			case SessionStatusIdentifying, SessionStatusResuming, SessionStatusHandshaking:
				continue
			}

			if !h.session.LastHeartbeatAck() {
				h.miss()

				return
			}

			h.session.MarkHeartbeatSent(time.Now())

			if err := h.send(ctx); err != nil {
				h.miss()

				return
			}
		}
	}
}

func (h *Heartbeat) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}
