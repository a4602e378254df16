package sandwich

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatSendsAndTracksAck(t *testing.T) {
	t.Parallel()

	session := NewSessionState(1)
	session.SetStatus(SessionStatusReady)

	var sends atomic.Int32

	send := func(ctx context.Context) error {
		sends.Add(1)
		session.MarkHeartbeatAck(time.Now())

		return nil
	}

	hb := NewHeartbeat(session, 20*time.Millisecond, send, func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	hb.Run(ctx)

	assert.GreaterOrEqual(t, sends.Load(), int32(1))
}

func TestHeartbeatMissedAckTriggersMiss(t *testing.T) {
	t.Parallel()

	session := NewSessionState(1)
	session.SetStatus(SessionStatusReady)

	missed := make(chan struct{})

	send := func(ctx context.Context) error {
		// Never acks: LastHeartbeatAck stays false after this beat, so
		// the next tick reports a miss instead of sending again.
		return nil
	}

	hb := NewHeartbeat(session, 10*time.Millisecond, send, func() {
		close(missed)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})

	go func() {
		hb.Run(ctx)
		close(done)
	}()

	select {
	case <-missed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("miss callback never fired")
	}

	<-done
}

func TestHeartbeatSuppressedDuringHandshake(t *testing.T) {
	t.Parallel()

	session := NewSessionState(1)
	session.SetStatus(SessionStatusIdentifying)

	var sends atomic.Int32
	var misses atomic.Int32

	send := func(ctx context.Context) error {
		sends.Add(1)

		return nil
	}

	hb := NewHeartbeat(session, 10*time.Millisecond, send, func() { misses.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	hb.Run(ctx)

	assert.Equal(t, int32(0), sends.Load(), "no beat should be sent while identifying")
	assert.Equal(t, int32(0), misses.Load(), "no miss should fire while identifying")
}

func TestHeartbeatStopEndsRun(t *testing.T) {
	t.Parallel()

	session := NewSessionState(1)
	session.SetStatus(SessionStatusReady)

	hb := NewHeartbeat(session, time.Hour, func(ctx context.Context) error { return nil }, func() {})

	done := make(chan struct{})

	go func() {
		hb.Run(context.Background())
		close(done)
	}()

	hb.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
