package sandwich

import (
	"log/slog"
	"sync/atomic"
)

// frameWriter encodes and writes one logical outbound message; it is
// responsible for checking the socket is still OPEN and must drop the
// frame (not queue it) when it is not.
type frameWriter func(op GatewayOp, data any) error

// OutboundSender serializes sends through the global bucket and, for
// PRESENCE_UPDATE, also the presence bucket. The thunk coordinating two
// buckets is a join barrier: it is submitted to both buckets and only
// performs the actual send on the Nth call.
type OutboundSender struct {
	logger *slog.Logger

	global   *TokenBucket
	presence *TokenBucket

	write frameWriter
}

func NewOutboundSender(logger *slog.Logger, global, presence *TokenBucket, write frameWriter) *OutboundSender {
	return &OutboundSender{
		logger:   logger,
		global:   global,
		presence: presence,
		write:    write,
	}
}

// Send queues (op, data) for delivery. priority submissions jump the
// global bucket's queue and may spend its reserved slots; they are never
// used for the presence bucket since RATE_LIMITED presence updates are
// never urgent enough to justify it.
func (s *OutboundSender) Send(op GatewayOp, data any, priority bool) {
	buckets := []*TokenBucket{s.global}
	if op == GatewayOpStatusUpdate {
		buckets = append(buckets, s.presence)
	}

	required := int32(len(buckets))

	var fired atomic.Int32

	fire := func() {
		if fired.Add(1) != required {
			return
		}

		s.logger.Debug("sending frame", "op", op, "data", redactForLog(data))

		if err := s.write(op, data); err != nil {
			s.logger.Warn("failed to write frame", "op", op, "error", err)
		}
	}

	for i, bucket := range buckets {
		// Only the submission to the global bucket carries priority; a
		// presence-bucket submission is never priority since nothing in
		// the protocol sends a priority presence update.
		bucket.Submit(fire, priority && i == 0)
	}
}

// redactForLog hides the bot token before a payload is logged at debug
// level.
func redactForLog(data any) any {
	switch v := data.(type) {
	case identifyPayload:
		v.Token = "[redacted]"

		return v
	case *identifyPayload:
		clone := *v
		clone.Token = "[redacted]"

		return clone
	case resumePayload:
		v.Token = "[redacted]"

		return v
	case *resumePayload:
		clone := *v
		clone.Token = "[redacted]"

		return clone
	default:
		return data
	}
}
