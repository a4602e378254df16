package sandwich

import (
	"errors"
	"fmt"
)

var (
	ErrManagerMissingBotToken = errors.New("manager missing bot token")
	ErrManagerMissingShards   = errors.New("manager missing shards")

	ErrShardConnectFailed            = errors.New("shard connect failed")
	ErrShardInvalidHeartbeatInterval = errors.New("shard invalid heartbeat interval")
	ErrShardAlreadyConnected         = errors.New("shard already has an open socket")
	ErrShardMissedHeartbeatAck       = errors.New("shard missed a heartbeat ack")
	ErrShardConnectTimeout           = errors.New("shard timed out while connecting")

	ErrNoGatewayHandler  = errors.New("no gateway handler found")
	ErrNoDispatchHandler = errors.New("no dispatch handler found")

	ErrRequestGuildMembersMissingIntent         = errors.New("requesting all members requires the GUILD_MEMBERS intent")
	ErrRequestGuildMembersMissingPresenceIntent = errors.New("requesting presences requires the GUILD_PRESENCES intent")
	ErrRequestGuildMembersTooManyIDs            = errors.New("cannot request more than 100 user ids")

	ErrFrameCodecNoCodec = errors.New("no codec available to decode frame")
)

// GatewayError wraps a gateway close code with the classification the
// close-code policy table assigns it, so callers can distinguish a fatal
// close from a transient, resumable one without re-deriving the table.
type GatewayError struct {
	Code           int
	Reason         string
	Fatal          bool
	ClearsSession  bool
	ResetsSequence bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway closed (code=%d fatal=%v): %s", e.Code, e.Fatal, e.Reason)
}
