package sandwich

import "encoding/json"

// GatewayOp is the small integer operation code carried by every frame.
// These protocol envelope types live in this package rather than being
// imported from the Discord entity module: they are the shard's own
// wire contract (what it sends and how it frames what it receives), not
// cached entity data (see DESIGN.md).
type GatewayOp uint8

const (
	GatewayOpDispatch            GatewayOp = 0
	GatewayOpHeartbeat           GatewayOp = 1
	GatewayOpIdentify            GatewayOp = 2
	GatewayOpStatusUpdate        GatewayOp = 3
	GatewayOpVoiceStateUpdate    GatewayOp = 4
	GatewayOpResume              GatewayOp = 6
	GatewayOpReconnect           GatewayOp = 7
	GatewayOpRequestGuildMembers GatewayOp = 8
	GatewayOpInvalidSession      GatewayOp = 9
	GatewayOpHello               GatewayOp = 10
	GatewayOpHeartbeatACK        GatewayOp = 11
)

// Packet is the wire envelope: op, an opaque payload, and the DISPATCH-only
// sequence/event-name pair.
type Packet struct {
	Op       GatewayOp       `json:"op"`
	Data     json.RawMessage `json:"d,omitempty"`
	Sequence *int64          `json:"s,omitempty"`
	Type     *string         `json:"t,omitempty"`
}

// outboundEnvelope is what OutboundSender actually encodes: {op, d}. A
// received Packet additionally carries s/t, which outbound frames never
// do.
type outboundEnvelope struct {
	Op   GatewayOp `json:"op"`
	Data any       `json:"d"`
}

type helloPayload struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

type identifyPayload struct {
	Token          string              `json:"token"`
	Properties     identifyProperties  `json:"properties"`
	Compress       bool                `json:"compress"`
	LargeThreshold int                 `json:"large_threshold,omitempty"`
	Shard          [2]int32            `json:"shard"`
	Presence       *activityPresence   `json:"presence,omitempty"`
	Intents        int64               `json:"intents"`
}

type resumePayload struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

type requestGuildMembersPayload struct {
	GuildID   string   `json:"guild_id"`
	Query     *string  `json:"query,omitempty"`
	Limit     int32    `json:"limit"`
	Presences bool     `json:"presences,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
	Nonce     string   `json:"nonce"`
}

// activityPresence mirrors Discord's Update Presence gateway command. It
// is the type stored on SessionState.presence and the one IDENTIFY builds
// from ShardOptions.DefaultPresence and PresenceStatus.
type activityPresence struct {
	Since  *int64     `json:"since"`
	Game   *Activity  `json:"game,omitempty"`
	Status string     `json:"status"`
	AFK    bool       `json:"afk"`
}

type Activity struct {
	Name string `json:"name"`
	Type int32  `json:"type"`
	URL  string `json:"url,omitempty"`
}

type voiceStateUpdatePayload struct {
	GuildID   string `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool   `json:"self_mute"`
	SelfDeaf  bool   `json:"self_deaf"`
}

// readyEventData is the subset of the READY dispatch payload the
// ShardController and DispatchRouter need.
type readyEventData struct {
	V                int              `json:"v"`
	User             json.RawMessage  `json:"user"`
	Guilds           []unavailableRef `json:"guilds"`
	SessionID        string           `json:"session_id"`
	ResumeGatewayURL string           `json:"resume_gateway_url"`
	Shard            [2]int32         `json:"shard,omitempty"`
}

type unavailableRef struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable"`
}

type invalidSessionData bool

// gatewayBotResponse is the shape of GET /gateway/bot: the gateway URL,
// the recommended shard count and the session-start limit.
type gatewayBotResponse struct {
	URL               string `json:"url"`
	Shards            int32  `json:"shards"`
	SessionStartLimit struct {
		Total          int32 `json:"total"`
		Remaining      int32 `json:"remaining"`
		ResetAfter     int64 `json:"reset_after"`
		MaxConcurrency int32 `json:"max_concurrency"`
	} `json:"session_start_limit"`
}
