package sandwich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/coder/websocket"
)

var defaultGatewayURL = url.URL{
	Scheme: "wss",
	Host:   "gateway.discord.gg",
}

// websocketReconnectCloseCode is used for reconnects this side initiates
// (RECONNECT, INVALID_SESSION, a missed heartbeat ack): Discord documents
// 4000 as the close code a client should use for a resumable disconnect.
const websocketReconnectCloseCode = 4000

// guildCreateTimeout is the default ShardOptions.GuildCreateTimeout: how
// long READY's guild-hydration window waits for the next GUILD_CREATE
// before declaring the shard ready regardless of what is still missing.
const guildCreateTimeout = 2 * time.Second

// ShardController owns a single gateway connection: the websocket, its
// session state, both rate-limited send buckets, the heartbeat loop, and
// the member-request correlation table.
type ShardController struct {
	logger *slog.Logger

	client  Client
	shardID int32
	options ShardOptions

	session *SessionState
	codec   *FrameCodec

	conn *websocket.Conn

	global   *TokenBucket
	presence *TokenBucket
	outbound *OutboundSender

	members *MemberRequestTable

	dispatch *DispatchRouter

	heartbeat *Heartbeat
	hbCtx     context.Context
	hbCancel  context.CancelFunc

	connMu sync.Mutex

	stopped chan struct{}

	ready     chan struct{}
	readyOnce sync.Once

	// guildReadyMu guards pendingGuilds/guildReadyTimer/readyDeclared,
	// which track the READY->ready hydration window: pendingGuilds starts
	// as every guild READY announced and shrinks as GUILD_CREATE arrives
	// for each one, resetting guildReadyTimer each time. Readiness
	// completes once pendingGuilds is empty or the timer fires first,
	// whichever happens first.
	guildReadyMu    sync.Mutex
	pendingGuilds   map[discord.Snowflake]struct{}
	guildReadyTimer *time.Timer
	readyDeclared   bool
}

func NewShardController(client Client, options ShardOptions) *ShardController {
	options = options.withDefaults()

	logger := client.Logger(options.ShardID)
	session := NewSessionState(0)

	sc := &ShardController{
		logger:  logger,
		client:  client,
		shardID: options.ShardID,
		options: options,
		session: session,
		members: NewMemberRequestTable(options.MemberChunkTimeout),
		stopped: make(chan struct{}),
		ready:   make(chan struct{}),
	}

	sc.global = NewTokenBucket("gateway-global", 120, 5, 60*time.Second)
	sc.presence = NewTokenBucket("gateway-presence", 5, 0, 20*time.Second)
	sc.global.OnWait(func() { recordRateLimitWait(sc.shardID, "global") })
	sc.presence.OnWait(func() { recordRateLimitWait(sc.shardID, "presence") })
	sc.outbound = NewOutboundSender(logger, sc.global, sc.presence, sc.writeFrame)
	sc.dispatch = NewDispatchRouter()

	return sc
}

// setStatus updates the session state machine and mirrors it to the
// shard_status gauge in the same call, so the metric can never drift
// out of sync with SessionState, then reports the transition to the host
// as EventShardStatusUpdate.
func (sc *ShardController) setStatus(status SessionStatus) {
	sc.session.SetStatus(status)
	recordShardStatus(sc.shardID, status)
	sc.client.Emit(context.Background(), sc.shardID, EventShardStatusUpdate, ShardStatusUpdatePayload{ShardID: sc.shardID, Status: status})
}

// Connect performs one full connect attempt: dial, HELLO, then either
// IDENTIFY or RESUME depending on whether a prior session is still held.
func (sc *ShardController) Connect(ctx context.Context) error {
	sc.setStatus(SessionStatusConnecting)

	websocketURL, err := sc.resolveGatewayURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve gateway url: %w", err)
	}

	sc.logger.Debug("dialing gateway", "url", websocketURL)

	conn, _, err := websocket.Dial(ctx, websocketURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShardConnectFailed, err)
	}

	conn.SetReadLimit(-1)

	sc.connMu.Lock()
	sc.conn = conn
	sc.codec = NewFrameCodec(sc.options.Compress, sc.options.Codec)
	sc.connMu.Unlock()

	sc.setStatus(SessionStatusHandshaking)

	hello, err := sc.readHello(ctx)
	if err != nil {
		sc.closeConn(ctx, websocket.StatusNormalClosure)

		return err
	}

	sc.session.MarkHeartbeatSent(time.Now())
	sc.session.MarkHeartbeatAck(time.Now())

	sc.startHeartbeat(hello)

	if sc.session.SessionID() == "" {
		sc.setStatus(SessionStatusIdentifying)

		if err := sc.identify(ctx); err != nil {
			sc.stopHeartbeat()
			sc.closeConn(ctx, websocket.StatusNormalClosure)

			return fmt.Errorf("failed to identify: %w", err)
		}
	} else {
		sc.setStatus(SessionStatusResuming)

		if err := sc.resume(ctx); err != nil {
			sc.stopHeartbeat()
			sc.closeConn(ctx, websocket.StatusNormalClosure)

			return fmt.Errorf("failed to resume: %w", err)
		}
	}

	return nil
}

// ConnectWithRetry retries Connect with randomized exponential backoff
// until it succeeds or the context is cancelled. connectAttempts and
// reconnectInterval are only cleared once READY/RESUMED actually arrives
// (see handleReady/handleResumed), not merely once IDENTIFY/RESUME is
// sent, so a shard that keeps dying before READY keeps counting attempts.
// Hitting the attempt ceiling never gives up: if a session is held, it is
// invalidated so the next attempt IDENTIFYs fresh instead of resuming a
// session the gateway may have long since discarded, and retrying
// continues regardless.
func (sc *ShardController) ConnectWithRetry(ctx context.Context) error {
	for {
		err := sc.Connect(ctx)
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) {
			return err
		}

		attempts := sc.session.IncrementConnectAttempts()

		if attempts >= sc.options.MaxReconnectAttempts && sc.session.SessionID() != "" {
			sc.logger.Warn("exceeded reconnect attempt ceiling with a session held, invalidating it", "attempts", attempts)

			sc.session.ClearSession()
		}

		wait := sc.session.GrowReconnectInterval(rand.Float64())

		sc.logger.Warn("failed to connect, retrying", "error", err, "attempt", attempts, "wait", wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// gatewayVersion is the Discord gateway protocol version this module
// speaks, sent as the v query parameter on every connect/resume URL.
const gatewayVersion = "10"

// resolveGatewayURL picks the URL to dial: the resume URL READY gave us,
// already normalized with its v/encoding query by handleReady, or a
// freshly built one against the gateway base URL otherwise.
func (sc *ShardController) resolveGatewayURL(ctx context.Context) (string, error) {
	compress := ""
	if sc.options.Compress {
		compress = "&compress=zlib-stream"
	}

	if resume := sc.session.ResumeURL(); resume != "" {
		return resume + compress, nil
	}

	base := defaultGatewayURL.String()

	if url, err := sc.client.GatewayURL(ctx); err == nil && url != "" {
		base = url
	}

	return base + "?v=" + gatewayVersion + "&encoding=" + sc.encodingParam() + compress, nil
}

// normalizeResumeURL strips any query resumeURL already carries and
// re-appends the v/encoding pair this module expects, so a
// resume_gateway_url that arrives with its own query string never
// produces a doubled, malformed query on the next reconnect.
func normalizeResumeURL(resumeURL, encoding string) string {
	if resumeURL == "" {
		return ""
	}

	parsed, err := url.Parse(resumeURL)
	if err != nil {
		return resumeURL
	}

	parsed.RawQuery = "v=" + gatewayVersion + "&encoding=" + encoding

	return parsed.String()
}

func (sc *ShardController) encodingParam() string {
	if sc.options.Codec == "etf" {
		return "etf"
	}

	return "json"
}

func (sc *ShardController) readHello(ctx context.Context) (*helloPayload, error) {
	packet, err := sc.readPacket(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read hello: %w", err)
	}

	if packet.Op != GatewayOpHello {
		return nil, fmt.Errorf("expected HELLO, received op %d", packet.Op)
	}

	var hello helloPayload

	if err := unmarshalPayload(packet, &hello); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hello: %w", err)
	}

	if hello.HeartbeatInterval <= 0 {
		return nil, ErrShardInvalidHeartbeatInterval
	}

	return &hello, nil
}

func (sc *ShardController) startHeartbeat(hello *helloPayload) {
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	sc.hbCtx, sc.hbCancel = context.WithCancel(context.Background())

	sc.heartbeat = NewHeartbeat(sc.session, interval, sc.sendHeartbeat, sc.onMissedHeartbeat)

	go sc.heartbeat.Run(sc.hbCtx)
}

func (sc *ShardController) stopHeartbeat() {
	if sc.heartbeat != nil {
		sc.heartbeat.Stop()
	}

	if sc.hbCancel != nil {
		sc.hbCancel()
	}
}

func (sc *ShardController) sendHeartbeat(ctx context.Context) error {
	seq := sc.session.Sequence()

	return sc.send(ctx, GatewayOpHeartbeat, seq, true)
}

// onMissedHeartbeat runs on Heartbeat's own goroutine, not Listen's, so
// it reconnects synchronously rather than detaching into a further
// goroutine: detaching here would only add a second uncoordinated
// writer racing Listen's in-flight read over sc.conn. The identity
// check in handleReadError is what keeps that race from producing a
// second, redundant reconnect once this one lands.
func (sc *ShardController) onMissedHeartbeat() {
	sc.logger.Warn("missed heartbeat ack, reconnecting")

	if err := sc.reconnect(context.Background(), websocketReconnectCloseCode, false); err != nil {
		sc.logger.Error("failed to reconnect after missed heartbeat", "error", err)
	}
}

func (sc *ShardController) identify(ctx context.Context) error {
	var presence *activityPresence

	if sc.options.DefaultPresence != nil {
		presence = &activityPresence{
			Game:   sc.options.DefaultPresence,
			Status: sc.options.PresenceStatus,
		}
	}

	payload := identifyPayload{
		Token: sc.options.BotToken,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "sandwich-shard",
			Device:  "sandwich-shard",
		},
		Compress:       false,
		LargeThreshold: sc.options.LargeThreshold,
		Shard:          [2]int32{sc.options.ShardID, sc.options.ShardCount},
		Presence:       presence,
		Intents:        sc.options.Intents,
	}

	return sc.send(ctx, GatewayOpIdentify, payload, true)
}

func (sc *ShardController) resume(ctx context.Context) error {
	payload := resumePayload{
		Token:     sc.options.BotToken,
		SessionID: sc.session.SessionID(),
		Sequence:  sc.session.Sequence(),
	}

	return sc.send(ctx, GatewayOpResume, payload, true)
}

// Listen reads and dispatches frames until the connection closes or ctx
// is cancelled. A host runs this in a loop, reconnecting between calls.
func (sc *ShardController) Listen(ctx context.Context) error {
	sc.setStatus(SessionStatusReady)

	for {
		sc.connMu.Lock()
		conn := sc.conn
		sc.connMu.Unlock()

		packet, err := sc.readPacket(ctx)
		if err != nil {
			return sc.handleReadError(ctx, conn, err)
		}

		if packet == nil {
			// A partial zlib-stream chunk: wait for the rest.
			continue
		}

		sc.handlePacket(ctx, packet)

		select {
		case <-sc.stopped:
			return ErrShardConnectTimeout
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// handleReadError is reached whenever readPacket's conn.Read fails,
// including the local close a concurrent reconnect (from onMissedHeartbeat,
// running on the heartbeat goroutine) produces when it swaps in a new
// connection out from under an in-flight read. conn is the connection
// that produced err, snapshotted by Listen before the read; if sc.conn
// has already moved on to a different connection, that swap already
// reconnected this shard and there is nothing left for this error to do.
func (sc *ShardController) handleReadError(ctx context.Context, conn *websocket.Conn, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var closeErr websocket.CloseError

	if errors.As(err, &closeErr) {
		gwErr := classifyCloseCode(int(closeErr.Code))

		sc.client.Emit(ctx, sc.shardID, EventError, ErrorPayload{Err: gwErr})

		if gwErr.Fatal {
			sc.session.ClearSession()
			sc.setStatus(SessionStatusDisconnected)

			return gwErr
		}

		if gwErr.ClearsSession {
			sc.session.ClearSession()
		} else if gwErr.ResetsSequence {
			sc.session.SetSequence(0)
		}

		if sc.connSuperseded(conn) {
			return nil
		}

		if rerr := sc.reconnect(ctx, websocket.StatusNormalClosure, false); rerr != nil {
			return fmt.Errorf("failed to reconnect after close: %w", rerr)
		}

		return nil
	}

	if sc.connSuperseded(conn) {
		return nil
	}

	sc.logger.Error("gateway read failed", "error", err)

	if rerr := sc.reconnect(ctx, websocket.StatusNormalClosure, false); rerr != nil {
		return fmt.Errorf("failed to reconnect after read error: %w", rerr)
	}

	return nil
}

// connSuperseded reports whether conn is no longer the shard's active
// connection, meaning some other path already reconnected it.
func (sc *ShardController) connSuperseded(conn *websocket.Conn) bool {
	sc.connMu.Lock()
	defer sc.connMu.Unlock()

	return sc.conn != conn
}

func (sc *ShardController) handlePacket(ctx context.Context, packet *Packet) {
	switch packet.Op {
	case GatewayOpDispatch:
		if packet.Sequence != nil {
			if gap := sc.session.ObserveSequence(*packet.Sequence); gap > 1 {
				sc.logger.Warn("sequence gap observed", "gap", gap)
			}
		}

		sc.onDispatch(ctx, packet)

	case GatewayOpHeartbeat:
		if err := sc.send(ctx, GatewayOpHeartbeat, sc.session.Sequence(), true); err != nil {
			sc.logger.Error("failed to respond to heartbeat request", "error", err)
		}

	case GatewayOpReconnect:
		sc.logger.Debug("gateway requested reconnect")

		// Called synchronously from within Listen's own goroutine: by
		// the time handlePacket returns, the new connection is already
		// in place for Listen's next readPacket call, so there is
		// never a second socket in flight for this shard.
		if err := sc.reconnect(ctx, websocketReconnectCloseCode, false); err != nil {
			sc.logger.Error("failed to reconnect on request", "error", err)
		}

	case GatewayOpInvalidSession:
		var resumable bool

		_ = unmarshalPayload(packet, &resumable)

		sc.logger.Warn("invalid session", "resumable", resumable)

		if err := sc.reconnect(ctx, websocketReconnectCloseCode, !resumable); err != nil {
			sc.logger.Error("failed to reconnect after invalid session", "error", err)
		}

	case GatewayOpHeartbeatACK:
		latency := sc.session.MarkHeartbeatAck(time.Now())
		recordGatewayLatency(sc.shardID, latency)
		recordHeartbeatAck(sc.shardID)

	default:
		sc.logger.Debug("received unhandled opcode", "op", packet.Op)
	}

	sc.client.Emit(ctx, sc.shardID, EventPacket, PacketPayload{Packet: packet})
}

func (sc *ShardController) onDispatch(ctx context.Context, packet *Packet) {
	if packet.Type == nil {
		return
	}

	recordDispatchEvent(sc.shardID, *packet.Type)

	if err := sc.dispatch.Dispatch(ctx, sc, *packet.Type, packet); err != nil {
		if !errors.Is(err, ErrNoDispatchHandler) {
			sc.logger.Error("failed to handle dispatch", "type", *packet.Type, "error", err)
		}
	}
}

// reconnect tears down the current connection and reconnects, clearing
// the session first when hardReset is true (IDENTIFY next) or leaving it
// intact otherwise (RESUME next).
func (sc *ShardController) reconnect(ctx context.Context, code websocket.StatusCode, hardReset bool) error {
	recordReconnect(sc.shardID)

	sc.stopHeartbeat()
	sc.closeConn(ctx, code)
	sc.session.Reset()
	sc.members.Reset()

	if hardReset {
		sc.session.HardReset()
	}

	return sc.ConnectWithRetry(ctx)
}

func (sc *ShardController) closeConn(_ context.Context, code websocket.StatusCode) {
	sc.connMu.Lock()
	conn := sc.conn
	sc.conn = nil
	sc.connMu.Unlock()

	if conn == nil {
		return
	}

	if err := conn.Close(code, ""); err != nil && !errors.Is(err, net.ErrClosed) {
		sc.logger.Debug("failed to close websocket cleanly", "error", err)
	}

	if sc.codec != nil {
		_ = sc.codec.Close()
	}
}

// Stop closes the connection and prevents any further reconnect attempt.
func (sc *ShardController) Stop(ctx context.Context) {
	select {
	case <-sc.stopped:
	default:
		close(sc.stopped)
	}

	sc.stopHeartbeat()
	sc.closeConn(ctx, websocket.StatusNormalClosure)
	sc.members.Reset()
	sc.global.Close()
	sc.presence.Close()
	sc.setStatus(SessionStatusDisconnected)
}

func (sc *ShardController) readPacket(ctx context.Context) (*Packet, error) {
	sc.connMu.Lock()
	conn := sc.conn
	codec := sc.codec
	sc.connMu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("shard has no active connection")
	}

	messageType, data, err := conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	packet, ok, err := codec.Decode(messageType == websocket.MessageBinary, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	if !ok {
		return nil, nil
	}

	return packet, nil
}

func (sc *ShardController) writeFrame(op GatewayOp, data any) error {
	sc.connMu.Lock()
	conn := sc.conn
	codec := sc.codec
	sc.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("shard has no active connection")
	}

	payload, err := codec.Encode(op, data)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	messageType := websocket.MessageText
	if codec.IsBinary() {
		messageType = websocket.MessageBinary
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Write(ctx, messageType, payload); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

// send routes data through OutboundSender, which applies the rate
// limiters before writeFrame actually touches the socket.
func (sc *ShardController) send(_ context.Context, op GatewayOp, data any, priority bool) error {
	sc.outbound.Send(op, data, priority)

	return nil
}

// RequestGuildMembersOptions configures one RequestGuildMembers call. The
// zero value requests every member (query="", no user IDs), which is only
// permitted when the shard was identified with the GUILD_MEMBERS intent.
type RequestGuildMembersOptions struct {
	Query     string
	Limit     int32
	UserIDs   []discord.Snowflake
	Presences bool
	Timeout   time.Duration
}

// RequestGuildMembers issues a REQUEST_GUILD_MEMBERS command and blocks
// until every announced chunk has arrived or the per-request timeout
// elapses. Validation failures (too many user IDs, missing intents) are
// returned synchronously before anything is sent.
func (sc *ShardController) RequestGuildMembers(ctx context.Context, guildID discord.Snowflake, opts RequestGuildMembersOptions) ([]discord.GuildMember, error) {
	if len(opts.UserIDs) > 100 {
		return nil, ErrRequestGuildMembersTooManyIDs
	}

	if opts.Query == "" && len(opts.UserIDs) == 0 && !hasIntent(sc.options.Intents, IntentGuildMembers) {
		return nil, ErrRequestGuildMembersMissingIntent
	}

	if opts.Presences && !hasIntent(sc.options.Intents, IntentGuildPresences) {
		return nil, ErrRequestGuildMembersMissingPresenceIntent
	}

	nonce := randomHex(16)

	payload := requestGuildMembersPayload{
		GuildID:   guildID.String(),
		Limit:     opts.Limit,
		Presences: opts.Presences,
		Nonce:     nonce,
	}

	query := opts.Query
	payload.Query = &query

	for _, id := range opts.UserIDs {
		payload.UserIDs = append(payload.UserIDs, id.String())
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = sc.options.MemberChunkTimeout
	}

	req := sc.members.RegisterWithTimeout(guildID, nonce, timeout)

	if err := sc.send(ctx, GatewayOpRequestGuildMembers, payload, false); err != nil {
		return nil, fmt.Errorf("failed to send request guild members: %w", err)
	}

	members, err := sc.members.Wait(ctx, req)
	if req.TimedOut() {
		recordChunkTimeout(sc.shardID)
	}

	return members, err
}

// UpdatePresence sends a status-update command through the global bucket
// and the dedicated presence bucket.
func (sc *ShardController) UpdatePresence(ctx context.Context, status string, game *Activity, afk bool) error {
	sc.session.SetPresence(&activityPresence{Game: game, Status: status, AFK: afk})

	return sc.send(ctx, GatewayOpStatusUpdate, sc.session.Presence(), false)
}

// UpdateVoiceState sends a voice-state-update command; pass a nil
// channelID to disconnect.
func (sc *ShardController) UpdateVoiceState(ctx context.Context, guildID discord.Snowflake, channelID *discord.Snowflake, selfMute, selfDeaf bool) error {
	payload := voiceStateUpdatePayload{
		GuildID:  guildID.String(),
		SelfMute: selfMute,
		SelfDeaf: selfDeaf,
	}

	if channelID != nil {
		channelStr := channelID.String()
		payload.ChannelID = &channelStr
	}

	return sc.send(ctx, GatewayOpVoiceStateUpdate, payload, false)
}

// Latency reports the most recently measured heartbeat round trip.
func (sc *ShardController) Latency() time.Duration {
	return sc.session.Latency()
}

// Status reports the shard's current state-machine status.
func (sc *ShardController) Status() SessionStatus {
	return sc.session.Status()
}

// markReady fires the ready channel the first time this shard reaches
// READY or RESUMED, waking anyone blocked in WaitUntilReady.
func (sc *ShardController) markReady() {
	sc.readyOnce.Do(func() {
		close(sc.ready)
	})
}

// beginGuildHydration starts the READY->ready window: guilds is every
// guild READY announced, each carried as unavailable until its own
// GUILD_CREATE arrives. Readiness completes once every one of them has
// been observed or guildCreateTimeout elapses without the next one
// arriving, whichever comes first; an empty guild list completes
// immediately.
func (sc *ShardController) beginGuildHydration(ctx context.Context, guilds []unavailableRef) {
	sc.guildReadyMu.Lock()

	if sc.guildReadyTimer != nil {
		sc.guildReadyTimer.Stop()
		sc.guildReadyTimer = nil
	}

	pending := make(map[discord.Snowflake]struct{}, len(guilds))

	for _, ref := range guilds {
		parsed, err := strconv.ParseInt(ref.ID, 10, 64)
		if err != nil {
			continue
		}

		pending[discord.Snowflake(parsed)] = struct{}{}
	}

	sc.pendingGuilds = pending
	sc.readyDeclared = false

	if len(pending) == 0 {
		sc.guildReadyMu.Unlock()
		sc.finishReady(ctx)

		return
	}

	sc.guildReadyTimer = time.AfterFunc(sc.options.GuildCreateTimeout, func() {
		sc.finishReady(context.Background())
	})

	sc.guildReadyMu.Unlock()
}

// observeGuildHydrated clears guildID from the set armed by
// beginGuildHydration and resets the debounce window. It completes
// readiness immediately once nothing is left pending, rather than
// waiting for the timer to also fire.
func (sc *ShardController) observeGuildHydrated(ctx context.Context, guildID discord.Snowflake) {
	sc.guildReadyMu.Lock()

	if _, ok := sc.pendingGuilds[guildID]; !ok {
		sc.guildReadyMu.Unlock()

		return
	}

	delete(sc.pendingGuilds, guildID)
	remaining := len(sc.pendingGuilds)

	if remaining > 0 && sc.guildReadyTimer != nil {
		sc.guildReadyTimer.Reset(sc.options.GuildCreateTimeout)
	}

	sc.guildReadyMu.Unlock()

	if remaining == 0 {
		sc.finishReady(ctx)
	}
}

// finishReady declares the shard ready exactly once per hydration
// window: the first of (pending guilds drained, guild-create-timeout
// fired) to happen wins, and the other is a no-op.
func (sc *ShardController) finishReady(ctx context.Context) {
	sc.guildReadyMu.Lock()

	if sc.readyDeclared {
		sc.guildReadyMu.Unlock()

		return
	}

	sc.readyDeclared = true

	if sc.guildReadyTimer != nil {
		sc.guildReadyTimer.Stop()
		sc.guildReadyTimer = nil
	}

	sc.pendingGuilds = nil

	sc.guildReadyMu.Unlock()

	sc.session.SetReady(true)
	sc.client.Emit(ctx, sc.shardID, EventReady, ReadyPayload{})
	sc.markReady()
}

// WaitUntilReady blocks until the shard's first READY/RESUMED arrives or
// ctx is cancelled, logging if it takes unusually long.
func (sc *ShardController) WaitUntilReady(ctx context.Context) error {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	since := time.Now()

	for {
		select {
		case <-sc.ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sc.logger.Warn("shard not ready yet", "waited", time.Since(since))
		}
	}
}
