package sandwich

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
)

// memberRequest tracks one in-flight REQUEST_GUILD_MEMBERS correlated by
// nonce: the accumulated members seen so far, and a channel that fires
// once either every announced chunk has arrived or the timeout elapses.
// mu guards members/chunksReceived/chunkCount/timer, since Observe (the
// read-loop goroutine feeding in chunks) and the timer's own AfterFunc
// callback (resolving the request on expiry) run on independent
// goroutines and can reach the same request at the same time.
type memberRequest struct {
	guildID discord.Snowflake

	mu             sync.Mutex
	members        []discord.GuildMember
	chunksReceived int32
	chunkCount     int32
	timer          *time.Timer

	done chan struct{}
	once sync.Once

	timeout time.Duration
	expired atomic.Bool
}

// TimedOut reports whether this request resolved because its timeout
// fired rather than because every chunk arrived.
func (r *memberRequest) TimedOut() bool {
	return r.expired.Load()
}

func (r *memberRequest) resolve() {
	r.once.Do(func() {
		close(r.done)
	})
}

// MemberRequestTable correlates REQUEST_GUILD_MEMBERS commands with their
// GUILD_MEMBERS_CHUNK responses by nonce. A request that times out still
// resolves with whatever members arrived before the deadline: callers
// never block forever, and a slow/partial chunk set is not treated as
// an error.
type MemberRequestTable struct {
	mu      sync.Mutex
	pending map[string]*memberRequest

	timeout time.Duration
}

func NewMemberRequestTable(timeout time.Duration) *MemberRequestTable {
	return &MemberRequestTable{
		pending: make(map[string]*memberRequest),
		timeout: timeout,
	}
}

// Register starts tracking nonce for guildID using the table's default
// timeout. The caller is expected to have already sent
// REQUEST_GUILD_MEMBERS with this nonce before the first chunk could
// plausibly arrive.
func (t *MemberRequestTable) Register(guildID discord.Snowflake, nonce string) *memberRequest {
	return t.RegisterWithTimeout(guildID, nonce, t.timeout)
}

// RegisterWithTimeout is Register with a caller-supplied timeout,
// overriding the table default for this one request.
func (t *MemberRequestTable) RegisterWithTimeout(guildID discord.Snowflake, nonce string, timeout time.Duration) *memberRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	req := &memberRequest{
		guildID: guildID,
		done:    make(chan struct{}),
		timeout: timeout,
	}

	req.timer = time.AfterFunc(timeout, func() {
		req.expired.Store(true)
		t.remove(nonce)
		req.resolve()
	})

	t.pending[nonce] = req

	return req
}

// Observe feeds one GUILD_MEMBERS_CHUNK into its matching request. It is
// a no-op (not an error) if nonce is unknown: a chunk for a request this
// table never registered, or one that has already timed out, is simply
// dropped rather than treated as an error: a stale or unknown nonce is
// not this table's problem to raise.
func (t *MemberRequestTable) Observe(nonce string, members []discord.GuildMember, chunkIndex, chunkCount int32) {
	t.mu.Lock()
	req, ok := t.pending[nonce]
	t.mu.Unlock()

	if !ok {
		return
	}

	req.mu.Lock()
	req.members = append(req.members, members...)
	req.chunksReceived++
	req.chunkCount = chunkCount

	complete := req.chunksReceived >= chunkCount || chunkIndex+1 >= chunkCount
	if !complete && req.timer != nil {
		req.timer.Reset(req.timeout)
	}
	req.mu.Unlock()

	if complete {
		t.remove(nonce)
		req.resolve()
	}
}

func (t *MemberRequestTable) remove(nonce string) {
	t.mu.Lock()
	req, ok := t.pending[nonce]
	if ok {
		delete(t.pending, nonce)
	}
	t.mu.Unlock()

	if ok {
		req.mu.Lock()
		req.timer.Stop()
		req.mu.Unlock()
	}
}

// Wait blocks until req resolves (all chunks received, or
// timeout) or ctx is cancelled, returning the members accumulated so far
// either way.
func (t *MemberRequestTable) Wait(ctx context.Context, req *memberRequest) ([]discord.GuildMember, error) {
	var err error

	select {
	case <-req.done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	req.mu.Lock()
	members := req.members
	req.mu.Unlock()

	return members, err
}

// Reset resolves every pending request with whatever members it has
// accumulated so far and clears the table. A request has no hope of
// completing across a reconnect or a shard stop, so it must not be left
// to time out on its own once the connection it was made on is gone.
func (t *MemberRequestTable) Reset() {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[string]*memberRequest)
	t.mu.Unlock()

	for _, req := range pending {
		req.mu.Lock()
		if req.timer != nil {
			req.timer.Stop()
		}
		req.mu.Unlock()

		req.resolve()
	}
}

// Len reports how many requests are currently in flight, for diagnostics.
func (t *MemberRequestTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}
