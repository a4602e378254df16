package sandwich

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sandwich-gateway/shard/sandwichjson"
)

// zlibFlushSuffix is the 4-byte marker Discord appends to every frame of
// a zlib-stream connection when it calls Z_SYNC_FLUSH: the payload is
// complete once a binary frame ends with this sequence.
var zlibFlushSuffix = []byte{0x00, 0x00, 0xff, 0xff}

// FrameCodec turns raw websocket frames into Packets and back, handling
// the optional zlib-stream transport compression and the JSON/ETF wire
// codec selection. One FrameCodec is scoped to a single connection: the
// zlib stream is stateful and must be recreated on every reconnect.
type FrameCodec struct {
	compress bool
	codec    string

	mu      sync.Mutex
	compBuf bytes.Buffer
	zr      io.ReadCloser
}

func NewFrameCodec(compress bool, codec string) *FrameCodec {
	if codec == "" {
		codec = "json"
	}

	return &FrameCodec{compress: compress, codec: codec}
}

// Decode accepts one websocket message and returns the decoded Packet.
// ok is false when data was a compressed chunk that does not yet reach a
// SYNC_FLUSH boundary; the caller should keep reading and call Decode
// again with the next frame.
func (c *FrameCodec) Decode(binaryFrame bool, data []byte) (packet *Packet, ok bool, err error) {
	raw := data

	switch {
	case c.compress:
		// A zlib-stream connection always carries its payload in binary
		// frames, compressed or not: the codec itself (json/etf) is
		// decided only after inflation.
		decoded, complete, err := c.inflate(data)
		if err != nil {
			return nil, false, err
		}

		if !complete {
			return nil, false, nil
		}

		raw = decoded
	case binaryFrame && c.codec != "etf":
		// Uncompressed JSON is always sent as text; a binary frame here
		// means compression was not negotiated the way we think it was.
		return nil, false, fmt.Errorf("received binary frame without compression negotiated")
	}

	packet, err = c.unmarshalPacket(raw)
	if err != nil {
		return nil, false, err
	}

	return packet, true, nil
}

// inflate feeds chunk into the persistent zlib stream. A chunk that does
// not end on a flush boundary is only buffered and reported as not yet
// complete; once a chunk ends on the flush suffix, everything buffered so
// far is drained, since that is the point at which the compressor
// guarantees everything up to here decodes cleanly.
func (c *FrameCodec) inflate(chunk []byte) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.compBuf.Write(chunk); err != nil {
		return nil, false, fmt.Errorf("failed to buffer compressed frame: %w", err)
	}

	if !bytes.HasSuffix(chunk, zlibFlushSuffix) {
		return nil, false, nil
	}

	if c.zr == nil {
		zr, err := zlib.NewReader(&c.compBuf)
		if err != nil {
			return nil, false, fmt.Errorf("failed to open zlib stream: %w", err)
		}

		c.zr = zr
	}

	var out bytes.Buffer

	_, err := io.Copy(&out, c.zr)
	// The sync-flush boundary lands on a non-final deflate block; the
	// next attempt to read a block header off the now-empty buffer
	// surfaces as ErrUnexpectedEOF (or plain EOF), which here just means
	// "caught up, wait for the next frame" rather than a real failure.
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("failed to inflate frame: %w", err)
	}

	return out.Bytes(), true, nil
}

func (c *FrameCodec) unmarshalPacket(raw []byte) (*Packet, error) {
	if c.codec == "etf" {
		return decodeETFPacket(raw)
	}

	var packet Packet

	if err := sandwichjson.Unmarshal(raw, &packet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal packet: %w (payload: %s)", err, string(raw))
	}

	return &packet, nil
}

// Encode serializes an outbound {op, d} envelope. Outbound frames are
// always sent uncompressed (Discord only compresses what it sends, never
// what it receives); they go out as text for json and, per IsBinary, as
// binary for etf.
func (c *FrameCodec) Encode(op GatewayOp, data any) ([]byte, error) {
	envelope := outboundEnvelope{Op: op, Data: data}

	if c.codec == "etf" {
		b, err := encodeETFEnvelope(envelope)
		if err != nil {
			return nil, fmt.Errorf("failed to encode outbound frame: %w", err)
		}

		return b, nil
	}

	b, err := sandwichjson.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbound frame: %w", err)
	}

	return b, nil
}

// IsBinary reports whether outbound frames for this codec should be
// written as websocket binary messages rather than text.
func (c *FrameCodec) IsBinary() bool {
	return c.codec == "etf"
}

func (c *FrameCodec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.zr != nil {
		return c.zr.Close()
	}

	return nil
}
