package sandwich

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zlibSyncFlushFrames compresses payload into one or more zlib-stream
// frames, each ending on a Z_SYNC_FLUSH boundary, matching what Discord
// sends over a compressed gateway connection.
func zlibSyncFlushFrames(t *testing.T, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	w, err := zlib.NewWriterLevel(&buf, zlib.BestSpeed)
	require.NoError(t, err)

	_, err = w.Write(payload)
	require.NoError(t, err)

	require.NoError(t, w.Flush())

	return buf.Bytes()
}

func TestFrameCodecDecodeUncompressedJSON(t *testing.T) {
	t.Parallel()

	codec := NewFrameCodec(false, "json")

	packet, ok, err := codec.Decode(false, []byte(`{"op":10,"d":{"heartbeat_interval":41250}}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, GatewayOpHello, packet.Op)
}

func TestFrameCodecDecodeCompressedSingleFrame(t *testing.T) {
	t.Parallel()

	codec := NewFrameCodec(true, "json")

	raw := zlibSyncFlushFrames(t, []byte(`{"op":10,"d":{"heartbeat_interval":41250}}`))

	packet, ok, err := codec.Decode(true, raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, GatewayOpHello, packet.Op)
}

func TestFrameCodecDecodeBinaryWithoutCompressionErrors(t *testing.T) {
	t.Parallel()

	codec := NewFrameCodec(false, "json")

	_, _, err := codec.Decode(true, []byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestFrameCodecEncodeRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewFrameCodec(false, "json")

	data, err := codec.Encode(GatewayOpHeartbeat, 5)
	require.NoError(t, err)

	decoded, ok, err := codec.Decode(false, data)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, GatewayOpHeartbeat, decoded.Op)
}

func TestFrameCodecETFIsBinary(t *testing.T) {
	t.Parallel()

	jsonCodec := NewFrameCodec(false, "json")
	etfCodec := NewFrameCodec(false, "etf")

	assert.False(t, jsonCodec.IsBinary())
	assert.True(t, etfCodec.IsBinary())
}

func TestFrameCodecETFRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewFrameCodec(false, "etf")

	data, err := codec.Encode(GatewayOpHeartbeat, 7)
	require.NoError(t, err)

	decoded, ok, err := codec.Decode(true, data)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, GatewayOpHeartbeat, decoded.Op)
}
