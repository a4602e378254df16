package sandwich

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sandwich-gateway/shard/sandwichjson"
)

// Minimal Erlang External Term Format codec covering the subset Discord's
// ETF gateway payloads actually use: maps, lists, binaries (strings),
// small/large integers, floats, booleans, and nil. No ecosystem ETF
// library turned up anywhere in the retrieved pack, so this is hand
// rolled against the format described in erl_ext_dist(3); see DESIGN.md.
const etfVersion = 131

const (
	etfNewFloat       = 70
	etfAtomExt        = 100
	etfSmallAtom      = 115
	etfSmallAtomUTF8  = 119
	etfAtomUTF8       = 118
	etfSmallInteger   = 97
	etfInteger        = 98
	etfSmallBig       = 110
	etfLargeBig       = 111
	etfNil            = 106
	etfString         = 107
	etfList           = 108
	etfBinary         = 109
	etfMap            = 116
)

func decodeETFPacket(raw []byte) (*Packet, error) {
	value, _, err := decodeETFTerm(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode etf packet: %w", err)
	}

	fields, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("etf packet was not a map: %T", value)
	}

	packet := &Packet{}

	if op, ok := fields["op"]; ok {
		n, err := etfToInt64(op)
		if err != nil {
			return nil, fmt.Errorf("invalid op field: %w", err)
		}

		packet.Op = GatewayOp(n)
	}

	if seq, ok := fields["s"]; ok && seq != nil {
		n, err := etfToInt64(seq)
		if err != nil {
			return nil, fmt.Errorf("invalid s field: %w", err)
		}

		packet.Sequence = &n
	}

	if t, ok := fields["t"]; ok && t != nil {
		s, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("invalid t field: %T", t)
		}

		packet.Type = &s
	}

	if d, ok := fields["d"]; ok {
		encoded, err := encodeETFJSONCompatible(d)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode d field: %w", err)
		}

		packet.Data = encoded
	}

	return packet, nil
}

func encodeETFEnvelope(envelope outboundEnvelope) ([]byte, error) {
	buf := []byte{etfVersion}

	fields := map[string]any{
		"op": int64(envelope.Op),
		"d":  envelope.Data,
	}

	encoded, err := encodeETFTerm(buf, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode etf envelope: %w", err)
	}

	return encoded, nil
}

func etfToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
}

// decodeETFTerm decodes one term starting at data[0] (a leading version
// byte, if present, is skipped) and returns the term plus the number of
// bytes consumed after that version byte.
func decodeETFTerm(data []byte) (any, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("unexpected end of etf data")
	}

	if data[0] == etfVersion {
		return decodeETFTerm(data[1:])
	}

	tag := data[0]
	rest := data[1:]

	switch tag {
	case etfSmallInteger:
		if len(rest) < 1 {
			return nil, 0, fmt.Errorf("truncated small integer")
		}

		return int64(rest[0]), 2, nil

	case etfInteger:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("truncated integer")
		}

		return int64(int32(binary.BigEndian.Uint32(rest[:4]))), 5, nil

	case etfSmallBig, etfLargeBig:
		return decodeETFBig(tag, rest)

	case etfNewFloat:
		if len(rest) < 8 {
			return nil, 0, fmt.Errorf("truncated float")
		}

		bits := binary.BigEndian.Uint64(rest[:8])

		return math.Float64frombits(bits), 9, nil

	case etfNil:
		return []any{}, 1, nil

	case etfString:
		if len(rest) < 2 {
			return nil, 0, fmt.Errorf("truncated string")
		}

		n := int(binary.BigEndian.Uint16(rest[:2]))
		if len(rest) < 2+n {
			return nil, 0, fmt.Errorf("truncated string body")
		}

		elems := make([]any, n)
		for i, b := range rest[2 : 2+n] {
			elems[i] = int64(b)
		}

		return elems, 3 + n, nil

	case etfList:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("truncated list")
		}

		n := int(binary.BigEndian.Uint32(rest[:4]))
		offset := 4
		elems := make([]any, 0, n)

		for i := 0; i < n; i++ {
			v, used, err := decodeETFTerm(rest[offset:])
			if err != nil {
				return nil, 0, err
			}

			elems = append(elems, v)
			offset += used
		}

		// Discard the tail term (normally NIL_EXT).
		_, used, err := decodeETFTerm(rest[offset:])
		if err != nil {
			return nil, 0, err
		}

		offset += used

		return elems, 1 + offset, nil

	case etfBinary:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("truncated binary")
		}

		n := int(binary.BigEndian.Uint32(rest[:4]))
		if len(rest) < 4+n {
			return nil, 0, fmt.Errorf("truncated binary body")
		}

		return string(rest[4 : 4+n]), 5 + n, nil

	case etfAtomExt, etfAtomUTF8:
		if len(rest) < 2 {
			return nil, 0, fmt.Errorf("truncated atom")
		}

		n := int(binary.BigEndian.Uint16(rest[:2]))
		if len(rest) < 2+n {
			return nil, 0, fmt.Errorf("truncated atom body")
		}

		return decodeETFAtomValue(string(rest[2 : 2+n])), 3 + n, nil

	case etfSmallAtom, etfSmallAtomUTF8:
		if len(rest) < 1 {
			return nil, 0, fmt.Errorf("truncated small atom")
		}

		n := int(rest[0])
		if len(rest) < 1+n {
			return nil, 0, fmt.Errorf("truncated small atom body")
		}

		return decodeETFAtomValue(string(rest[1 : 1+n])), 2 + n, nil

	case etfMap:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("truncated map")
		}

		arity := int(binary.BigEndian.Uint32(rest[:4]))
		offset := 4
		result := make(map[string]any, arity)

		for i := 0; i < arity; i++ {
			key, used, err := decodeETFTerm(rest[offset:])
			if err != nil {
				return nil, 0, err
			}

			offset += used

			value, used, err := decodeETFTerm(rest[offset:])
			if err != nil {
				return nil, 0, err
			}

			offset += used

			keyStr, ok := key.(string)
			if !ok {
				keyStr = fmt.Sprintf("%v", key)
			}

			result[keyStr] = value
		}

		return result, 1 + offset, nil

	default:
		return nil, 0, fmt.Errorf("unsupported etf tag %d", tag)
	}
}

func decodeETFAtomValue(atom string) any {
	switch atom {
	case "true":
		return true
	case "false":
		return false
	case "nil", "null", "undefined":
		return nil
	default:
		return atom
	}
}

func decodeETFBig(tag byte, rest []byte) (any, int, error) {
	var n int

	var headerLen int

	switch tag {
	case etfSmallBig:
		if len(rest) < 1 {
			return nil, 0, fmt.Errorf("truncated small big")
		}

		n = int(rest[0])
		headerLen = 1
	case etfLargeBig:
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("truncated large big")
		}

		n = int(binary.BigEndian.Uint32(rest[:4]))
		headerLen = 4
	}

	if len(rest) < headerLen+1+n {
		return nil, 0, fmt.Errorf("truncated big integer body")
	}

	sign := rest[headerLen]
	digits := rest[headerLen+1 : headerLen+1+n]

	var value int64

	for i := n - 1; i >= 0; i-- {
		value = value*256 + int64(digits[i])
	}

	if sign == 1 {
		value = -value
	}

	return value, 2 + headerLen + n, nil
}

// encodeETFJSONCompatible converts a decoded ETF value back into
// encoding/json-flavoured bytes so the rest of the codebase (built
// against plain JSON DISPATCH payloads) can unmarshal dispatch data
// without caring which wire codec the connection negotiated.
func encodeETFJSONCompatible(v any) ([]byte, error) {
	b, err := sandwichjson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal etf value as json: %w", err)
	}

	return b, nil
}

func encodeETFTerm(buf []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return append(buf, etfSmallAtomUTF8, 3, 'n', 'i', 'l'), nil
	case bool:
		atom := "false"
		if t {
			atom = "true"
		}

		buf = append(buf, etfSmallAtomUTF8, byte(len(atom)))

		return append(buf, atom...), nil
	case string:
		buf = append(buf, etfBinary)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(t)))

		return append(buf, t...), nil
	case int:
		return encodeETFTerm(buf, int64(t))
	case int32:
		return encodeETFTerm(buf, int64(t))
	case int64:
		return encodeETFInt(buf, t), nil
	case float32:
		return encodeETFTerm(buf, float64(t))
	case float64:
		buf = append(buf, etfNewFloat)

		return binary.BigEndian.AppendUint64(buf, math.Float64bits(t)), nil
	case []any:
		if len(t) == 0 {
			return append(buf, etfNil), nil
		}

		buf = append(buf, etfList)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(t)))

		var err error

		for _, elem := range t {
			buf, err = encodeETFTerm(buf, elem)
			if err != nil {
				return nil, err
			}
		}

		return append(buf, etfNil), nil
	case map[string]any:
		buf = append(buf, etfMap)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(t)))

		var err error

		for key, value := range t {
			buf, err = encodeETFTerm(buf, key)
			if err != nil {
				return nil, err
			}

			buf, err = encodeETFTerm(buf, value)
			if err != nil {
				return nil, err
			}
		}

		return buf, nil
	default:
		return nil, fmt.Errorf("unsupported type for etf encode: %T", v)
	}
}

func encodeETFInt(buf []byte, n int64) []byte {
	if n >= 0 && n <= 255 {
		return append(buf, etfSmallInteger, byte(n))
	}

	if n >= math.MinInt32 && n <= math.MaxInt32 {
		buf = append(buf, etfInteger)

		return binary.BigEndian.AppendUint32(buf, uint32(int32(n)))
	}

	sign := byte(0)
	mag := n

	if n < 0 {
		sign = 1
		mag = -n
	}

	var digits []byte

	for mag > 0 {
		digits = append(digits, byte(mag&0xff))
		mag >>= 8
	}

	buf = append(buf, etfSmallBig, byte(len(digits)), sign)

	return append(buf, digits...)
}
