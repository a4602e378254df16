package sandwich

// classifyCloseCode maps a gateway close code to its reconnect policy:
// whether to reconnect at all, and whether the session (sessionID +
// sequence) survives the reconnect.
func classifyCloseCode(code int) *GatewayError {
	switch code {
	case 4004, 4010, 4011, 4012, 4013, 4014:
		return &GatewayError{
			Code:           code,
			Reason:         closeCodeReason(code),
			Fatal:          true,
			ClearsSession:  true,
			ResetsSequence: true,
		}
	case 4003:
		return &GatewayError{
			Code:           code,
			Reason:         closeCodeReason(code),
			Fatal:          false,
			ClearsSession:  true,
			ResetsSequence: true,
		}
	case 4007:
		return &GatewayError{
			Code:           code,
			Reason:         closeCodeReason(code),
			Fatal:          false,
			ResetsSequence: true,
		}
	case 1000, 1006, 4001, 4002, 4005, 4008:
		return &GatewayError{
			Code:   code,
			Reason: closeCodeReason(code),
			Fatal:  false,
		}
	default:
		// Unrecognised codes default to the safe, recoverable case:
		// reconnect and keep the session.
		return &GatewayError{
			Code:   code,
			Reason: "unknown close code",
			Fatal:  false,
		}
	}
}

func closeCodeReason(code int) string {
	switch code {
	case 1000:
		return "normal closure"
	case 1006:
		return "abnormal closure"
	case 4000:
		return "unknown error"
	case 4001:
		return "unknown opcode"
	case 4002:
		return "decode error"
	case 4003:
		return "not authenticated"
	case 4004:
		return "authentication failed"
	case 4005:
		return "already authenticated"
	case 4007:
		return "invalid seq"
	case 4008:
		return "rate limited"
	case 4009:
		return "session timed out"
	case 4010:
		return "invalid shard"
	case 4011:
		return "sharding required"
	case 4012:
		return "invalid API version"
	case 4013:
		return "invalid intent(s)"
	case 4014:
		return "disallowed intent(s)"
	default:
		return "unrecognised close code"
	}
}
