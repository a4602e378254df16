package sandwich

// GatewayIntent is one bit of the IDENTIFY intents bitmask, opting the
// session into a category of events the gateway would otherwise withhold.
type GatewayIntent int64

const (
	IntentGuilds                  GatewayIntent = 1 << 0
	IntentGuildMembers            GatewayIntent = 1 << 1
	IntentGuildModeration         GatewayIntent = 1 << 2
	IntentGuildEmojisAndStickers  GatewayIntent = 1 << 3
	IntentGuildIntegrations       GatewayIntent = 1 << 4
	IntentGuildWebhooks           GatewayIntent = 1 << 5
	IntentGuildInvites            GatewayIntent = 1 << 6
	IntentGuildVoiceStates        GatewayIntent = 1 << 7
	IntentGuildPresences          GatewayIntent = 1 << 8
	IntentGuildMessages           GatewayIntent = 1 << 9
	IntentGuildMessageReactions   GatewayIntent = 1 << 10
	IntentGuildMessageTyping      GatewayIntent = 1 << 11
	IntentDirectMessages          GatewayIntent = 1 << 12
	IntentDirectMessageReactions  GatewayIntent = 1 << 13
	IntentDirectMessageTyping     GatewayIntent = 1 << 14
	IntentMessageContent          GatewayIntent = 1 << 15
	IntentGuildScheduledEvents    GatewayIntent = 1 << 16
	IntentAutoModerationConfig    GatewayIntent = 1 << 20
	IntentAutoModerationExecution GatewayIntent = 1 << 21
)

// hasIntent reports whether intents includes every bit set in want.
func hasIntent(intents int64, want GatewayIntent) bool {
	return int64(want)&intents == int64(want)
}
