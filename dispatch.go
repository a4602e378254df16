package sandwich

import (
	"context"
)

// DispatchHandler handles one DISPATCH event type. It is given the raw
// packet (so it can unmarshal Data into whatever shape it needs) and the
// controller, through which it reaches the Client cache and Emit.
type DispatchHandler func(ctx context.Context, sc *ShardController, packet *Packet) error

var defaultDispatchHandlers = make(map[string]DispatchHandler)

// registerDispatchHandler is called from package-level init() functions
// to populate the builtin handler registry.
func registerDispatchHandler(eventType string, handler DispatchHandler) {
	defaultDispatchHandlers[eventType] = handler
}

// DispatchRouter resolves a DISPATCH event's t field to its handler.
// An unknown event type makes Dispatch return ErrNoDispatchHandler; the
// shard's dispatch path treats that error as benign and carries on, since
// Discord adds new dispatch types over time.
type DispatchRouter struct {
	handlers map[string]DispatchHandler
}

func NewDispatchRouter() *DispatchRouter {
	handlers := make(map[string]DispatchHandler, len(defaultDispatchHandlers))

	for k, v := range defaultDispatchHandlers {
		handlers[k] = v
	}

	return &DispatchRouter{handlers: handlers}
}

func (r *DispatchRouter) Dispatch(ctx context.Context, sc *ShardController, eventType string, packet *Packet) error {
	handler, ok := r.handlers[eventType]
	if !ok {
		return ErrNoDispatchHandler
	}

	return handler(ctx, sc, packet)
}

// Register lets a host add or override a handler for one event type on
// this router instance, without touching the package-wide defaults.
func (r *DispatchRouter) Register(eventType string, handler DispatchHandler) {
	r.handlers[eventType] = handler
}
