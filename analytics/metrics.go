package analytics

import (
	"context"

	"agriscore/core"
	"agriscore/engine"
)

// BridgeHook bridges an event source to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(ctx context.Context, e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(ctx, e)
	}
}

// Attach feeds every event published on bus into h. It returns the unsubscribe func.
func Attach(bus *engine.EventBus, h Hook) func() {
	return bus.SubscribeAll(h.OnEvent)
}
