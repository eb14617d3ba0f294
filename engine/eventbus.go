package engine

import (
	"context"
	"log/slog"
	"sync"

	"agriscore/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

// ParseDispatchMode maps "sync" to DispatchSync and anything else to DispatchAsync.
func ParseDispatchMode(s string) DispatchMode {
	if s == "sync" {
		return DispatchSync
	}
	return DispatchAsync
}

type subscription struct {
	id  int64
	typ core.EventType
	fn  func(context.Context, core.Event)
}

type queued struct {
	ctx context.Context
	ev  core.Event
}

// EventBus provides thread-safe pub/sub with sync and async dispatch.
// Events reach subscribers only after the mutation that produced them is durable.
type EventBus struct {
	mode         DispatchMode
	mu           sync.RWMutex
	subs         map[core.EventType]map[int64]subscription
	nextID       int64
	asyncQueue   chan queued
	asyncWorkers int
	workers      sync.WaitGroup
	closeOnce    sync.Once
	closed       chan struct{}
	logger       *slog.Logger
}

// BusOption configures an EventBus.
type BusOption func(*EventBus)

// WithQueueSize sets the async buffer; events beyond it are dropped.
func WithQueueSize(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.asyncQueue = make(chan queued, n)
		}
	}
}

// WithWorkers sets the number of async dispatch goroutines.
func WithWorkers(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.asyncWorkers = n
		}
	}
}

// WithBusLogger sets the logger used to report dropped events.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(e *EventBus) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEventBus(mode DispatchMode, opts ...BusOption) *EventBus {
	eb := &EventBus{
		mode:         mode,
		subs:         make(map[core.EventType]map[int64]subscription),
		asyncQueue:   make(chan queued, 2048),
		asyncWorkers: 4,
		closed:       make(chan struct{}),
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(eb)
	}
	if mode == DispatchAsync {
		eb.startWorkers()
	}
	return eb
}

func (e *EventBus) startWorkers() {
	for i := 0; i < e.asyncWorkers; i++ {
		e.workers.Add(1)
		go func() {
			defer e.workers.Done()
			for {
				select {
				case q := <-e.asyncQueue:
					e.dispatchSync(q.ctx, q.ev)
				case <-e.closed:
					// drain what is already queued, then exit
					for {
						select {
						case q := <-e.asyncQueue:
							e.dispatchSync(q.ctx, q.ev)
						default:
							return
						}
					}
				}
			}
		}()
	}
}

// Close stops async workers after the queue drains.
func (e *EventBus) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.workers.Wait()
	})
}

// Subscribe registers a handler for an event type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[typ] == nil {
		e.subs[typ] = make(map[int64]subscription)
	}
	e.subs[typ][id] = subscription{id: id, typ: typ, fn: handler}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m := e.subs[typ]; m != nil {
			delete(m, id)
		}
	}
}

// SubscribeAll registers handler for every event type the engine publishes.
func (e *EventBus) SubscribeAll(handler func(context.Context, core.Event)) func() {
	var unsubs []func()
	for _, typ := range core.EventTypes() {
		unsubs = append(unsubs, e.Subscribe(typ, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish sends an event to subscribers.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.mode == DispatchAsync {
		select {
		case <-e.closed:
			e.logger.Warn("event bus closed, dropping event", "type", ev.Type, "user_id", ev.UserID)
			return
		default:
		}
		select {
		case e.asyncQueue <- queued{ctx: context.WithoutCancel(ctx), ev: ev}:
		default:
			// queue full; dropping keeps ingestion latency bounded
			e.logger.Warn("event queue full, dropping event", "type", ev.Type, "user_id", ev.UserID)
		}
		return
	}
	e.dispatchSync(ctx, ev)
}

func (e *EventBus) dispatchSync(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	subs := e.subs[ev.Type]
	// copy to avoid holding lock during callbacks
	handlers := make([]func(context.Context, core.Event), 0, len(subs))
	for _, s := range subs {
		handlers = append(handlers, s.fn)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, ev)
	}
}
