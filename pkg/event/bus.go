// Package event provides the in-process pub/sub bus connecting the log
// watcher to the API server's live stream, built on watermill.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/camlog/camlog/pkg/logging"
)

// Event type names carried on the bus and relayed verbatim to SSE
// subscribers.
const (
	TypeDamage         = "damage"
	TypeHeal           = "heal"
	TypeDeath          = "death"
	TypeSessionStarted = "session:start"
	TypeSessionUpdated = "session:update"
	TypeSessionEnded   = "session:end"
)

// topic is the single watermill topic all events flow through; the event
// type travels in message metadata.
const topic = "camlog.events"

// metaEventType is the metadata key carrying the event type.
const metaEventType = "eventType"

// Bus is an in-process pub/sub event bus. Publishers hand it a typed
// payload; subscribers receive the event type and the JSON-encoded payload.
// Delivery is asynchronous and ordered per the underlying channel.
type Bus struct {
	log    *slog.Logger
	pubsub *gochannel.GoChannel
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[uint64]func(event string, data any)
	nextID uint64
	closed bool
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) BusOption {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBus creates a bus and starts its dispatch loop.
func NewBus(opts ...BusOption) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		log: logging.Nop(),
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
		cancel: cancel,
		subs:   make(map[uint64]func(event string, data any)),
	}
	for _, opt := range opts {
		opt(b)
	}

	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		// gochannel.Subscribe only fails once the pubsub is closed, which
		// cannot happen before this point.
		panic(fmt.Sprintf("event: subscribe: %v", err))
	}
	go b.dispatch(msgs)
	return b
}

// Publish encodes the payload and puts it on the bus. The event type must
// be one of the Type constants or another non-empty name the stream
// clients understand.
func (b *Bus) Publish(eventType string, payload any) error {
	if eventType == "" {
		return fmt.Errorf("event: empty event type")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal %s payload: %w", eventType, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metaEventType, eventType)

	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("event: publish %s: %w", eventType, err)
	}
	return nil
}

// SubscribeAll registers a callback receiving every event. The data
// argument is the JSON-encoded payload as json.RawMessage. Returns an
// unsubscribe function; unsubscribing twice is harmless.
func (b *Bus) SubscribeAll(fn func(event string, data any)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// dispatch fans incoming messages out to every registered subscriber.
// Runs until the bus is closed.
func (b *Bus) dispatch(msgs <-chan *message.Message) {
	for msg := range msgs {
		eventType := msg.Metadata.Get(metaEventType)
		payload := json.RawMessage(msg.Payload)
		msg.Ack()

		b.mu.Lock()
		fns := make([]func(event string, data any), 0, len(b.subs))
		for _, fn := range b.subs {
			fns = append(fns, fn)
		}
		b.mu.Unlock()

		for _, fn := range fns {
			fn(eventType, payload)
		}
	}
}

// Close stops the dispatch loop and drops all subscribers. Events
// published after Close are discarded.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subs = make(map[uint64]func(event string, data any))
	b.mu.Unlock()

	b.cancel()
	return b.pubsub.Close()
}
