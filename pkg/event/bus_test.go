package event

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// received is a concurrency-safe capture of delivered events.
type received struct {
	mu     sync.Mutex
	events []string
	data   []json.RawMessage
}

func (r *received) add(event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if raw, ok := data.(json.RawMessage); ok {
		r.data = append(r.data, raw)
	}
}

func (r *received) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *received) snapshot() ([]string, []json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]json.RawMessage(nil), r.data...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got received
	unsub := bus.SubscribeAll(got.add)
	defer unsub()

	require.NoError(t, bus.Publish(TypeDamage, map[string]int{"amount": 42}))

	waitFor(t, func() bool { return got.count() == 1 })

	events, data := got.snapshot()
	assert.Equal(t, []string{TypeDamage}, events)
	require.Len(t, data, 1)
	assert.JSONEq(t, `{"amount":42}`, string(data[0]))
}

func TestPublishPreservesOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got received
	unsub := bus.SubscribeAll(got.add)
	defer unsub()

	require.NoError(t, bus.Publish(TypeSessionStarted, nil))
	require.NoError(t, bus.Publish(TypeDamage, nil))
	require.NoError(t, bus.Publish(TypeSessionEnded, nil))

	waitFor(t, func() bool { return got.count() == 3 })

	events, _ := got.snapshot()
	assert.Equal(t, []string{TypeSessionStarted, TypeDamage, TypeSessionEnded}, events)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got received
	unsub := bus.SubscribeAll(got.add)

	require.NoError(t, bus.Publish(TypeHeal, nil))
	waitFor(t, func() bool { return got.count() == 1 })

	unsub()
	unsub() // second call is harmless

	require.NoError(t, bus.Publish(TypeHeal, nil))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, got.count())
}

func TestPublishRejectsEmptyType(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	assert.Error(t, bus.Publish("", nil))
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	assert.Error(t, bus.Publish(TypeDamage, func() {}))
}

func TestCloseIdempotent(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	// Subscribing after close is a no-op.
	unsub := bus.SubscribeAll(func(string, any) {})
	unsub()
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var a, b received
	defer bus.SubscribeAll(a.add)()
	defer bus.SubscribeAll(b.add)()

	require.NoError(t, bus.Publish(TypeDeath, map[string]string{"target": "a goblin"}))

	waitFor(t, func() bool { return a.count() == 1 && b.count() == 1 })
}
