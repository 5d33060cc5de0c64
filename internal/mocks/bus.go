package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/phrazzld/taskflow/internal/broker"
)

// SentMessage is a message recorded by MockBus.
type SentMessage struct {
	Exchange   string
	RoutingKey string
	Body       []byte
}

// MockBus implements broker.Publisher and broker.Subscriber in memory.
// Sent messages are recorded; registered handlers are invoked by Deliver.
type MockBus struct {
	// SendFn overrides acceptance when set. It sees the exchange ("" for
	// queues) and routing key.
	SendFn func(exchange, routingKey string) bool

	mu       sync.Mutex
	accept   bool
	sent     []SentMessage
	handlers map[string]broker.Handler
}

var (
	_ broker.Publisher  = (*MockBus)(nil)
	_ broker.Subscriber = (*MockBus)(nil)
)

// NewMockBus creates a bus that accepts every message.
func NewMockBus() *MockBus {
	return &MockBus{accept: true, handlers: make(map[string]broker.Handler)}
}

// SetAccept controls whether Send and Publish succeed.
func (b *MockBus) SetAccept(accept bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accept = accept
}

// Send implements broker.Publisher.
func (b *MockBus) Send(ctx context.Context, queue string, v any) bool {
	return b.Publish(ctx, "", queue, v)
}

// Publish implements broker.Publisher.
func (b *MockBus) Publish(_ context.Context, exchange, routingKey string, v any) bool {
	body, err := json.Marshal(v)
	if err != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	accept := b.accept
	if b.SendFn != nil {
		accept = b.SendFn(exchange, routingKey)
	}
	if !accept {
		return false
	}
	b.sent = append(b.sent, SentMessage{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return true
}

// Consume implements broker.Subscriber.
func (b *MockBus) Consume(queue string, h broker.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[queue] = h
	return nil
}

// Subscribe implements broker.Subscriber. The handler is registered under
// "exchange:bindingKey".
func (b *MockBus) Subscribe(exchange, bindingKey string, h broker.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[exchange+":"+bindingKey] = h
	return nil
}

// Sent returns the messages sent to queue (or published with that routing key).
func (b *MockBus) Sent(routingKey string) []SentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []SentMessage
	for _, m := range b.sent {
		if m.RoutingKey == routingKey {
			out = append(out, m)
		}
	}
	return out
}

// All returns every recorded message.
func (b *MockBus) All() []SentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SentMessage(nil), b.sent...)
}

// Reset forgets the recorded messages.
func (b *MockBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = nil
}

// Registered reports whether a handler is registered under name.
func (b *MockBus) Registered(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[name]
	return ok
}

// Deliver invokes the handler registered under name with body.
func (b *MockBus) Deliver(ctx context.Context, name string, body []byte) (broker.Outcome, error) {
	b.mu.Lock()
	h, ok := b.handlers[name]
	b.mu.Unlock()
	if !ok {
		return broker.Ack, fmt.Errorf("no handler registered for %s", name)
	}
	return h(ctx, broker.Delivery{Queue: name, RoutingKey: name, Body: body}), nil
}
