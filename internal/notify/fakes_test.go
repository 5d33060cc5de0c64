package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/phrazzld/taskflow/internal/broker"
)

type fakeMember struct {
	id     string
	reject bool

	mu     sync.Mutex
	events []Event
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Deliver(ev Event) bool {
	if m.reject {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return true
}

func (m *fakeMember) received() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

type publishedEvent struct {
	exchange string
	key      string
	body     []byte
}

// fakeBus implements broker.Publisher and broker.Subscriber.
type fakeBus struct {
	accept bool

	mu        sync.Mutex
	published []publishedEvent
	subs      map[string]broker.Handler
}

func newFakeBus(accept bool) *fakeBus {
	return &fakeBus{accept: accept, subs: make(map[string]broker.Handler)}
}

func (b *fakeBus) Send(ctx context.Context, queue string, v any) bool {
	return b.Publish(ctx, "", queue, v)
}

func (b *fakeBus) Publish(_ context.Context, exchange, key string, v any) bool {
	if !b.accept {
		return false
	}
	body, err := json.Marshal(v)
	if err != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{exchange: exchange, key: key, body: body})
	return true
}

func (b *fakeBus) Consume(queue string, h broker.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[queue] = h
	return nil
}

func (b *fakeBus) Subscribe(exchange, key string, h broker.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[exchange+":"+key] = h
	return nil
}

func (b *fakeBus) events() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedEvent(nil), b.published...)
}
