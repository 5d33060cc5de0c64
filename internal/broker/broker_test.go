package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 2 * time.Second
const tick = 5 * time.Millisecond

func newTestBroker(t *testing.T, d *fakeDialer, cfg Config) *Broker {
	t.Helper()
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = time.Millisecond
	}
	if cfg.ConflictDelay == 0 {
		cfg.ConflictDelay = -1
	}
	b := New(cfg, d.dial, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return b
}

type idPayload struct {
	Value string `json:"value"`
}

func (idPayload) MessageID() string { return "fixed-id" }

func TestConnectDeclaresTopology(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d, Config{MessageTTL: time.Hour})

	require.NoError(t, b.Connect(context.Background()))
	assert.True(t, b.IsConnected())

	ch := d.conn(0).channel(0)
	require.NotNil(t, ch)
	assert.Equal(t, amqp.ExchangeDirect, ch.exchanges[ExchangeDeadLetter])
	assert.Equal(t, amqp.ExchangeTopic, ch.exchanges[ExchangeTaskEvents])
	assert.Equal(t, 1, ch.prefetch)

	byName := map[string]amqp.Table{}
	for _, q := range ch.declared {
		byName[q.name] = q.args
	}
	for _, q := range WorkQueues {
		args, ok := byName[q]
		require.True(t, ok, q)
		assert.Equal(t, int64(time.Hour/time.Millisecond), args["x-message-ttl"])
		assert.Equal(t, ExchangeDeadLetter, args["x-dead-letter-exchange"])
		assert.Equal(t, q+".failed", args["x-dead-letter-routing-key"])

		_, ok = byName[q+".dlq"]
		assert.True(t, ok, q+".dlq")
		assert.Contains(t, ch.binds, q+".dlq<-"+q+".failed@dlx")
	}
}

func TestSendRequiresConnection(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d, Config{})
	ctx := context.Background()

	assert.False(t, b.Send(ctx, QueueTaskOperations, idPayload{Value: "x"}))

	require.NoError(t, b.Connect(ctx))
	assert.True(t, b.Send(ctx, QueueTaskOperations, idPayload{Value: "x"}))
	assert.True(t, b.Publish(ctx, ExchangeTaskEvents, "task.created", map[string]int{"taskId": 1}))

	msgs := d.conn(0).channel(0).publishedMessages()
	require.Len(t, msgs, 2)

	assert.Equal(t, "", msgs[0].exchange)
	assert.Equal(t, QueueTaskOperations, msgs[0].key)
	assert.Equal(t, amqp.Persistent, msgs[0].msg.DeliveryMode)
	assert.Equal(t, "application/json", msgs[0].msg.ContentType)
	assert.Equal(t, "fixed-id", msgs[0].msg.MessageId)
	assert.JSONEq(t, `{"value":"x"}`, string(msgs[0].msg.Body))

	assert.Equal(t, ExchangeTaskEvents, msgs[1].exchange)
	assert.Equal(t, "task.created", msgs[1].key)
	assert.NotEmpty(t, msgs[1].msg.MessageId)
}

func TestSendRejectsUnencodablePayload(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d, Config{})
	require.NoError(t, b.Connect(context.Background()))
	assert.False(t, b.Send(context.Background(), QueueTaskOperations, func() {}))
	assert.True(t, b.IsConnected())
}

func TestPublishFailureTriggersReconnect(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d, Config{})
	ctx := context.Background()
	require.NoError(t, b.Connect(ctx))

	ch := d.conn(0).channel(0)
	ch.mu.Lock()
	ch.publishErr = amqp.ErrClosed
	ch.mu.Unlock()

	assert.False(t, b.Send(ctx, QueueTaskOperations, idPayload{}))

	assert.Eventually(t, func() bool { return d.connCount() == 2 && b.IsConnected() }, eventually, tick)
	assert.True(t, b.Send(ctx, QueueTaskOperations, idPayload{}))
}

func TestPreconditionFailedRecreatesQueue(t *testing.T) {
	d := &fakeDialer{setup: func(c *fakeConn) {
		c.declareFailure[QueueTaskSubmissions] = &amqp.Error{
			Code:   amqp.PreconditionFailed,
			Reason: "PRECONDITION_FAILED - inequivalent arg 'x-message-ttl'",
		}
	}}
	b := newTestBroker(t, d, Config{})
	require.NoError(t, b.Connect(context.Background()))

	conn := d.conn(0)
	first, second := conn.channel(0), conn.channel(1)
	require.NotNil(t, second, "a fresh channel replaces the one the server closed")
	assert.True(t, first.closed)
	assert.Equal(t, []string{QueueTaskSubmissions, DeadLetterQueue(QueueTaskSubmissions)}, second.deleted)

	var names []string
	for _, q := range second.declared {
		names = append(names, q.name)
	}
	assert.Contains(t, names, QueueTaskSubmissions)
	assert.Contains(t, names, QueueCacheInvalidation)
	assert.Equal(t, 1, second.prefetch)
}

func TestConnectFailureIsBounded(t *testing.T) {
	d := &fakeDialer{failures: 100}
	b := newTestBroker(t, d, Config{ReconnectAttempts: 3})

	err := b.Connect(context.Background())
	require.Error(t, err)

	assert.Eventually(t, func() bool { return d.attemptCount() == 4 }, eventually, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, d.attemptCount(), "no attempts after the limit")
	assert.False(t, b.IsConnected())
}

func TestConnectFailureRecovers(t *testing.T) {
	d := &fakeDialer{failures: 2}
	b := newTestBroker(t, d, Config{})

	require.Error(t, b.Connect(context.Background()))
	assert.Eventually(t, b.IsConnected, eventually, tick)
	assert.Equal(t, 3, d.attemptCount())
}

func TestConsumeOutcomes(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d, Config{})
	require.NoError(t, b.Connect(context.Background()))

	outcomes := map[string]Outcome{"a": Ack, "r": Requeue, "d": DeadLetter}
	require.NoError(t, b.Consume(QueueTaskOperations, func(_ context.Context, del Delivery) Outcome {
		assert.Equal(t, QueueTaskOperations, del.Queue)
		var body struct{ Kind string }
		assert.NoError(t, json.Unmarshal(del.Body, &body))
		return outcomes[body.Kind]
	}))

	ch := d.conn(0).channel(0)
	ack := &fakeAck{}
	for i, kind := range []string{"a", "r", "d"} {
		require.NoError(t, ch.deliver(QueueTaskOperations, amqp.Delivery{
			Acknowledger: ack,
			DeliveryTag:  uint64(i + 1),
			Body:         []byte(`{"Kind":"` + kind + `"}`),
		}))
	}

	assert.Eventually(t, func() bool {
		a, r, x := ack.counts()
		return a == 1 && r == 1 && x == 1
	}, eventually, tick)
	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Equal(t, []uint64{2}, ack.requeued)
	assert.Equal(t, []uint64{3}, ack.rejected)
}

func TestConsumersSurviveReconnect(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d, Config{})

	handled := make(chan string, 4)
	require.NoError(t, b.Consume(QueueTaskSubmissions, func(_ context.Context, del Delivery) Outcome {
		handled <- string(del.Body)
		return Ack
	}))
	require.NoError(t, b.Connect(context.Background()))
	assert.True(t, d.conn(0).lastChannel().hasConsumer(QueueTaskSubmissions))

	d.conn(0).drop()
	assert.Eventually(t, func() bool {
		c := d.conn(1)
		return c != nil && b.IsConnected() && c.lastChannel().hasConsumer(QueueTaskSubmissions)
	}, eventually, tick)

	require.NoError(t, d.conn(1).lastChannel().deliver(QueueTaskSubmissions, amqp.Delivery{
		Acknowledger: &fakeAck{},
		Body:         []byte(`after`),
	}))
	select {
	case body := <-handled:
		assert.Equal(t, "after", body)
	case <-time.After(eventually):
		t.Fatal("handler not called after reconnect")
	}
}

func TestReconnectKeepsOneHandlerInFlight(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d, Config{})

	var running, peak atomic.Int32
	started := make(chan string, 4)
	handled := make(chan string, 4)
	release := make(chan struct{})
	var releaseOnce sync.Once
	t.Cleanup(func() { releaseOnce.Do(func() { close(release) }) })

	require.NoError(t, b.Consume(QueueTaskOperations, func(_ context.Context, del Delivery) Outcome {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		started <- string(del.Body)
		if string(del.Body) == "first" {
			<-release
		}
		handled <- string(del.Body)
		return Ack
	}))
	require.NoError(t, b.Connect(context.Background()))

	require.NoError(t, d.conn(0).lastChannel().deliver(QueueTaskOperations, amqp.Delivery{
		Acknowledger: &fakeAck{},
		Body:         []byte(`first`),
	}))
	select {
	case body := <-started:
		assert.Equal(t, "first", body)
	case <-time.After(eventually):
		t.Fatal("handler not called")
	}

	d.conn(0).drop()
	require.Eventually(t, func() bool {
		c := d.conn(1)
		return c != nil && b.IsConnected() && c.lastChannel().hasConsumer(QueueTaskOperations)
	}, eventually, tick)

	require.NoError(t, d.conn(1).lastChannel().deliver(QueueTaskOperations, amqp.Delivery{
		Acknowledger: &fakeAck{},
		Body:         []byte(`redelivered`),
		Redelivered:  true,
	}))
	assert.Never(t, func() bool { return len(started) > 0 }, 100*time.Millisecond, tick,
		"redelivery handled while the first delivery was still in flight")

	releaseOnce.Do(func() { close(release) })

	var order []string
	for len(order) < 2 {
		select {
		case body := <-handled:
			order = append(order, body)
		case <-time.After(eventually):
			t.Fatalf("handled %v, want both deliveries", order)
		}
	}
	assert.Equal(t, []string{"first", "redelivered"}, order)
	assert.Equal(t, int32(1), peak.Load())
}

func TestSubscribeBindsExclusiveQueue(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d, Config{})
	require.NoError(t, b.Connect(context.Background()))

	got := make(chan Delivery, 1)
	require.NoError(t, b.Subscribe(ExchangeTaskEvents, "task.#", func(_ context.Context, del Delivery) Outcome {
		got <- del
		return Ack
	}))

	ch := d.conn(0).channel(0)
	assert.Contains(t, ch.binds, "amq.gen-1<-task.#@task_events")
	require.NoError(t, ch.deliver("amq.gen-1", amqp.Delivery{
		Acknowledger: &fakeAck{},
		RoutingKey:   "task.created",
		Body:         []byte(`{}`),
	}))

	select {
	case del := <-got:
		assert.Equal(t, "task.created", del.RoutingKey)
		assert.Equal(t, "task_events:task.#", del.Queue)
	case <-time.After(eventually):
		t.Fatal("subscription handler not called")
	}
}

func TestCloseDrainsInFlight(t *testing.T) {
	d := &fakeDialer{}
	b := New(Config{ReconnectDelay: time.Millisecond}, d.dial, nil)
	require.NoError(t, b.Connect(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, b.Consume(QueueTaskOperations, func(context.Context, Delivery) Outcome {
		close(started)
		<-release
		return Ack
	}))

	ack := &fakeAck{}
	require.NoError(t, d.conn(0).channel(0).deliver(QueueTaskOperations, amqp.Delivery{Acknowledger: ack, DeliveryTag: 1}))
	<-started

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventually)
		defer cancel()
		closed <- b.Close(ctx)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a handler was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(eventually):
		t.Fatal("Close did not return")
	}

	a, _, _ := ack.counts()
	assert.Equal(t, 1, a)
	assert.False(t, b.IsConnected())
	assert.False(t, b.Send(context.Background(), QueueTaskOperations, idPayload{}))
	assert.True(t, errors.Is(b.Consume(QueueTaskOperations, nil), ErrClosed))
	assert.True(t, errors.Is(b.Connect(context.Background()), ErrClosed))
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{base: 5 * time.Second}
	assert.Equal(t, 5*time.Second, b.NextBackOff())
	assert.Equal(t, 10*time.Second, b.NextBackOff())
	assert.Equal(t, 15*time.Second, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 5*time.Second, b.NextBackOff())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ack", Ack.String())
	assert.Equal(t, "requeue", Requeue.String())
	assert.Equal(t, "dead_letter", DeadLetter.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}
