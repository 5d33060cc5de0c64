package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type declaredQueue struct {
	name string
	args amqp.Table
}

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	conn *fakeConn

	mu         sync.Mutex
	exchanges  map[string]string
	declared   []declaredQueue
	binds      []string
	deleted    []string
	published  []published
	prefetch   int
	publishErr error
	consumers  map[string]chan amqp.Delivery
	tagQueue   map[string]string
	cancelled  map[string]bool
	notify     []chan *amqp.Error
	closed     bool
	anon       int
}

func newFakeChannel(conn *fakeConn) *fakeChannel {
	return &fakeChannel{
		conn:      conn,
		exchanges: make(map[string]string),
		consumers: make(map[string]chan amqp.Delivery),
		tagQueue:  make(map[string]string),
		cancelled: make(map[string]bool),
	}
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges[name] = kind
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	if err := c.conn.takeDeclareFailure(name); err != nil {
		return amqp.Queue{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == "" {
		c.anon++
		name = fmt.Sprintf("amq.gen-%d", c.anon)
	}
	c.declared = append(c.declared, declaredQueue{name: name, args: args})
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binds = append(c.binds, name+"<-"+key+"@"+exchange)
	return nil
}

func (c *fakeChannel) QueueDelete(name string, _, _, _ bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, name)
	return 0, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := make(chan amqp.Delivery, 16)
	c.consumers[queue] = ch
	c.tagQueue[consumer] = queue
	return ch, nil
}

func (c *fakeChannel) Cancel(consumer string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeConsumerLocked(consumer)
	return nil
}

func (c *fakeChannel) closeConsumerLocked(tag string) {
	if c.cancelled[tag] {
		return
	}
	c.cancelled[tag] = true
	if ch, ok := c.consumers[c.tagQueue[tag]]; ok {
		close(ch)
	}
}

func (c *fakeChannel) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, ch)
	return ch
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for tag := range c.tagQueue {
		c.closeConsumerLocked(tag)
	}
	return nil
}

// deliver pushes a delivery to the consumer of queue.
func (c *fakeChannel) deliver(queue string, d amqp.Delivery) error {
	c.mu.Lock()
	ch, ok := c.consumers[queue]
	c.mu.Unlock()
	if !ok {
		return errors.New("no consumer on " + queue)
	}
	ch <- d
	return nil
}

func (c *fakeChannel) hasConsumer(queue string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.consumers[queue]
	return ok
}

func (c *fakeChannel) publishedMessages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

type fakeConn struct {
	mu             sync.Mutex
	channels       []*fakeChannel
	declareFailure map[string]error
	notify         []chan *amqp.Error
	closed         bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{declareFailure: make(map[string]error)}
}

func (c *fakeConn) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := newFakeChannel(c)
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, ch)
	return ch
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	chans := append([]*fakeChannel(nil), c.channels...)
	c.closed = true
	c.mu.Unlock()
	for _, ch := range chans {
		_ = ch.Close()
	}
	return nil
}

func (c *fakeConn) takeDeclareFailure(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err, ok := c.declareFailure[name]
	if ok {
		delete(c.declareFailure, name)
	}
	return err
}

// drop simulates the server closing the connection.
func (c *fakeConn) drop() {
	c.mu.Lock()
	notify := append([]chan *amqp.Error(nil), c.notify...)
	c.mu.Unlock()
	for _, n := range notify {
		select {
		case n <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED"}:
		default:
		}
	}
	_ = c.Close()
}

func (c *fakeConn) channel(i int) *fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.channels) {
		return nil
	}
	return c.channels[i]
}

func (c *fakeConn) lastChannel() *fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[len(c.channels)-1]
}

type fakeDialer struct {
	mu       sync.Mutex
	failures int
	attempts int
	conns    []*fakeConn
	setup    func(*fakeConn)
}

func (d *fakeDialer) dial(string) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("dial tcp: connection refused")
	}
	c := newFakeConn()
	if d.setup != nil {
		d.setup(c)
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

type fakeAck struct {
	mu       sync.Mutex
	acked    []uint64
	requeued []uint64
	rejected []uint64
}

func (a *fakeAck) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAck) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeued = append(a.requeued, tag)
	} else {
		a.rejected = append(a.rejected, tag)
	}
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAck) counts() (acked, requeued, rejected int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked), len(a.requeued), len(a.rejected)
}
