package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends JSON messages. Both methods report whether the broker
// accepted the message; they never block longer than the publish timeout.
type Publisher interface {
	Send(ctx context.Context, queue string, v any) bool
	Publish(ctx context.Context, exchange, routingKey string, v any) bool
}

// Subscriber registers consumers. Registrations survive reconnects.
type Subscriber interface {
	Consume(queue string, h Handler) error
	Subscribe(exchange, bindingKey string, h Handler) error
}

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("broker closed")

// Config configures a Broker.
type Config struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	MessageTTL        time.Duration
	PublishTimeout    time.Duration
	// ConflictDelay is the pause between deleting a conflicting queue and
	// declaring it again. Zero means one second; negative means no pause.
	ConflictDelay time.Duration
	// Queues are the work queues declared with dead-lettering. Defaults to WorkQueues.
	Queues []string
}

func (c *Config) setDefaults() {
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 10
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.MessageTTL <= 0 {
		c.MessageTTL = DefaultMessageTTL
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.ConflictDelay < 0 {
		c.ConflictDelay = 0
	} else if c.ConflictDelay == 0 {
		c.ConflictDelay = time.Second
	}
	if len(c.Queues) == 0 {
		c.Queues = WorkQueues
	}
}

// messageIdentifier is implemented by payloads that carry their own message id.
type messageIdentifier interface {
	MessageID() string
}

type registration struct {
	queue      string
	exchange   string
	bindingKey string
	handler    Handler
	tag        string

	// active is held by the consumer goroutine of the current generation.
	// A consumer started after a reconnect waits for the previous one to exit.
	active sync.Mutex
}

// Broker is a reconnecting AMQP client. It is safe for concurrent use.
type Broker struct {
	cfg    Config
	dial   Dialer
	logger *slog.Logger

	mu           sync.RWMutex
	conn         Connection
	ch           Channel
	connected    bool
	generation   int
	reconnecting bool
	closed       bool
	regs         []*registration

	runCtx        context.Context
	cancelRun     context.CancelFunc
	handlerCtx    context.Context
	cancelHandler context.CancelFunc
	consumers     sync.WaitGroup
	background    sync.WaitGroup
}

var (
	_ Publisher  = (*Broker)(nil)
	_ Subscriber = (*Broker)(nil)
)

// New creates a Broker. If dial is nil, DialAMQP is used. Nothing is dialed until Connect.
func New(cfg Config, dial Dialer, logger *slog.Logger) *Broker {
	cfg.setDefaults()
	if dial == nil {
		dial = DialAMQP
	}
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, cancelRun := context.WithCancel(context.Background())
	handlerCtx, cancelHandler := context.WithCancel(context.Background())
	return &Broker{
		cfg:           cfg,
		dial:          dial,
		logger:        logger.With(slog.String("component", "broker")),
		runCtx:        runCtx,
		cancelRun:     cancelRun,
		handlerCtx:    handlerCtx,
		cancelHandler: cancelHandler,
	}
}

// Connect dials the broker and declares the topology. On failure it
// returns the error and keeps reconnecting in the background.
func (b *Broker) Connect(ctx context.Context) error {
	err := b.connect(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClosed) {
		return err
	}
	b.logger.Warn("broker connection failed, scheduling reconnect", slog.String("error", err.Error()))
	b.scheduleReconnect()
	return err
}

// IsConnected reports whether a channel is currently open.
func (b *Broker) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Broker) connect(ctx context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	conn, err := b.dial(b.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	ch, err = b.declareTopology(ctx, conn, ch)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("declare topology: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("set prefetch: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	b.conn = conn
	b.ch = ch
	b.connected = true
	b.generation++
	gen := b.generation
	regs := append([]*registration(nil), b.regs...)
	b.mu.Unlock()

	b.watch(gen, conn, ch)

	for _, r := range regs {
		if err := b.startConsumer(ch, r); err != nil {
			b.logger.Error("failed to restart consumer",
				slog.String("queue", r.queue),
				slog.String("exchange", r.exchange),
				slog.String("error", err.Error()))
		}
	}

	b.logger.Info("broker connected", slog.Int("consumers", len(regs)))
	return nil
}

// declareTopology declares exchanges, work queues and their dead-letter
// queues. It may replace ch when a queue has to be recreated.
func (b *Broker) declareTopology(ctx context.Context, conn Connection, ch Channel) (Channel, error) {
	if err := ch.ExchangeDeclare(ExchangeDeadLetter, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(ExchangeTaskEvents, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, err
	}

	for _, q := range b.cfg.Queues {
		err := b.declareQueue(ch, q)
		if err == nil {
			continue
		}
		if !isPreconditionFailed(err) {
			return nil, err
		}

		b.logger.Warn("queue arguments conflict, recreating queue",
			slog.String("queue", q),
			slog.String("error", err.Error()))

		// the server closes the channel on a failed declaration
		_ = ch.Close()
		if ch, err = conn.Channel(); err != nil {
			return nil, err
		}
		if _, err := ch.QueueDelete(q, false, false, false); err != nil {
			return nil, fmt.Errorf("delete queue %s: %w", q, err)
		}
		if _, err := ch.QueueDelete(DeadLetterQueue(q), false, false, false); err != nil {
			return nil, fmt.Errorf("delete queue %s: %w", DeadLetterQueue(q), err)
		}

		select {
		case <-time.After(b.cfg.ConflictDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if err := b.declareQueue(ch, q); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

func (b *Broker) declareQueue(ch Channel, q string) error {
	dlq := DeadLetterQueue(q)
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(dlq, DeadLetterRoutingKey(q), ExchangeDeadLetter, false, nil); err != nil {
		return err
	}
	_, err := ch.QueueDeclare(q, true, false, false, false, amqp.Table{
		"x-message-ttl":             b.cfg.MessageTTL.Milliseconds(),
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": DeadLetterRoutingKey(q),
	})
	return err
}

func isPreconditionFailed(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed
}

// watch marks the broker disconnected when the connection or channel of
// generation gen closes.
func (b *Broker) watch(gen int, conn Connection, ch Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.background.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.background.Done()
		var reason *amqp.Error
		select {
		case reason = <-connClosed:
		case reason = <-chClosed:
		case <-b.runCtx.Done():
			return
		}
		msg := "closed"
		if reason != nil {
			msg = reason.Error()
		}
		b.handleDisconnect(gen, msg)
	}()
}

func (b *Broker) handleDisconnect(gen int, reason string) {
	b.mu.Lock()
	if b.closed || gen != b.generation || !b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = false
	conn := b.conn
	b.mu.Unlock()

	b.logger.Warn("broker connection lost", slog.String("reason", reason))
	if conn != nil {
		_ = conn.Close()
	}
	b.scheduleReconnect()
}

// scheduleReconnect starts the reconnect loop unless one is running.
func (b *Broker) scheduleReconnect() {
	b.mu.Lock()
	if b.closed || b.reconnecting {
		b.mu.Unlock()
		return
	}
	b.reconnecting = true
	b.background.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.background.Done()
		defer func() {
			b.mu.Lock()
			b.reconnecting = false
			b.mu.Unlock()
		}()
		b.reconnect()
	}()
}

func (b *Broker) reconnect() {
	attempt := 0
	_, err := backoff.Retry(b.runCtx, func() (struct{}, error) {
		attempt++
		if err := b.connect(b.runCtx); err != nil {
			if errors.Is(err, ErrClosed) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(&linearBackOff{base: b.cfg.ReconnectDelay}),
		backoff.WithMaxTries(uint(b.cfg.ReconnectAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			b.logger.Warn("broker reconnect attempt failed",
				slog.Int("attempt", attempt),
				slog.Duration("next_in", next),
				slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		if !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
			b.logger.Error("broker reconnect gave up",
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()))
		}
		return
	}
	b.logger.Info("broker reconnected", slog.Int("attempts", attempt))
}

// Send implements Publisher by publishing to queue through the default exchange.
func (b *Broker) Send(ctx context.Context, queue string, v any) bool {
	return b.Publish(ctx, "", queue, v)
}

// Publish implements Publisher. A failed publish marks the broker
// disconnected and starts reconnecting.
func (b *Broker) Publish(ctx context.Context, exchange, routingKey string, v any) bool {
	body, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("failed to encode message",
			slog.String("routing_key", routingKey),
			slog.String("error", err.Error()))
		return false
	}

	b.mu.RLock()
	ch, connected, gen := b.ch, b.connected, b.generation
	b.mu.RUnlock()
	if !connected {
		return false
	}

	id := ""
	if m, ok := v.(messageIdentifier); ok {
		id = m.MessageID()
	}
	if id == "" {
		id = uuid.NewString()
	}

	pubCtx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
	defer cancel()

	err = ch.PublishWithContext(pubCtx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		b.logger.Error("publish failed",
			slog.String("exchange", exchange),
			slog.String("routing_key", routingKey),
			slog.String("error", err.Error()))
		b.handleDisconnect(gen, err.Error())
		return false
	}
	return true
}

// Consume implements Subscriber for a work queue with manual acknowledgement.
func (b *Broker) Consume(queue string, h Handler) error {
	return b.register(&registration{queue: queue, handler: h})
}

// Subscribe implements Subscriber by binding a server-named exclusive queue
// to exchange with bindingKey.
func (b *Broker) Subscribe(exchange, bindingKey string, h Handler) error {
	return b.register(&registration{exchange: exchange, bindingKey: bindingKey, handler: h})
}

func (b *Broker) register(r *registration) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.regs = append(b.regs, r)
	ch, connected := b.ch, b.connected
	b.mu.Unlock()

	if !connected {
		return nil
	}
	return b.startConsumer(ch, r)
}

func (b *Broker) startConsumer(ch Channel, r *registration) error {
	queue := r.queue
	if r.exchange != "" {
		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			return fmt.Errorf("declare subscription queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, r.bindingKey, r.exchange, false, nil); err != nil {
			return fmt.Errorf("bind subscription queue: %w", err)
		}
		queue = q.Name
	}

	tag := "taskflow-" + uuid.NewString()
	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ch.Cancel(tag, false)
		return ErrClosed
	}
	r.tag = tag
	b.consumers.Add(1)
	b.mu.Unlock()

	name := r.queue
	if name == "" {
		name = r.exchange + ":" + r.bindingKey
	}

	go func() {
		defer b.consumers.Done()
		r.active.Lock()
		defer r.active.Unlock()
		for d := range deliveries {
			outcome := r.handler(b.handlerCtx, newDelivery(name, d))
			if err := settle(d, outcome); err != nil {
				b.logger.Error("failed to settle delivery",
					slog.String("queue", name),
					slog.String("outcome", outcome.String()),
					slog.String("error", err.Error()))
			}
		}
		b.logger.Debug("consumer stopped", slog.String("queue", name))
	}()
	return nil
}

// Close stops reconnecting, cancels consumers, waits for in-flight handlers
// until ctx ends, then closes the channel and connection.
func (b *Broker) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.connected = false
	ch, conn := b.ch, b.conn
	tags := make([]string, 0, len(b.regs))
	for _, r := range b.regs {
		if r.tag != "" {
			tags = append(tags, r.tag)
		}
	}
	b.mu.Unlock()

	b.cancelRun()

	if ch != nil {
		for _, tag := range tags {
			if err := ch.Cancel(tag, false); err != nil {
				b.logger.Warn("failed to cancel consumer", slog.String("tag", tag), slog.String("error", err.Error()))
			}
		}
	}

	drained := make(chan struct{})
	go func() {
		b.consumers.Wait()
		close(drained)
	}()

	var drainErr error
	select {
	case <-drained:
	case <-ctx.Done():
		b.cancelHandler()
		drainErr = fmt.Errorf("drain consumers: %w", ctx.Err())
	}

	var closeErr error
	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			closeErr = err
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) && closeErr == nil {
			closeErr = err
		}
	}
	b.cancelHandler()
	b.background.Wait()

	b.logger.Info("broker closed")
	return errors.Join(drainErr, closeErr)
}
