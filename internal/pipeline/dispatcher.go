package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/platform/logger"
)

// Bus is what the dispatcher needs from the broker: it consumes the work
// queues and republishes messages for retry.
type Bus interface {
	broker.Publisher
	broker.Subscriber
}

// Config tunes a Dispatcher.
type Config struct {
	// DedupCapacity and DedupRetain size the Window. Defaults 1000 and 500.
	DedupCapacity int
	DedupRetain   int
	// PruneInterval is how often the Window and the ledger are pruned. Defaults to 30s.
	PruneInterval time.Duration
	// MaxRetries bounds republishing after a failure that is neither a
	// connectivity nor a domain fault. Zero dead-letters on the first such failure.
	MaxRetries int
	// RequeueDelay is the pause before requeueing after a connectivity fault.
	RequeueDelay time.Duration
	// LedgerRetention is how long ledger entries are kept. Zero disables ledger pruning.
	LedgerRetention time.Duration
	// Queues are the work queues consumed. Defaults to broker.WorkQueues.
	Queues []string
}

func (c *Config) setDefaults() {
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = 1000
	}
	if c.DedupRetain <= 0 {
		c.DedupRetain = 500
	}
	if c.DedupRetain > c.DedupCapacity {
		c.DedupRetain = c.DedupCapacity
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if len(c.Queues) == 0 {
		c.Queues = broker.WorkQueues
	}
}

// Dispatcher consumes the work queues and applies each message.
type Dispatcher struct {
	applier *Applier
	bus     Bus
	window  *Window
	cfg     Config
	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithTracer sets the tracer used for the per-message span.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithMetrics sets the instruments the dispatcher records to.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher. Nothing is consumed until Start.
func NewDispatcher(applier *Applier, bus Bus, cfg Config, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	cfg.setDefaults()
	window, err := NewWindow(cfg.DedupCapacity, cfg.DedupRetain)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		applier: applier,
		bus:     bus,
		window:  window,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "dispatcher")),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tracer == nil {
		d.tracer = nooptrace.NewTracerProvider().Tracer("")
	}
	if d.metrics == nil {
		if d.metrics, err = NewMetrics(nil); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Window exposes the de-duplication window.
func (d *Dispatcher) Window() *Window { return d.window }

// Start registers a consumer on every work queue and starts the prune loop.
// The prune loop runs until ctx ends or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) error {
	for _, q := range d.cfg.Queues {
		if err := d.bus.Consume(q, d.Handle); err != nil {
			return fmt.Errorf("consume %s: %w", q, err)
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.pruneLoop(ctx)
	}()

	d.logger.Info("dispatcher started",
		slog.Any("queues", d.cfg.Queues),
		slog.Int("dedup_capacity", d.cfg.DedupCapacity),
		slog.Int("max_retries", d.cfg.MaxRetries))
	return nil
}

// Stop ends the prune loop and interrupts requeue pauses. In-flight
// deliveries are drained by closing the broker.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}

func (d *Dispatcher) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.PruneOnce(ctx)
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		}
	}
}

// PruneOnce trims the Window to its retain size and deletes expired ledger entries.
func (d *Dispatcher) PruneOnce(ctx context.Context) {
	if evicted := d.window.Prune(); evicted > 0 {
		d.logger.Debug("pruned de-duplication window",
			slog.Int("evicted", evicted),
			slog.Int("remaining", d.window.Len()))
	}
	if d.cfg.LedgerRetention <= 0 {
		return
	}
	n, err := d.applier.PruneLedger(ctx, d.now().Add(-d.cfg.LedgerRetention))
	if err != nil {
		d.logger.Warn("failed to prune ledger", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		d.logger.Debug("pruned ledger", slog.Int64("deleted", n))
	}
}

// Handle processes one delivery and decides its outcome.
func (d *Dispatcher) Handle(ctx context.Context, del broker.Delivery) broker.Outcome {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "pipeline.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", del.Queue),
			attribute.String("messaging.message.id", del.MessageID),
		),
	)
	defer span.End()

	op, outcome := d.handle(ctx, del, span)

	attrs := metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("outcome", outcome.String()),
	)
	d.metrics.Processed.Add(ctx, 1, attrs)
	d.metrics.Duration.Record(ctx, time.Since(start).Seconds(), attrs)
	span.SetAttributes(attribute.String("taskflow.outcome", outcome.String()))
	return outcome
}

func (d *Dispatcher) handle(ctx context.Context, del broker.Delivery, span trace.Span) (Operation, broker.Outcome) {
	log := d.logger.With(slog.String("queue", del.Queue), slog.String("message_id", del.MessageID))

	msg, err := DecodeMessage(del.Body)
	if err == nil {
		var fp string
		if fp, err = msg.Fingerprint(); err == nil {
			return d.dispatch(ctx, msg, fp, log, span)
		}
	}

	log.Error("dropping malformed message", slog.String("error", err.Error()))
	span.RecordError(err)
	span.SetStatus(codes.Error, "malformed message")
	d.recordFault(ctx, "", FaultDomain.String())
	return "", broker.DeadLetter
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *Message, fp string, log *slog.Logger, span trace.Span) (Operation, broker.Outcome) {
	op := msg.Operation
	log = log.With(slog.String("operation", string(op)), slog.String("fingerprint", fp), slog.Int("retry_count", msg.RetryCount))
	ctx = logger.WithLogger(ctx, log)
	span.SetAttributes(
		attribute.String("taskflow.operation", string(op)),
		attribute.String("taskflow.fingerprint", fp),
		attribute.Int("taskflow.retry_count", msg.RetryCount),
	)

	if d.window.Seen(fp) {
		log.Info("skipping message already applied")
		d.metrics.Duplicates.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", string(op))))
		return op, broker.Ack
	}

	res, err := d.applier.Apply(ctx, msg)
	if err == nil {
		d.window.Mark(fp)
		if res.Duplicate {
			d.metrics.Duplicates.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", string(op))))
		}
		return op, broker.Ack
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	switch {
	case IsConnectivityError(err):
		d.recordFault(ctx, op, FaultConnectivity.String())
		log.Warn("store unreachable, requeueing message",
			slog.String("error", err.Error()),
			slog.Duration("delay", d.cfg.RequeueDelay))
		d.pause(ctx)
		return op, broker.Requeue
	case IsDomainError(err):
		d.recordFault(ctx, op, FaultDomain.String())
		log.Error("message cannot be applied, dead-lettering", slog.String("error", err.Error()))
		return op, broker.DeadLetter
	case errors.Is(err, context.Canceled):
		return op, broker.Requeue
	}

	d.recordFault(ctx, op, "transient")
	if msg.RetryCount >= d.cfg.MaxRetries {
		log.Error("retry budget exhausted, dead-lettering message",
			slog.String("error", err.Error()),
			slog.Int("max_retries", d.cfg.MaxRetries))
		return op, broker.DeadLetter
	}

	retry := *msg
	retry.RetryCount++
	if !d.bus.Send(ctx, op.Queue(), &retry) {
		log.Warn("could not republish message for retry, requeueing", slog.String("error", err.Error()))
		return op, broker.Requeue
	}
	log.Warn("apply failed, message republished for retry",
		slog.String("error", err.Error()),
		slog.Int("next_retry", retry.RetryCount))
	return op, broker.Ack
}

func (d *Dispatcher) recordFault(ctx context.Context, op Operation, kind string) {
	d.metrics.Faults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("kind", kind),
	))
}

func (d *Dispatcher) pause(ctx context.Context) {
	if d.cfg.RequeueDelay <= 0 {
		return
	}
	t := time.NewTimer(d.cfg.RequeueDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-d.stop:
	}
}
