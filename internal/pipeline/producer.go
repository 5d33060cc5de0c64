package pipeline

import (
	"context"
	"log/slog"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/platform/logger"
)

// Producer turns mutation requests into messages on the work queues. It
// never performs a mutation itself.
type Producer struct {
	pub    broker.Publisher
	logger *slog.Logger
}

// NewProducer creates a Producer sending through pub.
func NewProducer(pub broker.Publisher, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		pub:    pub,
		logger: logger.With(slog.String("component", "producer")),
	}
}

// EnqueueCreate queues a CREATE_TASK message and reports whether the broker accepted it.
func (p *Producer) EnqueueCreate(ctx context.Context, payload CreatePayload) bool {
	return p.enqueue(ctx, OpCreateTask, payload)
}

// EnqueueUpdate queues an UPDATE_TASK message.
func (p *Producer) EnqueueUpdate(ctx context.Context, taskID int64, patch domain.TaskPatch) bool {
	return p.enqueue(ctx, OpUpdateTask, UpdatePayload{TaskID: taskID, Patch: patch})
}

// EnqueueDelete queues a DELETE_TASK message.
func (p *Producer) EnqueueDelete(ctx context.Context, taskID int64) bool {
	return p.enqueue(ctx, OpDeleteTask, DeletePayload{TaskID: taskID})
}

// EnqueueSubmit queues a SUBMIT_TASK message.
func (p *Producer) EnqueueSubmit(ctx context.Context, taskID, userID int64) bool {
	return p.enqueue(ctx, OpSubmitTask, SubmitPayload{TaskID: taskID, UserID: userID})
}

// EnqueueInvalidation queues an INVALIDATE_CACHE message for keys. Keys may be glob patterns.
func (p *Producer) EnqueueInvalidation(ctx context.Context, keys []string) bool {
	return p.enqueue(ctx, OpInvalidateCache, InvalidatePayload{CacheKeys: keys})
}

// Enqueue sends a prepared message to the queue of its operation.
func (p *Producer) Enqueue(ctx context.Context, msg *Message) bool {
	log := logger.FromContextOrDefault(ctx, p.logger)
	queue := msg.Operation.Queue()
	if !p.pub.Send(ctx, queue, msg) {
		log.Warn("message not accepted by broker",
			slog.String("operation", string(msg.Operation)),
			slog.String("queue", queue),
			slog.String("message_id", msg.ID))
		return false
	}
	log.Debug("message enqueued",
		slog.String("operation", string(msg.Operation)),
		slog.String("queue", queue),
		slog.String("message_id", msg.ID),
		slog.Int("retry_count", msg.RetryCount))
	return true
}

func (p *Producer) enqueue(ctx context.Context, op Operation, data any) bool {
	msg, err := NewMessage(op, data)
	if err != nil {
		logger.FromContextOrDefault(ctx, p.logger).Error("failed to build message",
			slog.String("operation", string(op)),
			slog.String("error", err.Error()))
		return false
	}
	return p.Enqueue(ctx, msg)
}
