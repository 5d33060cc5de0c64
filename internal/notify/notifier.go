package notify

import (
	"context"
	"log/slog"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/domain"
)

// Notifier announces applied task mutations. Implementations are best
// effort and never fail the caller.
type Notifier interface {
	EmitCreated(ctx context.Context, teamID, subjectID int64, task *domain.Task)
	EmitUpdated(ctx context.Context, teamID, subjectID int64, task *domain.Task)
	EmitDeleted(ctx context.Context, teamID, subjectID, taskID int64)
	EmitSubmitted(ctx context.Context, teamID, subjectID, taskID, userID int64)
}

// BrokerNotifier publishes events to the task_events exchange. When the
// publish is not accepted the event goes to the local Notifier, if any.
type BrokerNotifier struct {
	pub    broker.Publisher
	local  Notifier
	logger *slog.Logger
}

var _ Notifier = (*BrokerNotifier)(nil)

// NewBrokerNotifier creates a BrokerNotifier. local may be nil.
func NewBrokerNotifier(pub broker.Publisher, local Notifier, logger *slog.Logger) *BrokerNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrokerNotifier{
		pub:    pub,
		local:  local,
		logger: logger.With(slog.String("component", "broker_notifier")),
	}
}

func (n *BrokerNotifier) publish(ctx context.Context, ev Event) bool {
	if n.pub.Publish(ctx, broker.ExchangeTaskEvents, ev.RoutingKey(), ev) {
		return true
	}
	n.logger.Warn("failed to publish task event",
		slog.String("event", string(ev.Type)),
		slog.String("room", ev.Room().Name()),
		slog.Int64("task_id", ev.Data.TaskID),
		slog.Bool("local_fallback", n.local != nil))
	return false
}

// EmitCreated implements Notifier.
func (n *BrokerNotifier) EmitCreated(ctx context.Context, teamID, subjectID int64, task *domain.Task) {
	if !n.publish(ctx, CreatedEvent(teamID, subjectID, task)) && n.local != nil {
		n.local.EmitCreated(ctx, teamID, subjectID, task)
	}
}

// EmitUpdated implements Notifier.
func (n *BrokerNotifier) EmitUpdated(ctx context.Context, teamID, subjectID int64, task *domain.Task) {
	if !n.publish(ctx, UpdatedEvent(teamID, subjectID, task)) && n.local != nil {
		n.local.EmitUpdated(ctx, teamID, subjectID, task)
	}
}

// EmitDeleted implements Notifier.
func (n *BrokerNotifier) EmitDeleted(ctx context.Context, teamID, subjectID, taskID int64) {
	if !n.publish(ctx, DeletedEvent(teamID, subjectID, taskID)) && n.local != nil {
		n.local.EmitDeleted(ctx, teamID, subjectID, taskID)
	}
}

// EmitSubmitted implements Notifier.
func (n *BrokerNotifier) EmitSubmitted(ctx context.Context, teamID, subjectID, taskID, userID int64) {
	if !n.publish(ctx, SubmittedEvent(teamID, subjectID, taskID, userID)) && n.local != nil {
		n.local.EmitSubmitted(ctx, teamID, subjectID, taskID, userID)
	}
}

// Nop is a Notifier that does nothing.
type Nop struct{}

func (Nop) EmitCreated(context.Context, int64, int64, *domain.Task) {}
func (Nop) EmitUpdated(context.Context, int64, int64, *domain.Task) {}
func (Nop) EmitDeleted(context.Context, int64, int64, int64) {}
func (Nop) EmitSubmitted(context.Context, int64, int64, int64, int64) {}
