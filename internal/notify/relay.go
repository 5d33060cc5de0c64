package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/phrazzld/taskflow/internal/broker"
)

// TaskEventsBinding matches every task event on the task_events exchange.
const TaskEventsBinding = "task.#"

// Emitter delivers an event to the members of a room.
type Emitter interface {
	Emit(room Room, ev Event) int
}

// Relay forwards events from the task_events exchange into an Emitter.
type Relay struct {
	sub    broker.Subscriber
	rooms  Emitter
	logger *slog.Logger
}

// NewRelay creates a Relay.
func NewRelay(sub broker.Subscriber, rooms Emitter, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		sub:    sub,
		rooms:  rooms,
		logger: logger.With(slog.String("component", "relay")),
	}
}

// Start registers the subscription. It stays registered across reconnects.
func (r *Relay) Start() error {
	return r.sub.Subscribe(broker.ExchangeTaskEvents, TaskEventsBinding, r.Handle)
}

// Handle emits one delivery. Undecodable events are dropped.
func (r *Relay) Handle(_ context.Context, d broker.Delivery) broker.Outcome {
	var ev Event
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		r.logger.Warn("dropping undecodable task event",
			slog.String("routing_key", d.RoutingKey),
			slog.String("error", err.Error()))
		return broker.DeadLetter
	}
	if err := ev.Validate(); err != nil {
		r.logger.Warn("dropping invalid task event",
			slog.String("routing_key", d.RoutingKey),
			slog.String("error", err.Error()))
		return broker.DeadLetter
	}

	r.rooms.Emit(ev.Room(), ev)
	return broker.Ack
}
