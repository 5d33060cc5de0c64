package broker

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Outcome tells the broker how to settle a delivery.
type Outcome int

const (
	// Ack removes the message from the queue.
	Ack Outcome = iota
	// Requeue returns the message to the head of its queue.
	Requeue
	// DeadLetter rejects the message; the queue routes it to its DLQ.
	DeadLetter
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Delivery is one consumed message.
type Delivery struct {
	Body        []byte
	MessageID   string
	Exchange    string
	RoutingKey  string
	Queue       string
	Redelivered bool
	Timestamp   time.Time
}

// Handler processes a delivery and decides its outcome. Handlers of one
// registration are never called concurrently.
type Handler func(ctx context.Context, d Delivery) Outcome

func newDelivery(queue string, d amqp.Delivery) Delivery {
	return Delivery{
		Body:        d.Body,
		MessageID:   d.MessageId,
		Exchange:    d.Exchange,
		RoutingKey:  d.RoutingKey,
		Queue:       queue,
		Redelivered: d.Redelivered,
		Timestamp:   d.Timestamp,
	}
}

func settle(d amqp.Delivery, o Outcome) error {
	switch o {
	case Requeue:
		return d.Nack(false, true)
	case DeadLetter:
		return d.Nack(false, false)
	default:
		return d.Ack(false)
	}
}
