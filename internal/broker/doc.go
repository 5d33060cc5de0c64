// Package broker adapts RabbitMQ (amqp091-go) to the pipeline: it declares
// the queue topology, publishes JSON messages, runs manual-ack consumers and
// reconnects with a bounded linear backoff. Other packages depend on the
// Publisher and Subscriber interfaces, never on the AMQP client.
package broker
