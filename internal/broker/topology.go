package broker

import "time"

// Queue and exchange names.
const (
	QueueTaskOperations    = "task_operations"
	QueueTaskSubmissions   = "task_submissions"
	QueueCacheInvalidation = "cache_invalidation"

	// ExchangeDeadLetter receives messages rejected from any work queue.
	ExchangeDeadLetter = "dlx"
	// ExchangeTaskEvents is the topic exchange carrying live task events.
	ExchangeTaskEvents = "task_events"
)

// DefaultMessageTTL is the x-message-ttl applied to work queues.
const DefaultMessageTTL = 24 * time.Hour

// WorkQueues lists the queues declared on every connect.
var WorkQueues = []string{QueueTaskOperations, QueueTaskSubmissions, QueueCacheInvalidation}

// DeadLetterQueue names the dead-letter queue of queue.
func DeadLetterQueue(queue string) string { return queue + ".dlq" }

// DeadLetterRoutingKey is the routing key a rejected message of queue carries to the DLX.
func DeadLetterRoutingKey(queue string) string { return queue + ".failed" }
