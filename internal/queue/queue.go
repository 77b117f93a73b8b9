package queue

import (
	"context"
	"fmt"
)

// Publisher publishes record processing messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg RecordMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg RecordMessage) error

// Consumer consumes record processing messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// RecordsQueue carries per-record processing triggers.
	RecordsQueue = "import.records"

	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = 2
)

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.import.records.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns all work queues.
func WorkQueueNames() []string {
	return []string{RecordsQueue}
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	queues := WorkQueueNames()
	for i, q := range queues {
		queues[i] = DLQName(q)
	}
	return queues
}

// PriorityValue maps a trigger to RabbitMQ message priority. Triggers caused
// by a person waiting on the result go ahead of background sweeps.
func PriorityValue(trigger Trigger) uint8 {
	switch trigger {
	case TriggerDataEntry, TriggerManual:
		return 2
	case TriggerCreated:
		return 1
	default:
		return 0
	}
}
