package port

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Delivery is one at-least-once delivery of a job id. Exactly one of Ack,
// Nack or DeadLetter must be called; the queue implementation owns
// redelivery and mutual exclusion.
type Delivery interface {
	JobID() uuid.UUID
	Ack() error
	// Nack returns the job to the queue, visible again after retryAfter.
	Nack(retryAfter time.Duration) error
	// DeadLetter removes the job from circulation, parking the message for
	// operators.
	DeadLetter(reason string) error
}

// JobQueue is a durable, prioritized work queue. Lower priority value is
// served first; within a priority, FIFO by enqueue time.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID, priority int, delay time.Duration) error
	// Consume returns a channel of deliveries; it closes when ctx is done or
	// the connection drops.
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}
