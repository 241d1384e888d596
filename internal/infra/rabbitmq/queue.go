package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

const maxPriority = 10

// Queue is a durable, prioritized, at-least-once work queue on RabbitMQ.
// Delayed delivery (initial jitter, retry backoff) goes through a wait queue
// whose per-message TTL dead-letters back into the work queue.
type Queue struct {
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	pubMu  sync.Mutex
	cfg    QueueConfig
	logger *zap.Logger
}

type QueueConfig struct {
	URL       string
	Queue     string
	WaitQueue string
	DLQ       string
	Prefetch  int
	// JitterMax is added as a random delay at initial enqueue so a burst of
	// jobs for one video does not hit the workers in lockstep.
	JitterMax time.Duration
}

func NewQueue(cfg QueueConfig, logger *zap.Logger) (*Queue, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Work queue: classic priority queue, FIFO within a priority.
	_, err = ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-max-priority": int32(maxPriority),
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare work queue: %w", err)
	}

	// Wait queue: expired messages route back to the work queue.
	_, err = ch.QueueDeclare(cfg.WaitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.Queue,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare wait queue: %w", err)
	}

	_, err = ch.QueueDeclare(cfg.DLQ, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare dlq: %w", err)
	}

	return &Queue{conn: conn, pubCh: ch, cfg: cfg, logger: logger}, nil
}

// Enqueue publishes the job id. Lower priority value is served first; the
// AMQP byte runs the other way, so the value is inverted here.
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID, priority int, delay time.Duration) error {
	body, err := json.Marshal(entity.QueueMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	if q.cfg.JitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(q.cfg.JitterMax)))
	}
	return q.publish(ctx, body, amqpPriority(priority), delay)
}

func (q *Queue) publish(ctx context.Context, body []byte, priority uint8, delay time.Duration) error {
	pub := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Priority:     priority,
		Timestamp:    time.Now().UTC(),
	}

	target := q.cfg.Queue
	if delay > 0 {
		target = q.cfg.WaitQueue
		pub.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if err := q.pubCh.PublishWithContext(ctx, "", target, false, false, pub); err != nil {
		return fmt.Errorf("publish to %s: %w", target, err)
	}
	return nil
}

func (q *Queue) publishDLQ(ctx context.Context, body []byte, reason string) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return q.pubCh.PublishWithContext(ctx, "", q.cfg.DLQ, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"x-dead-reason": reason},
	})
}

// Consume opens a dedicated channel and returns the delivery stream. The
// stream closes when ctx is done or the connection drops; unacked messages
// are then redelivered by the broker, which is what makes delivery
// at-least-once across worker crashes.
func (q *Queue) Consume(ctx context.Context) (<-chan port.Delivery, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(q.cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	out := make(chan port.Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for d := range deliveries {
			var msg entity.QueueMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				q.logger.Error("dropping unparseable queue message",
					zap.Error(err), zap.ByteString("body", d.Body))
				_ = q.publishDLQ(ctx, d.Body, "unmarshal_error: "+err.Error())
				_ = d.Ack(false)
				continue
			}
			select {
			case out <- &delivery{q: q, d: d, jobID: msg.JobID}:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return
			}
		}
	}()
	return out, nil
}

func (q *Queue) Close() error {
	if q.pubCh != nil {
		q.pubCh.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

type delivery struct {
	q     *Queue
	d     amqp.Delivery
	jobID uuid.UUID
}

func (dl *delivery) JobID() uuid.UUID { return dl.jobID }

func (dl *delivery) Ack() error {
	return dl.d.Ack(false)
}

// Nack republishes through the wait queue so the retry becomes visible after
// retryAfter, then acks the original. Falls back to an immediate broker
// requeue if the republish fails.
func (dl *delivery) Nack(retryAfter time.Duration) error {
	if err := dl.q.publish(context.Background(), dl.d.Body, dl.d.Priority, retryAfter); err != nil {
		dl.q.logger.Error("delayed requeue failed, requeueing immediately", zap.Error(err))
		return dl.d.Nack(false, true)
	}
	return dl.d.Ack(false)
}

func (dl *delivery) DeadLetter(reason string) error {
	if err := dl.q.publishDLQ(context.Background(), dl.d.Body, reason); err != nil {
		dl.q.logger.Error("dead-letter publish failed", zap.Error(err))
	}
	return dl.d.Ack(false)
}

func amqpPriority(priority int) uint8 {
	p := maxPriority - priority
	if p < 0 {
		p = 0
	}
	if p > maxPriority {
		p = maxPriority
	}
	return uint8(p)
}
