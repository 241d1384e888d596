package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StatusPublisher fans out terminal job transitions on a topic exchange for
// the upload/catalog service and dashboards.
type StatusPublisher struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

func NewStatusPublisher(conn *amqp.Connection, exchange, routingKey string) (*StatusPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &StatusPublisher{channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (p *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
}

func (p *StatusPublisher) Close() error {
	return p.channel.Close()
}
