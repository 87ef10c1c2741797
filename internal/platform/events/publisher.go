package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher emits domain events. Publishing is best-effort from the caller's
// point of view: services log publish failures but do not fail the operation
// that produced the event.
type Publisher interface {
	Publish(ctx context.Context, key string, data interface{}) error
	Close() error
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      zerolog.Logger
}

// NewPublisher connects to RabbitMQ and declares a durable topic exchange.
// The channel is put in confirm mode during setup so a broken broker surfaces
// at startup rather than on first publish.
func NewPublisher(url, exchange string, logger zerolog.Logger) (Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, err
	}

	return &rmqPublisher{
		conn:     conn,
		exchange: exchange,
		log:      logger,
	}, nil
}

func (r *rmqPublisher) Publish(ctx context.Context, key string, data interface{}) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	env := NewEnvelope(key, data)
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx, r.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    env.Meta.ID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err == nil {
		r.log.Debug().Str("key", key).Str("exchange", r.exchange).Msg("event published")
	}
	return err
}

func (r *rmqPublisher) Close() error {
	return r.conn.Close()
}

// NoopPublisher discards events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, key string, data interface{}) error { return nil }
func (NoopPublisher) Close() error                                                    { return nil }
