// Package service holds outbound integrations used by the scheduler.
// QueuePublisher sends reservation events to RabbitMQ.  Errors are logged
// and returned so the caller can choose to ignore them without
// interrupting the booking flow.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	q "github.com/iliyamo/table-reservation/internal/queue"
)

// QueuePublisher publishes each event on its own short-lived connection
// so a broker restart never leaves a stale channel behind.
type QueuePublisher struct {
	url     string
	queue   string
	timeout time.Duration
	log     zerolog.Logger
}

// NewQueuePublisher returns a publisher for the given broker and queue.
func NewQueuePublisher(url, queue string, log zerolog.Logger) *QueuePublisher {
	return &QueuePublisher{url: url, queue: queue, timeout: 5 * time.Second, log: log}
}

// Publish sends ev as a persistent JSON message to the durable queue via
// the default exchange.
func (p *QueuePublisher) Publish(ctx context.Context, ev q.ReservationEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.timeout)})
	if err != nil {
		p.log.Error().Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Error().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		p.log.Error().Err(err).Str("queue", p.queue).Msg("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.EventID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		p.log.Error().Err(err).Str("event", ev.Type).Msg("rabbitmq: publish failed")
		return err
	}
	p.log.Debug().Str("event", ev.Type).Str("event_id", ev.EventID).Msg("event published")
	return nil
}

// NopPublisher drops every event.  It is used when EVENTS_ENABLED is off.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, q.ReservationEvent) error { return nil }
