package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ConsumerConfig says where to read events from and where to journal them.
type ConsumerConfig struct {
	URL     string // amqp:// broker URL
	Queue   string // durable queue name
	LogPath string // journal file, one line per event
}

// StartConsumer connects to RabbitMQ, declares the durable queue and
// appends every event to cfg.LogPath.  Broker failures are retried with
// exponential backoff between one and thirty seconds.  Malformed messages
// are rejected without requeue so they cannot loop.  The function returns
// nil once ctx is cancelled.
func StartConsumer(ctx context.Context, cfg ConsumerConfig, log zerolog.Logger) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial broker failed")
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, cfg, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Msg("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig, log zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Info().Str("queue", cfg.Queue).Str("journal", cfg.LogPath).Msg("consuming reservation events")

	for d := range msgs {
		if err := HandleMessage(cfg.LogPath, d.Body); err != nil {
			log.Error().Err(err).Str("message_id", d.MessageId).Msg("handle message failed")
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// HandleMessage decodes one event and appends its journal line to path.
func HandleMessage(path string, body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.ReservationID == 0 {
		return fmt.Errorf("incomplete event %q", string(body))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// FormatLine renders the single human-readable journal line for ev.
func FormatLine(ev ReservationEvent) string {
	switch ev.Type {
	case EventBooked:
		return fmt.Sprintf("[%s] Reservation booked | reservation_id=%d | table_id=%d | seats=%d | start=%s | duration=%dm | event_id=%s\n",
			ev.OccurredAt, ev.ReservationID, ev.TableID, ev.Seats, ev.ReservedAt, ev.DurationMinutes, ev.EventID)
	case EventCancelled:
		return fmt.Sprintf("[%s] Reservation cancelled | reservation_id=%d | table_id=%d | start=%s | event_id=%s\n",
			ev.OccurredAt, ev.ReservationID, ev.TableID, ev.ReservedAt, ev.EventID)
	default:
		return fmt.Sprintf("[%s] %s | reservation_id=%d | table_id=%d | event_id=%s\n",
			ev.OccurredAt, ev.Type, ev.ReservationID, ev.TableID, ev.EventID)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
