package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finsync/internal/events"

	"github.com/rabbitmq/amqp091-go"
)

// acknowledger is the part of amqp091.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// publishing wraps ev in a persistent JSON message.
func publishing(ev events.Event) (amqp091.Publishing, error) {
	body, err := ev.ToJSON()
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    ev.Timestamp,
		Body:         body,
	}, nil
}

// dispatch decodes body and settles it: malformed bodies are dropped, handler
// failures are requeued, successes acknowledged.
func dispatch(ctx context.Context, logger *slog.Logger, body []byte, ack acknowledger, handler events.Handler) {
	ev, err := events.FromJSON(body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to unmarshal event", "error", err)
		ack.Nack(false, false) // reject and don't requeue
		return
	}

	if err := handler(ctx, ev); err != nil {
		requeue := !errors.Is(err, events.ErrMalformed)
		logger.ErrorContext(ctx, "Failed to handle event",
			"error", err,
			"event_id", ev.ID,
			"event_type", ev.Type,
			"requeue", requeue)
		ack.Nack(false, requeue)
		return
	}

	ack.Ack(false)
	logger.DebugContext(ctx, "Processed event", "event_id", ev.ID, "event_type", ev.Type)
}
