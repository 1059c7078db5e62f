// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package notify exports committed booking events to a message broker for
// downstream consumers such as mail and analytics.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/metrics"
)

// RoutingKeyStatusChanged is used for every exported status event.
const RoutingKeyStatusChanged = "booking.status_changed"

const publishTimeout = 2 * time.Second

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes status events to a topic exchange. Delivery is
// transient and best effort; failures are counted and never reach callers.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch channel

	now func() time.Time
}

// Event is the exported message body.
type Event struct {
	model.StatusEvent
	OccurredAt time.Time `json:"occurred_at"`
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, ch: ch, now: time.Now}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev model.StatusEvent) {
	body, err := json.Marshal(Event{StatusEvent: ev, OccurredAt: p.now().UTC()})
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	p.mu.Lock()
	err = p.ch.PublishWithContext(pctx, p.exchange, RoutingKeyStatusChanged, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    fmt.Sprintf("%s:%d", ev.BookingID, ev.Version),
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	p.mu.Unlock()
	if err != nil {
		metrics.IncRelayError("amqp")
		l := log.WithComponentFromContext(ctx, "notify")
		l.Warn().
			Err(err).
			Str(log.FieldBookingID, ev.BookingID).
			Int64(log.FieldVersion, ev.Version).
			Msg("event export failed")
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var _ ports.Publisher = (*AMQPPublisher)(nil)
