// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	out    []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error { f.closed = true; return nil }

func TestAMQPPublisherPublishesStatusEvent(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ch := &fakeChannel{}
	p := &AMQPPublisher{exchange: "booksync.events", ch: ch, now: func() time.Time { return at }}

	p.Publish(context.Background(), model.StatusEvent{
		BookingID: "bk-1", Status: model.StatusAccepted, PaymentStatus: model.PaymentUnpaid, Version: 2,
	})

	require.Len(t, ch.out, 1)
	got := ch.out[0]
	assert.Equal(t, "booksync.events", got.exchange)
	assert.Equal(t, RoutingKeyStatusChanged, got.key)
	assert.Equal(t, amqp.Transient, got.msg.DeliveryMode)
	assert.Equal(t, "bk-1:2", got.msg.MessageId)
	assert.Equal(t, "application/json", got.msg.ContentType)

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "bk-1", body["booking_id"])
	assert.Equal(t, "accepted", body["status"])
	assert.EqualValues(t, 2, body["version"])
	assert.Equal(t, "2025-06-01T12:00:00Z", body["occurred_at"])
}

func TestAMQPPublisherSwallowsErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := &AMQPPublisher{exchange: "x", ch: ch, now: time.Now}

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), model.StatusEvent{BookingID: "bk-1", Version: 1})
	})
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
