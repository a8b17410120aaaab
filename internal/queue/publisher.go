package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher sends CodeIssuedEvents to a durable queue. Each publish opens
// its own connection so a broker restart never leaves a dead channel behind.
type Publisher struct {
	url   string
	queue string
	log   *zap.Logger
}

// NewPublisher returns a Publisher for url and queue.
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, log: log}
}

// NotifyCode publishes ev as a persistent JSON message.
func (p *Publisher) NotifyCode(ctx context.Context, ev CodeIssuedEvent) error {
	const op = "queue.Publisher.NotifyCode"

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("%s: dial: %w", op, err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%s: channel: %w", op, err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%s: queue declare: %w", op, err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("%s: publish: %w", op, err)
	}
	p.log.Debug("code event published",
		zap.Uint64("user_id", ev.UserID),
		zap.String("purpose", ev.Purpose))
	return nil
}

// LogNotifier stands in for the broker in development. It logs the event
// including the code.
type LogNotifier struct{ log *zap.Logger }

// NewLogNotifier returns a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier { return &LogNotifier{log: log} }

// NotifyCode logs ev at info.
func (n *LogNotifier) NotifyCode(_ context.Context, ev CodeIssuedEvent) error {
	n.log.Info("verification code issued",
		zap.Uint64("user_id", ev.UserID),
		zap.String("email", ev.Email),
		zap.String("purpose", ev.Purpose),
		zap.String("code", ev.Code),
		zap.String("expires_at", ev.ExpiresAt))
	return nil
}
