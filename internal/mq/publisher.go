package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/flowproc/internal/correlation"
	"github.com/shaiso/flowproc/internal/domain"
)

// EventType — тип терминального события.
type EventType string

// Типы событий.
const (
	EventTypeActivityExecuted EventType = "activity.executed"
	EventTypeActivityFailed   EventType = "activity.failed"
)

// HeaderEventType — заголовок с типом события.
const HeaderEventType = "x-event-type"

// Publisher публикует терминальные события activity в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger.With("component", "publisher"),
		now:    time.Now,
	}
}

// PublishActivityExecuted публикует событие об успешном выполнении.
// Потребитель: оркестратор.
func (p *Publisher) PublishActivityExecuted(ctx context.Context, evt *domain.ActivityExecutedEvent) error {
	return p.publish(ctx, RoutingKeyActivityExecuted, EventTypeActivityExecuted, evt.CorrelationContext, evt.EventID, evt)
}

// PublishActivityFailed публикует событие о неудачном выполнении.
// Потребитель: оркестратор.
func (p *Publisher) PublishActivityFailed(ctx context.Context, evt *domain.ActivityFailedEvent) error {
	return p.publish(ctx, RoutingKeyActivityFailed, EventTypeActivityFailed, evt.CorrelationContext, evt.EventID, evt)
}

func (p *Publisher) publish(ctx context.Context, key RoutingKey, typ EventType, cc domain.CorrelationContext, eventID uuid.UUID, payload any) error {
	msg, err := NewEventPublishing(typ, cc, eventID, payload, p.now())
	if err != nil {
		return err
	}

	if err := p.conn.Publish(ctx, string(ExchangeEvents), string(key), msg); err != nil {
		return err
	}

	p.logger.Debug("published event",
		"routing_key", key,
		"message_id", msg.MessageId,
		"correlation_id", msg.CorrelationId,
		"execution_id", cc.ExecutionID,
	)
	return nil
}

// NewEventPublishing собирает AMQP сообщение события.
//
// Correlation id передаётся во всех трёх каналах, которые читает
// следующий hop: AMQP CorrelationId, X-Correlation-ID и W3C baggage.
// MessageId — eventID; uuid.Nil заменяется случайным.
func NewEventPublishing(typ EventType, cc domain.CorrelationContext, eventID uuid.UUID, payload any, now time.Time) (amqp.Publishing, error) {
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal %s: %w", typ, err)
	}

	corrID := cc.CorrelationID.String()
	headers := amqp.Table{
		correlation.HeaderName: corrID,
		HeaderEventType:        string(typ),
	}
	if err := correlation.InjectBaggage(headers, corrID); err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent, // событие переживёт рестарт RabbitMQ
		CorrelationId: corrID,
		MessageId:     eventID.String(),
		Type:          string(typ),
		Timestamp:     now,
		Headers:       headers,
		Body:          body,
	}, nil
}
