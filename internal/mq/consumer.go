package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// setupRetryInterval — пауза перед повторной подпиской без reconnect.
const setupRetryInterval = 5 * time.Second

// HeaderRetryCount — номер повторной доставки сообщения (0 — первая доставка).
const HeaderRetryCount = "x-retry-count"

// Handler — функция обработки сообщения.
//
// nil — сообщение подтверждается (ack). Ошибка — сообщение уходит на
// отложенную повторную доставку; Reject(err) — сразу в DLQ.
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	// Body — тело сообщения (JSON).
	Body []byte

	// Headers — AMQP заголовки.
	Headers amqp.Table

	// CorrelationID — correlation id транспорта (AMQP property).
	CorrelationID string

	// MessageID — идентификатор сообщения.
	MessageID string

	// RetryCount — номер повторной доставки (0 — первая).
	RetryCount int

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

func newDelivery(raw amqp.Delivery) *Delivery {
	return &Delivery{
		Body:          raw.Body,
		Headers:       raw.Headers,
		CorrelationID: raw.CorrelationId,
		MessageID:     raw.MessageId,
		RetryCount:    RetryCount(raw.Headers),
		Raw:           raw,
	}
}

// rejectError — ошибка, после которой повтор бессмысленен.
type rejectError struct {
	err error
}

func (e *rejectError) Error() string { return e.err.Error() }
func (e *rejectError) Unwrap() error { return e.err }

// Reject помечает ошибку обработчика: сообщение уходит в DLQ без повторов.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return &rejectError{err: err}
}

// IsRejected проверяет, помечена ли ошибка через Reject.
func IsRejected(err error) bool {
	var r *rejectError
	return errors.As(err, &r)
}

// Consumer потребляет сообщения из очереди команд процессора.
//
// Ошибка обработчика не возвращает сообщение в голову очереди (это дало бы
// горячий цикл), а перекладывает его в очередь задержки по номеру попытки.
// Когда задержки исчерпаны — nack без requeue, сообщение уходит в DLQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	delays   []time.Duration
	handler  Handler
	prefetch int

	// mu защищает cancelFunc и stopped: Start и Stop вызываются
	// из разных горутин
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	stopped    bool
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Topology — топология процессора (очередь и задержки).
	Topology ProcessorTopology

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int

	Logger *slog.Logger
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("component", "consumer", "queue", cfg.Topology.Queue()),
		queue:    cfg.Topology.Queue(),
		delays:   cfg.Topology.Delays(),
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start запускает потребление сообщений. Блокируется до отмены ctx или Stop().
// После Stop сразу возвращает context.Canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return context.Canceled
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer cancel()

	// Запускаем основной цикл потребления
	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Канал уведомления берём до попытки: reconnect может
		// завершиться раньше, чем мы начнём ждать
		reconnected := c.conn.ReconnectNotify()

		ch, deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
			if err := c.waitReconnect(ctx, reconnected); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consumer started", "prefetch", c.prefetch)

		err = c.processDeliveries(ctx, deliveries)
		ch.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("deliveries channel closed, restarting consumer", "error", err)
		if err := c.waitReconnect(ctx, reconnected); err != nil {
			return err
		}
	}
}

// waitReconnect ждёт переподключения, но не дольше setupRetryInterval:
// канал мог закрыться и при живом соединении.
func (c *Consumer) waitReconnect(ctx context.Context, reconnected <-chan struct{}) error {
	timer := time.NewTimer(setupRetryInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-reconnected:
		c.logger.Info("reconnected, restarting consumer")
	case <-timer.C:
	}
	return nil
}

// setupConsume открывает канал consumer'а и начинает потребление.
func (c *Consumer) setupConsume() (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.conn.OpenChannel()
	if err != nil {
		return nil, nil, err
	}

	// Устанавливаем prefetch
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	// Начинаем потребление
	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (мы ack вручную)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}

	return ch, deliveries, nil
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	d := newDelivery(raw)

	err := c.handler(ctx, d)
	switch {
	case err == nil:
		raw.Ack(false)

	case IsRejected(err):
		c.logger.Error("message rejected, sending to DLQ",
			"message_id", d.MessageID,
			"error", err,
		)
		raw.Nack(false, false)

	case ctx.Err() != nil:
		// Остановка pod'а — вернуть сообщение другой реплике
		raw.Nack(false, true)

	default:
		c.redeliver(ctx, d, err)
	}
}

// redeliver перекладывает сообщение в очередь задержки или в DLQ.
func (c *Consumer) redeliver(ctx context.Context, d *Delivery, cause error) {
	delay, idx, ok := NextRedelivery(c.delays, d.RetryCount)
	if !ok {
		c.logger.Error("redelivery attempts exhausted, sending to DLQ",
			"message_id", d.MessageID,
			"retry_count", d.RetryCount,
			"error", cause,
		)
		d.Raw.Nack(false, false)
		return
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[HeaderRetryCount] = int32(d.RetryCount + 1)

	retryQueue := RetryQueue(c.queue, idx)
	err := c.conn.Publish(ctx, "", string(retryQueue), amqp.Publishing{
		ContentType:   d.Raw.ContentType,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: d.CorrelationID,
		MessageId:     d.MessageID,
		Timestamp:     d.Raw.Timestamp,
		Headers:       headers,
		Body:          d.Body,
	})
	if err != nil {
		// Не смогли отложить — вернуть в очередь немедленно
		c.logger.Error("failed to schedule redelivery",
			"message_id", d.MessageID,
			"error", err,
		)
		d.Raw.Nack(false, true)
		return
	}

	c.logger.Warn("handler failed, redelivery scheduled",
		"message_id", d.MessageID,
		"retry_count", d.RetryCount+1,
		"delay", delay,
		"error", cause,
	)
	d.Raw.Ack(false)
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// NextRedelivery выбирает задержку для сообщения, уже доставленного
// retryCount раз повторно. ok=false — задержки исчерпаны.
func NextRedelivery(delays []time.Duration, retryCount int) (delay time.Duration, idx int, ok bool) {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(delays) {
		return 0, 0, false
	}
	return delays[retryCount], retryCount, true
}

// RetryCount читает x-retry-count из заголовков.
// Отсутствующий или нечитаемый заголовок — 0.
func RetryCount(headers amqp.Table) int {
	switch v := headers[HeaderRetryCount].(type) {
	case int:
		return max(v, 0)
	case int8:
		return max(int(v), 0)
	case int16:
		return max(int(v), 0)
	case int32:
		return max(int(v), 0)
	case int64:
		return max(int(v), 0)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case float64:
		return max(int(v), 0)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0
		}
		return n
	default:
		return 0
	}
}
