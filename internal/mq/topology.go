package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeActivities — fanout: каждая команда попадает в очередь каждого процессора.
	ExchangeActivities Exchange = "flowproc.activities"

	// ExchangeEvents — topic: терминальные события activity.
	ExchangeEvents Exchange = "flowproc.events"

	// ExchangeDLQ — direct: сообщения, исчерпавшие повторные доставки.
	ExchangeDLQ Exchange = "flowproc.dlq"
)

// Routing keys событий.
const (
	RoutingKeyActivityExecuted RoutingKey = "activity.executed"
	RoutingKeyActivityFailed   RoutingKey = "activity.failed"
)

// DefaultRedeliveryDelays — задержки повторной доставки по номеру попытки.
var DefaultRedeliveryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

// ActivityQueue — очередь команд одного процессора.
// Реплики процессора делят её (competing consumers).
func ActivityQueue(compositeKey string) Queue {
	return Queue(string(ExchangeActivities) + "." + compositeKey)
}

// RetryQueue — очередь задержки n-й повторной доставки (n с нуля).
func RetryQueue(q Queue, n int) Queue {
	return Queue(fmt.Sprintf("%s.retry.%d", q, n))
}

// DeadLetterQueue — DLQ для очереди q.
func DeadLetterQueue(q Queue) Queue {
	return Queue("dlq." + string(q))
}

// ProcessorTopology — топология одного процессора.
type ProcessorTopology struct {
	// CompositeKey — <version>_<name>.
	CompositeKey string

	// RedeliveryDelays — задержки повторных доставок по номеру попытки (default: DefaultRedeliveryDelays).
	RedeliveryDelays []time.Duration
}

// Queue возвращает имя очереди команд.
func (t ProcessorTopology) Queue() Queue {
	return ActivityQueue(t.CompositeKey)
}

// Delays возвращает задержки повторной доставки.
func (t ProcessorTopology) Delays() []time.Duration {
	if len(t.RedeliveryDelays) == 0 {
		return DefaultRedeliveryDelays
	}
	return t.RedeliveryDelays
}

// SetupTopology объявляет exchanges, очереди и привязки процессора.
// Идемпотентна: все реплики вызывают её при старте.
func SetupTopology(ctx context.Context, conn *Connection, t ProcessorTopology) error {
	if t.CompositeKey == "" {
		return fmt.Errorf("setup topology: empty composite key")
	}

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues и привязываем их
		if err := declareProcessorQueues(ch, t); err != nil {
			return err
		}

		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeActivities, amqp.ExchangeFanout},
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareProcessorQueues создаёт очередь команд, очереди задержки и DLQ.
func declareProcessorQueues(ch *amqp.Channel, t ProcessorTopology) error {
	main := t.Queue()
	dlq := DeadLetterQueue(main)

	declare := func(name Queue, args amqp.Table) error {
		_, err := ch.QueueDeclare(
			string(name), // name
			true,         // durable
			false,        // delete when unused
			false,        // exclusive
			false,        // no-wait
			args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
		return nil
	}

	// Очередь команд: nack без requeue уходит в DLQ
	if err := declare(main, amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(main),
	}); err != nil {
		return err
	}
	if err := ch.QueueBind(string(main), "", string(ExchangeActivities), false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", main, ExchangeActivities, err)
	}

	// DLQ — ручной разбор
	if err := declare(dlq, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(string(dlq), string(main), string(ExchangeDLQ), false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", dlq, ExchangeDLQ, err)
	}

	// Очереди задержки: по TTL сообщение возвращается в очередь команд
	// через default exchange
	for i, delay := range t.Delays() {
		if err := declare(RetryQueue(main, i), amqp.Table{
			"x-message-ttl":             delay.Milliseconds(),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": string(main),
		}); err != nil {
			return err
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(t ProcessorTopology) string {
	main := t.Queue()

	var b strings.Builder
	b.WriteString("FlowProc RabbitMQ Topology:\n\n")
	fmt.Fprintf(&b, "  %s (fanout)\n", ExchangeActivities)
	fmt.Fprintf(&b, "  └── %s\n", main)
	b.WriteString("          Consumer: processor replicas (competing)\n")
	fmt.Fprintf(&b, "          DLQ: %s\n", DeadLetterQueue(main))
	for i, d := range t.Delays() {
		fmt.Fprintf(&b, "          retry #%d: %s (ttl %s)\n", i+1, RetryQueue(main, i), d)
	}
	fmt.Fprintf(&b, "\n  %s (topic)\n", ExchangeEvents)
	fmt.Fprintf(&b, "  ├── %s\n", RoutingKeyActivityExecuted)
	fmt.Fprintf(&b, "  └── %s\n", RoutingKeyActivityFailed)
	fmt.Fprintf(&b, "\n  %s (direct)\n", ExchangeDLQ)
	return b.String()
}
