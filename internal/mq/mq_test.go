package mq

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/flowproc/internal/correlation"
	"github.com/shaiso/flowproc/internal/domain"
)

func TestQueueNames(t *testing.T) {
	q := ActivityQueue("1.0_enricher")

	assert.Equal(t, Queue("flowproc.activities.1.0_enricher"), q)
	assert.Equal(t, Queue("flowproc.activities.1.0_enricher.retry.0"), RetryQueue(q, 0))
	assert.Equal(t, Queue("flowproc.activities.1.0_enricher.retry.3"), RetryQueue(q, 3))
	assert.Equal(t, Queue("dlq.flowproc.activities.1.0_enricher"), DeadLetterQueue(q))
}

func TestProcessorTopology_Delays(t *testing.T) {
	assert.Equal(t, DefaultRedeliveryDelays, ProcessorTopology{CompositeKey: "1_p"}.Delays())

	custom := []time.Duration{time.Second}
	assert.Equal(t, custom, ProcessorTopology{CompositeKey: "1_p", RedeliveryDelays: custom}.Delays())
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"nil headers", nil, 0},
		{"missing", amqp.Table{"other": "x"}, 0},
		{"int32", amqp.Table{HeaderRetryCount: int32(2)}, 2},
		{"int64", amqp.Table{HeaderRetryCount: int64(3)}, 3},
		{"int", amqp.Table{HeaderRetryCount: 1}, 1},
		{"string", amqp.Table{HeaderRetryCount: "4"}, 4},
		{"bad string", amqp.Table{HeaderRetryCount: "four"}, 0},
		{"negative", amqp.Table{HeaderRetryCount: int32(-1)}, 0},
		{"float", amqp.Table{HeaderRetryCount: float64(2)}, 2},
		{"bool", amqp.Table{HeaderRetryCount: true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetryCount(tt.headers))
		})
	}
}

func TestNextRedelivery(t *testing.T) {
	delays := []time.Duration{time.Second, 5 * time.Second}

	d, idx, ok := NextRedelivery(delays, 0)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
	assert.Equal(t, 0, idx)

	d, idx, ok = NextRedelivery(delays, 1)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)
	assert.Equal(t, 1, idx)

	_, _, ok = NextRedelivery(delays, 2)
	assert.False(t, ok)

	_, _, ok = NextRedelivery(nil, 0)
	assert.False(t, ok)
}

func TestReject(t *testing.T) {
	assert.NoError(t, Reject(nil))

	base := assert.AnError
	err := Reject(base)
	assert.True(t, IsRejected(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsRejected(base))
}

func TestNewEventPublishing(t *testing.T) {
	cc := domain.CorrelationContext{
		CorrelationID: uuid.New(),
		ProcessorID:   uuid.New(),
		ExecutionID:   uuid.New(),
	}
	evt := &domain.ActivityExecutedEvent{CorrelationContext: cc, CacheKey: "k", CachePersisted: true}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	msg, err := NewEventPublishing(EventTypeActivityExecuted, cc, uuid.Nil, evt, now)
	require.NoError(t, err)

	assert.Equal(t, cc.CorrelationID.String(), msg.CorrelationId)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, string(EventTypeActivityExecuted), msg.Type)
	assert.Equal(t, now, msg.Timestamp)
	assert.NotEmpty(t, msg.MessageId)

	assert.Equal(t, cc.CorrelationID.String(), correlation.HeaderFromHeaders(msg.Headers))
	assert.Equal(t, cc.CorrelationID.String(), correlation.BaggageFromHeaders(msg.Headers))
	assert.Equal(t, string(EventTypeActivityExecuted), msg.Headers[HeaderEventType])

	var got domain.ActivityExecutedEvent
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, cc, got.CorrelationContext)
	assert.Equal(t, "k", got.CacheKey)
}

func TestNewEventPublishing_StableMessageID(t *testing.T) {
	cc := domain.CorrelationContext{CorrelationID: uuid.New(), ExecutionID: uuid.New()}
	eventID := uuid.New()
	evt := &domain.ActivityFailedEvent{CorrelationContext: cc, EventID: eventID}

	first, err := NewEventPublishing(EventTypeActivityFailed, cc, eventID, evt, time.Now())
	require.NoError(t, err)
	second, err := NewEventPublishing(EventTypeActivityFailed, cc, eventID, evt, time.Now())
	require.NoError(t, err)

	assert.Equal(t, eventID.String(), first.MessageId)
	assert.Equal(t, first.MessageId, second.MessageId)
}

func TestConsumer_StopBeforeStart(t *testing.T) {
	c := NewConsumer(nil, ConsumerConfig{Topology: ProcessorTopology{CompositeKey: "1.0_enricher"}})
	c.Stop()

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestConsumer_ConcurrentStartStop(t *testing.T) {
	c := NewConsumer(nil, ConsumerConfig{Topology: ProcessorTopology{CompositeKey: "1.0_enricher"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.ErrorIs(t, c.Start(ctx), context.Canceled)
		}()
		go func() {
			defer wg.Done()
			c.Stop()
		}()
	}
	wg.Wait()
}

func TestTopologyInfo(t *testing.T) {
	info := TopologyInfo(ProcessorTopology{CompositeKey: "2.1_mapper", RedeliveryDelays: []time.Duration{time.Second}})

	assert.True(t, strings.Contains(info, "flowproc.activities.2.1_mapper"))
	assert.True(t, strings.Contains(info, "flowproc.activities.2.1_mapper.retry.0"))
	assert.True(t, strings.Contains(info, "dlq.flowproc.activities.2.1_mapper"))
	assert.True(t, strings.Contains(info, string(RoutingKeyActivityFailed)))
}

func TestConnectionName(t *testing.T) {
	assert.Equal(t, "flowproc/1.0_enricher@pod-a", ConnectionName("1.0_enricher", "pod-a"))
	assert.Equal(t, "flowproc/1.0_enricher", ConnectionName("1.0_enricher", ""))
}
