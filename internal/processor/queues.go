package processor

import (
	"context"
	"log/slog"

	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/queue"
	"github.com/shaiso/flowproc/internal/telemetry"
)

// Имена очередей для логов и метрик.
const (
	activityQueueName = "activity"
	responseQueueName = "response"
)

// ActivityQueue — очередь запросов на выполнение (Activity Processing Queue).
//
// Глубина уменьшается при Dequeue.
type ActivityQueue struct {
	q       *queue.Bounded[*domain.ProcessingRequest]
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewActivityQueue создаёт очередь ёмкостью capacity.
func NewActivityQueue(capacity int, logger *slog.Logger, metrics *telemetry.Metrics) *ActivityQueue {
	return &ActivityQueue{
		q:       queue.New[*domain.ProcessingRequest](capacity, queue.ReleaseOnDequeue),
		logger:  logger,
		metrics: metrics,
	}
}

// Enqueue ставит запрос в очередь. Блокируется, пока очередь полна.
//
// Ошибка (очередь закрыта или ctx отменён) должна дойти до транспорта.
func (a *ActivityQueue) Enqueue(ctx context.Context, req *domain.ProcessingRequest, cc domain.CorrelationContext) error {
	if err := a.q.Enqueue(ctx, req); err != nil {
		a.metrics.EnqueueFailures.WithLabelValues(activityQueueName).Inc()
		telemetry.WithCorrelation(a.logger, cc).Error("failed to enqueue activity",
			"depth", a.q.Depth(),
			"error", err,
		)
		return err
	}

	telemetry.WithCorrelation(a.logger, cc).Debug("activity enqueued",
		"entities", len(req.Activity.Entities),
		"depth", a.q.Depth(),
	)
	return nil
}

// Dequeue забирает следующий запрос.
func (a *ActivityQueue) Dequeue(ctx context.Context) (*domain.ProcessingRequest, error) {
	return a.q.Dequeue(ctx)
}

// Depth — количество запросов в очереди.
func (a *ActivityQueue) Depth() int64 { return a.q.Depth() }

// Saturation — заполненность очереди (0..1).
func (a *ActivityQueue) Saturation() float64 { return a.q.Saturation() }

// Close закрывает очередь для новых запросов.
func (a *ActivityQueue) Close() { a.q.Close() }

// ResponseQueue — очередь обработанных результатов (Response Processing Queue).
//
// Глубина уменьшается, только когда воркер ответов вызывает Done.
type ResponseQueue struct {
	q       *queue.Bounded[*domain.ProcessedResponseItem]
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewResponseQueue создаёт очередь ёмкостью capacity.
func NewResponseQueue(capacity int, logger *slog.Logger, metrics *telemetry.Metrics) *ResponseQueue {
	return &ResponseQueue{
		q:       queue.New[*domain.ProcessedResponseItem](capacity, queue.ReleaseOnDone),
		logger:  logger,
		metrics: metrics,
	}
}

// Enqueue ставит элемент в очередь.
func (r *ResponseQueue) Enqueue(ctx context.Context, item *domain.ProcessedResponseItem) error {
	if err := r.q.Enqueue(ctx, item); err != nil {
		r.metrics.EnqueueFailures.WithLabelValues(responseQueueName).Inc()
		telemetry.WithCorrelation(r.logger, item.Correlation).Error("failed to enqueue response",
			"depth", r.q.Depth(),
			"error", err,
		)
		return err
	}
	return nil
}

// Dequeue забирает следующий элемент. После обработки вызвать Done.
func (r *ResponseQueue) Dequeue(ctx context.Context) (*domain.ProcessedResponseItem, error) {
	return r.q.Dequeue(ctx)
}

// Done отмечает элемент обработанным.
func (r *ResponseQueue) Done() { r.q.Done() }

// Depth — количество элементов, ещё не отмеченных Done.
func (r *ResponseQueue) Depth() int64 { return r.q.Depth() }

// Saturation — заполненность очереди (0..1).
func (r *ResponseQueue) Saturation() float64 { return r.q.Saturation() }

// Close закрывает очередь для новых элементов.
func (r *ResponseQueue) Close() { r.q.Close() }
