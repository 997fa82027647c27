package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/flowproc/internal/cache"
	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/mq"
	"github.com/shaiso/flowproc/internal/telemetry"
)

// responseLoop — цикл одного воркера ответов.
func (p *Processor) responseLoop(ctx context.Context, worker int) {
	logger := p.logger.With("worker", worker, "pool", responseQueueName)
	logger.Debug("response worker started")

	for {
		item, err := p.responses.Dequeue(ctx)
		if err != nil {
			logger.Debug("response worker exiting", "reason", err)
			return
		}
		p.respond(ctx, item)
	}
}

// respond обрабатывает один элемент: проверка выхода, одна запись
// в activity-data map, ровно одно терминальное событие.
//
// Ключ и событие строятся по контексту результата: у элементов fan-out
// свой ExecutionID, а значит и своя запись.
func (p *Processor) respond(ctx context.Context, item *domain.ProcessedResponseItem) {
	defer p.responses.Done()

	cc := item.ResultCorrelation()
	logger := telemetry.WithCorrelation(p.logger, cc).With("entry_point", cc.IsEntryPoint())
	key := ActivityCacheKey(cc)

	failure := item.Failure

	// 1. Проверка выхода по output schema
	if !item.Failed() && p.validator != nil {
		if err := p.validator.Check(ctx, p.outputSchemaID, item.ProcessedData.SerializedData); err != nil {
			if p.continueOnCacheFailure {
				logger.Warn("output validation failed, publishing original outcome", "error", err)
			} else {
				failure = domain.NewActivityFailure(domain.FailureStageValidation, err)
			}
		}
	}

	// 2. Единственная запись результата
	stored, cacheErr := p.persist(ctx, key, item, failure, logger)
	if cacheErr != nil && failure == nil && !p.continueOnCacheFailure {
		failure = domain.NewActivityFailure(domain.FailureStageCache, cacheErr)
	}

	// 3. Ровно одно событие
	if failure != nil {
		evt := p.failedEvent(cc, failure, len(item.Original.Entities), item.RetryCount, item.Elapsed())
		p.publish(ctx, mq.EventTypeActivityFailed, logger, func(ctx context.Context) error {
			return p.publisher.PublishActivityFailed(ctx, evt)
		})
		p.metrics.ActivitiesTotal.WithLabelValues("failed").Inc()
		return
	}

	evt := &domain.ActivityExecutedEvent{
		CorrelationContext: cc,
		EventID:            EventID(cc, string(mq.EventTypeActivityExecuted)),
		Status:             item.ProcessedData.Status,
		Duration:           item.ProcessedData.Duration,
		CacheKey:           key,
		ResultDataSize:     len(item.ProcessedData.SerializedData),
		EntitiesProcessed:  len(item.Original.Entities),
		CachePersisted:     stored,
		CompletedAt:        p.now(),
	}
	p.publish(ctx, mq.EventTypeActivityExecuted, logger, func(ctx context.Context) error {
		return p.publisher.PublishActivityExecuted(ctx, evt)
	})
	p.metrics.ActivitiesTotal.WithLabelValues("completed").Inc()
}

// persist записывает результат в activity-data map один раз.
//
// Успех — сериализованные данные executor'а. Неудача — JSON результата
// со статусом FAILED, чтобы следующий шаг видел причину.
// SetIfAbsent: при повторной доставке команды первый записанный результат сохраняется.
// stored=false, если под ключом уже лежат другие данные: событие не должно
// утверждать, что по CacheKey находится этот результат.
func (p *Processor) persist(ctx context.Context, key string, item *domain.ProcessedResponseItem, failure *domain.ActivityFailure, logger *slog.Logger) (stored bool, err error) {
	value := []byte(item.ProcessedData.SerializedData)
	if failure != nil {
		record := item.ProcessedData.Clone()
		record.Status = domain.ActivityStatusFailed
		record.Result = failure.Message
		record.SerializedData = nil
		data, err := json.Marshal(record)
		if err != nil {
			p.metrics.CacheWrites.WithLabelValues("error").Inc()
			return false, fmt.Errorf("encode failure record: %w", err)
		}
		value = data
	}
	if len(value) == 0 {
		value = []byte("null")
	}

	prev, existed, err := p.cache.SetIfAbsent(ctx, p.activityDataMap, key, value, p.activityDataTTL)
	if err != nil {
		p.metrics.CacheWrites.WithLabelValues("error").Inc()
		logger.Warn("failed to write activity data",
			"cache_key", key,
			"continue_on_cache_failure", p.continueOnCacheFailure,
			"error", err,
		)
		return false, fmt.Errorf("write activity data %s: %w", key, err)
	}

	p.metrics.CacheWrites.WithLabelValues("ok").Inc()
	if !existed {
		return true, nil
	}
	if !bytes.Equal(prev, value) {
		logger.Warn("activity data already cached with different content, keeping first result",
			"cache_key", key,
			"cached_size", len(prev),
			"result_size", len(value),
		)
		return false, nil
	}
	logger.Debug("activity data already cached, keeping first result", "cache_key", key)
	return true, nil
}

// publish публикует событие, повторяя при ошибке транспорта.
func (p *Processor) publish(ctx context.Context, typ mq.EventType, logger *slog.Logger, send func(ctx context.Context) error) {
	err := p.sendWithRetry(ctx, send)
	if err != nil {
		p.metrics.EventsPublished.WithLabelValues("error").Inc()
		logger.Error("failed to publish terminal event", "type", typ, "error", err)
		return
	}
	p.metrics.EventsPublished.WithLabelValues(string(typ)).Inc()
	logger.Debug("terminal event published", "type", typ)
}

// sendWithRetry — до publishAttempts попыток, каждая не дольше publishTimeout
// (ожидание confirm брокера не должно занимать воркер бесконечно).
func (p *Processor) sendWithRetry(ctx context.Context, send func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
		err = send(attemptCtx)
		cancel()
		if err == nil || attempt >= p.publishAttempts {
			return err
		}
		select {
		case <-time.After(p.publishDelay):
		case <-ctx.Done():
			return err
		}
	}
}

// failedEvent строит ActivityFailedEvent.
func (p *Processor) failedEvent(cc domain.CorrelationContext, f *domain.ActivityFailure, entities, retryCount int, d time.Duration) *domain.ActivityFailedEvent {
	return &domain.ActivityFailedEvent{
		CorrelationContext:     cc,
		EventID:                EventID(cc, string(mq.EventTypeActivityFailed)+"/"+string(f.Stage)),
		ErrorMessage:           f.Message,
		ErrorType:              f.Type,
		ErrorDetail:            f.Detail,
		Stage:                  f.Stage,
		EntitiesBeingProcessed: entities,
		RetryCount:             retryCount,
		Duration:               d,
		FailedAt:               p.now(),
	}
}

// ActivityCacheKey — ключ результата activity в activity-data map.
func ActivityCacheKey(cc domain.CorrelationContext) string {
	return cache.ActivityKey(cc.ProcessorID, cc.OrchestratedFlowID, cc.CorrelationID, cc.ExecutionID, cc.StepID, cc.PublishID)
}

// EventID — детерминированный идентификатор терминального события:
// повторная публикация того же результата (retry, повторная доставка
// команды) получает тот же AMQP MessageId.
func EventID(cc domain.CorrelationContext, kind string) uuid.UUID {
	return uuid.NewSHA1(cc.ExecutionID, []byte(cc.StepID.String()+"/"+kind))
}
