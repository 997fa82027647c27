package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/executor"
	"github.com/shaiso/flowproc/internal/telemetry"
)

// executionLoop — цикл одного воркера выполнения.
// Воркер обрабатывает ровно один запрос за раз.
func (p *Processor) executionLoop(ctx context.Context, worker int) {
	logger := p.logger.With("worker", worker, "pool", activityQueueName)
	logger.Debug("execution worker started")

	for {
		req, err := p.activities.Dequeue(ctx)
		if err != nil {
			logger.Debug("execution worker exiting", "reason", err)
			return
		}
		p.execute(ctx, req)
	}
}

// execute выполняет запрос с локальным retry и передаёт результат(ы)
// в очередь ответов. Отмена ctx прерывает запрос без отчёта.
func (p *Processor) execute(ctx context.Context, req *domain.ProcessingRequest) {
	cc := req.Correlation
	logger := telemetry.WithCorrelation(p.logger, cc)
	startedAt := p.now()

	results, execErr := p.executeWithRetry(ctx, req, logger)
	if execErr != nil && ctx.Err() != nil {
		logger.Warn("activity aborted by shutdown",
			"attempts", req.RetryCount,
			"error", execErr,
		)
		return
	}

	elapsed := p.now().Sub(startedAt)
	p.performance.Record(execErr == nil, elapsed)

	if execErr != nil {
		logger.Error("activity failed",
			"attempts", req.RetryCount,
			"max_retries", req.MaxRetries,
			"permanent", executor.IsPermanent(execErr),
			"error", execErr,
		)
		p.handoffResponse(ctx, p.failureItem(req, execErr, startedAt, elapsed), logger)
		return
	}

	logger.Info("activity executed",
		"attempts", req.RetryCount,
		"results", len(results),
		"duration", elapsed,
	)

	for _, r := range p.normalizeResults(req, results, elapsed) {
		p.handoffResponse(ctx, domain.NewResponseItem(req, r, startedAt), logger)
	}
}

// executeWithRetry вызывает executor до MaxRetries раз.
// RetryCount запроса увеличивается перед каждой попыткой.
func (p *Processor) executeWithRetry(ctx context.Context, req *domain.ProcessingRequest, logger *slog.Logger) ([]domain.ActivityExecutionResult, error) {
	var lastErr error

	for req.CanRetry() {
		req.RetryCount++

		results, err := p.attempt(ctx, req)
		if err == nil {
			return results, nil
		}
		lastErr = err

		// Отмена — не ошибка executor'а, повторять бессмысленно
		if ctx.Err() != nil {
			return nil, err
		}

		if executor.IsPermanent(err) || !req.CanRetry() {
			break
		}

		logger.Warn("activity attempt failed, retrying",
			"attempt", req.RetryCount,
			"max_retries", req.MaxRetries,
			"delay", p.retryDelay,
			"error", err,
		)

		if p.retryDelay > 0 {
			select {
			case <-time.After(p.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, lastErr
}

// attempt — одна попытка: чтение входных данных и вызов executor'а.
func (p *Processor) attempt(ctx context.Context, req *domain.ProcessingRequest) (results []domain.ActivityExecutionResult, err error) {
	start := time.Now()
	defer func() {
		p.metrics.ExecutionDuration.Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil {
			result = "error"
		}
		p.metrics.ExecutionAttempts.WithLabelValues(result).Inc()
	}()

	input, err := p.loadInput(ctx, req.Activity.InputDataKey)
	if err != nil {
		return nil, err
	}

	return p.executor.Execute(ctx, req.Correlation, req.Activity.Entities, input)
}

// loadInput читает результат предыдущего шага из activity-data map.
// Пустой ключ — входных данных нет.
func (p *Processor) loadInput(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}

	data, found, err := p.cache.Get(ctx, p.activityDataMap, key)
	if err != nil {
		return nil, fmt.Errorf("load input %q: %w", key, err)
	}
	if !found {
		return nil, executor.Permanent(fmt.Errorf("%w: %s", ErrInputNotFound, key))
	}
	return data, nil
}

// normalizeResults заполняет поля результатов, которые executor мог оставить пустыми.
// Успешное выполнение без результатов даёт один пустой результат:
// каждая завершённая activity должна быть сообщена.
//
// ExecutionID приводится к UUID и различается у всех результатов:
// от него зависят ключ в activity-data map и событие результата.
func (p *Processor) normalizeResults(req *domain.ProcessingRequest, results []domain.ActivityExecutionResult, elapsed time.Duration) []domain.ActivityExecutionResult {
	if len(results) == 0 {
		results = []domain.ActivityExecutionResult{{}}
	}

	self, _ := p.identity.Get()
	base := req.Correlation.ExecutionID
	seen := make(map[uuid.UUID]struct{}, len(results))
	out := make([]domain.ActivityExecutionResult, len(results))
	for i, r := range results {
		if r.Status == "" {
			r.Status = domain.ActivityStatusCompleted
		}
		id := domain.ResultExecutionID(base, r.ExecutionID)
		if _, dup := seen[id]; dup {
			id = uuid.NewSHA1(base, []byte("result-"+strconv.Itoa(i)))
		}
		seen[id] = struct{}{}
		r.ExecutionID = id.String()
		if r.ProcessorName == "" {
			r.ProcessorName = self.Name
		}
		if r.Version == "" {
			r.Version = self.Version
		}
		if r.Duration == 0 {
			r.Duration = elapsed
		}
		out[i] = r
	}
	return out
}

// failureItem строит элемент-неудачу после исчерпания попыток.
func (p *Processor) failureItem(req *domain.ProcessingRequest, err error, startedAt time.Time, elapsed time.Duration) *domain.ProcessedResponseItem {
	self, _ := p.identity.Get()

	item := domain.NewResponseItem(req, domain.ActivityExecutionResult{
		Result:        err.Error(),
		Status:        domain.ActivityStatusFailed,
		Duration:      elapsed,
		ProcessorName: self.Name,
		Version:       self.Version,
		ExecutionID:   req.Correlation.ExecutionID.String(),
	}, startedAt)
	item.Failure = domain.NewActivityFailure(domain.FailureStageExecution, err)
	return item
}

// handoffResponse ставит элемент в очередь ответов.
func (p *Processor) handoffResponse(ctx context.Context, item *domain.ProcessedResponseItem, logger *slog.Logger) {
	if err := p.responses.Enqueue(ctx, item); err != nil {
		// Очередь ответов закрывается только после воркеров выполнения,
		// сюда попадаем лишь при прерванной остановке
		if !errors.Is(err, context.Canceled) {
			logger.Error("response handoff failed", "error", err)
		}
	}
}
