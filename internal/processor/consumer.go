package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/flowproc/internal/correlation"
	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/mq"
	"github.com/shaiso/flowproc/internal/telemetry"
)

// handoffPublishTimeout ограничивает публикацию события о неудачной передаче.
const handoffPublishTimeout = 5 * time.Second

// Исходы входящих команд (метка outcome).
const (
	outcomeAccepted      = "accepted"
	outcomeIgnored       = "ignored"
	outcomeRejected      = "rejected"
	outcomeInvalid       = "invalid"
	outcomeHandoffFailed = "handoff_failed"
)

// HandleActivityCommand — mq.Handler очереди команд процессора.
//
//   - идентичность не разрешена — ErrProcessorNotInitialized (повторная доставка)
//   - тело не разбирается — mq.Reject (в DLQ без повторов)
//   - команда другому процессору — nil (ack, игнорируется)
//   - иначе — Submit
func (p *Processor) HandleActivityCommand(ctx context.Context, d *mq.Delivery) error {
	if !p.identity.IsResolved() {
		p.metrics.CommandsTotal.WithLabelValues(outcomeRejected).Inc()
		p.logger.Warn("activity command received before initialization, requesting redelivery",
			"message_id", d.MessageID,
			"retry_count", d.RetryCount,
		)
		return ErrProcessorNotInitialized
	}

	var cmd domain.ActivityExecutionCommand
	if err := json.Unmarshal(d.Body, &cmd); err != nil {
		p.metrics.CommandsTotal.WithLabelValues(outcomeInvalid).Inc()
		return mq.Reject(fmt.Errorf("%w: %w", ErrInvalidCommand, err))
	}

	return p.Submit(ctx, cmd, correlation.Sources{
		Transport: d.CorrelationID,
		Header:    correlation.HeaderFromHeaders(d.Headers),
		Body:      cmd.CorrelationID,
		Baggage:   correlation.BaggageFromHeaders(d.Headers),
	})
}

// Submit проверяет адресата команды и ставит её в очередь выполнения.
//
// Возвращается сразу после постановки, не дожидаясь выполнения.
func (p *Processor) Submit(ctx context.Context, cmd domain.ActivityExecutionCommand, sources correlation.Sources) error {
	self := p.identity.ID()
	if self == uuid.Nil {
		p.metrics.CommandsTotal.WithLabelValues(outcomeRejected).Inc()
		return ErrProcessorNotInitialized
	}

	if cmd.ProcessorID != self {
		p.metrics.CommandsTotal.WithLabelValues(outcomeIgnored).Inc()
		p.logger.Debug("activity command for another processor, ignoring",
			"target_processor_id", cmd.ProcessorID,
			"execution_id", cmd.ExecutionID,
		)
		return nil
	}

	corrID, source := correlation.Resolve(sources, p.newID)
	cc := domain.NewCorrelationContext(&cmd, corrID)
	logger := telemetry.WithCorrelation(p.logger, cc)

	req := domain.NewProcessingRequest(cmd, cc, p.now())
	req.MaxRetries = p.maxRetries

	if err := p.activities.Enqueue(ctx, req, cc); err != nil {
		p.metrics.CommandsTotal.WithLabelValues(outcomeHandoffFailed).Inc()
		p.publishHandoffFailure(ctx, req, err)
		return fmt.Errorf("%w: %w", ErrHandoffFailed, err)
	}

	p.metrics.CommandsTotal.WithLabelValues(outcomeAccepted).Inc()
	logger.Info("activity accepted",
		"correlation_source", source,
		"entities", len(cmd.Entities),
	)
	return nil
}

// publishHandoffFailure сообщает наблюдателям о неудачной передаче.
// Команда при этом вернётся транспортом и может завершиться успешно.
func (p *Processor) publishHandoffFailure(ctx context.Context, req *domain.ProcessingRequest, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handoffPublishTimeout)
	defer cancel()

	failure := domain.NewActivityFailure(domain.FailureStageHandoff, cause)
	evt := p.failedEvent(req.Correlation, failure, len(req.Activity.Entities), req.RetryCount, p.now().Sub(req.ReceivedAt))

	if err := p.publisher.PublishActivityFailed(ctx, evt); err != nil {
		p.metrics.EventsPublished.WithLabelValues("error").Inc()
		telemetry.WithCorrelation(p.logger, req.Correlation).Error("failed to publish handoff failure",
			"error", err,
		)
		return
	}
	p.metrics.EventsPublished.WithLabelValues(string(mq.EventTypeActivityFailed)).Inc()
}
