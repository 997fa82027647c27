package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/flowproc/internal/domain"
)

// DelayExecutor ждёт Duration, затем возвращает сущности как есть.
//
// Нужен для нагрузочных тестов пула выполнения. Поддерживает отмену через context.
//
// Config:
//   - duration_sec (number): длительность задержки в секундах (default: 1)
type DelayExecutor struct {
	Duration time.Duration
}

// NewDelayExecutor — фабрика для реестра.
func NewDelayExecutor(cfg map[string]any) (Executor, error) {
	durationSec := 1.0
	if val, ok := cfg["duration_sec"]; ok {
		switch v := val.(type) {
		case float64:
			durationSec = v
		case int:
			durationSec = float64(v)
		default:
			return nil, fmt.Errorf("%w: duration_sec must be a number", ErrInvalidConfig)
		}
	}
	if durationSec <= 0 {
		durationSec = 1
	}
	return &DelayExecutor{Duration: time.Duration(durationSec * float64(time.Second))}, nil
}

// Execute выполняет задержку.
func (e *DelayExecutor) Execute(ctx context.Context, cc domain.CorrelationContext, entities []domain.AssignmentEntity, _ []byte) ([]domain.ActivityExecutionResult, error) {
	timer := time.NewTimer(e.Duration)
	defer timer.Stop()

	// Context-aware ожидание
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	data, err := json.Marshal(map[string]any{
		"entities":    entities,
		"delayed_sec": e.Duration.Seconds(),
	})
	if err != nil {
		return nil, Permanent(fmt.Errorf("marshal delay output: %w", err))
	}

	return []domain.ActivityExecutionResult{{
		Result:         fmt.Sprintf("delayed %s", e.Duration),
		Status:         domain.ActivityStatusCompleted,
		ExecutionID:    cc.ExecutionID.String(),
		SerializedData: data,
	}}, nil
}
