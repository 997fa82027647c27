package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/flowproc/internal/domain"
)

// TransformExecutor — pass-through executor.
//
// Возвращает один результат с сущностями и входными данными без изменений.
// Используется как executor по умолчанию и в интеграционных тестах flow.
type TransformExecutor struct{}

// transformOutput — формат SerializedData.
type transformOutput struct {
	Entities []domain.AssignmentEntity `json:"entities"`
	Input    json.RawMessage           `json:"input,omitempty"`
}

// Execute упаковывает сущности и вход в результат.
func (e *TransformExecutor) Execute(_ context.Context, cc domain.CorrelationContext, entities []domain.AssignmentEntity, input []byte) ([]domain.ActivityExecutionResult, error) {
	out := transformOutput{Entities: entities}
	if out.Entities == nil {
		out.Entities = []domain.AssignmentEntity{}
	}
	if len(input) > 0 {
		if !json.Valid(input) {
			return nil, Permanentf("%w: input data is not valid JSON", ErrInvalidConfig)
		}
		out.Input = input
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, Permanent(fmt.Errorf("marshal transform output: %w", err))
	}

	return []domain.ActivityExecutionResult{{
		Result:         fmt.Sprintf("transformed %d entities", len(entities)),
		Status:         domain.ActivityStatusCompleted,
		ExecutionID:    cc.ExecutionID.String(),
		SerializedData: data,
	}}, nil
}
