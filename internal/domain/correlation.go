package domain

import (
	"log/slog"

	"github.com/google/uuid"
)

// CorrelationContext — иерархический контекст корреляции одной activity.
//
// Шесть уровней (плюс ExecutionID как идентификатор единицы работы):
//
//	OrchestratedFlow → Workflow → Correlation → Step → Processor → Publish/Execution
//
// Создаётся один раз consumer'ом для каждой входящей команды и дальше
// передаётся только по значению: очередь, executor, кэш, публикация событий
// получают одни и те же значения. Методов, изменяющих поля, нет.
type CorrelationContext struct {
	// OrchestratedFlowID — экземпляр orchestrated flow верхнего уровня.
	OrchestratedFlowID uuid.UUID `json:"orchestrated_flow_id"`

	// WorkflowID — workflow, которому принадлежит шаг.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// CorrelationID — сквозной идентификатор внешней причинной цепочки.
	CorrelationID uuid.UUID `json:"correlation_id"`

	// StepID — шаг workflow, привязанный к процессору.
	StepID uuid.UUID `json:"step_id"`

	// ProcessorID — идентичность процессора, выполняющего activity.
	ProcessorID uuid.UUID `json:"processor_id"`

	// PublishID — идентификатор публикации команды.
	// uuid.Nil для точек входа flow.
	PublishID uuid.UUID `json:"publish_id"`

	// ExecutionID — идентификатор единицы работы (activity).
	ExecutionID uuid.UUID `json:"execution_id"`
}

// NewCorrelationContext собирает контекст из команды и разрешённого correlation id.
func NewCorrelationContext(cmd *ActivityExecutionCommand, correlationID uuid.UUID) CorrelationContext {
	return CorrelationContext{
		OrchestratedFlowID: cmd.OrchestratedFlowID,
		WorkflowID:         cmd.WorkflowID,
		CorrelationID:      correlationID,
		StepID:             cmd.StepID,
		ProcessorID:        cmd.ProcessorID,
		PublishID:          cmd.PublishID,
		ExecutionID:        cmd.ExecutionID,
	}
}

// IsEntryPoint возвращает true для activity, стартующей flow (нет PublishID).
func (c CorrelationContext) IsEntryPoint() bool {
	return c.PublishID == uuid.Nil
}

// LogAttrs возвращает поля контекста для structured logging.
func (c CorrelationContext) LogAttrs() []any {
	return []any{
		slog.String("orchestrated_flow_id", c.OrchestratedFlowID.String()),
		slog.String("workflow_id", c.WorkflowID.String()),
		slog.String("correlation_id", c.CorrelationID.String()),
		slog.String("step_id", c.StepID.String()),
		slog.String("processor_id", c.ProcessorID.String()),
		slog.String("publish_id", c.PublishID.String()),
		slog.String("execution_id", c.ExecutionID.String()),
	}
}
