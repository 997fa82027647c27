package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityExecutionCommand — входящая команда на выполнение activity.
//
// Публикуется оркестратором в exchange flowproc.activities. Каждый процессор
// получает копию и сам решает, адресована ли она ему (сравнение ProcessorID).
type ActivityExecutionCommand struct {
	OrchestratedFlowID uuid.UUID `json:"orchestrated_flow_id"`
	WorkflowID         uuid.UUID `json:"workflow_id"`

	// CorrelationID — correlation id в теле сообщения.
	// Третий по приоритету источник (см. correlation.Resolve).
	CorrelationID string `json:"correlation_id,omitempty"`

	StepID      uuid.UUID `json:"step_id"`
	ProcessorID uuid.UUID `json:"processor_id"`
	PublishID   uuid.UUID `json:"publish_id"`
	ExecutionID uuid.UUID `json:"execution_id"`

	// Entities — assignment payloads для обработки (upstream гарантирует непустой список).
	Entities []AssignmentEntity `json:"entities"`

	// InputDataKey — ключ в activity-data map с результатом предыдущего шага.
	// Пустой — входных данных нет.
	InputDataKey string `json:"input_data_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AssignmentEntity — payload одного assignment'а, привязанного к шагу.
type AssignmentEntity struct {
	// EntityID — идентификатор сущности.
	EntityID uuid.UUID `json:"entity_id"`

	// Type — тип сущности (address, delivery, plugin, ...).
	Type string `json:"type"`

	// Payload — данные сущности как есть.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ActivityExecutedEvent — терминальное событие об успешном выполнении activity.
type ActivityExecutedEvent struct {
	CorrelationContext

	// EventID — идентификатор события, одинаковый для всех попыток публикации
	// (AMQP MessageId, по нему потребитель отбрасывает дубликаты).
	EventID uuid.UUID `json:"event_id"`

	// Status — статус результата executor'а.
	Status ActivityStatus `json:"status"`

	// Duration — длительность выполнения.
	Duration time.Duration `json:"duration"`

	// CacheKey — ключ, под которым результат записан в activity-data map.
	CacheKey string `json:"cache_key"`

	// ResultDataSize — размер сериализованного результата в байтах.
	ResultDataSize int `json:"result_data_size"`

	// EntitiesProcessed — количество обработанных сущностей.
	EntitiesProcessed int `json:"entities_processed"`

	// CachePersisted — false, если запись в кэш не удалась
	// и событие опубликовано в режиме ContinueOnCacheFailure.
	CachePersisted bool `json:"cache_persisted"`

	CompletedAt time.Time `json:"completed_at"`
}

// ActivityFailedEvent — терминальное событие о неудачном выполнении activity.
type ActivityFailedEvent struct {
	CorrelationContext

	// EventID — см. ActivityExecutedEvent.EventID.
	EventID uuid.UUID `json:"event_id"`

	// ErrorMessage — текст ошибки.
	ErrorMessage string `json:"error_message"`

	// ErrorType — Go-тип исходной ошибки (например, *url.Error).
	ErrorType string `json:"error_type"`

	// ErrorDetail — цепочка обёрнутых ошибок, по одной на строку.
	ErrorDetail string `json:"error_detail,omitempty"`

	// Stage — стадия, на которой произошла ошибка.
	Stage FailureStage `json:"stage"`

	// EntitiesBeingProcessed — количество сущностей в activity.
	EntitiesBeingProcessed int `json:"entities_being_processed"`

	// RetryCount — количество сделанных попыток выполнения.
	RetryCount int `json:"retry_count"`

	Duration time.Duration `json:"duration"`
	FailedAt time.Time     `json:"failed_at"`
}

// FailureStage — стадия конвейера, на которой activity завершилась ошибкой.
type FailureStage string

const (
	// FailureStageHandoff — не удалось поставить запрос в очередь.
	FailureStageHandoff FailureStage = "handoff"

	// FailureStageExecution — executor не справился после всех попыток.
	FailureStageExecution FailureStage = "execution"

	// FailureStageValidation — результат не прошёл проверку output schema.
	FailureStageValidation FailureStage = "validation"

	// FailureStageCache — результат не удалось записать в кэш.
	FailureStageCache FailureStage = "cache"
)
