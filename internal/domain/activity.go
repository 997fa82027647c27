package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries — локальный бюджет попыток выполнения одной activity.
const DefaultMaxRetries = 3

// ProcessorActivityMessage — нормализованная единица выполнения.
//
// Строится из ActivityExecutionCommand после разрешения correlation id.
type ProcessorActivityMessage struct {
	CorrelationContext

	// Entities — упорядоченный список assignment payloads.
	Entities []AssignmentEntity `json:"entities"`

	// InputDataKey — ключ входных данных в activity-data map (может быть пустым).
	InputDataKey string `json:"input_data_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewActivityMessage строит ProcessorActivityMessage из команды.
func NewActivityMessage(cmd *ActivityExecutionCommand, cc CorrelationContext) ProcessorActivityMessage {
	return ProcessorActivityMessage{
		CorrelationContext: cc,
		Entities:           slices.Clone(cmd.Entities),
		InputDataKey:       cmd.InputDataKey,
		CreatedAt:          cmd.CreatedAt,
	}
}

// ProcessingRequest — запрос в Activity Processing Queue.
//
// Создаётся consumer'ом один раз на успешно поставленную команду.
// После Enqueue принадлежит очереди, после Dequeue — одному воркеру.
// RetryCount меняет только воркер-владелец.
type ProcessingRequest struct {
	// Command — исходная команда из шины.
	Command ActivityExecutionCommand

	// Activity — нормализованное сообщение для executor'а.
	Activity ProcessorActivityMessage

	// Correlation — иерархический контекст (копия, не изменяется).
	Correlation CorrelationContext

	// ReceivedAt — время получения команды consumer'ом.
	ReceivedAt time.Time

	// RetryCount — количество уже сделанных попыток выполнения.
	RetryCount int

	// MaxRetries — бюджет попыток (default: 3).
	MaxRetries int
}

// NewProcessingRequest создаёт запрос с RetryCount=0 и MaxRetries=DefaultMaxRetries.
func NewProcessingRequest(cmd ActivityExecutionCommand, cc CorrelationContext, receivedAt time.Time) *ProcessingRequest {
	return &ProcessingRequest{
		Command:     cmd,
		Activity:    NewActivityMessage(&cmd, cc),
		Correlation: cc,
		ReceivedAt:  receivedAt,
		MaxRetries:  DefaultMaxRetries,
	}
}

// CanRetry проверяет, можно ли сделать ещё одну попытку.
func (r *ProcessingRequest) CanRetry() bool {
	return r.RetryCount < r.MaxRetries
}

// ActivityStatus — статус результата выполнения activity.
type ActivityStatus string

const (
	// ActivityStatusCompleted — activity выполнена успешно.
	ActivityStatusCompleted ActivityStatus = "COMPLETED"

	// ActivityStatusFailed — activity завершилась ошибкой.
	ActivityStatusFailed ActivityStatus = "FAILED"
)

// ActivityExecutionResult — результат executor'а.
//
// Одна activity может вернуть несколько результатов (fan-out).
type ActivityExecutionResult struct {
	// Result — краткое описание результата.
	Result string `json:"result"`

	Status   ActivityStatus `json:"status"`
	Duration time.Duration  `json:"duration"`

	ProcessorName string `json:"processor_name"`
	Version       string `json:"version"`

	// ExecutionID — идентификатор результата (для fan-out может отличаться от activity).
	ExecutionID string `json:"execution_id"`

	// SerializedData — сериализованные выходные данные (JSON).
	SerializedData json.RawMessage `json:"serialized_data,omitempty"`
}

// Clone возвращает глубокую копию результата.
func (r ActivityExecutionResult) Clone() ActivityExecutionResult {
	c := r
	if r.SerializedData != nil {
		c.SerializedData = slices.Clone(r.SerializedData)
	}
	return c
}

// ActivityFailure — описание неудачи, которую нужно сообщить терминальным событием.
type ActivityFailure struct {
	Stage   FailureStage
	Message string
	Type    string
	Detail  string
}

// NewActivityFailure строит ActivityFailure из ошибки.
//
// Type — Go-тип самой внутренней ошибки цепочки, Detail — сообщения
// всех уровней цепочки сверху вниз.
func NewActivityFailure(stage FailureStage, err error) *ActivityFailure {
	if err == nil {
		return &ActivityFailure{Stage: stage, Message: "unknown error", Type: "unknown"}
	}

	var chain []string
	root := err
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
		root = e
	}

	return &ActivityFailure{
		Stage:   stage,
		Message: err.Error(),
		Type:    fmt.Sprintf("%T", root),
		Detail:  strings.Join(chain, "\n"),
	}
}

// ProcessedResponseItem — элемент Response Processing Queue.
//
// ProcessedData — всегда клон результата executor'а: элементы расходятся
// по независимым воркерам и не делят изменяемое состояние со стадией выполнения.
type ProcessedResponseItem struct {
	// ProcessedData — клон результата executor'а.
	ProcessedData ActivityExecutionResult

	// Original — исходное сообщение activity.
	Original ProcessorActivityMessage

	// Correlation — иерархический контекст.
	Correlation CorrelationContext

	// StartedAt — начало выполнения (таймер per-item).
	StartedAt time.Time

	// QueuedAt — время постановки в очередь ответов.
	QueuedAt time.Time

	RetryCount int
	MaxRetries int

	// Failure — не nil, если activity завершилась ошибкой на стадии выполнения.
	Failure *ActivityFailure
}

// NewResponseItem создаёт элемент очереди ответов с клоном результата.
func NewResponseItem(req *ProcessingRequest, result ActivityExecutionResult, startedAt time.Time) *ProcessedResponseItem {
	return &ProcessedResponseItem{
		ProcessedData: result.Clone(),
		Original:      req.Activity,
		Correlation:   req.Correlation,
		StartedAt:     startedAt,
		QueuedAt:      time.Now(),
		RetryCount:    req.RetryCount,
		MaxRetries:    req.MaxRetries,
	}
}

// Failed возвращает true, если элемент описывает неудачу выполнения.
func (i *ProcessedResponseItem) Failed() bool {
	return i.Failure != nil
}

// ResultCorrelation — контекст конкретного результата: ExecutionID берётся
// из ProcessedData, остальные поля — из activity.
func (i *ProcessedResponseItem) ResultCorrelation() CorrelationContext {
	cc := i.Correlation
	cc.ExecutionID = ResultExecutionID(cc.ExecutionID, i.ProcessedData.ExecutionID)
	return cc
}

// ResultExecutionID — UUID результата fan-out.
//
// Пустой id — execution id activity. UUID используется как есть,
// прочие строки детерминированно отображаются в UUID v5 в пространстве base.
func ResultExecutionID(base uuid.UUID, id string) uuid.UUID {
	if id == "" {
		return base
	}
	if parsed, err := uuid.Parse(id); err == nil && parsed != uuid.Nil {
		return parsed
	}
	return uuid.NewSHA1(base, []byte(id))
}

// Elapsed возвращает время с начала выполнения.
func (i *ProcessedResponseItem) Elapsed() time.Duration {
	return time.Since(i.StartedAt)
}
