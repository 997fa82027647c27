package cache

import (
	"strings"

	"github.com/google/uuid"
)

// keySeparator — разделитель сегментов ключа.
// Канонический UUID не содержит ':', поэтому разные кортежи не дают одинаковых ключей.
const keySeparator = ":"

// ActivityKey строит ключ результата activity в activity-data map.
//
// Порядок сегментов фиксирован:
//
//	processorId:orchestratedFlowId:correlationId:executionId:stepId:publishId
func ActivityKey(processorID, orchestratedFlowID, correlationID, executionID, stepID, publishID uuid.UUID) string {
	return strings.Join([]string{
		processorID.String(),
		orchestratedFlowID.String(),
		correlationID.String(),
		executionID.String(),
		stepID.String(),
		publishID.String(),
	}, keySeparator)
}

// HealthKey строит ключ снимка здоровья процессора в health map.
func HealthKey(processorID uuid.UUID) string {
	return processorID.String()
}
