package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCorrelationContext_IsEntryPoint(t *testing.T) {
	assert.True(t, CorrelationContext{ExecutionID: uuid.New()}.IsEntryPoint())
	assert.False(t, CorrelationContext{ExecutionID: uuid.New(), PublishID: uuid.New()}.IsEntryPoint())
}

func TestProcessedResponseItem_Failed(t *testing.T) {
	item := &ProcessedResponseItem{}
	assert.False(t, item.Failed())

	item.Failure = NewActivityFailure(FailureStageExecution, errors.New("boom"))
	assert.True(t, item.Failed())
}

func TestResultExecutionID(t *testing.T) {
	base := uuid.New()
	explicit := uuid.New()

	tests := []struct {
		name string
		id   string
		want uuid.UUID
	}{
		{"empty uses activity id", "", base},
		{"uuid kept", explicit.String(), explicit},
		{"nil uuid derived", uuid.Nil.String(), uuid.NewSHA1(base, []byte(uuid.Nil.String()))},
		{"label derived", "row-7", uuid.NewSHA1(base, []byte("row-7"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultExecutionID(base, tt.id))
		})
	}

	assert.NotEqual(t, ResultExecutionID(base, "a"), ResultExecutionID(base, "b"))
}

func TestProcessedResponseItem_ResultCorrelation(t *testing.T) {
	cc := CorrelationContext{CorrelationID: uuid.New(), ExecutionID: uuid.New(), StepID: uuid.New()}
	resultID := uuid.New()

	item := &ProcessedResponseItem{
		Correlation:   cc,
		ProcessedData: ActivityExecutionResult{ExecutionID: resultID.String()},
	}

	got := item.ResultCorrelation()
	assert.Equal(t, resultID, got.ExecutionID)
	assert.Equal(t, cc.CorrelationID, got.CorrelationID)
	assert.Equal(t, cc.StepID, got.StepID)
	assert.Equal(t, cc.ExecutionID, item.Correlation.ExecutionID)
}
