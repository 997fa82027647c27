package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Processor — запись процессора в Processor Manager.
type Processor struct {
	ID uuid.UUID `json:"id"`

	// Version, Name — образуют composite key.
	Version string `json:"version"`
	Name    string `json:"name"`

	Description    string    `json:"description,omitempty"`
	InputSchemaID  uuid.UUID `json:"input_schema_id"`
	OutputSchemaID uuid.UUID `json:"output_schema_id"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// CompositeKey возвращает составной ключ процессора.
func (p *Processor) CompositeKey() string {
	return CompositeKey(p.Version, p.Name)
}

// CompositeKey строит составной ключ "<version>_<name>".
func CompositeKey(version, name string) string {
	return fmt.Sprintf("%s_%s", version, name)
}

// ProcessorRegistration — запрос на регистрацию процессора.
type ProcessorRegistration struct {
	Version        string    `json:"version"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	InputSchemaID  uuid.UUID `json:"input_schema_id"`
	OutputSchemaID uuid.UUID `json:"output_schema_id"`
}
