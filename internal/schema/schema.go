// Package schema проверяет выход processor'а на соответствие output-схеме.
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/shaiso/flowproc/internal/managerclient"
)

// Ошибки валидации.
var (
	// ErrInvalidOutput — данные не соответствуют схеме.
	ErrInvalidOutput = errors.New("output does not match schema")

	// ErrSchemaUnavailable — схему не удалось получить или скомпилировать.
	ErrSchemaUnavailable = errors.New("schema unavailable")
)

// Source — источник определений схем (Schema Manager).
type Source interface {
	Get(ctx context.Context, id uuid.UUID) (*managerclient.Schema, error)
}

// Validator проверяет JSON-данные по схеме из Source.
//
// Скомпилированные схемы кэшируются на всё время жизни pod'а:
// определение схемы по ID неизменно.
type Validator struct {
	source Source
	logger *slog.Logger

	mu       sync.RWMutex
	compiled map[uuid.UUID]*jsonschema.Schema
}

// NewValidator создаёт Validator.
func NewValidator(source Source, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		source:   source,
		logger:   logger.With("component", "schema-validator"),
		compiled: make(map[uuid.UUID]*jsonschema.Schema),
	}
}

// Validate — булева проверка: true, если данные соответствуют схеме.
// uuid.Nil — схема не задана, любые данные валидны.
func (v *Validator) Validate(ctx context.Context, schemaID uuid.UUID, data []byte) bool {
	return v.Check(ctx, schemaID, data) == nil
}

// Check проверяет данные и возвращает причину несоответствия.
//
// Пустые данные проверяются как JSON null.
func (v *Validator) Check(ctx context.Context, schemaID uuid.UUID, data []byte) error {
	if schemaID == uuid.Nil {
		return nil
	}

	sch, err := v.schema(ctx, schemaID)
	if err != nil {
		return err
	}

	var doc any
	if len(bytes.TrimSpace(data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return fmt.Errorf("%w %s: not JSON: %w", ErrInvalidOutput, schemaID, err)
		}
	}

	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidOutput, schemaID, err)
	}
	return nil
}

// Preload компилирует схему заранее (при старте pod'а).
func (v *Validator) Preload(ctx context.Context, schemaID uuid.UUID) error {
	if schemaID == uuid.Nil {
		return nil
	}
	_, err := v.schema(ctx, schemaID)
	return err
}

func (v *Validator) schema(ctx context.Context, id uuid.UUID) (*jsonschema.Schema, error) {
	v.mu.RLock()
	sch, ok := v.compiled[id]
	v.mu.RUnlock()
	if ok {
		return sch, nil
	}

	def, err := v.source.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrSchemaUnavailable, id, err)
	}
	doc, err := def.Document()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
	}

	sch, err = Compile(id, doc)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.compiled[id] = sch
	v.mu.Unlock()

	v.logger.Info("output schema compiled", "schema_id", id, "name", def.Name)
	return sch, nil
}

// Compile компилирует JSON Schema документ.
func Compile(id uuid.UUID, doc []byte) (*jsonschema.Schema, error) {
	url := "flowproc://schema/" + id.String() + ".json"

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("%w: add %s: %w", ErrSchemaUnavailable, id, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s: %w", ErrSchemaUnavailable, id, err)
	}
	return sch, nil
}
