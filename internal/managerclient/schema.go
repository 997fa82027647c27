package managerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Schema — определение схемы из Schema Manager.
type Schema struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Version string    `json:"version"`

	// Definition — JSON Schema. Менеджер может отдавать её объектом
	// или строкой с JSON внутри; Document() нормализует оба варианта.
	Definition json.RawMessage `json:"definition"`
}

// Document возвращает JSON Schema как документ.
func (s *Schema) Document() (json.RawMessage, error) {
	if len(s.Definition) == 0 {
		return nil, fmt.Errorf("%w: schema %s has empty definition", ErrBadResponse, s.ID)
	}
	if s.Definition[0] != '"' {
		return s.Definition, nil
	}

	var inner string
	if err := json.Unmarshal(s.Definition, &inner); err != nil {
		return nil, fmt.Errorf("%w: schema %s definition: %w", ErrBadResponse, s.ID, err)
	}
	if !json.Valid([]byte(inner)) {
		return nil, fmt.Errorf("%w: schema %s definition is not JSON", ErrBadResponse, s.ID)
	}
	return json.RawMessage(inner), nil
}

// SchemaClient — клиент Schema Manager.
type SchemaClient struct {
	client
}

// NewSchemaClient создаёт клиент. timeout <= 0 — 10s.
func NewSchemaClient(baseURL string, timeout time.Duration) *SchemaClient {
	return &SchemaClient{client: newClient(baseURL, timeout)}
}

// Get возвращает схему по ID. Отсутствие — ErrNotFound.
func (c *SchemaClient) Get(ctx context.Context, id uuid.UUID) (*Schema, error) {
	var s Schema
	if err := c.do(ctx, http.MethodGet, "/api/schema/"+id.String(), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
