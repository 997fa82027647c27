package managerclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shaiso/flowproc/internal/domain"
)

// ProcessorClient — клиент Processor Manager.
type ProcessorClient struct {
	client
}

// NewProcessorClient создаёт клиент. timeout <= 0 — 10s.
func NewProcessorClient(baseURL string, timeout time.Duration) *ProcessorClient {
	return &ProcessorClient{client: newClient(baseURL, timeout)}
}

// GetByCompositeKey ищет процессор по версии и имени.
// Отсутствие записи — ErrNotFound.
func (c *ProcessorClient) GetByCompositeKey(ctx context.Context, version, name string) (*domain.Processor, error) {
	var p domain.Processor
	path := "/api/processor/composite/" + url.PathEscape(version) + "/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Register создаёт запись процессора.
// Если запись создала другая реплика — ErrConflict.
func (c *ProcessorClient) Register(ctx context.Context, reg domain.ProcessorRegistration) (*domain.Processor, error) {
	var p domain.Processor
	if err := c.do(ctx, http.MethodPost, "/api/processor", reg, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
