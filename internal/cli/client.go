package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/flowproc/internal/correlation"
	"github.com/shaiso/flowproc/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ProbeResponse — ответ /healthz и /readyz.
type ProbeResponse struct {
	Status   string              `json:"status"`
	Health   domain.HealthStatus `json:"health,omitempty"`
	Resolved bool                `json:"resolved"`
}

// QueueDepths — глубины внутренних очередей пода.
type QueueDepths struct {
	Activity int64 `json:"activity"`
	Response int64 `json:"response"`
}

// ProcessorStatusResponse — состояние пода из /api/v1/processor.
type ProcessorStatusResponse struct {
	Processor   *domain.Processor                 `json:"processor,omitempty"`
	PodID       string                            `json:"pod_id"`
	Status      domain.HealthStatus               `json:"status"`
	Statistics  domain.HealthMonitoringStatistics `json:"statistics"`
	Queues      QueueDepths                       `json:"queues"`
	Performance domain.PerformanceMetrics         `json:"performance"`
}

// HealthSnapshotResponse — снимок здоровья из /api/v1/health/{id}.
type HealthSnapshotResponse struct {
	Snapshot domain.ProcessorHealthCacheEntry `json:"snapshot"`
	Stale    bool                             `json:"stale"`
	Age      time.Duration                    `json:"age"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент admin API пода процессора.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ProcessorStatus возвращает состояние пода.
func (c *Client) ProcessorStatus() (*ProcessorStatusResponse, error) {
	var status ProcessorStatusResponse
	err := c.get("/api/v1/processor", &status)
	return &status, err
}

// HealthSnapshot возвращает снимок здоровья процессора из общего кэша.
func (c *Client) HealthSnapshot(processorID uuid.UUID) (*HealthSnapshotResponse, error) {
	var snapshot HealthSnapshotResponse
	err := c.get("/api/v1/health/"+processorID.String(), &snapshot)
	return &snapshot, err
}

// Ready проверяет readiness пода. 503 — не ошибка, а ответ "не готов".
func (c *Client) Ready() (*ProbeResponse, error) {
	resp, err := c.do(http.MethodGet, "/readyz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	var probe ProbeResponse
	if err := json.NewDecoder(resp.Body).Decode(&probe); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &probe, nil
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	resp, err := c.do(http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(dr.Data, result)
}

func (c *Client) do(method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(correlation.HeaderName, uuid.NewString())

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
