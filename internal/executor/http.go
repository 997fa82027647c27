package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/flowproc/internal/correlation"
	"github.com/shaiso/flowproc/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPExecutor делегирует activity удалённому сервису.
//
// Отправляет JSON с контекстом корреляции, сущностями и входными данными.
// Ответ 2xx: JSON-массив — по результату на элемент, иначе один результат с телом.
// 5xx и сетевые ошибки восстановимы, 4xx — Permanent.
//
// Config:
//   - url (string): адрес сервиса (обязательно)
//   - method (string): HTTP-метод. Default: POST
//   - headers (map[string]any): HTTP-заголовки
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
type HTTPExecutor struct {
	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration
	Client  *http.Client
}

// httpRequestBody — тело запроса к сервису.
type httpRequestBody struct {
	Correlation domain.CorrelationContext `json:"correlation"`
	Entities    []domain.AssignmentEntity `json:"entities"`
	Input       json.RawMessage           `json:"input,omitempty"`
}

// NewHTTPExecutor — фабрика для реестра.
func NewHTTPExecutor(cfg map[string]any) (Executor, error) {
	url := getString(cfg, "url", "")
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}

	return &HTTPExecutor{
		URL:     url,
		Method:  strings.ToUpper(getString(cfg, "method", http.MethodPost)),
		Headers: getHeaders(cfg),
		Timeout: getTimeout(cfg),
		Client:  &http.Client{},
	}, nil
}

// Execute выполняет HTTP-запрос.
func (e *HTTPExecutor) Execute(ctx context.Context, cc domain.CorrelationContext, entities []domain.AssignmentEntity, input []byte) ([]domain.ActivityExecutionResult, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := httpRequestBody{Correlation: cc, Entities: entities}
	if len(input) > 0 && json.Valid(input) {
		body.Input = input
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, Permanent(fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err))
	}

	method := e.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, e.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, Permanent(fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err))
	}

	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(correlation.HeaderName, cc.CorrelationID.String())

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrHTTPRequest, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
	case resp.StatusCode >= 400:
		return nil, Permanentf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	return buildResults(cc, resp.StatusCode, respBody), nil
}

// buildResults разбирает тело ответа в результаты.
func buildResults(cc domain.CorrelationContext, status int, body []byte) []domain.ActivityExecutionResult {
	result := func(data json.RawMessage) domain.ActivityExecutionResult {
		return domain.ActivityExecutionResult{
			Result:         fmt.Sprintf("HTTP %d", status),
			Status:         domain.ActivityStatusCompleted,
			ExecutionID:    cc.ExecutionID.String(),
			SerializedData: data,
		}
	}

	// JSON-массив — fan-out
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err == nil {
		results := make([]domain.ActivityExecutionResult, 0, len(items))
		for _, item := range items {
			results = append(results, result(item))
		}
		return results
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return []domain.ActivityExecutionResult{result(nil)}
	}
	if json.Valid(body) {
		return []domain.ActivityExecutionResult{result(body)}
	}

	// Не JSON — сохраняем как строку
	quoted, _ := json.Marshal(string(body))
	return []domain.ActivityExecutionResult{result(quoted)}
}

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// getTimeout извлекает таймаут из конфигурации.
func getTimeout(cfg map[string]any) time.Duration {
	if val, ok := cfg["timeout_sec"]; ok {
		switch v := val.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	return defaultHTTPTimeout
}

// getHeaders извлекает заголовки из конфигурации.
func getHeaders(cfg map[string]any) map[string]string {
	out := make(map[string]string)
	switch h := cfg["headers"].(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				out[key] = s
			}
		}
	case map[string]string:
		for key, val := range h {
			out[key] = val
		}
	}
	return out
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
