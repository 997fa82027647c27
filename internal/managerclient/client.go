// Package managerclient — HTTP-клиенты сервисов-менеджеров.
//
// Процессор только потребляет их API: разрешение собственной идентичности
// (Processor Manager), получение определения схемы (Schema Manager) и
// проверки существования ссылок между менеджерами.
package managerclient

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
)

const defaultTimeout = 10 * time.Second

// client — общий HTTP-транспорт менеджеров.
type client struct {
	baseURL    string
	httpClient *http.Client
}

func newClient(baseURL string, timeout time.Duration) client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do выполняет запрос и декодирует JSON-ответ в result (если не nil).
//
// 404 → ErrNotFound, 409 → ErrConflict, 5xx и сетевые ошибки → ErrUnavailable.
func (c client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id, ok := correlation.FromContext(ctx); ok {
		req.Header.Set(correlation.HeaderName, id.String())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, method, path); err != nil {
		return err
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrBadResponse, method, path, err)
	}
	return nil
}

func checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode < 400 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(msg))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s %s: %s", ErrConflict, method, path, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: HTTP %d: %s", ErrUnavailable, method, path, resp.StatusCode, detail)
	default:
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, detail)
	}
}
