package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/flowproc/internal/cache"
	"github.com/shaiso/flowproc/internal/correlation"
	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/health"
	"github.com/shaiso/flowproc/internal/identity"
)

type fakeProcessor struct{}

func (fakeProcessor) ActivityQueueDepth() int64 { return 3 }
func (fakeProcessor) ResponseQueueDepth() int64 { return 1 }
func (fakeProcessor) Performance() domain.PerformanceMetrics {
	return domain.PerformanceMetrics{TotalActivities: 10}
}

type fakeMonitor struct{ status domain.HealthStatus }

func (m fakeMonitor) Status() domain.HealthStatus { return m.status }
func (fakeMonitor) Statistics() domain.HealthMonitoringStatistics {
	return domain.HealthMonitoringStatistics{TotalChecks: 4}
}

type failingReader struct{ err error }

func (r failingReader) Get(context.Context, uuid.UUID) (*domain.ProcessorHealthCacheEntry, bool, error) {
	return nil, false, r.err
}

func newTestHandler(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}
	return NewHandler(cfg).Routes()
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestHandler(t, Config{}), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ProbeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Resolved)
}

func TestReadyz(t *testing.T) {
	resolved := &identity.Holder{}
	resolved.Set(&domain.Processor{ID: uuid.New(), Version: "1.0", Name: "enricher"})

	tests := []struct {
		name     string
		holder   *identity.Holder
		status   domain.HealthStatus
		wantCode int
	}{
		{"unresolved", &identity.Holder{}, domain.HealthStatusInitializing, http.StatusServiceUnavailable},
		{"healthy", resolved, domain.HealthStatusHealthy, http.StatusOK},
		{"degraded still serves", resolved, domain.HealthStatusDegraded, http.StatusOK},
		{"stopped", resolved, domain.HealthStatusStopped, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, Config{Identity: tt.holder, Monitor: fakeMonitor{status: tt.status}})
			rec := do(t, h, http.MethodGet, "/readyz")
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestGetProcessor(t *testing.T) {
	holder := &identity.Holder{}
	id := uuid.New()
	holder.Set(&domain.Processor{ID: id, Version: "1.0", Name: "enricher"})

	h := newTestHandler(t, Config{
		Identity:  holder,
		Processor: fakeProcessor{},
		Monitor:   fakeMonitor{status: domain.HealthStatusHealthy},
		PodID:     "pod-1",
	})

	rec := do(t, h, http.MethodGet, "/api/v1/processor")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data ProcessorStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Processor)
	assert.Equal(t, id, resp.Data.Processor.ID)
	assert.Equal(t, "pod-1", resp.Data.PodID)
	assert.Equal(t, domain.HealthStatusHealthy, resp.Data.Status)
	assert.Equal(t, int64(4), resp.Data.Statistics.TotalChecks)
	assert.Equal(t, QueueDepths{Activity: 3, Response: 1}, resp.Data.Queues)
	assert.Equal(t, int64(10), resp.Data.Performance.TotalActivities)
}

func TestGetHealthSnapshot(t *testing.T) {
	mem := cache.NewMemory()
	interval := time.Minute
	reader := health.NewReader(mem, "health", interval)

	fresh := uuid.New()
	stale := uuid.New()
	put := func(id uuid.UUID, updated time.Time) {
		data, err := json.Marshal(domain.ProcessorHealthCacheEntry{
			ProcessorID: id,
			Status:      domain.HealthStatusHealthy,
			LastUpdated: updated,
		})
		require.NoError(t, err)
		require.NoError(t, mem.Set(context.Background(), "health", cache.HealthKey(id), data, time.Hour))
	}
	put(fresh, time.Now())
	put(stale, time.Now().Add(-10*interval))

	h := newTestHandler(t, Config{Snapshots: reader})

	t.Run("fresh", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/health/"+fresh.String())
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data HealthSnapshotResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, fresh, resp.Data.Snapshot.ProcessorID)
		assert.False(t, resp.Data.Stale)
	})

	t.Run("stale", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/health/"+stale.String())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"stale":true`)
	})

	t.Run("missing", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/health/"+uuid.NewString())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/health/not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetHealthSnapshot_CacheUnavailable(t *testing.T) {
	h := newTestHandler(t, Config{Snapshots: failingReader{err: cache.ErrUnavailable}})

	rec := do(t, h, http.MethodGet, "/api/v1/health/"+uuid.NewString())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), string(ErrCodeCacheUnavailable))
}

func TestCorrelationHeader(t *testing.T) {
	h := newTestHandler(t, Config{})
	id := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(correlation.HeaderName, id.String())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, id.String(), rec.Header().Get(correlation.HeaderName))

	rec = do(t, h, http.MethodGet, "/healthz")
	_, err := uuid.Parse(rec.Header().Get(correlation.HeaderName))
	assert.NoError(t, err)
}

func TestRouting(t *testing.T) {
	h := newTestHandler(t, Config{})

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/nope").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPost, "/healthz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "flowproc_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec := do(t, newTestHandler(t, Config{Gatherer: reg}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowproc_test_total 1")
}

func TestRecovery(t *testing.T) {
	h := Recovery(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
