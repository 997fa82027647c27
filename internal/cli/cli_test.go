package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/flowproc/internal/correlation"
	"github.com/shaiso/flowproc/internal/domain"
)

func TestClient_ProcessorStatus(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/processor", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get(correlation.HeaderName))
		json.NewEncoder(w).Encode(map[string]any{"data": ProcessorStatusResponse{
			Processor: &domain.Processor{ID: id, Version: "1.0", Name: "enricher"},
			PodID:     "pod-1",
			Status:    domain.HealthStatusHealthy,
			Queues:    QueueDepths{Activity: 2},
		}})
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL).ProcessorStatus()
	require.NoError(t, err)
	assert.Equal(t, id, status.Processor.ID)
	assert.Equal(t, domain.HealthStatusHealthy, status.Status)
	assert.Equal(t, int64(2), status.Queues.Activity)
}

func TestClient_HealthSnapshotNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"health snapshot not found"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).HealthSnapshot(uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestClient_ReadyNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not_ready","health":"INITIALIZING","resolved":false}`))
	}))
	defer srv.Close()

	probe, err := NewClient(srv.URL).Ready()
	require.NoError(t, err)
	assert.Equal(t, "not_ready", probe.Status)
	assert.Equal(t, domain.HealthStatusInitializing, probe.Health)
}

func TestOutput_Modes(t *testing.T) {
	var buf bytes.Buffer

	out := &Output{w: &buf, errW: &buf}
	out.Print(table.Row{"QUEUE", "DEPTH"}, []table.Row{{"activity", 3}}, nil)
	assert.Contains(t, buf.String(), "QUEUE")
	assert.Contains(t, buf.String(), "activity")

	buf.Reset()
	out.jsonMode = true
	out.Print(nil, nil, QueueDepths{Activity: 3})
	assert.JSONEq(t, `{"activity":3,"response":0}`, buf.String())
}

func TestOutput_Details(t *testing.T) {
	var buf bytes.Buffer

	out := &Output{w: &buf, errW: &buf}
	out.Details("Processor pod", []table.Row{{"Pod", "pod-1"}}, nil)
	assert.Contains(t, buf.String(), "Processor pod")
	assert.Contains(t, buf.String(), "pod-1")
}

func TestStatusText(t *testing.T) {
	assert.Contains(t, statusText(domain.HealthStatusHealthy), "HEALTHY")
	assert.Equal(t, "INITIALIZING", statusText(domain.HealthStatusInitializing))
}
