package api

import (
	"net/http"
)

// Healthz — liveness: процесс жив.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ProbeResponse{Status: "ok", Resolved: h.identity.IsResolved()})
}

// Readyz — readiness: идентичность разрешена и под обслуживает команды.
func (h *Handler) Readyz(w http.ResponseWriter, _ *http.Request) {
	resp := ProbeResponse{Status: "ready", Resolved: h.identity.IsResolved()}
	if h.monitor != nil {
		resp.Health = h.monitor.Status()
	}

	ready := resp.Resolved && (h.monitor == nil || resp.Health.IsServing())
	if !ready {
		resp.Status = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProcessor — GET /api/v1/processor
func (h *Handler) GetProcessor(w http.ResponseWriter, _ *http.Request) {
	resp := ProcessorStatusResponse{PodID: h.podID}

	if p, ok := h.identity.Get(); ok {
		resp.Processor = &p
	}
	if h.monitor != nil {
		resp.Status = h.monitor.Status()
		resp.Statistics = h.monitor.Statistics()
	}
	if h.processor != nil {
		resp.Queues = QueueDepths{
			Activity: h.processor.ActivityQueueDepth(),
			Response: h.processor.ResponseQueueDepth(),
		}
		resp.Performance = h.processor.Performance()
	}

	writeData(w, resp)
}
