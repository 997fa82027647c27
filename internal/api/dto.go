package api

import (
	"time"

	"github.com/shaiso/flowproc/internal/domain"
)

// ProbeResponse — ответ liveness/readiness проб.
type ProbeResponse struct {
	Status   string              `json:"status"`
	Health   domain.HealthStatus `json:"health,omitempty"`
	Resolved bool                `json:"resolved"`
}

// QueueDepths — глубины внутренних очередей.
type QueueDepths struct {
	Activity int64 `json:"activity"`
	Response int64 `json:"response"`
}

// ProcessorStatusResponse — состояние пода процессора.
type ProcessorStatusResponse struct {
	// Processor — nil, пока идентичность не разрешена.
	Processor *domain.Processor `json:"processor,omitempty"`

	PodID       string                            `json:"pod_id"`
	Status      domain.HealthStatus               `json:"status"`
	Statistics  domain.HealthMonitoringStatistics `json:"statistics"`
	Queues      QueueDepths                       `json:"queues"`
	Performance domain.PerformanceMetrics         `json:"performance"`
}

// HealthSnapshotResponse — снимок здоровья из общего кэша.
type HealthSnapshotResponse struct {
	Snapshot domain.ProcessorHealthCacheEntry `json:"snapshot"`

	// Stale — писатель пропустил больше одного интервала.
	Stale bool `json:"stale"`

	// Age — возраст снимка на момент чтения.
	Age time.Duration `json:"age"`
}
