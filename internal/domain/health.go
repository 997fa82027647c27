package domain

import (
	"time"

	"github.com/google/uuid"
)

// HealthSnapshotVersion — версия формата ProcessorHealthCacheEntry.
const HealthSnapshotVersion = 1

// ProcessorHealthCacheEntry — снимок здоровья процессора в общем кэше.
//
// Ключ — ProcessorID. Несколько реплик одного процессора пишут в один ключ
// без блокировок и compare-and-swap: побеждает последняя запись.
// Явно не удаляется, истекает по TTL кэша.
type ProcessorHealthCacheEntry struct {
	// SchemaVersion — версия формата снимка.
	SchemaVersion int `json:"schema_version"`

	ProcessorID uuid.UUID    `json:"processor_id"`
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`

	// Version, Name — composite key процессора.
	Version string `json:"version"`
	Name    string `json:"name"`

	// PodID — под, записавший снимок последним.
	PodID string `json:"pod_id"`

	// Uptime — время работы пода, записавшего снимок.
	Uptime time.Duration `json:"uptime"`

	LastUpdated time.Time `json:"last_updated"`

	// NextCheckAt — когда под планирует следующую запись.
	NextCheckAt time.Time `json:"next_check_at"`

	Performance  PerformanceMetrics           `json:"performance"`
	HealthChecks map[string]HealthCheckResult `json:"health_checks"`
}

// IsStale проверяет, устарел ли снимок относительно now.
// Снимок считается устаревшим, если писатель пропустил больше одного интервала.
func (e *ProcessorHealthCacheEntry) IsStale(now time.Time, interval time.Duration) bool {
	return now.Sub(e.LastUpdated) > 2*interval
}

// PerformanceMetrics — метрики производительности пода.
type PerformanceMetrics struct {
	TotalActivities      int64         `json:"total_activities"`
	SuccessfulActivities int64         `json:"successful_activities"`
	FailedActivities     int64         `json:"failed_activities"`
	SuccessRate          float64       `json:"success_rate"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`

	// ActivitiesPerMinute — средняя пропускная способность с момента старта.
	ActivitiesPerMinute float64 `json:"activities_per_minute"`

	ActivityQueueDepth int64 `json:"activity_queue_depth"`
	ResponseQueueDepth int64 `json:"response_queue_depth"`

	MemoryAllocBytes uint64 `json:"memory_alloc_bytes"`
	Goroutines       int    `json:"goroutines"`

	CollectedAt time.Time `json:"collected_at"`
}

// HealthCheckResult — результат одной проверки.
type HealthCheckResult struct {
	Status      HealthStatus      `json:"status"`
	Description string            `json:"description"`
	Duration    time.Duration     `json:"duration"`
	Data        map[string]string `json:"data,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// HealthMonitoringStatistics — локальные счётчики health monitor одного пода.
//
// Не разделяются между репликами и сбрасываются только рестартом процесса.
// Описывают надёжность самого монитора, а не здоровье кластера.
type HealthMonitoringStatistics struct {
	TotalChecks               int64 `json:"total_checks"`
	SuccessfulChecks          int64 `json:"successful_checks"`
	FailedChecks              int64 `json:"failed_checks"`
	SkippedDueToUninitialized int64 `json:"skipped_due_to_uninitialized"`
	StoredInCache             int64 `json:"stored_in_cache"`

	// SuccessRate — SuccessfulChecks / TotalChecks в процентах.
	SuccessRate float64 `json:"success_rate"`

	// CacheStorageRate — StoredInCache / TotalChecks в процентах.
	CacheStorageRate float64 `json:"cache_storage_rate"`
}

// Percent возвращает part/total в процентах (0 при total == 0).
func Percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
