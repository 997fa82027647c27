package processor

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shaiso/flowproc/internal/domain"
)

// PerformanceTracker накапливает счётчики завершённых activities пода.
//
// Воркеры выполнения пишут, health monitor и API читают; всё на атомиках.
type PerformanceTracker struct {
	startedAt time.Time
	now       func() time.Time

	total      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64

	// durationNanos — суммарная длительность завершённых activities.
	durationNanos atomic.Int64
}

// NewPerformanceTracker создаёт трекер; отсчёт пропускной способности — с now.
func NewPerformanceTracker(now func() time.Time) *PerformanceTracker {
	if now == nil {
		now = time.Now
	}
	return &PerformanceTracker{startedAt: now(), now: now}
}

// Record учитывает одну завершённую activity.
func (t *PerformanceTracker) Record(success bool, d time.Duration) {
	t.total.Add(1)
	if success {
		t.successful.Add(1)
	} else {
		t.failed.Add(1)
	}
	t.durationNanos.Add(int64(d))
}

// Snapshot возвращает метрики с глубинами очередей и состоянием runtime.
func (t *PerformanceTracker) Snapshot(activityDepth, responseDepth int64) domain.PerformanceMetrics {
	total := t.total.Load()
	successful := t.successful.Load()
	now := t.now()

	var avg time.Duration
	if total > 0 {
		avg = time.Duration(t.durationNanos.Load() / total)
	}

	var perMinute float64
	if minutes := now.Sub(t.startedAt).Minutes(); minutes > 0 {
		perMinute = float64(total) / minutes
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return domain.PerformanceMetrics{
		TotalActivities:      total,
		SuccessfulActivities: successful,
		FailedActivities:     t.failed.Load(),
		SuccessRate:          successRate(successful, total),
		AverageExecutionTime: avg,
		ActivitiesPerMinute:  perMinute,
		ActivityQueueDepth:   activityDepth,
		ResponseQueueDepth:   responseDepth,
		MemoryAllocBytes:     mem.Alloc,
		Goroutines:           runtime.NumGoroutine(),
		CollectedAt:          now,
	}
}

// successRate — доля успешных в процентах; без activities — 100.
func successRate(successful, total int64) float64 {
	if total == 0 {
		return 100
	}
	return domain.Percent(successful, total)
}
