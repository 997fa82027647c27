// Package health — монитор здоровья процессора.
//
// Каждая реплика периодически пишет снимок ProcessorHealthCacheEntry в общий
// health map под ключом ProcessorID. Запись слепая (Set без compare-and-swap):
// реплики одного процессора перетирают друг друга, побеждает последняя.
// Читатель (Reader) получает снимок любой реплики и флаг устаревания.
//
// Монитор никогда не роняет процесс: ошибки кэша логируются и считаются,
// паника в такте перехватывается, цикл продолжается.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/flowproc/internal/cache"
	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/identity"
	"github.com/shaiso/flowproc/internal/telemetry"
)

// Default configuration values.
const (
	defaultInterval             = 30 * time.Second
	defaultCacheTTL             = 2 * time.Minute
	defaultMapName              = "processor-health"
	defaultDegradedQueueRatio   = 0.8
	defaultUnhealthySuccessRate = 50
	stopWriteTimeout            = 5 * time.Second
)

// Имена проверок.
const (
	CheckMessageBus  = "message_bus"
	CheckCache       = "cache"
	CheckQueues      = "queues"
	CheckSuccessRate = "success_rate"
)

// Source — источник метрик производительности (processor.Processor).
type Source interface {
	Performance() domain.PerformanceMetrics
	QueueSaturation() float64
}

// BusChecker — состояние соединения с шиной (mq.Connection).
type BusChecker interface {
	IsConnected() bool
}

// Monitor — монитор здоровья одного пода.
type Monitor struct {
	identity *identity.Holder
	cache    cache.Client
	source   Source
	bus      BusChecker
	metrics  *telemetry.Metrics

	// Configuration
	interval               time.Duration
	cacheTTL               time.Duration
	mapName                string
	podID                  string
	degradedQueueRatio     float64
	unhealthySuccessRate   float64
	continueOnCacheFailure bool

	now       func() time.Time
	startedAt time.Time

	mu     sync.RWMutex
	status domain.HealthStatus
	last   *domain.ProcessorHealthCacheEntry
	stats  domain.HealthMonitoringStatistics

	trigger chan struct{}

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Monitor.
type Config struct {
	Identity *identity.Holder
	Cache    cache.Client
	Source   Source

	// Bus — опционально; nil — проверка шины не выполняется.
	Bus BusChecker

	// Metrics (опционально).
	Metrics *telemetry.Metrics

	Interval             time.Duration // default: 30s
	CacheTTL             time.Duration // default: 2m
	MapName              string        // default: processor-health
	PodID                string
	DegradedQueueRatio   float64 // default: 0.8
	UnhealthySuccessRate float64 // default: 50

	// ContinueOnCacheFailure — false: неудачная запись снимка
	// понижает локальный статус до DEGRADED.
	ContinueOnCacheFailure bool

	Logger *slog.Logger
}

// New создаёт новый Monitor в состоянии UNINITIALIZED.
func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}

	holder := cfg.Identity
	if holder == nil {
		holder = &identity.Holder{}
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	mapName := cfg.MapName
	if mapName == "" {
		mapName = defaultMapName
	}

	ratio := cfg.DegradedQueueRatio
	if ratio <= 0 {
		ratio = defaultDegradedQueueRatio
	}

	rate := cfg.UnhealthySuccessRate
	if rate <= 0 {
		rate = defaultUnhealthySuccessRate
	}

	return &Monitor{
		identity:               holder,
		cache:                  cfg.Cache,
		source:                 cfg.Source,
		bus:                    cfg.Bus,
		metrics:                metrics,
		interval:               interval,
		cacheTTL:               ttl,
		mapName:                mapName,
		podID:                  cfg.PodID,
		degradedQueueRatio:     ratio,
		unhealthySuccessRate:   rate,
		continueOnCacheFailure: cfg.ContinueOnCacheFailure,
		now:                    time.Now,
		startedAt:              time.Now(),
		status:                 domain.HealthStatusUninitialized,
		trigger:                make(chan struct{}, 1),
		logger:                 logger.With("component", "health"),
	}
}

// Start запускает цикл проверок.
func (m *Monitor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel

	m.logger.Info("starting health monitor",
		"interval", m.interval,
		"map", m.mapName,
		"pod_id", m.podID,
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop(ctx)
	}()

	return nil
}

// Stop останавливает цикл и записывает финальный снимок со статусом STOPPED.
func (m *Monitor) Stop() {
	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	m.wg.Wait()

	m.setStatus(domain.HealthStatusStopped)

	if p, ok := m.identity.Get(); ok {
		ctx, cancel := context.WithTimeout(context.Background(), stopWriteTimeout)
		defer cancel()

		entry := m.buildEntry(p, domain.HealthStatusStopped, "pod stopped", nil, m.now())
		if err := m.store(ctx, entry); err != nil {
			m.logger.Warn("failed to store final health snapshot", "error", err)
		}
	}

	m.logger.Info("health monitor stopped")
}

// MarkInitializing переводит монитор в INITIALIZING (bootstrap начал работу).
func (m *Monitor) MarkInitializing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == domain.HealthStatusUninitialized {
		m.status = domain.HealthStatusInitializing
	}
}

// MarkInitialized сообщает, что идентичность разрешена: следующий такт
// выполняется сразу, не дожидаясь интервала.
func (m *Monitor) MarkInitialized() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Status возвращает текущий статус пода.
func (m *Monitor) Status() domain.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Statistics возвращает счётчики монитора с производными долями.
func (m *Monitor) Statistics() domain.HealthMonitoringStatistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.stats
	s.SuccessRate = domain.Percent(s.SuccessfulChecks, s.TotalChecks)
	s.CacheStorageRate = domain.Percent(s.StoredInCache, s.TotalChecks)
	return s
}

// LastSnapshot возвращает последний снимок, собранный этим подом.
func (m *Monitor) LastSnapshot() (domain.ProcessorHealthCacheEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return domain.ProcessorHealthCacheEntry{}, false
	}
	return *m.last, true
}

// loop — цикл проверок.
func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Первая проверка сразу при старте
	m.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-m.trigger:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один такт монитора.
func (m *Monitor) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.mu.Lock()
			m.stats.FailedChecks++
			m.mu.Unlock()
			m.metrics.HealthChecks.WithLabelValues("panic").Inc()
			m.logger.Error("health check panicked", "panic", fmt.Sprint(r))
		}
	}()

	if m.Status().IsTerminal() {
		return
	}

	p, ok := m.identity.Get()
	if !ok {
		// Гонка старта: bootstrap ещё не разрешил идентичность
		m.mu.Lock()
		m.stats.SkippedDueToUninitialized++
		m.mu.Unlock()
		m.metrics.HealthChecks.WithLabelValues("skipped").Inc()
		m.logger.Debug("health check skipped, processor not initialized")
		return
	}

	m.mu.Lock()
	m.stats.TotalChecks++
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	checks := m.runChecks(ctx, p)
	status, message := aggregate(checks)
	now := m.now()
	entry := m.buildEntry(p, status, message, checks, now)

	storeErr := m.store(ctx, entry)

	m.mu.Lock()
	if storeErr != nil {
		m.stats.FailedChecks++
		if !m.continueOnCacheFailure {
			entry.Status = domain.Worst(entry.Status, domain.HealthStatusDegraded)
		}
	} else {
		m.stats.SuccessfulChecks++
		m.stats.StoredInCache++
	}
	if !m.status.IsTerminal() {
		m.status = entry.Status
	}
	m.last = entry
	m.mu.Unlock()

	if storeErr != nil {
		m.metrics.HealthChecks.WithLabelValues("cache_failed").Inc()
		m.logger.Warn("failed to store health snapshot, will retry next tick",
			"processor_id", p.ID,
			"error", storeErr,
		)
		return
	}

	m.metrics.HealthChecks.WithLabelValues("stored").Inc()
	m.logger.Debug("health snapshot stored",
		"processor_id", p.ID,
		"status", entry.Status,
	)
}

// runChecks выполняет проверки пода.
func (m *Monitor) runChecks(ctx context.Context, p domain.Processor) map[string]domain.HealthCheckResult {
	checks := make(map[string]domain.HealthCheckResult, 4)

	if m.bus != nil {
		checks[CheckMessageBus] = timed(func() domain.HealthCheckResult {
			if m.bus.IsConnected() {
				return domain.HealthCheckResult{Status: domain.HealthStatusHealthy, Description: "message bus connected"}
			}
			return domain.HealthCheckResult{Status: domain.HealthStatusUnhealthy, Description: "message bus disconnected"}
		})
	}

	checks[CheckCache] = timed(func() domain.HealthCheckResult {
		if _, err := m.cache.Exists(ctx, m.mapName, cache.HealthKey(p.ID)); err != nil {
			return domain.HealthCheckResult{
				Status:      domain.HealthStatusDegraded,
				Description: "distributed cache unreachable",
				Error:       err.Error(),
			}
		}
		return domain.HealthCheckResult{Status: domain.HealthStatusHealthy, Description: "distributed cache reachable"}
	})

	if m.source != nil {
		checks[CheckQueues] = timed(func() domain.HealthCheckResult {
			sat := m.source.QueueSaturation()
			res := domain.HealthCheckResult{
				Status:      domain.HealthStatusHealthy,
				Description: "queues within capacity",
				Data:        map[string]string{"saturation": fmt.Sprintf("%.2f", sat)},
			}
			if sat >= m.degradedQueueRatio {
				res.Status = domain.HealthStatusDegraded
				res.Description = "queues near capacity"
			}
			return res
		})

		checks[CheckSuccessRate] = timed(func() domain.HealthCheckResult {
			perf := m.source.Performance()
			res := domain.HealthCheckResult{
				Status:      domain.HealthStatusHealthy,
				Description: "activity success rate acceptable",
				Data: map[string]string{
					"success_rate": fmt.Sprintf("%.1f", perf.SuccessRate),
					"total":        fmt.Sprint(perf.TotalActivities),
				},
			}
			if perf.TotalActivities > 0 && perf.SuccessRate < m.unhealthySuccessRate {
				res.Status = domain.HealthStatusUnhealthy
				res.Description = "activity success rate below threshold"
			}
			return res
		})
	}

	return checks
}

// timed измеряет длительность проверки.
func timed(check func() domain.HealthCheckResult) domain.HealthCheckResult {
	start := time.Now()
	res := check()
	res.Duration = time.Since(start)
	return res
}

// aggregate возвращает худший статус и описание непройденных проверок.
func aggregate(checks map[string]domain.HealthCheckResult) (domain.HealthStatus, string) {
	status := domain.HealthStatusHealthy
	var problems []string
	for name, c := range checks {
		status = domain.Worst(status, c.Status)
		if c.Status != domain.HealthStatusHealthy {
			problems = append(problems, name+": "+c.Description)
		}
	}
	if len(problems) == 0 {
		return status, "all checks passed"
	}
	slices.Sort(problems)
	return status, strings.Join(problems, "; ")
}

func (m *Monitor) buildEntry(p domain.Processor, status domain.HealthStatus, message string, checks map[string]domain.HealthCheckResult, now time.Time) *domain.ProcessorHealthCacheEntry {
	entry := &domain.ProcessorHealthCacheEntry{
		SchemaVersion: domain.HealthSnapshotVersion,
		ProcessorID:   p.ID,
		Status:        status,
		Message:       message,
		Version:       p.Version,
		Name:          p.Name,
		PodID:         m.podID,
		Uptime:        now.Sub(m.startedAt),
		LastUpdated:   now,
		NextCheckAt:   now.Add(m.interval),
		HealthChecks:  checks,
	}
	if m.source != nil {
		entry.Performance = m.source.Performance()
	}
	return entry
}

// store — слепая запись снимка в health map.
func (m *Monitor) store(ctx context.Context, entry *domain.ProcessorHealthCacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal health snapshot: %w", err)
	}
	if err := m.cache.Set(ctx, m.mapName, cache.HealthKey(entry.ProcessorID), data, m.cacheTTL); err != nil {
		return fmt.Errorf("store health snapshot: %w", err)
	}
	return nil
}

func (m *Monitor) setStatus(s domain.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}
