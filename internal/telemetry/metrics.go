package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowproc"

// Metrics — Prometheus метрики одного процессора.
//
// Создаётся на переданном Registerer, поэтому в тестах каждая
// инстанция получает свой prometheus.NewRegistry() без конфликтов.
type Metrics struct {
	reg prometheus.Registerer

	// CommandsTotal — входящие команды по исходу: accepted, ignored, rejected, handoff_failed.
	CommandsTotal *prometheus.CounterVec

	// ActivitiesTotal — завершённые activity по статусу: completed, failed.
	ActivitiesTotal *prometheus.CounterVec

	// ExecutionAttempts — попытки выполнения по результату: ok, error.
	ExecutionAttempts *prometheus.CounterVec

	// ExecutionDuration — длительность одной попытки выполнения.
	ExecutionDuration prometheus.Histogram

	// EnqueueFailures — неудачные передачи в очередь по имени очереди.
	EnqueueFailures *prometheus.CounterVec

	// CacheWrites — записи результатов в кэш: ok, error.
	CacheWrites *prometheus.CounterVec

	// EventsPublished — опубликованные события: executed, failed, error.
	EventsPublished *prometheus.CounterVec

	// HealthChecks — проверки здоровья: stored, cache_failed, skipped.
	HealthChecks *prometheus.CounterVec

	// InitAttempts — попытки инициализации: resolved, registered, failed.
	InitAttempts *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики. reg == nil — без регистрации.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		CommandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Activity execution commands received, by outcome.",
		}, []string{"outcome"}),
		ActivitiesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_total",
			Help:      "Activities reported with a terminal event, by status.",
		}, []string{"status"}),
		ExecutionAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_attempts_total",
			Help:      "Executor invocations, by result.",
		}, []string{"result"}),
		ExecutionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Duration of a single executor invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		EnqueueFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueue_failures_total",
			Help:      "Failed handoffs into an in-process queue.",
		}, []string{"queue"}),
		CacheWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Activity result writes to the distributed cache, by result.",
		}, []string{"result"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Terminal events published to the bus, by type.",
		}, []string{"type"}),
		HealthChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Health monitor ticks, by result.",
		}, []string{"result"}),
		InitAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "init_attempts_total",
			Help:      "Processor identity resolution attempts, by result.",
		}, []string{"result"}),
	}
}

// RegisterQueueDepth регистрирует gauge глубины очереди, читаемый при scrape.
func (m *Metrics) RegisterQueueDepth(queue string, depth func() int64) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Items accepted but not yet released by an in-process queue.",
		ConstLabels: prometheus.Labels{"queue": queue},
	}, func() float64 { return float64(depth()) })
}
