package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/identity"
)

// ProcessorView — состояние runtime процессора (processor.Processor).
type ProcessorView interface {
	ActivityQueueDepth() int64
	ResponseQueueDepth() int64
	Performance() domain.PerformanceMetrics
}

// MonitorView — состояние монитора здоровья пода (health.Monitor).
type MonitorView interface {
	Status() domain.HealthStatus
	Statistics() domain.HealthMonitoringStatistics
}

// SnapshotReader читает снимки здоровья из общего кэша (health.Reader).
type SnapshotReader interface {
	Get(ctx context.Context, processorID uuid.UUID) (*domain.ProcessorHealthCacheEntry, bool, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	identity  *identity.Holder
	processor ProcessorView
	monitor   MonitorView
	snapshots SnapshotReader
	gatherer  prometheus.Gatherer
	podID     string
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Identity  *identity.Holder
	Processor ProcessorView
	Monitor   MonitorView
	Snapshots SnapshotReader

	// Gatherer — источник /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer

	PodID  string
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	holder := cfg.Identity
	if holder == nil {
		holder = &identity.Holder{}
	}

	return &Handler{
		identity:  holder,
		processor: cfg.Processor,
		monitor:   cfg.Monitor,
		snapshots: cfg.Snapshots,
		gatherer:  gatherer,
		podID:     cfg.PodID,
		logger:    logger.With("component", "api"),
	}
}
