package processor

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/flowproc/internal/cache"
	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/executor"
	"github.com/shaiso/flowproc/internal/identity"
	"github.com/shaiso/flowproc/internal/mq"
	"github.com/shaiso/flowproc/internal/telemetry"
)

// Default configuration values.
const (
	defaultShutdownTimeout = 30 * time.Second
	defaultActivityDataMap = "processor-activity-data"
	defaultActivityDataTTL = time.Hour
	defaultPublishAttempts = 3
	defaultPublishDelay    = 500 * time.Millisecond
	defaultPublishTimeout  = 10 * time.Second
)

// EventPublisher публикует терминальные события activity.
type EventPublisher interface {
	PublishActivityExecuted(ctx context.Context, evt *domain.ActivityExecutedEvent) error
	PublishActivityFailed(ctx context.Context, evt *domain.ActivityFailedEvent) error
}

// OutputValidator проверяет выход executor'а по output schema.
// nil — данные валидны.
type OutputValidator interface {
	Check(ctx context.Context, schemaID uuid.UUID, data []byte) error
}

// Processor — runtime одного процессора.
//
// Processor — stateless компонент, который:
//   - Потребляет команды из своей очереди RabbitMQ
//   - Ставит их в ограниченную очередь и сразу подтверждает сообщение
//   - Выполняет activities пулом воркеров с локальным retry
//   - Пишет результаты в activity-data map и публикует события
//
// Реплики процессора с одной идентичностью делят очередь команд.
type Processor struct {
	identity  *identity.Holder
	executor  executor.Executor
	cache     cache.Client
	publisher EventPublisher
	validator OutputValidator
	metrics   *telemetry.Metrics

	// MQ (опционально: без соединения consumer не запускается)
	conn     *mq.Connection
	topology mq.ProcessorTopology
	prefetch int
	consumer *mq.Consumer

	activities  *ActivityQueue
	responses   *ResponseQueue
	performance *PerformanceTracker

	// Configuration
	workerCount            int
	responseWorkerCount    int
	maxRetries             int
	retryDelay             time.Duration
	shutdownTimeout        time.Duration
	activityDataMap        string
	activityDataTTL        time.Duration
	continueOnCacheFailure bool
	outputSchemaID         uuid.UUID
	publishAttempts        int
	publishDelay           time.Duration
	publishTimeout         time.Duration

	now   func() time.Time
	newID func() uuid.UUID

	// Lifecycle
	logger      *slog.Logger
	cancelFunc  context.CancelFunc
	workCancel  context.CancelFunc
	consumerWG  sync.WaitGroup
	execWG      sync.WaitGroup
	responseWG  sync.WaitGroup
	started     bool
	stopped     bool
	lifecycleMu sync.Mutex
}

// Config — конфигурация Processor.
type Config struct {
	// Identity — идентичность процессора (устанавливается bootstrap'ом).
	Identity *identity.Holder

	// Executor — реализация логики процессора.
	Executor executor.Executor

	// Cache — распределённый кэш (activity-data map).
	Cache cache.Client

	// Publisher — публикация терминальных событий.
	Publisher EventPublisher

	// Validator — проверка выхода (опционально; nil — без проверки).
	Validator OutputValidator

	// Metrics (опционально; nil — метрики без регистрации).
	Metrics *telemetry.Metrics

	// MQ (опционально; nil — команды подаются через HandleActivityCommand напрямую)
	Conn     *mq.Connection
	Topology mq.ProcessorTopology
	Prefetch int // default: WorkerCount

	// Pool configuration
	WorkerCount         int           // воркеры выполнения (default: runtime.NumCPU())
	ResponseWorkerCount int           // воркеры ответов (default: runtime.NumCPU())
	ActivityCapacity    int           // ёмкость очереди команд (default: queue.DefaultCapacity)
	ResponseCapacity    int           // ёмкость очереди ответов (default: queue.DefaultCapacity)
	MaxRetries          int           // попыток выполнения на activity (default: 3)
	RetryDelay          time.Duration // пауза между попытками (default: 0)
	ShutdownTimeout     time.Duration // ожидание воркеров при остановке (default: 30s)

	// Activity data
	ActivityDataMap        string        // default: processor-activity-data
	ActivityDataTTL        time.Duration // default: 1h
	ContinueOnCacheFailure bool
	OutputSchemaID         uuid.UUID

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Processor.
func New(cfg Config) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "processor")

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}

	holder := cfg.Identity
	if holder == nil {
		holder = &identity.Holder{}
	}

	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	responseWorkers := cfg.ResponseWorkerCount
	if responseWorkers <= 0 {
		responseWorkers = runtime.NumCPU()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}

	retryDelay := max(cfg.RetryDelay, 0)

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	dataMap := cfg.ActivityDataMap
	if dataMap == "" {
		dataMap = defaultActivityDataMap
	}

	dataTTL := cfg.ActivityDataTTL
	if dataTTL <= 0 {
		dataTTL = defaultActivityDataTTL
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = workers
	}

	p := &Processor{
		identity:               holder,
		executor:               cfg.Executor,
		cache:                  cfg.Cache,
		publisher:              cfg.Publisher,
		validator:              cfg.Validator,
		metrics:                metrics,
		conn:                   cfg.Conn,
		topology:               cfg.Topology,
		prefetch:               prefetch,
		activities:             NewActivityQueue(cfg.ActivityCapacity, logger, metrics),
		responses:              NewResponseQueue(cfg.ResponseCapacity, logger, metrics),
		performance:            NewPerformanceTracker(time.Now),
		workerCount:            workers,
		responseWorkerCount:    responseWorkers,
		maxRetries:             maxRetries,
		retryDelay:             retryDelay,
		shutdownTimeout:        shutdownTimeout,
		activityDataMap:        dataMap,
		activityDataTTL:        dataTTL,
		continueOnCacheFailure: cfg.ContinueOnCacheFailure,
		outputSchemaID:         cfg.OutputSchemaID,
		publishAttempts:        defaultPublishAttempts,
		publishDelay:           defaultPublishDelay,
		publishTimeout:         defaultPublishTimeout,
		now:                    time.Now,
		newID:                  uuid.New,
		logger:                 logger,
	}

	metrics.RegisterQueueDepth(activityQueueName, p.activities.Depth)
	metrics.RegisterQueueDepth(responseQueueName, p.responses.Depth)

	return p
}

// Start запускает воркеры и (если задано соединение) consumer.
//
// Воркеры работают на контексте, отвязанном от ctx: отмена ctx
// останавливает consumer, а воркеры дорабатывают очередь в Stop().
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancelFunc = cancel

	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	p.workCancel = workCancel

	p.logger.Info("starting processor",
		"workers", p.workerCount,
		"response_workers", p.responseWorkerCount,
		"max_retries", p.maxRetries,
		"retry_delay", p.retryDelay,
	)

	for i := 0; i < p.workerCount; i++ {
		i := i
		p.execWG.Add(1)
		go func() {
			defer p.execWG.Done()
			p.executionLoop(workCtx, i)
		}()
	}

	for i := 0; i < p.responseWorkerCount; i++ {
		i := i
		p.responseWG.Add(1)
		go func() {
			defer p.responseWG.Done()
			p.responseLoop(workCtx, i)
		}()
	}

	if p.conn != nil {
		p.consumer = mq.NewConsumer(p.conn, mq.ConsumerConfig{
			Topology: p.topology,
			Handler:  p.HandleActivityCommand,
			Prefetch: p.prefetch,
			Logger:   p.logger,
		})

		p.consumerWG.Add(1)
		go func() {
			defer p.consumerWG.Done()
			if err := p.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("activity consumer error", "error", err)
			}
		}()
	}

	p.logger.Info("processor started")
	return nil
}

// Stop останавливает Processor, дорабатывая принятые запросы.
//
// Порядок: consumer → очередь команд → воркеры выполнения →
// очередь ответов → воркеры ответов. Общий бюджет — ShutdownTimeout;
// по его истечении текущие элементы прерываются.
func (p *Processor) Stop() {
	p.lifecycleMu.Lock()
	if p.stopped || !p.started {
		p.stopped = true
		p.lifecycleMu.Unlock()
		return
	}
	p.stopped = true
	p.lifecycleMu.Unlock()

	p.logger.Info("stopping processor...",
		"activity_depth", p.activities.Depth(),
		"response_depth", p.responses.Depth(),
	)

	// 1. Перестаём принимать команды
	if p.consumer != nil {
		p.consumer.Stop()
	}
	p.cancelFunc()
	p.consumerWG.Wait()

	deadline := time.NewTimer(p.shutdownTimeout)
	defer deadline.Stop()

	// 2. Дорабатываем очередь команд
	p.activities.Close()
	if !waitOrDeadline(&p.execWG, deadline.C) {
		p.logger.Warn("execution workers did not drain in time, aborting in-flight activities",
			"timeout", p.shutdownTimeout,
		)
		p.workCancel()
		p.execWG.Wait()
	}

	// 3. Дорабатываем очередь ответов
	p.responses.Close()
	if !waitOrDeadline(&p.responseWG, deadline.C) {
		p.logger.Warn("response workers did not drain in time, aborting",
			"timeout", p.shutdownTimeout,
		)
		p.workCancel()
		p.responseWG.Wait()
	}

	p.workCancel()
	p.logger.Info("processor stopped")
}

// IsStopped проверяет, остановлен ли Processor.
func (p *Processor) IsStopped() bool {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	return p.stopped
}

// ActivityQueueDepth — глубина очереди команд.
func (p *Processor) ActivityQueueDepth() int64 { return p.activities.Depth() }

// ResponseQueueDepth — глубина очереди ответов.
func (p *Processor) ResponseQueueDepth() int64 { return p.responses.Depth() }

// QueueSaturation — наибольшая заполненность из двух очередей (0..1).
func (p *Processor) QueueSaturation() float64 {
	return max(p.activities.Saturation(), p.responses.Saturation())
}

// Performance возвращает снимок метрик производительности.
func (p *Processor) Performance() domain.PerformanceMetrics {
	return p.performance.Snapshot(p.activities.Depth(), p.responses.Depth())
}

// waitOrDeadline ждёт wg; false — сработал deadline.
func waitOrDeadline(wg *sync.WaitGroup, deadline <-chan time.Time) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-deadline:
		return false
	}
}
