package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/flowproc/internal/api"
	"github.com/shaiso/flowproc/internal/bootstrap"
	"github.com/shaiso/flowproc/internal/cache"
	"github.com/shaiso/flowproc/internal/config"
	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/executor"
	"github.com/shaiso/flowproc/internal/health"
	"github.com/shaiso/flowproc/internal/identity"
	"github.com/shaiso/flowproc/internal/managerclient"
	"github.com/shaiso/flowproc/internal/mq"
	"github.com/shaiso/flowproc/internal/processor"
	"github.com/shaiso/flowproc/internal/schema"
	"github.com/shaiso/flowproc/internal/telemetry"
)

const httpShutdownTimeout = 10 * time.Second

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the processor pod",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			logger := telemetry.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
			logger.Info("starting flowproc-processor",
				"version", version,
				"composite_key", cfg.Processor.CompositeKey(),
				"pod_id", cfg.PodID,
			)

			// graceful shutdown
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg, logger)
		},
	}
}

// run собирает pod и блокируется до сигнала завершения или фатальной ошибки.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	// Распределённый кэш
	cacheClient, closeCache, err := openCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	// RabbitMQ
	conn, err := mq.NewConnection(mq.ConnectionConfig{
		URL:    cfg.RabbitMQ.URL,
		Name:   mq.ConnectionName(cfg.Processor.CompositeKey(), cfg.PodID),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer conn.Close()

	topology := mq.ProcessorTopology{
		CompositeKey:     cfg.Processor.CompositeKey(),
		RedeliveryDelays: cfg.RabbitMQ.RedeliveryDelays,
	}
	if err := mq.SetupTopology(ctx, conn, topology); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}
	logger.Debug(mq.TopologyInfo(topology))

	// Executor
	exec, err := executor.NewRegistry().Build(cfg.Processor.Executor, cfg.Processor.ExecutorConfig)
	if err != nil {
		return err
	}
	exec = executor.WithTimeout(exec, cfg.Processor.ExecutorTimeout)

	// Менеджеры
	schemas := managerclient.NewSchemaClient(cfg.Managers.SchemaURL, cfg.Managers.Timeout)
	validator := schema.NewValidator(schemas, logger)
	registry := managerclient.NewProcessorClient(cfg.Managers.ProcessorURL, cfg.Managers.Timeout)
	schemaExists := managerclient.NewExistenceValidator(
		cfg.Managers.SchemaURL, "schema", managerclient.AssumeMissing, cfg.Managers.Timeout, logger)

	holder := &identity.Holder{}

	proc := processor.New(processor.Config{
		Identity:               holder,
		Executor:               exec,
		Cache:                  cacheClient,
		Publisher:              mq.NewPublisher(conn, logger),
		Validator:              validator,
		Metrics:                metrics,
		Conn:                   conn,
		Topology:               topology,
		Prefetch:               cfg.RabbitMQ.Prefetch,
		WorkerCount:            cfg.Queue.BackgroundWorkerCount,
		ResponseWorkerCount:    cfg.Queue.ResponseWorkerCount,
		ActivityCapacity:       cfg.Queue.ActivityCapacity,
		ResponseCapacity:       cfg.Queue.ResponseCapacity,
		MaxRetries:             cfg.Queue.MaxRetries,
		RetryDelay:             cfg.Queue.ExecutionRetryDelay,
		ShutdownTimeout:        cfg.Queue.ShutdownTimeout,
		ActivityDataMap:        cfg.Cache.ActivityDataMap,
		ActivityDataTTL:        cfg.Cache.ActivityDataTTL,
		ContinueOnCacheFailure: cfg.Cache.ContinueOnCacheFailure,
		OutputSchemaID:         cfg.Processor.OutputSchema(),
		Logger:                 logger,
	})

	monitor := health.New(health.Config{
		Identity:               holder,
		Cache:                  cacheClient,
		Source:                 proc,
		Bus:                    conn,
		Metrics:                metrics,
		Interval:               cfg.Health.Interval,
		CacheTTL:               cfg.Health.CacheTTL,
		MapName:                cfg.Health.MapName,
		PodID:                  cfg.PodID,
		DegradedQueueRatio:     cfg.Health.DegradedQueueRatio,
		UnhealthySuccessRate:   cfg.Health.UnhealthySuccessRate,
		ContinueOnCacheFailure: cfg.Health.ContinueOnCacheFailure,
		Logger:                 logger,
	})

	controller := bootstrap.New(bootstrap.Config{
		Registry: registry,
		Identity: holder,
		Schemas:  schemaExists,
		Notifier: monitor,
		Metrics:  metrics,
		Registration: domain.ProcessorRegistration{
			Version:        cfg.Processor.Version,
			Name:           cfg.Processor.Name,
			Description:    cfg.Processor.Description,
			InputSchemaID:  cfg.Processor.InputSchema(),
			OutputSchemaID: cfg.Processor.OutputSchema(),
		},
		RetryEndlessly:        cfg.Initialization.RetryEndlessly,
		RetryDelay:            cfg.Initialization.RetryDelay,
		MaxRetryDelay:         cfg.Initialization.MaxRetryDelay(),
		UseExponentialBackoff: cfg.Initialization.UseExponentialBackoff,
		Timeout:               cfg.Initialization.Timeout,
		MaxAttempts:           cfg.Initialization.MaxAttempts,
		Logger:                logger,
	})

	handler := api.NewHandler(api.Config{
		Identity:  holder,
		Processor: proc,
		Monitor:   monitor,
		Snapshots: health.NewReader(cacheClient, cfg.Health.MapName, cfg.Health.Interval),
		Gatherer:  reg,
		PodID:     cfg.PodID,
		Logger:    logger,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Команды до разрешения идентичности отклоняются consumer'ом,
	// поэтому processor стартует сразу, параллельно с bootstrap.
	if err := proc.Start(ctx); err != nil {
		return err
	}
	defer proc.Stop()

	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if _, err := controller.Run(gctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		// Схема выхода компилируется заранее; недоступность не фатальна,
		// Validator повторит загрузку при первой проверке.
		if err := validator.Preload(gctx, cfg.Processor.OutputSchema()); err != nil {
			logger.Warn("failed to preload output schema", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("admin API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutting down flowproc-processor")
	return err
}

// openCache открывает backend распределённого кэша.
func openCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (cache.Client, func(), error) {
	if cfg.Backend == "memory" {
		logger.Warn("using in-memory cache: results are not shared between replicas")
		return cache.NewMemory(), func() {}, nil
	}

	pool, err := cache.NewPool(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect cache database: %w", err)
	}

	pg := cache.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("cache database connected")

	janitor, err := cache.NewJanitor(pg, cfg.CleanupSchedule, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := janitor.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return pg, func() {
		janitor.Stop()
		pool.Close()
	}, nil
}
