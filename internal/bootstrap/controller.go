// Package bootstrap разрешает идентичность процессора при старте пода.
//
// Controller ищет процессор по composite key (<version>_<name>) в Processor
// Manager и регистрирует его, если записи нет. Пока идентичность не
// разрешена, под остаётся в INITIALIZING и не обслуживает команды.
// По умолчанию попытки бесконечны: рестарт в оркестрируемом кластере хуже,
// чем медленный, но видимый старт.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/identity"
	"github.com/shaiso/flowproc/internal/managerclient"
	"github.com/shaiso/flowproc/internal/telemetry"
)

// Default configuration values.
const (
	defaultRetryDelay    = 5 * time.Second
	defaultMaxRetryDelay = 60 * time.Second
	defaultTimeout       = 30 * time.Second
	defaultMaxAttempts   = 5
)

// ProcessorRegistry — Processor Manager (managerclient.ProcessorClient).
type ProcessorRegistry interface {
	GetByCompositeKey(ctx context.Context, version, name string) (*domain.Processor, error)
	Register(ctx context.Context, reg domain.ProcessorRegistration) (*domain.Processor, error)
}

// SchemaChecker проверяет существование схемы (managerclient.ExistenceValidator).
type SchemaChecker interface {
	Exists(ctx context.Context, id uuid.UUID) bool
}

// StateNotifier получает переходы инициализации (health.Monitor).
type StateNotifier interface {
	MarkInitializing()
	MarkInitialized()
}

// Controller — контроллер инициализации с повторами.
type Controller struct {
	registry ProcessorRegistry
	schemas  SchemaChecker
	identity *identity.Holder
	notifier StateNotifier
	metrics  *telemetry.Metrics

	registration domain.ProcessorRegistration

	// Configuration
	retryEndlessly bool
	retryDelay     time.Duration
	maxRetryDelay  time.Duration
	exponential    bool
	timeout        time.Duration
	maxAttempts    int

	// wait — пауза между попытками (подменяется в тестах).
	wait func(ctx context.Context, d time.Duration) error

	logger *slog.Logger
}

// Config — конфигурация Controller.
type Config struct {
	Registry ProcessorRegistry
	Identity *identity.Holder

	// Schemas — опционально; nil — схемы не проверяются.
	Schemas SchemaChecker

	// Notifier — опционально.
	Notifier StateNotifier

	Metrics *telemetry.Metrics

	// Registration — описание процессора из конфигурации.
	Registration domain.ProcessorRegistration

	RetryEndlessly        bool
	RetryDelay            time.Duration // default: 5s
	MaxRetryDelay         time.Duration // default: 60s
	UseExponentialBackoff bool
	Timeout               time.Duration // на одну попытку (default: 30s)
	MaxAttempts           int           // при RetryEndlessly=false (default: 5)

	Logger *slog.Logger
}

// New создаёт новый Controller.
func New(cfg Config) *Controller {
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

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	maxRetryDelay := cfg.MaxRetryDelay
	if maxRetryDelay <= 0 {
		maxRetryDelay = defaultMaxRetryDelay
	}
	maxRetryDelay = max(maxRetryDelay, retryDelay)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Controller{
		registry:       cfg.Registry,
		schemas:        cfg.Schemas,
		identity:       holder,
		notifier:       cfg.Notifier,
		metrics:        metrics,
		registration:   cfg.Registration,
		retryEndlessly: cfg.RetryEndlessly,
		retryDelay:     retryDelay,
		maxRetryDelay:  maxRetryDelay,
		exponential:    cfg.UseExponentialBackoff,
		timeout:        timeout,
		maxAttempts:    maxAttempts,
		wait:           sleep,
		logger:         logger.With("component", "bootstrap"),
	}
}

// Run разрешает идентичность, повторяя попытки до успеха, отмены ctx
// или (при RetryEndlessly=false) исчерпания MaxAttempts.
func (c *Controller) Run(ctx context.Context) (*domain.Processor, error) {
	if c.notifier != nil {
		c.notifier.MarkInitializing()
	}

	key := domain.CompositeKey(c.registration.Version, c.registration.Name)
	c.logger.Info("resolving processor identity",
		"composite_key", key,
		"retry_endlessly", c.retryEndlessly,
	)

	for attempt := 1; ; attempt++ {
		p, err := c.attempt(ctx)
		if err == nil {
			c.identity.Set(p)
			if c.notifier != nil {
				c.notifier.MarkInitialized()
			}
			c.logger.Info("processor identity resolved",
				"processor_id", p.ID,
				"composite_key", key,
				"attempts", attempt,
			)
			return p, nil
		}

		c.metrics.InitAttempts.WithLabelValues("failed").Inc()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !c.retryEndlessly && attempt >= c.maxAttempts {
			c.logger.Error("processor initialization gave up",
				"attempts", attempt,
				"error", err,
			)
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrInitializationFailed, attempt, err)
		}

		delay := c.backoff(attempt)
		c.logger.Warn("processor initialization attempt failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		if err := c.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt — одна попытка: поиск по composite key, иначе регистрация.
func (c *Controller) attempt(ctx context.Context) (*domain.Processor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reg := c.registration

	p, err := c.registry.GetByCompositeKey(ctx, reg.Version, reg.Name)
	if err == nil {
		c.metrics.InitAttempts.WithLabelValues("resolved").Inc()
		return p, nil
	}
	if !errors.Is(err, managerclient.ErrNotFound) {
		return nil, fmt.Errorf("get processor: %w", err)
	}

	if err := c.checkSchemas(ctx); err != nil {
		return nil, err
	}

	p, err = c.registry.Register(ctx, reg)
	switch {
	case err == nil:
		c.metrics.InitAttempts.WithLabelValues("registered").Inc()
		c.logger.Info("processor registered", "processor_id", p.ID)
		return p, nil

	case errors.Is(err, managerclient.ErrConflict):
		// Другая реплика зарегистрировала процессор между нашими запросами
		p, err = c.registry.GetByCompositeKey(ctx, reg.Version, reg.Name)
		if err != nil {
			return nil, fmt.Errorf("get processor after conflict: %w", err)
		}
		c.metrics.InitAttempts.WithLabelValues("resolved").Inc()
		return p, nil

	default:
		return nil, fmt.Errorf("register processor: %w", err)
	}
}

// checkSchemas проверяет схемы перед регистрацией.
// При недоступности Schema Manager решение принимает fail-safe валидатора.
func (c *Controller) checkSchemas(ctx context.Context) error {
	if c.schemas == nil {
		return nil
	}
	for _, id := range []uuid.UUID{c.registration.InputSchemaID, c.registration.OutputSchemaID} {
		if id == uuid.Nil {
			continue
		}
		if !c.schemas.Exists(ctx, id) {
			return fmt.Errorf("%w: %s", ErrSchemaMissing, id)
		}
	}
	return nil
}

// backoff вычисляет задержку перед следующей попыткой.
// Экспоненциально: RetryDelay * 2^(attempt-1), не больше MaxRetryDelay.
func (c *Controller) backoff(attempt int) time.Duration {
	if !c.exponential {
		return c.retryDelay
	}

	delay := c.retryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxRetryDelay {
			return c.maxRetryDelay
		}
	}
	return delay
}

// sleep ждёт d с учётом ctx.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
