package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/flowproc/internal/domain"
)

// Executor — бизнес-логика процессора.
//
// Получает неизменяемый контекст корреляции, сущности активности и
// (необязательно) входные данные из кэша. Может вернуть несколько
// результатов. Ошибка считается восстановимой, если не обёрнута в Permanent.
//
// ctx отменяется при остановке pod'а: реализация должна его уважать.
type Executor interface {
	Execute(ctx context.Context, cc domain.CorrelationContext, entities []domain.AssignmentEntity, input []byte) ([]domain.ActivityExecutionResult, error)
}

// Func — адаптер функции к Executor.
type Func func(ctx context.Context, cc domain.CorrelationContext, entities []domain.AssignmentEntity, input []byte) ([]domain.ActivityExecutionResult, error)

// Execute вызывает f.
func (f Func) Execute(ctx context.Context, cc domain.CorrelationContext, entities []domain.AssignmentEntity, input []byte) ([]domain.ActivityExecutionResult, error) {
	return f(ctx, cc, entities, input)
}

// WithTimeout ограничивает одно выполнение executor'а. d <= 0 — без ограничения.
func WithTimeout(e Executor, d time.Duration) Executor {
	if d <= 0 {
		return e
	}
	return Func(func(ctx context.Context, cc domain.CorrelationContext, entities []domain.AssignmentEntity, input []byte) ([]domain.ActivityExecutionResult, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return e.Execute(ctx, cc, entities, input)
	})
}

// Factory создаёт executor по конфигурации из processor.executor_config.
type Factory func(cfg map[string]any) (Executor, error)

// Registry — реестр фабрик executor'ов по типу.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry создаёт реестр со встроенными executor'ами.
//
// Регистрирует: transform, http, delay.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("transform", func(map[string]any) (Executor, error) { return &TransformExecutor{}, nil })
	r.Register("http", NewHTTPExecutor)
	r.Register("delay", NewDelayExecutor)
	return r
}

// Register добавляет фабрику для типа executor'а.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Build создаёт executor указанного типа.
func (r *Registry) Build(kind string, cfg map[string]any) (Executor, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExecutor, kind)
	}

	if cfg == nil {
		cfg = map[string]any{}
	}
	exec, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("build %s executor: %w", kind, err)
	}
	return exec, nil
}

// Kinds возвращает зарегистрированные типы (отсортированы).
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
