// Package queue — ограниченная in-process очередь производитель/потребитель.
//
// Используется для двух стадий процессора:
//   - Activity Processing Queue — consumer шины кладёт ProcessingRequest,
//     воркеры выполнения забирают; глубина уменьшается при Dequeue.
//   - Response Processing Queue — воркеры выполнения кладут ProcessedResponseItem,
//     воркеры ответов забирают; глубина уменьшается, только когда воркер
//     вызывает Done() — момент "элемент обработан" определяет потребитель.
//
// Depth() читает атомарный счётчик и не блокирует ни производителей, ни потребителей.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Ошибки очереди.
var (
	// ErrClosed — очередь закрыта, новые элементы не принимаются.
	ErrClosed = errors.New("queue closed")

	// ErrEnqueueCancelled — ожидание свободного места прервано контекстом.
	ErrEnqueueCancelled = errors.New("enqueue cancelled")
)

// ReleaseMode определяет, когда элемент перестаёт учитываться в Depth().
type ReleaseMode int

const (
	// ReleaseOnDequeue — глубина уменьшается при Dequeue.
	ReleaseOnDequeue ReleaseMode = iota

	// ReleaseOnDone — глубина уменьшается при вызове Done() потребителем.
	ReleaseOnDone
)

// DefaultCapacity — ёмкость по умолчанию.
const DefaultCapacity = 1000

// Bounded — ограниченная очередь элементов типа T.
//
// Enqueue на полной очереди блокирует вызывающего до появления места
// или отмены контекста. Элементы никогда не отбрасываются молча.
type Bounded[T any] struct {
	items chan T
	mode  ReleaseMode
	depth atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// New создаёт очередь ёмкостью capacity (<= 0 — DefaultCapacity).
func New[T any](capacity int, mode ReleaseMode) *Bounded[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bounded[T]{
		items:  make(chan T, capacity),
		mode:   mode,
		closed: make(chan struct{}),
	}
}

// Enqueue кладёт элемент в очередь.
//
// Возвращает ErrClosed после Close() и ErrEnqueueCancelled (обёрнутую вместе
// с ctx.Err()), если контекст отменён раньше, чем освободилось место.
func (q *Bounded[T]) Enqueue(ctx context.Context, item T) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}

	// Счётчик увеличивается до отправки: потребитель не должен увидеть
	// отрицательную глубину, если заберёт элемент раньше, чем мы вернёмся.
	q.depth.Add(1)

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		q.depth.Add(-1)
		return fmt.Errorf("%w: %w", ErrEnqueueCancelled, ctx.Err())
	case <-q.closed:
		q.depth.Add(-1)
		return ErrClosed
	}
}

// Dequeue забирает элемент, ожидая его появления.
//
// После Close() отдаёт оставшиеся элементы, затем возвращает ErrClosed.
func (q *Bounded[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T

	select {
	case item := <-q.items:
		q.release()
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.closed:
		select {
		case item := <-q.items:
			q.release()
			return item, nil
		default:
			return zero, ErrClosed
		}
	}
}

// Done отмечает элемент обработанным (только для ReleaseOnDone).
func (q *Bounded[T]) Done() {
	if q.mode == ReleaseOnDone {
		q.depth.Add(-1)
	}
}

// Depth возвращает количество элементов, поставленных и ещё не освобождённых.
func (q *Bounded[T]) Depth() int64 {
	return q.depth.Load()
}

// Capacity возвращает ёмкость очереди.
func (q *Bounded[T]) Capacity() int {
	return cap(q.items)
}

// Saturation возвращает заполненность буфера от 0 до 1.
func (q *Bounded[T]) Saturation() float64 {
	return float64(len(q.items)) / float64(cap(q.items))
}

// Close прекращает приём новых элементов. Повторный вызов безопасен.
func (q *Bounded[T]) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// IsClosed проверяет, закрыта ли очередь.
func (q *Bounded[T]) IsClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

func (q *Bounded[T]) release() {
	if q.mode == ReleaseOnDequeue {
		q.depth.Add(-1)
	}
}
