// Package cache — клиент распределённого кэша процессора.
//
// Кэш разделяется всеми репликами всех процессоров: в нём лежат выходные
// данные activities (activity-data map) и снимки здоровья (health map).
// Ядру нужны только одноключевые операции; транзакции и атомарность по
// нескольким ключам не требуются. Единственный атомарный примитив — SetIfAbsent.
//
// Реализации:
//   - Postgres — общий кэш поверх PostgreSQL (pgx), используется в кластере
//   - Memory   — кэш в памяти процесса, для тестов и локального запуска
package cache

import (
	"context"
	"errors"
	"time"
)

// Ошибки кэша.
var (
	// ErrUnavailable — backend кэша недоступен.
	ErrUnavailable = errors.New("cache unavailable")

	// ErrInvalidKey — пустое имя map или ключа.
	ErrInvalidKey = errors.New("invalid cache key")
)

// Client — контракт распределённого кэша.
//
// ttl <= 0 — запись без срока жизни.
type Client interface {
	// Get возвращает значение и true, если ключ есть и не истёк.
	Get(ctx context.Context, mapName, key string) ([]byte, bool, error)

	// Set безусловно записывает значение (последняя запись побеждает).
	Set(ctx context.Context, mapName, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent атомарно записывает значение, только если ключа нет.
	// Возвращает предыдущее значение и true, если ключ уже был.
	SetIfAbsent(ctx context.Context, mapName, key string, value []byte, ttl time.Duration) ([]byte, bool, error)

	// Exists проверяет наличие неистёкшего ключа.
	Exists(ctx context.Context, mapName, key string) (bool, error)

	// Remove удаляет ключ. Отсутствие ключа не ошибка.
	Remove(ctx context.Context, mapName, key string) error
}

func validate(mapName, key string) error {
	if mapName == "" || key == "" {
		return ErrInvalidKey
	}
	return nil
}

func expiresAt(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}
