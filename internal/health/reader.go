package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/flowproc/internal/cache"
	"github.com/shaiso/flowproc/internal/domain"
)

// ErrSnapshotNotFound — снимка нет (процессор не запускался или TTL истёк).
var ErrSnapshotNotFound = errors.New("health snapshot not found")

// Reader читает снимки здоровья, записанные любой репликой.
type Reader struct {
	cache    cache.Client
	mapName  string
	interval time.Duration
	now      func() time.Time
}

// NewReader создаёт Reader. interval — интервал проверок писателей,
// по нему определяется устаревание.
func NewReader(c cache.Client, mapName string, interval time.Duration) *Reader {
	if mapName == "" {
		mapName = defaultMapName
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Reader{cache: c, mapName: mapName, interval: interval, now: time.Now}
}

// Get возвращает снимок процессора и флаг устаревания.
func (r *Reader) Get(ctx context.Context, processorID uuid.UUID) (*domain.ProcessorHealthCacheEntry, bool, error) {
	data, found, err := r.cache.Get(ctx, r.mapName, cache.HealthKey(processorID))
	if err != nil {
		return nil, false, fmt.Errorf("read health snapshot: %w", err)
	}
	if !found {
		return nil, false, fmt.Errorf("%w: %s", ErrSnapshotNotFound, processorID)
	}

	var entry domain.ProcessorHealthCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("decode health snapshot %s: %w", processorID, err)
	}

	return &entry, entry.IsStale(r.now(), r.interval), nil
}
