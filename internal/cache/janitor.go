package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultCleanupSchedule — расписание очистки по умолчанию.
const DefaultCleanupSchedule = "@every 5m"

// cronParser — парсер расписаний: стандартные 5 полей и дескрипторы (@every, @hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Purger — backend, умеющий удалять истёкшие записи.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Janitor периодически удаляет истёкшие записи кэша по cron-расписанию.
//
// Несколько реплик могут чистить одновременно: DELETE идемпотентен.
type Janitor struct {
	purger   Purger
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewJanitor создаёт Janitor. Пустое расписание — DefaultCleanupSchedule.
func NewJanitor(purger Purger, schedule string, logger *slog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		purger:   purger,
		schedule: schedule,
		timeout:  30 * time.Second,
		logger:   logger.With("component", "cache-janitor"),
	}, nil
}

// Start запускает планировщик. Останавливается при отмене ctx или Stop().
func (j *Janitor) Start(ctx context.Context) error {
	j.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule cache cleanup: %w", err)
	}

	j.cron.Start()
	j.logger.Info("cache janitor started", "schedule", j.schedule)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// Stop останавливает планировщик и ждёт завершения текущей очистки.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// RunOnce выполняет одну очистку.
func (j *Janitor) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	n, err := j.purger.Purge(ctx)
	if err != nil {
		j.logger.Warn("cache cleanup failed", "error", err)
		return
	}
	if n > 0 {
		j.logger.Debug("expired cache entries purged", "count", n)
	}
}

// ValidateSchedule проверяет cron-выражение.
func ValidateSchedule(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return nil
}
