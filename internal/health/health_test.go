package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/flowproc/internal/cache"
	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/identity"
)

type fakeSource struct {
	perf       domain.PerformanceMetrics
	saturation float64
	panics     bool
}

func (s *fakeSource) Performance() domain.PerformanceMetrics {
	if s.panics {
		panic("boom")
	}
	return s.perf
}

func (s *fakeSource) QueueSaturation() float64 { return s.saturation }

type fakeBus struct{ connected atomic.Bool }

func (b *fakeBus) IsConnected() bool { return b.connected.Load() }

// flakyCache отказывает в Set, пока fail == true.
type flakyCache struct {
	*cache.Memory
	fail atomic.Bool
}

func (c *flakyCache) Set(ctx context.Context, m, k string, v []byte, ttl time.Duration) error {
	if c.fail.Load() {
		return cache.ErrUnavailable
	}
	return c.Memory.Set(ctx, m, k, v, ttl)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMonitor(holder *identity.Holder, c cache.Client, src Source, mutate func(*Config)) *Monitor {
	cfg := Config{
		Identity:               holder,
		Cache:                  c,
		Source:                 src,
		Interval:               time.Minute,
		PodID:                  "pod-a",
		ContinueOnCacheFailure: true,
		Logger:                 testLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func resolved() (*identity.Holder, domain.Processor) {
	p := domain.Processor{ID: uuid.New(), Version: "1.0", Name: "enricher"}
	h := &identity.Holder{}
	h.Set(&p)
	return h, p
}

func TestMonitor_SkipsUntilInitialized(t *testing.T) {
	c := cache.NewMemory()
	m := newTestMonitor(&identity.Holder{}, c, &fakeSource{}, nil)

	assert.Equal(t, domain.HealthStatusUninitialized, m.Status())
	m.MarkInitializing()
	assert.Equal(t, domain.HealthStatusInitializing, m.Status())

	m.RunOnce(context.Background())
	m.RunOnce(context.Background())

	stats := m.Statistics()
	assert.Equal(t, int64(2), stats.SkippedDueToUninitialized)
	assert.Equal(t, int64(0), stats.TotalChecks)
	assert.Equal(t, int64(0), stats.StoredInCache)
	assert.Equal(t, domain.HealthStatusInitializing, m.Status())

	_, ok := m.LastSnapshot()
	assert.False(t, ok)
}

func TestMonitor_StoresSnapshot(t *testing.T) {
	holder, p := resolved()
	c := cache.NewMemory()
	bus := &fakeBus{}
	bus.connected.Store(true)
	src := &fakeSource{perf: domain.PerformanceMetrics{TotalActivities: 4, SuccessRate: 100}}

	m := newTestMonitor(holder, c, src, func(cfg *Config) { cfg.Bus = bus })
	m.RunOnce(context.Background())

	assert.Equal(t, domain.HealthStatusHealthy, m.Status())

	stats := m.Statistics()
	assert.Equal(t, int64(1), stats.TotalChecks)
	assert.Equal(t, int64(1), stats.SuccessfulChecks)
	assert.Equal(t, int64(1), stats.StoredInCache)
	assert.Equal(t, float64(100), stats.SuccessRate)
	assert.Equal(t, float64(100), stats.CacheStorageRate)

	entry, stale, err := NewReader(c, "", time.Minute).Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, domain.HealthStatusHealthy, entry.Status)
	assert.Equal(t, "pod-a", entry.PodID)
	assert.Equal(t, "enricher", entry.Name)
	assert.Equal(t, domain.HealthSnapshotVersion, entry.SchemaVersion)
	assert.Equal(t, int64(4), entry.Performance.TotalActivities)
	assert.Contains(t, entry.HealthChecks, CheckMessageBus)
	assert.Contains(t, entry.HealthChecks, CheckCache)
	assert.Contains(t, entry.HealthChecks, CheckQueues)
	assert.Contains(t, entry.HealthChecks, CheckSuccessRate)
}

func TestMonitor_DerivedStatus(t *testing.T) {
	tests := []struct {
		name      string
		src       *fakeSource
		connected bool
		want      domain.HealthStatus
		message   string
	}{
		{
			name:      "healthy",
			src:       &fakeSource{perf: domain.PerformanceMetrics{SuccessRate: 100}},
			connected: true,
			want:      domain.HealthStatusHealthy,
			message:   "all checks passed",
		},
		{
			name:      "queues saturated",
			src:       &fakeSource{saturation: 0.9, perf: domain.PerformanceMetrics{SuccessRate: 100}},
			connected: true,
			want:      domain.HealthStatusDegraded,
			message:   CheckQueues,
		},
		{
			name:      "low success rate",
			src:       &fakeSource{perf: domain.PerformanceMetrics{TotalActivities: 10, SuccessRate: 20}},
			connected: true,
			want:      domain.HealthStatusUnhealthy,
			message:   CheckSuccessRate,
		},
		{
			name:      "no activities yet",
			src:       &fakeSource{perf: domain.PerformanceMetrics{SuccessRate: 0}},
			connected: true,
			want:      domain.HealthStatusHealthy,
		},
		{
			name:    "bus disconnected",
			src:     &fakeSource{perf: domain.PerformanceMetrics{SuccessRate: 100}},
			want:    domain.HealthStatusUnhealthy,
			message: CheckMessageBus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			holder, _ := resolved()
			bus := &fakeBus{}
			bus.connected.Store(tt.connected)

			m := newTestMonitor(holder, cache.NewMemory(), tt.src, func(cfg *Config) { cfg.Bus = bus })
			m.RunOnce(context.Background())

			assert.Equal(t, tt.want, m.Status())
			entry, ok := m.LastSnapshot()
			require.True(t, ok)
			assert.Contains(t, entry.Message, tt.message)
		})
	}
}

func TestMonitor_CacheFailureContinues(t *testing.T) {
	holder, p := resolved()
	c := &flakyCache{Memory: cache.NewMemory()}
	c.fail.Store(true)

	m := newTestMonitor(holder, c, &fakeSource{perf: domain.PerformanceMetrics{SuccessRate: 100}}, nil)

	m.RunOnce(context.Background())
	stats := m.Statistics()
	assert.Equal(t, int64(1), stats.TotalChecks)
	assert.Equal(t, int64(1), stats.FailedChecks)
	assert.Equal(t, int64(0), stats.StoredInCache)
	assert.Equal(t, domain.HealthStatusHealthy, m.Status())

	c.fail.Store(false)
	m.RunOnce(context.Background())
	stats = m.Statistics()
	assert.Equal(t, int64(2), stats.TotalChecks)
	assert.Equal(t, int64(1), stats.StoredInCache)
	assert.Equal(t, float64(50), stats.CacheStorageRate)

	found, err := c.Exists(context.Background(), defaultMapName, cache.HealthKey(p.ID))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMonitor_CacheFailureDegradesWhenNotContinuing(t *testing.T) {
	holder, _ := resolved()
	c := &flakyCache{Memory: cache.NewMemory()}
	c.fail.Store(true)

	m := newTestMonitor(holder, c, &fakeSource{perf: domain.PerformanceMetrics{SuccessRate: 100}}, func(cfg *Config) {
		cfg.ContinueOnCacheFailure = false
	})
	m.RunOnce(context.Background())

	assert.Equal(t, domain.HealthStatusDegraded, m.Status())
}

func TestMonitor_RecoversPanic(t *testing.T) {
	holder, _ := resolved()
	m := newTestMonitor(holder, cache.NewMemory(), &fakeSource{panics: true}, nil)

	assert.NotPanics(t, func() { m.RunOnce(context.Background()) })
	assert.Equal(t, int64(1), m.Statistics().FailedChecks)
}

func TestMonitor_LastWriterWins(t *testing.T) {
	holder, p := resolved()
	c := cache.NewMemory()
	src := &fakeSource{perf: domain.PerformanceMetrics{SuccessRate: 100}}

	a := newTestMonitor(holder, c, src, func(cfg *Config) { cfg.PodID = "pod-a" })
	b := newTestMonitor(holder, c, src, func(cfg *Config) { cfg.PodID = "pod-b" })

	a.RunOnce(context.Background())
	b.RunOnce(context.Background())

	entry, _, err := NewReader(c, "", time.Minute).Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "pod-b", entry.PodID)

	a.RunOnce(context.Background())
	entry, _, err = NewReader(c, "", time.Minute).Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "pod-a", entry.PodID)
}

func TestMonitor_StartTriggerStop(t *testing.T) {
	holder := &identity.Holder{}
	c := cache.NewMemory()
	m := newTestMonitor(holder, c, &fakeSource{perf: domain.PerformanceMetrics{SuccessRate: 100}}, func(cfg *Config) {
		cfg.Interval = time.Hour
	})

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return m.Statistics().SkippedDueToUninitialized == 1 }, time.Second, time.Millisecond)

	p := domain.Processor{ID: uuid.New(), Version: "2", Name: "mapper"}
	holder.Set(&p)
	m.MarkInitialized()

	require.Eventually(t, func() bool { return m.Statistics().StoredInCache == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.HealthStatusHealthy, m.Status())

	m.Stop()
	assert.Equal(t, domain.HealthStatusStopped, m.Status())

	entry, _, err := NewReader(c, "", time.Hour).Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusStopped, entry.Status)

	// После остановки такты не выполняются
	m.RunOnce(context.Background())
	assert.Equal(t, int64(1), m.Statistics().TotalChecks)
}

func TestReader(t *testing.T) {
	c := cache.NewMemory()
	r := NewReader(c, "health", 10*time.Second)
	id := uuid.New()

	_, _, err := r.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	holder := &identity.Holder{}
	holder.Set(&domain.Processor{ID: id})
	m := newTestMonitor(holder, c, nil, func(cfg *Config) {
		cfg.MapName = "health"
		cfg.Interval = 10 * time.Second
	})
	m.now = func() time.Time { return now.Add(-15 * time.Second) }
	m.RunOnce(context.Background())

	_, stale, err := r.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, stale)

	m.now = func() time.Time { return now.Add(-25 * time.Second) }
	m.RunOnce(context.Background())

	_, stale, err = r.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, stale)

	require.NoError(t, c.Set(context.Background(), "health", cache.HealthKey(id), []byte("{bad"), 0))
	_, _, err = r.Get(context.Background(), id)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrSnapshotNotFound))
}
