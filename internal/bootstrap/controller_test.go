package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/flowproc/internal/domain"
	"github.com/shaiso/flowproc/internal/identity"
	"github.com/shaiso/flowproc/internal/managerclient"
)

// fakeRegistry — Processor Manager в памяти.
type fakeRegistry struct {
	mu sync.Mutex

	// failures — сколько первых GetByCompositeKey вернут ErrUnavailable.
	failures int

	// conflict — Register вернёт ErrConflict, а запись появится.
	conflict bool

	stored     *domain.Processor
	gets       int
	registered []domain.ProcessorRegistration
}

func (r *fakeRegistry) GetByCompositeKey(_ context.Context, version, name string) (*domain.Processor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gets++
	if r.failures > 0 {
		r.failures--
		return nil, managerclient.ErrUnavailable
	}
	if r.stored == nil {
		return nil, managerclient.ErrNotFound
	}
	p := *r.stored
	return &p, nil
}

func (r *fakeRegistry) Register(_ context.Context, reg domain.ProcessorRegistration) (*domain.Processor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registered = append(r.registered, reg)
	r.stored = &domain.Processor{ID: uuid.New(), Version: reg.Version, Name: reg.Name}
	if r.conflict {
		return nil, managerclient.ErrConflict
	}
	p := *r.stored
	return &p, nil
}

type schemaSet map[uuid.UUID]bool

func (s schemaSet) Exists(_ context.Context, id uuid.UUID) bool { return s[id] }

type recordingNotifier struct {
	initializing, initialized int
}

func (n *recordingNotifier) MarkInitializing() { n.initializing++ }
func (n *recordingNotifier) MarkInitialized()  { n.initialized++ }

func newController(reg ProcessorRegistry, mutate func(*Config)) (*Controller, *identity.Holder, *[]time.Duration) {
	holder := &identity.Holder{}
	cfg := Config{
		Registry:              reg,
		Identity:              holder,
		Registration:          domain.ProcessorRegistration{Version: "1.0", Name: "enricher"},
		RetryEndlessly:        true,
		RetryDelay:            5 * time.Second,
		MaxRetryDelay:         60 * time.Second,
		UseExponentialBackoff: true,
		Logger:                slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	c := New(cfg)
	var waits []time.Duration
	c.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return c, holder, &waits
}

func TestController_ResolvesExisting(t *testing.T) {
	existing := &domain.Processor{ID: uuid.New(), Version: "1.0", Name: "enricher"}
	reg := &fakeRegistry{stored: existing}
	notifier := &recordingNotifier{}

	c, holder, waits := newController(reg, func(cfg *Config) { cfg.Notifier = notifier })

	p, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, existing.ID, p.ID)
	assert.Equal(t, existing.ID, holder.ID())
	assert.Empty(t, reg.registered)
	assert.Empty(t, *waits)
	assert.Equal(t, 1, notifier.initializing)
	assert.Equal(t, 1, notifier.initialized)
}

func TestController_RegistersMissing(t *testing.T) {
	reg := &fakeRegistry{}
	out := uuid.New()

	c, holder, _ := newController(reg, func(cfg *Config) {
		cfg.Registration.OutputSchemaID = out
		cfg.Schemas = schemaSet{out: true}
	})

	p, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, reg.registered, 1)
	assert.Equal(t, out, reg.registered[0].OutputSchemaID)
	assert.Equal(t, p.ID, holder.ID())
}

func TestController_ConflictRefetches(t *testing.T) {
	reg := &fakeRegistry{conflict: true}

	c, holder, waits := newController(reg, nil)

	p, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reg.stored.ID, p.ID)
	assert.True(t, holder.IsResolved())
	assert.Equal(t, 2, reg.gets)
	assert.Empty(t, *waits)
}

func TestController_EndlessRetryLiveness(t *testing.T) {
	existing := &domain.Processor{ID: uuid.New(), Version: "1.0", Name: "enricher"}
	reg := &fakeRegistry{stored: existing, failures: 50}

	c, holder, waits := newController(reg, nil)

	p, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, existing.ID, p.ID)
	assert.True(t, holder.IsResolved())

	// Ровно одна попытка на одно окно задержки
	assert.Equal(t, 51, reg.gets)
	require.Len(t, *waits, 50)
	assert.Equal(t, 5*time.Second, (*waits)[0])
	assert.Equal(t, 10*time.Second, (*waits)[1])
	assert.Equal(t, 20*time.Second, (*waits)[2])
	assert.Equal(t, 40*time.Second, (*waits)[3])
	assert.Equal(t, 60*time.Second, (*waits)[4])
	assert.Equal(t, 60*time.Second, (*waits)[49])
}

func TestController_GivesUpWhenNotEndless(t *testing.T) {
	reg := &fakeRegistry{failures: 100}

	c, holder, waits := newController(reg, func(cfg *Config) {
		cfg.RetryEndlessly = false
		cfg.MaxAttempts = 3
	})

	_, err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrInitializationFailed)
	assert.ErrorIs(t, err, managerclient.ErrUnavailable)
	assert.Equal(t, 3, reg.gets)
	assert.Len(t, *waits, 2)
	assert.False(t, holder.IsResolved())
}

func TestController_MissingSchemaBlocksRegistration(t *testing.T) {
	reg := &fakeRegistry{}
	in := uuid.New()

	c, _, _ := newController(reg, func(cfg *Config) {
		cfg.RetryEndlessly = false
		cfg.MaxAttempts = 1
		cfg.Registration.InputSchemaID = in
		cfg.Schemas = schemaSet{}
	})

	_, err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrSchemaMissing)
	assert.Empty(t, reg.registered)
}

func TestController_Cancelled(t *testing.T) {
	reg := &fakeRegistry{failures: 1000}
	c, _, _ := newController(reg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	c.wait = func(ctx context.Context, _ time.Duration) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return ctx.Err()
	}

	_, err := c.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestController_Backoff(t *testing.T) {
	tests := []struct {
		name        string
		exponential bool
		attempt     int
		want        time.Duration
	}{
		{"fixed first", false, 1, 5 * time.Second},
		{"fixed later", false, 10, 5 * time.Second},
		{"exp first", true, 1, 5 * time.Second},
		{"exp second", true, 2, 10 * time.Second},
		{"exp capped", true, 5, 60 * time.Second},
		{"exp large attempt", true, 1000, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newController(&fakeRegistry{}, func(cfg *Config) { cfg.UseExponentialBackoff = tt.exponential })
			assert.Equal(t, tt.want, c.backoff(tt.attempt))
		})
	}
}

func TestSleep(t *testing.T) {
	assert.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
