package observability

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaskifaiDavid/bibbi-site/internal/cache"
	"github.com/TaskifaiDavid/bibbi-site/internal/models"
	"github.com/TaskifaiDavid/bibbi-site/internal/ratelimit"
	"github.com/TaskifaiDavid/bibbi-site/internal/version"
)

func setupTestProvider(t *testing.T) *Provider {
	t.Helper()
	metrics := models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090}
	obs := models.ObservabilityConfig{
		ServiceName: "test-gateway",
		Tracing: models.TracingConfig{
			Enabled:    true,
			Exporter:   "stdout",
			SampleRate: 1.0,
		},
	}
	provider, err := Setup(metrics, obs, version.Info{})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	return provider
}

// brokenWindowStore simulates an unreachable shared backend.
type brokenWindowStore struct{}

func (brokenWindowStore) RecordAndCount(context.Context, string, time.Duration, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}
func (brokenWindowStore) Close() error { return nil }

// brokenCacheStore fails every operation.
type brokenCacheStore struct{}

func (brokenCacheStore) Get(context.Context, string) (*cache.Entry, error) {
	return nil, errors.New("connection refused")
}
func (brokenCacheStore) Set(context.Context, string, *cache.Entry, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenCacheStore) Delete(context.Context, string) error { return errors.New("connection refused") }
func (brokenCacheStore) Clear(context.Context) error          { return errors.New("connection refused") }
func (brokenCacheStore) Close() error                         { return nil }

func TestNewInstrumentedWindowStore(t *testing.T) {
	_ = setupTestProvider(t)
	inner := ratelimit.NewMemoryWindowStore(time.Minute)

	instrumented, err := NewInstrumentedWindowStore(inner)
	require.NoError(t, err)
	assert.NotNil(t, instrumented)
	assert.NoError(t, instrumented.Close())
}

func TestInstrumentedWindowStore_Delegates(t *testing.T) {
	_ = setupTestProvider(t)
	inner := ratelimit.NewMemoryWindowStore(time.Minute)

	instrumented, err := NewInstrumentedWindowStore(inner)
	require.NoError(t, err)
	defer instrumented.Close()

	ctx := context.Background()
	now := time.Now()

	count, err := instrumented.RecordAndCount(ctx, "client:/api/chat", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = instrumented.RecordAndCount(ctx, "client:/api/chat", time.Minute, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, count, "instrumentation must not alter the inner store's counting")
}

func TestInstrumentedWindowStore_PropagatesErrors(t *testing.T) {
	_ = setupTestProvider(t)

	instrumented, err := NewInstrumentedWindowStore(brokenWindowStore{})
	require.NoError(t, err)

	_, err = instrumented.RecordAndCount(context.Background(), "key", time.Minute, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestInstrumentedWindowStore_ImplementsInterface(t *testing.T) {
	_ = setupTestProvider(t)
	instrumented, err := NewInstrumentedWindowStore(ratelimit.NewMemoryWindowStore(time.Minute))
	require.NoError(t, err)
	defer instrumented.Close()

	var _ ratelimit.WindowStore = instrumented
}

func TestNewInstrumentedCacheStore(t *testing.T) {
	_ = setupTestProvider(t)
	inner := cache.NewMemoryStore(10)

	instrumented, err := NewInstrumentedCacheStore(inner)
	require.NoError(t, err)
	assert.NotNil(t, instrumented)
	assert.NoError(t, instrumented.Close())
}

func TestInstrumentedCacheStore_Delegates(t *testing.T) {
	_ = setupTestProvider(t)
	inner := cache.NewMemoryStore(10)

	instrumented, err := NewInstrumentedCacheStore(inner)
	require.NoError(t, err)
	defer instrumented.Close()

	ctx := context.Background()
	entry := &cache.Entry{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"ok":true}`),
	}

	// Miss, then populate, then hit
	got, err := instrumented.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, instrumented.Set(ctx, "k1", entry, time.Minute))

	got, err = instrumented.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte(`{"ok":true}`), got.Body)

	// Delete and Clear pass through
	require.NoError(t, instrumented.Delete(ctx, "k1"))
	require.NoError(t, instrumented.Set(ctx, "k2", entry, time.Minute))
	require.NoError(t, instrumented.Clear(ctx))

	got, err = instrumented.Get(ctx, "k2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInstrumentedCacheStore_PropagatesErrors(t *testing.T) {
	_ = setupTestProvider(t)

	instrumented, err := NewInstrumentedCacheStore(brokenCacheStore{})
	require.NoError(t, err)

	ctx := context.Background()

	_, err = instrumented.Get(ctx, "k1")
	assert.Error(t, err)
	assert.Error(t, instrumented.Set(ctx, "k1", &cache.Entry{}, time.Minute))
	assert.Error(t, instrumented.Delete(ctx, "k1"))
	assert.Error(t, instrumented.Clear(ctx))
}

func TestInstrumentedCacheStore_ImplementsInterface(t *testing.T) {
	_ = setupTestProvider(t)
	instrumented, err := NewInstrumentedCacheStore(cache.NewMemoryStore(10))
	require.NoError(t, err)
	defer instrumented.Close()

	var _ cache.Store = instrumented
}
