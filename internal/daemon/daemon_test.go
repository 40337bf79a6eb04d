package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDaemon(t *testing.T) {
	run := func(context.Context) error { return nil }

	d, err := NewDaemon(Config{Interval: 5 * time.Minute}, run)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d.interval)

	_, err = NewDaemon(Config{}, run)
	require.Error(t, err)

	_, err = NewDaemon(Config{Interval: time.Minute}, nil)
	require.Error(t, err)
}

// The first run happens without waiting for a tick
func TestDaemon_RunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	d, err := NewDaemon(Config{Interval: time.Hour}, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not start")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}

func TestDaemon_RunsOnInterval(t *testing.T) {
	var calls atomic.Int64
	d, err := NewDaemon(Config{Interval: 20 * time.Millisecond}, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Start(ctx) }()

	require.Eventually(t, func() bool { return d.RunCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
	assert.Zero(t, d.FailureCount())
}

func TestDaemon_FailureKeepsRunning(t *testing.T) {
	var calls atomic.Int64
	d, err := NewDaemon(Config{Interval: 10 * time.Millisecond}, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("region us-east-1: throttled")
		}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Start(ctx) }()

	require.Eventually(t, func() bool { return d.RunCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), d.FailureCount())
	assert.Eventually(t, func() bool { return d.Health().Status == "healthy" }, time.Second, 5*time.Millisecond)
}

func TestDaemon_Health(t *testing.T) {
	d, err := NewDaemon(Config{Interval: time.Hour}, func(context.Context) error {
		return errors.New("boom")
	})
	require.NoError(t, err)

	health := d.Health()
	assert.Equal(t, "healthy", health.Status)
	assert.GreaterOrEqual(t, health.Uptime, int64(0))

	d.runOnce(context.Background())

	health = d.Health()
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, int64(1), health.Runs)
	assert.Equal(t, int64(1), health.Failures)
}

func TestDaemon_CancelledRunNotCounted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d, err := NewDaemon(Config{Interval: time.Hour}, func(context.Context) error {
		cancel()
		return context.Canceled
	})
	require.NoError(t, err)

	d.runOnce(ctx)

	assert.Zero(t, d.RunCount())
	assert.Zero(t, d.FailureCount())
	assert.Equal(t, "healthy", d.Health().Status)
}
