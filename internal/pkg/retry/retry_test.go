package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{delay: time.Second, maxDelay: 3 * time.Second}
	assert.Equal(t, 1*time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff(), "capped at max delay")

	b.Reset()
	assert.Equal(t, 1*time.Second, b.NextBackOff())
}

func TestDoStopsAfterAttempts(t *testing.T) {
	calls := 0
	var retried []int
	cfg := Config{
		Attempts: 4,
		Delay:    time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
		},
	}

	err := Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("boom")
	})

	require.EqualError(t, err, "boom")
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, retried)
}

func TestDoSucceedsEventually(t *testing.T) {
	calls := 0
	v, err := DoWithResult(context.Background(), Config{Attempts: 5, Delay: time.Millisecond}, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestPermanentIsNotRetried(t *testing.T) {
	calls := 0
	sentinel := errors.New("bad request")

	err := Do(context.Background(), Config{Attempts: 5, Delay: time.Millisecond}, func() error {
		calls++
		return Permanent(sentinel)
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Config{Attempts: 5, Delay: time.Hour}, func() error {
		return errors.New("down")
	})

	assert.Error(t, err)
}
