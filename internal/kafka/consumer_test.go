package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWithRetryKeepsTheFailedMessage(t *testing.T) {
	m := kafka.Message{Topic: "order.created", Partition: 2, Offset: 41}
	var (
		seen   []int64
		delays []time.Duration
	)
	h := func(_ context.Context, got kafka.Message) error {
		seen = append(seen, got.Offset)
		if len(seen) < 4 {
			return errors.New("db down")
		}
		return nil
	}
	wait := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	require.NoError(t, handleWithRetry(context.Background(), h, m, wait))
	assert.Equal(t, []int64{41, 41, 41, 41}, seen, "the same offset is retried until it succeeds")
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}, delays)
}

func TestHandleWithRetryStopsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	h := func(context.Context, kafka.Message) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("still failing")
	}

	err := handleWithRetry(ctx, h, kafka.Message{}, sleepCtx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestRetryDelayIsCapped(t *testing.T) {
	assert.Equal(t, baseRetryDelay, retryDelay(0))
	assert.Equal(t, baseRetryDelay, retryDelay(1))
	assert.Equal(t, 3200*time.Millisecond, retryDelay(5))
	assert.Equal(t, maxRetryDelay, retryDelay(9))
	assert.Equal(t, maxRetryDelay, retryDelay(500))
}

func TestRouteOwnsPartitions(t *testing.T) {
	const workers = 4
	for p := 0; p < 12; p++ {
		m := kafka.Message{Topic: "invoice.paid", Partition: p}
		w := route(m, workers)
		assert.GreaterOrEqual(t, w, 0)
		assert.Less(t, w, workers)
		m.Offset = 99
		assert.Equal(t, w, route(m, workers), "offset must not change the owner")
	}
	assert.Zero(t, route(kafka.Message{Topic: "x", Partition: 7}, 1))
}
