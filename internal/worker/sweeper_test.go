package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnce(t *testing.T) {
	boom := errors.New("boom")
	s := NewSweeper(time.Minute,
		Job{Name: "bookings", Run: func(context.Context) (int, error) { return 3, nil }},
		Job{Name: "invoices", Run: func(context.Context) (int, error) { return 0, boom }},
	)

	counts, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, map[string]int{"bookings": 3, "invoices": 0}, counts)
}

func TestTickBacksOffFailingJob(t *testing.T) {
	clock := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	var okRuns, badRuns int
	s := NewSweeper(time.Minute,
		Job{Name: "ok", Run: func(context.Context) (int, error) { okRuns++; return 0, nil }},
		Job{Name: "bad", Run: func(context.Context) (int, error) { badRuns++; return 0, errors.New("db down") }},
	)
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	s.tick(ctx) // bad fails once, next try in 2m
	clock = clock.Add(time.Minute)
	s.tick(ctx)
	assert.Equal(t, 2, okRuns)
	assert.Equal(t, 1, badRuns)

	clock = clock.Add(time.Minute)
	s.tick(ctx) // due again, fails twice, next try in 4m
	assert.Equal(t, 2, badRuns)

	clock = clock.Add(3 * time.Minute)
	s.tick(ctx)
	assert.Equal(t, 2, badRuns)
	clock = clock.Add(time.Minute)
	s.tick(ctx)
	assert.Equal(t, 3, badRuns)
	assert.Equal(t, 5, okRuns)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Minute, backoff(time.Minute, 1))
	assert.Equal(t, 8*time.Minute, backoff(time.Minute, 3))
	assert.Equal(t, maxBackoff, backoff(time.Minute, 10))
	assert.Equal(t, maxBackoff, backoff(time.Minute, 200))
}

func TestStartStopsWithContext(t *testing.T) {
	runs := make(chan struct{}, 10)
	s := NewSweeper(time.Hour, Job{Name: "j", Run: func(context.Context) (int, error) {
		runs <- struct{}{}
		return 0, nil
	}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	<-runs // first run happens immediately
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
