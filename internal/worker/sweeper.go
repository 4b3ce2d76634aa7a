package worker

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

const maxBackoff = 30 * time.Minute

// Job is one periodic maintenance step. It returns how many records it changed.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

type state struct {
	failures int
	nextAt   time.Time
}

// Sweeper runs its jobs on a ticker. A failing job is retried with
// exponential backoff while the other jobs keep their schedule.
type Sweeper struct {
	jobs     []Job
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	state map[string]*state
}

func NewSweeper(interval time.Duration, jobs ...Job) *Sweeper {
	return &Sweeper{
		jobs:     jobs,
		interval: interval,
		now:      time.Now,
		state:    make(map[string]*state, len(jobs)),
	}
}

// Start blocks until ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("sweeper started", "interval", s.interval, "jobs", len(s.jobs))
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	now := s.now()
	for _, j := range s.jobs {
		s.mu.Lock()
		st := s.stateFor(j.Name)
		due := !now.Before(st.nextAt)
		s.mu.Unlock()
		if !due {
			continue
		}
		_, _ = s.run(ctx, j)
	}
}

// RunOnce runs every job immediately, ignoring backoff, and returns the
// number of records each one changed. The first error is returned after all
// jobs ran.
func (s *Sweeper) RunOnce(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(s.jobs))
	var firstErr error
	for _, j := range s.jobs {
		n, err := s.run(ctx, j)
		out[j.Name] = n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return out, firstErr
}

func (s *Sweeper) run(ctx context.Context, j Job) (int, error) {
	n, err := j.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(j.Name)
	if err != nil {
		st.failures++
		delay := backoff(s.interval, st.failures)
		st.nextAt = s.now().Add(delay)
		slog.Error("sweep job failed", "job", j.Name, "failures", st.failures, "retry_in", delay, "error", err)
		return n, err
	}
	st.failures = 0
	st.nextAt = time.Time{}
	if n > 0 {
		slog.Info("sweep job done", "job", j.Name, "count", n)
	}
	return n, nil
}

func (s *Sweeper) stateFor(name string) *state {
	st, ok := s.state[name]
	if !ok {
		st = &state{}
		s.state[name] = st
	}
	return st
}

// backoff doubles the interval per consecutive failure, capped at maxBackoff.
func backoff(interval time.Duration, failures int) time.Duration {
	if failures > 16 {
		return maxBackoff
	}
	d := time.Duration(float64(interval) * math.Pow(2, float64(failures)))
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}
