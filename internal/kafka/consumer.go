package kafka

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

const (
	queueSize      = 256
	baseRetryDelay = 200 * time.Millisecond
	maxRetryDelay  = 30 * time.Second
)

// Handler must return nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group string, topics []string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

// Start fetches messages and hands them to the worker pool until ctx is done.
// Each partition belongs to one worker, so its messages are handled and
// committed in offset order. A failing message is retried in place and blocks
// its partition until it succeeds.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	queues := make([]chan kafka.Message, c.workers)
	g, gctx := errgroup.WithContext(ctx)

	for i := range queues {
		q := make(chan kafka.Message, queueSize)
		queues[i] = q
		id := i
		g.Go(func() error {
			for m := range q {
				if err := handleWithRetry(gctx, h, m, sleepCtx); err != nil {
					// shutting down; the offset stays uncommitted and the
					// message is redelivered to the next group member
					slog.Info("consumer worker stopped", "worker", id, "topic", m.Topic, "partition", m.Partition, "offset", m.Offset)
					return nil
				}
				if err := c.r.CommitMessages(gctx, m); err != nil {
					slog.Error("commit failed", "worker", id, "topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
				}
			}
			return nil
		})
	}

	var fetchErr error
	for {
		m, err := c.r.FetchMessage(gctx)
		if err != nil {
			if gctx.Err() == nil {
				fetchErr = err
			}
			break
		}
		select {
		case queues[route(m, c.workers)] <- m:
		case <-gctx.Done():
		}
		if gctx.Err() != nil {
			break
		}
	}
	for _, q := range queues {
		close(q)
	}
	_ = g.Wait()
	return fetchErr
}

// handleWithRetry runs h until it succeeds. It gives up only when wait reports
// that ctx is done.
func handleWithRetry(ctx context.Context, h Handler, m kafka.Message, wait func(context.Context, time.Duration) error) error {
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return nil
		}
		delay := retryDelay(attempt)
		slog.ErrorContext(ctx, "consumer handler failed",
			"topic", m.Topic, "partition", m.Partition, "offset", m.Offset,
			"attempt", attempt, "retry_in", delay, "error", err)
		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}

// retryDelay doubles per attempt from baseRetryDelay, capped at maxRetryDelay.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		return maxRetryDelay
	}
	d := baseRetryDelay << (attempt - 1)
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// route pins a topic partition to one worker.
func route(m kafka.Message, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(m.Topic))
	return int((h.Sum32() + uint32(m.Partition)) % uint32(workers))
}
