package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/doctrans/internal/resilience"
)

// LocalConfig configures the in-process queue.
type LocalConfig struct {
	Workers int
	Buffer  int
	Retry   resilience.RetryPolicy
}

// Local is an in-process queue backed by a buffered channel and a fixed pool
// of workers. Failed jobs are retried with exponential backoff up to
// Retry.Attempts; after that the failure is logged and dropped.
type Local struct {
	cfg     LocalConfig
	handler Handler
	jobs    chan Job

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewLocal creates a Local queue that runs handler for each job.
func NewLocal(cfg LocalConfig, handler Handler) *Local {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	return &Local{
		cfg:      cfg,
		handler:  handler,
		jobs:     make(chan Job, cfg.Buffer),
		inflight: make(map[string]struct{}),
	}
}

// Enqueue implements Queue. It blocks while the buffer is full.
func (q *Local) Enqueue(ctx context.Context, job Job) error {
	key := job.Key()
	q.mu.Lock()
	if _, ok := q.inflight[key]; ok {
		q.mu.Unlock()
		return eris.Wrapf(ErrDuplicateJob, "queue: %s", key)
	}
	q.inflight[key] = struct{}{}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		q.release(key)
		return eris.Wrapf(ctx.Err(), "queue: enqueue %s", key)
	}
}

// Run starts the workers and blocks until ctx is canceled. Jobs still
// buffered at that point are abandoned.
func (q *Local) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-q.jobs:
					q.process(gctx, worker, job)
				}
			}
		})
	}
	zap.L().Info("queue: local workers started", zap.Int("workers", q.cfg.Workers))
	return g.Wait()
}

// Pending returns the number of buffered jobs.
func (q *Local) Pending() int {
	return len(q.jobs)
}

func (q *Local) process(ctx context.Context, worker int, job Job) {
	defer q.release(job.Key())

	log := zap.L().With(
		zap.String("task_id", job.TaskID),
		zap.String("kind", string(job.Kind)),
		zap.Int("worker", worker),
	)

	retry := q.cfg.Retry
	retry.Retryable = func(error) bool { return true }
	retry.OnRetry = func(attempt int, err error) {
		log.Warn("queue: job failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}

	start := time.Now()
	var attempts int
	err := resilience.Retry(ctx, retry, func(ctx context.Context) error {
		attempts++
		return q.handler(ctx, job)
	})
	if err != nil {
		log.Error("queue: job failed permanently",
			zap.Int("attempts", attempts),
			zap.String("error_class", resilience.ClassifyError(err)),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Error(err),
		)
		return
	}
	log.Debug("queue: job done",
		zap.Int("attempts", attempts),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

func (q *Local) release(key string) {
	q.mu.Lock()
	delete(q.inflight, key)
	q.mu.Unlock()
}
