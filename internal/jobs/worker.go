package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Handler processes one claimed job. A nil return completes the job; an
// error sends it through the retry schedule.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// Worker defaults.
const (
	DefaultConcurrency     = 5
	DefaultRateLimit       = 10 // handler invocations per second, pool-wide
	DefaultPollInterval    = 2 * time.Second
	DefaultReclaimInterval = time.Minute
)

// Config tunes the worker pool. Zero values take the package defaults.
type Config struct {
	// Concurrency is the number of goroutines polling for jobs.
	Concurrency int

	// RateLimit bounds handler invocations per second across the whole
	// pool, protecting the model provider's quota.
	RateLimit float64

	// PollInterval is how long an idle goroutine sleeps when the queue
	// has no due jobs.
	PollInterval time.Duration

	// ReclaimInterval is how often the pool sweeps for running jobs whose
	// claim outlived the lease and returns them to the retry schedule.
	ReclaimInterval time.Duration
}

// Source is the queue surface the worker needs. *Queue satisfies it.
type Source interface {
	Claim(ctx context.Context, n int) ([]Job, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, job Job, jobErr error) error
	ReclaimStale(ctx context.Context) (int64, error)
}

// Worker runs a pool of goroutines that claim and process jobs until the
// context is canceled.
type Worker struct {
	queue   Source
	handler Handler
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(cfg Config, queue Source, handler Handler, logger *slog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = DefaultReclaimInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:  logger,
	}
}

// Run blocks processing jobs until ctx is canceled, then returns nil after
// every goroutine has drained. Handler panics and errors never stop the
// pool; they fail the job and polling continues.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker pool starting",
		"concurrency", w.cfg.Concurrency,
		"rate_limit", w.cfg.RateLimit,
		"poll_interval", w.cfg.PollInterval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	g.Go(func() error {
		return w.reclaimLoop(ctx)
	})

	err := g.Wait()
	w.logger.Info("worker pool stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}

		jobs, err := w.queue.Claim(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient database trouble: log and fall through to the
			// idle sleep rather than spinning on the error.
			w.logger.Warn("claim failed", "error", err)
			jobs = nil
		}

		if len(jobs) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}

		w.process(ctx, jobs[0])
	}
}

// process runs the handler on one job and settles its queue state. The
// settlement uses a background-derived context so a shutdown mid-job still
// records the outcome instead of leaving the job stuck in running.
func (w *Worker) process(ctx context.Context, job Job) {
	err := w.safeHandle(ctx, job)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err != nil {
		w.logger.Warn("job failed",
			"job_id", job.ID, "job_type", job.Type,
			"chunk_id", job.ChunkID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.queue.Fail(settleCtx, job, err); failErr != nil {
			w.logger.Error("failed to record job failure",
				"job_id", job.ID, "error", failErr)
		}
		return
	}

	if completeErr := w.queue.Complete(settleCtx, job.ID); completeErr != nil {
		// The job stays running until its lease expires and the reclaim
		// sweep re-delivers it; at-least-once delivery tolerates the
		// duplicate.
		w.logger.Error("failed to complete job",
			"job_id", job.ID, "error", completeErr)
		return
	}
	w.logger.Debug("job completed", "job_id", job.ID, "job_type", job.Type)
}

// reclaimLoop periodically returns jobs stranded in running by a dead
// worker to the retry schedule.
func (w *Worker) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.queue.ReclaimStale(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Warn("reclaim sweep failed", "error", err)
			}
		}
	}
}

func (w *Worker) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler.Handle(ctx, job)
}
