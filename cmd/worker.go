package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/korpus/internal/extraction"
	"github.com/koopa0/korpus/internal/jobs"
)

var workerFlags struct {
	requeueFailed bool
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the extraction worker pool",
	Long: `Runs the worker pool that drains the extraction job queue: each job
sends one chunk through the model to extract entities or relationships
and writes the results into the knowledge graph.

Failed jobs retry with exponential backoff until their attempt budget is
exhausted, then park in the failed state; --requeue-failed puts parked
jobs back in rotation before the pool starts. Stop with SIGINT or
SIGTERM; in-flight jobs settle before the process exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker()
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerFlags.requeueFailed, "requeue-failed", false,
		"reset parked failed jobs to pending before starting")
	rootCmd.AddCommand(workerCmd)
}

func runWorker() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if workerFlags.requeueFailed {
		requeued, err := a.queue.RequeueFailed(ctx)
		if err != nil {
			return fmt.Errorf("requeueing failed jobs: %w", err)
		}
		a.logger.Info("requeued failed jobs", "count", requeued)
	}

	generator := extraction.NewModelGenerator(a.g, a.extractionModel(),
		a.logger.With("component", "extraction"))
	handler := extraction.NewHandler(generator, a.graph,
		a.logger.With("component", "extraction"))

	worker := jobs.NewWorker(jobs.Config{
		Concurrency:  a.cfg.WorkerConcurrency,
		RateLimit:    a.cfg.WorkerRateLimit,
		PollInterval: a.cfg.PollInterval,
	}, a.queue, handler, a.logger.With("component", "worker"))

	if counts, err := a.queue.PendingCount(ctx); err == nil {
		a.logger.Info("queue state", "model", a.extractionModel(),
			"pending", counts[jobs.StatusPending],
			"running", counts[jobs.StatusRunning],
			"failed", counts[jobs.StatusFailed])
	}

	if err := worker.Run(ctx); err != nil {
		return fmt.Errorf("worker pool error: %w", err)
	}
	return nil
}
