// Package jobs is the persistent extraction job queue and its worker pool.
// Jobs live in PostgreSQL; claiming uses FOR UPDATE SKIP LOCKED so any
// number of workers can poll the same table without coordination.
// Delivery is at least once: a completed job is deleted, a failed job is
// rescheduled with exponential backoff until its attempt budget runs out,
// after which it is kept with status failed for inspection. A job whose
// worker dies between claim and settlement is re-delivered once its lease
// expires.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Job types produced by ingestion. Unknown types are completed without
// effect by the worker so a stale job can never wedge the queue.
const (
	JobTypeRelationship = "relationship_extraction"
	JobTypeEntity       = "entity_extraction"
)

// Job statuses as stored. Completed jobs have no status: they are deleted.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusFailed  = "failed"
)

// Defaults applied when the queue is constructed with zero values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 30 * time.Second
)

// LeaseTimeout is how long a claimed job may sit in running before it
// counts as abandoned. Settlement runs under a 10 second timeout, so a
// running row this old has lost its worker.
const LeaseTimeout = 5 * time.Minute

// ErrEmptyChunkID rejects jobs that would be unprocessable from the start.
var ErrEmptyChunkID = errors.New("job chunk id must not be empty")

// Job is one unit of extraction work.
type Job struct {
	ID          uuid.UUID
	Type        string
	ChunkID     string
	ChunkText   string
	Status      string
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LastError   string
}

// Querier is the database surface the queue needs. Both *pgxpool.Pool and
// pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queue manages extraction jobs.
//
// Queue is safe for concurrent use by multiple goroutines.
type Queue struct {
	db          Querier
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// NewQueue creates a Queue. Zero maxAttempts or baseDelay fall back to the
// package defaults; a nil logger uses slog.Default().
func NewQueue(db Querier, maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{db: db, maxAttempts: maxAttempts, baseDelay: baseDelay, logger: logger}
}

// Enqueue schedules one job, runnable immediately.
func (q *Queue) Enqueue(ctx context.Context, jobType, chunkID, chunkText string) error {
	if chunkID == "" {
		return ErrEmptyChunkID
	}

	_, err := q.db.Exec(ctx, `
INSERT INTO extraction_jobs (id, job_type, chunk_id, chunk_text, status, attempts, max_attempts, run_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, now())`,
		uuid.New(), jobType, chunkID, chunkText, StatusPending, q.maxAttempts)
	if err != nil {
		return fmt.Errorf("enqueue %s job for chunk %q: %w", jobType, chunkID, err)
	}
	return nil
}

// EnqueueChunkExtraction schedules the full extraction set for a chunk:
// one relationship job and one entity job.
func (q *Queue) EnqueueChunkExtraction(ctx context.Context, chunkID, chunkText string) error {
	if err := q.Enqueue(ctx, JobTypeRelationship, chunkID, chunkText); err != nil {
		return err
	}
	return q.Enqueue(ctx, JobTypeEntity, chunkID, chunkText)
}

// Claim atomically takes up to n due pending jobs, marking them running.
// SKIP LOCKED makes concurrent claimers pass over each other's rows
// instead of blocking, so two workers never receive the same job while
// both hold their claim.
func (q *Queue) Claim(ctx context.Context, n int) ([]Job, error) {
	rows, err := q.db.Query(ctx, `
UPDATE extraction_jobs
SET status = $1, updated_at = now()
WHERE id IN (
    SELECT id FROM extraction_jobs
    WHERE status = $2 AND run_at <= now()
    ORDER BY run_at
    LIMIT $3
    FOR UPDATE SKIP LOCKED)
RETURNING id, job_type, chunk_id, chunk_text, status, attempts, max_attempts, run_at, COALESCE(last_error, '')`,
		StatusRunning, StatusPending, n)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Type, &j.ChunkID, &j.ChunkText,
			&j.Status, &j.Attempts, &j.MaxAttempts, &j.RunAt, &j.LastError); err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed jobs: %w", err)
	}
	return jobs, nil
}

// Complete removes a finished job. Deletion rather than a done status
// keeps the table sized by outstanding work, not by history.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) error {
	if _, err := q.db.Exec(ctx,
		`DELETE FROM extraction_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// Fail records a failed attempt. While attempts remain the job returns to
// pending with exponential backoff; the attempt that exhausts the budget
// parks it as failed, retained for inspection and manual requeue.
func (q *Queue) Fail(ctx context.Context, job Job, jobErr error) error {
	delay := Backoff(q.baseDelay, job.Attempts)
	attempts := job.Attempts + 1

	status := StatusPending
	if attempts >= job.MaxAttempts {
		status = StatusFailed
	}

	_, err := q.db.Exec(ctx, `
UPDATE extraction_jobs
SET status = $2, attempts = $3, run_at = now() + $4, last_error = $5, updated_at = now()
WHERE id = $1`,
		job.ID, status, attempts, delay, jobErr.Error())
	if err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}

	if status == StatusFailed {
		q.logger.Warn("job exhausted attempts",
			"job_id", job.ID, "job_type", job.Type,
			"chunk_id", job.ChunkID, "error", jobErr)
	} else {
		q.logger.Debug("job rescheduled",
			"job_id", job.ID, "attempt", attempts, "delay", delay)
	}
	return nil
}

// ReclaimStale returns abandoned running jobs to the retry schedule. A
// worker that dies between claim and settlement leaves its job in
// running; once the claim is older than LeaseTimeout the job becomes
// claimable again. The lost lease counts as one attempt, so a job that
// keeps taking its worker down parks as failed instead of looping
// forever.
func (q *Queue) ReclaimStale(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, `
UPDATE extraction_jobs
SET status = CASE WHEN attempts + 1 >= max_attempts THEN $1 ELSE $2 END,
    attempts = attempts + 1,
    run_at = now(),
    last_error = $3,
    updated_at = now()
WHERE status = $4 AND updated_at <= now() - $5`,
		StatusFailed, StatusPending, "worker lease expired", StatusRunning, LeaseTimeout)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		q.logger.Warn("reclaimed abandoned jobs", "count", n)
		return n, nil
	}
	return 0, nil
}

// RequeueFailed returns parked failed jobs to pending with a fresh attempt
// budget. Used by operators after fixing the underlying fault.
func (q *Queue) RequeueFailed(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, `
UPDATE extraction_jobs
SET status = $1, attempts = 0, run_at = now(), last_error = NULL, updated_at = now()
WHERE status = $2`,
		StatusPending, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("requeue failed jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PendingCount reports how many jobs are waiting or parked, by status.
func (q *Queue) PendingCount(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.Query(ctx,
		`SELECT status, count(*) FROM extraction_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job counts: %w", err)
	}
	return counts, nil
}

// Backoff returns the delay before retry number attempts+1: the base delay
// doubled once per prior attempt. The schedule is a pure function of the
// persisted attempt counter, so a restarted worker computes the same
// delays as the one that crashed.
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// Cap the shift so a corrupt attempt counter cannot overflow.
	if attempts > 16 {
		attempts = 16
	}
	return base << attempts
}
