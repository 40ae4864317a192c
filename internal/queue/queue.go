package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"hubsync/internal/models"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("job not found")

// Queue is the Postgres-backed batch job queue. The batch_jobs table is the
// single source of truth; claiming relies on row locks, so any number of
// producers can enqueue while one worker consumes.
type Queue struct {
	pool *pgxpool.Pool
}

// New builds a queue over an existing pool.
func New(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// Enqueue inserts a pending job. Unknown job types are rejected against the
// registry before anything is written.
func (q *Queue) Enqueue(ctx context.Context, jobType string, priority, maxRetries int) (models.Job, error) {
	if _, ok := Lookup(jobType); !ok {
		return models.Job{}, fmt.Errorf("unknown job type %q", jobType)
	}

	row := q.pool.QueryRow(ctx, `
		INSERT INTO batch_jobs (job_type, status, priority, max_retries)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, jobType, models.StatusPending, priority, maxRetries)

	job := models.Job{
		JobType:    jobType,
		Status:     models.StatusPending,
		Priority:   priority,
		MaxRetries: maxRetries,
	}
	if err := row.Scan(&job.ID, &job.CreatedAt); err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// ClaimNext atomically picks the highest-priority oldest pending job and
// marks it running. The SELECT takes a row lock so concurrent claimers can
// never hand out the same job twice.
func (q *Queue) ClaimNext(ctx context.Context) (models.Job, bool, error) {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Job{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	var id int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM batch_jobs
		WHERE status = $1
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, models.StatusPending).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("select pending job: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE batch_jobs SET status = $2, started_at = NOW() WHERE id = $1
	`, id, models.StatusRunning)
	if err != nil {
		return models.Job{}, false, fmt.Errorf("mark running: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Job{}, false, fmt.Errorf("commit claim: %w", err)
	}

	job, err := q.Get(ctx, id)
	if err != nil {
		return models.Job{}, false, err
	}
	return job, true, nil
}

// IsStopRequested reads the stop flag for a running job.
func (q *Queue) IsStopRequested(ctx context.Context, id int64) (bool, error) {
	var stop bool
	err := q.pool.QueryRow(ctx, `
		SELECT stop_requested FROM batch_jobs WHERE id = $1
	`, id).Scan(&stop)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("query stop flag: %w", err)
	}
	return stop, nil
}

// RequestStop raises the stop flag on a pending or running job.
func (q *Queue) RequestStop(ctx context.Context, id int64) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE batch_jobs SET stop_requested = TRUE
		WHERE id = $1 AND status IN ($2, $3)
	`, id, models.StatusPending, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("request stop: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a job, stamping completed_at for terminal states.
func (q *Queue) UpdateStatus(ctx context.Context, id int64, status string, errorMessage *string) error {
	var err error
	if status == models.StatusCompleted || status == models.StatusFailed {
		_, err = q.pool.Exec(ctx, `
			UPDATE batch_jobs SET status = $2, error_message = $3, completed_at = NOW()
			WHERE id = $1
		`, id, status, errorMessage)
	} else {
		_, err = q.pool.Exec(ctx, `
			UPDATE batch_jobs SET status = $2, error_message = $3 WHERE id = $1
		`, id, status, errorMessage)
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// UpdateProgress stores a progress message and an optional percentage,
// clamped to 0-100.
func (q *Queue) UpdateProgress(ctx context.Context, id int64, message string, percentage *int) error {
	if percentage != nil {
		p := *percentage
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		percentage = &p
	}
	_, err := q.pool.Exec(ctx, `
		UPDATE batch_jobs SET progress_message = $2, progress_percentage = $3
		WHERE id = $1
	`, id, message, percentage)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// RequeueForRetry returns a failed run to pending and bumps retry_count.
func (q *Queue) RequeueForRetry(ctx context.Context, id int64, errorMessage string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE batch_jobs
		SET status = $2, retry_count = retry_count + 1, error_message = $3, started_at = NULL
		WHERE id = $1
	`, id, models.StatusPending, errorMessage)
	if err != nil {
		return fmt.Errorf("requeue for retry: %w", err)
	}
	return nil
}

// ReapStale fails running jobs whose worker died without reporting back.
// Rows older than the cutoff cannot still be live because the worker kills
// any run that exceeds its timeout.
func (q *Queue) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	msg := "worker restarted while job was running"
	tag, err := q.pool.Exec(ctx, `
		UPDATE batch_jobs
		SET status = $1, error_message = $2, completed_at = NOW()
		WHERE status = $3 AND started_at < NOW() - $4::interval
	`, models.StatusFailed, msg, models.StatusRunning, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("reap stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Get fetches a job by id.
func (q *Queue) Get(ctx context.Context, id int64) (models.Job, error) {
	row := q.pool.QueryRow(ctx, `
		SELECT id, job_type, status, priority, retry_count, max_retries, stop_requested,
		       progress_message, progress_percentage, error_message,
		       created_at, started_at, completed_at
		FROM batch_jobs WHERE id = $1
	`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs, newest first.
func (q *Queue) List(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.pool.Query(ctx, `
		SELECT id, job_type, status, priority, retry_count, max_retries, stop_requested,
		       progress_message, progress_percentage, error_message,
		       created_at, started_at, completed_at
		FROM batch_jobs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// PendingCount reports the queue backlog for metrics.
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	if err := q.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM batch_jobs WHERE status = $1
	`, models.StatusPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var progressMsg, errorMsg pgtype.Text
	var progressPct pgtype.Int4
	var startedAt, completedAt pgtype.Timestamptz

	err := row.Scan(&job.ID, &job.JobType, &job.Status, &job.Priority, &job.RetryCount,
		&job.MaxRetries, &job.StopRequested, &progressMsg, &progressPct, &errorMsg,
		&job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return models.Job{}, err
	}

	if progressMsg.Valid {
		job.ProgressMessage = &progressMsg.String
	}
	if progressPct.Valid {
		v := int(progressPct.Int32)
		job.ProgressPercentage = &v
	}
	if errorMsg.Valid {
		job.ErrorMessage = &errorMsg.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}
