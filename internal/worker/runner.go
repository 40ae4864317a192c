package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hubsync/internal/models"
	"hubsync/internal/progress"
	"hubsync/internal/telemetry"
)

// JobQueue is the queue surface the worker consumes. Implemented by
// queue.Queue.
type JobQueue interface {
	ClaimNext(ctx context.Context) (models.Job, bool, error)
	IsStopRequested(ctx context.Context, id int64) (bool, error)
	UpdateStatus(ctx context.Context, id int64, status string, errorMessage *string) error
	RequeueForRetry(ctx context.Context, id int64, errorMessage string) error
	ReapStale(ctx context.Context, olderThan time.Duration) (int64, error)
	PendingCount(ctx context.Context) (int64, error)
}

// RunHandle is one live jobrunner process.
type RunHandle interface {
	// Wait blocks until the process exits.
	Wait() error
	// Stop terminates the process: SIGTERM, then SIGKILL after the grace
	// period if it is still alive.
	Stop(grace time.Duration)
	// Output returns the tail of the captured stdout/stderr.
	Output() string
}

// Launcher starts the subprocess for a claimed job. Swappable for tests.
type Launcher interface {
	Launch(ctx context.Context, job models.Job) (RunHandle, error)
}

// Config tunes the worker loop.
type Config struct {
	PollInterval     time.Duration
	StopPollInterval time.Duration
	JobTimeout       time.Duration
	StopGrace        time.Duration
}

// Runner is the long-lived worker: it claims one job at a time and runs it
// in an isolated subprocess so a crashing aggregation can never take the
// worker down with it.
type Runner struct {
	cfg      Config
	queue    JobQueue
	launcher Launcher
	log      *zap.SugaredLogger
}

func New(cfg Config, q JobQueue, launcher Launcher, log *zap.SugaredLogger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.StopPollInterval <= 0 {
		cfg.StopPollInterval = 2 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Hour
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	return &Runner{cfg: cfg, queue: q, launcher: launcher, log: log}
}

// Run executes the claim loop until ctx is cancelled. On startup it fails
// any running rows left behind by a previous worker that died mid-job.
func (r *Runner) Run(ctx context.Context) error {
	reaped, err := r.queue.ReapStale(ctx, r.cfg.JobTimeout+r.cfg.StopGrace)
	if err != nil {
		return fmt.Errorf("reap stale jobs: %w", err)
	}
	if reaped > 0 {
		r.log.Warnw("failed orphaned running jobs from a previous worker", "count", reaped)
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r.drain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain claims and runs jobs until the queue is empty.
func (r *Runner) drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, ok, err := r.queue.ClaimNext(ctx)
		if err != nil {
			r.log.Errorw("claim failed", "error", err)
			return
		}
		if !ok {
			if pending, err := r.queue.PendingCount(ctx); err == nil {
				telemetry.PendingGauge.Set(float64(pending))
			}
			return
		}
		r.runJob(ctx, job)
	}
}

func (r *Runner) runJob(ctx context.Context, job models.Job) {
	log := r.log.With("job_id", job.ID, "job_type", job.JobType)
	log.Infow("running job", "attempt", job.RetryCount+1, "max_retries", job.MaxRetries)
	telemetry.RunningGauge.Inc()
	defer telemetry.RunningGauge.Dec()
	started := time.Now()

	handle, err := r.launcher.Launch(ctx, job)
	if err != nil {
		r.finish(ctx, job, log, fmt.Sprintf("start jobrunner: %v", err), false)
		return
	}

	done := make(chan error, 1)
	go func() { done <- handle.Wait() }()

	timeout := time.NewTimer(r.cfg.JobTimeout)
	defer timeout.Stop()
	watch := time.NewTicker(r.cfg.StopPollInterval)
	defer watch.Stop()

	for {
		select {
		case err := <-done:
			telemetry.RunDuration.Observe(time.Since(started).Seconds())
			if err == nil {
				log.Infow("job completed", "duration", time.Since(started))
				telemetry.JobsCompleted.Inc()
				_ = r.queue.UpdateStatus(ctx, job.ID, models.StatusCompleted, nil)
				return
			}
			msg := fmt.Sprintf("jobrunner exited: %v", err)
			if out := handle.Output(); out != "" {
				msg = fmt.Sprintf("%s\n%s", msg, out)
			}
			r.finish(ctx, job, log, msg, true)
			return

		case <-timeout.C:
			log.Warnw("job timed out, killing", "timeout", r.cfg.JobTimeout)
			handle.Stop(r.cfg.StopGrace)
			<-done
			telemetry.JobsTimedOut.Inc()
			r.finish(ctx, job, log, fmt.Sprintf("timed out after %s", r.cfg.JobTimeout), false)
			return

		case <-watch.C:
			stop, err := r.queue.IsStopRequested(ctx, job.ID)
			if err != nil {
				log.Warnw("stop flag check failed", "error", err)
				continue
			}
			if !stop {
				continue
			}
			log.Infow("stop requested, killing job")
			handle.Stop(r.cfg.StopGrace)
			<-done
			telemetry.JobsStopped.Inc()
			r.finish(ctx, job, log, "stopped by request", false)
			return

		case <-ctx.Done():
			log.Warnw("worker shutting down, killing job")
			handle.Stop(r.cfg.StopGrace)
			<-done
			r.finish(context.Background(), job, log, "worker shut down while job was running", true)
			return
		}
	}
}

// finish records a failed run: requeue while retries remain and the
// failure is retryable, terminal failed otherwise. Stop requests and
// timeouts are never retried.
func (r *Runner) finish(ctx context.Context, job models.Job, log *zap.SugaredLogger, message string, retryable bool) {
	if retryable && job.RetryCount < job.MaxRetries {
		log.Warnw("job failed, requeueing", "attempt", job.RetryCount+1, "error", message)
		telemetry.JobsRetried.Inc()
		if err := r.queue.RequeueForRetry(ctx, job.ID, message); err != nil {
			log.Errorw("requeue failed", "error", err)
		}
		return
	}
	log.Errorw("job failed", "error", message)
	telemetry.JobsFailed.Inc()
	if err := r.queue.UpdateStatus(ctx, job.ID, models.StatusFailed, &message); err != nil {
		log.Errorw("status update failed", "error", err)
	}
}

// ExecLauncher spawns the jobrunner binary with the job id in the
// environment, capturing output for the failure message.
type ExecLauncher struct {
	Path string
}

func (l *ExecLauncher) Launch(ctx context.Context, job models.Job) (RunHandle, error) {
	cmd := exec.Command(l.Path)
	cmd.Env = append(os.Environ(),
		progress.EnvJobID+"="+strconv.FormatInt(job.ID, 10),
		"BATCH_JOB_TYPE="+job.JobType,
	)
	out := newTailBuffer(4096)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execHandle{cmd: cmd, out: out}, nil
}

type execHandle struct {
	cmd *exec.Cmd
	out *tailBuffer
}

func (h *execHandle) Wait() error { return h.cmd.Wait() }

func (h *execHandle) Stop(grace time.Duration) {
	if h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Signal(syscall.SIGTERM)
	// Kill after the grace period; a no-op if the process already exited.
	time.AfterFunc(grace, func() {
		_ = h.cmd.Process.Kill()
	})
}

func (h *execHandle) Output() string { return h.out.String() }

// tailBuffer keeps the last n bytes written, so a chatty job cannot blow
// up error_message.
type tailBuffer struct {
	mu   sync.Mutex
	buf  []byte
	size int
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{size: size}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.size {
		b.buf = b.buf[len(b.buf)-b.size:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
