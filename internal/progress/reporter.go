package progress

import (
	"context"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// EnvJobID is set by the worker on every subprocess it spawns.
const EnvJobID = "BATCH_JOB_ID"

// Updater persists progress for a job. Implemented by queue.Queue.
type Updater interface {
	UpdateProgress(ctx context.Context, id int64, message string, percentage *int) error
}

// Reporter writes best-effort progress updates for one job. With no job id
// it silently does nothing, so the engines double as standalone CLIs without
// any queue wiring.
type Reporter struct {
	updater Updater
	jobID   int64
	log     *zap.SugaredLogger
}

// ResolveJobID picks the job id using explicit argument, then CLI flag
// value, then the environment. Zero means "not running under the worker".
func ResolveJobID(explicit int64, flagValue string) int64 {
	if explicit > 0 {
		return explicit
	}
	if flagValue != "" {
		if id, err := strconv.ParseInt(flagValue, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	if v := os.Getenv(EnvJobID); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}

// New builds a reporter. A nil updater or zero job id yields a no-op reporter.
func New(updater Updater, jobID int64, log *zap.SugaredLogger) *Reporter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reporter{updater: updater, jobID: jobID, log: log}
}

// Enabled reports whether updates will be persisted.
func (r *Reporter) Enabled() bool {
	return r != nil && r.updater != nil && r.jobID > 0
}

// Report stores a message with a percentage. Failures are logged and
// swallowed; progress must never fail a run.
func (r *Reporter) Report(ctx context.Context, message string, percentage int) {
	r.report(ctx, message, &percentage)
}

// ReportMessage stores a message without touching the percentage column.
func (r *Reporter) ReportMessage(ctx context.Context, message string) {
	r.report(ctx, message, nil)
}

func (r *Reporter) report(ctx context.Context, message string, percentage *int) {
	if !r.Enabled() {
		return
	}
	if err := r.updater.UpdateProgress(ctx, r.jobID, message, percentage); err != nil {
		r.log.Warnw("progress update failed", "job_id", r.jobID, "error", err)
	}
}
