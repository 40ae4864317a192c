package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hubsync/internal/config"
	"hubsync/internal/queue"
	"hubsync/internal/store"
	"hubsync/internal/telemetry"
)

// enqueueall is the cron entrypoint. Run once a day: daily jobs are
// enqueued every run, weekly jobs on Mondays, monthly jobs on the 1st.
func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalw("connect postgres", "error", err)
	}
	defer st.Close()

	q := queue.New(st.Pool())
	defs := dueDefinitions(time.Now().UTC())
	for _, def := range defs {
		job, err := q.Enqueue(ctx, def.Key, def.Priority, def.MaxRetries)
		if err != nil {
			log.Errorw("enqueue failed", "job_key", def.Key, "error", err)
			continue
		}
		telemetry.EnqueueCounter.Inc()
		log.Infow("job enqueued", "job_id", job.ID, "job_key", def.Key, "cadence", def.Cadence)
	}
	log.Infow("enqueue run complete", "jobs", len(defs))
}

// dueDefinitions picks which cadences fire today.
func dueDefinitions(now time.Time) []queue.Definition {
	defs := queue.ByCadence(queue.CadenceDaily)
	if now.Weekday() == time.Monday {
		defs = append(defs, queue.ByCadence(queue.CadenceWeekly)...)
	}
	if now.Day() == 1 {
		defs = append(defs, queue.ByCadence(queue.CadenceMonthly)...)
	}
	return defs
}
