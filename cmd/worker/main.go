package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"hubsync/internal/config"
	"hubsync/internal/queue"
	"hubsync/internal/store"
	"hubsync/internal/telemetry"
	"hubsync/internal/worker"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Info("shutting down")
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalw("connect postgres", "error", err)
	}
	defer st.Close()
	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalw("migrations", "error", err)
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Warnw("metrics server stopped", "error", err)
		}
	}()

	runner := worker.New(worker.Config{
		PollInterval:     cfg.WorkerPollInterval,
		StopPollInterval: cfg.StopPollInterval,
		JobTimeout:       cfg.JobTimeout,
	}, queue.New(st.Pool()), &worker.ExecLauncher{Path: cfg.JobRunnerPath}, log)

	log.Infow("worker started",
		"poll_interval", cfg.WorkerPollInterval,
		"job_timeout", cfg.JobTimeout,
		"jobrunner", cfg.JobRunnerPath,
	)
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalw("worker stopped", "error", err)
	}
}
