package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hubsync/internal/archive"
	"hubsync/internal/config"
	"hubsync/internal/hubspot"
	"hubsync/internal/models"
	"hubsync/internal/progress"
	"hubsync/internal/queue"
	"hubsync/internal/ratelimit"
	"hubsync/internal/store"
	"hubsync/internal/sync"
)

// jobrunner executes exactly one registered aggregation and exits. The
// worker spawns it per claimed job; run by hand it doubles as a CLI for
// any job key.
func main() {
	jobIDFlag := flag.String("batch-job-id", "", "batch job id to report progress against")
	flag.Parse()

	jobKey := flag.Arg(0)
	if jobKey == "" {
		jobKey = os.Getenv("BATCH_JOB_TYPE")
	}
	def, ok := queue.Lookup(jobKey)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown job key %q\n", jobKey)
		os.Exit(2)
	}

	cfg := config.Load()
	log, closeLog, err := newLogger(cfg.LogDir, def.Key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, def, *jobIDFlag, log); err != nil {
		log.Errorw("job failed", "job_key", def.Key, "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg config.Config, def queue.Definition, jobIDFlag string, log *zap.SugaredLogger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Warnw("termination signal, cancelling run")
		cancel()
	}()

	if cfg.HubspotToken == "" {
		return fmt.Errorf("HUBSPOT_ACCESS_TOKEN is not set")
	}

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer st.Close()
	q := queue.New(st.Pool())

	jobID := progress.ResolveJobID(0, jobIDFlag)
	reporter := progress.New(q, jobID, log)

	limiter := ratelimit.NewTokenBucket(redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}), cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	crm := hubspot.NewClient(cfg.HubspotToken,
		hubspot.WithLimiter(limiter),
		hubspot.WithLogger(log),
	)

	arch, err := archive.New(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix, log)
	if err != nil {
		log.Warnw("archive disabled", "error", err)
	}
	rec := newRecordingStore(st)

	engine, err := buildEngine(cfg, def.Key, crm, rec, reporter, log)
	if err != nil {
		return err
	}

	log.Infow("job starting", "job_key", def.Key, "job_id", jobID)
	started := time.Now()
	if err := engine(ctx); err != nil {
		return err
	}
	log.Infow("job finished", "job_key", def.Key, "duration", time.Since(started))

	arch.Store(ctx, def.Key, rec.snapshot())
	return nil
}

// buildEngine maps a job key onto a configured engine run function.
func buildEngine(cfg config.Config, key string, crm sync.CRM, rec *recordingStore, reporter *progress.Reporter, log *zap.SugaredLogger) (func(context.Context) error, error) {
	switch key {
	case "contact-phase-summary":
		e := sync.NewPhaseSummaryEngine(sync.PhaseSummaryConfig{
			PeriodType:   models.PeriodWeekly,
			TargetOwners: cfg.TargetOwners,
		}, crm, rec, reporter, log)
		return e.Run, nil

	case "contact-phase-summary-monthly":
		e := sync.NewPhaseSummaryEngine(sync.PhaseSummaryConfig{
			PeriodType:   models.PeriodMonthly,
			TargetOwners: cfg.TargetOwners,
		}, crm, rec, reporter, log)
		return e.Run, nil

	case "contact-scoring-summary":
		e := sync.NewScoringSummaryEngine(sync.ScoringConfig{
			TargetOwners:        cfg.TargetOwners,
			IncludeCompanyNames: true,
		}, crm, rec, reporter, log)
		return e.Run, nil

	case "purchase-achievements":
		e := sync.NewAchievementEngine(sync.AchievementConfig{
			PurchasePipelineID: cfg.PurchasePipelineID,
			BukkenObjectType:   cfg.BukkenObjectType,
		}, crm, rec, reporter, log)
		return e.Run, nil

	case "profit-management":
		e := sync.NewProfitEngine(sync.ProfitConfig{
			PurchasePipelineID: cfg.PurchasePipelineID,
			SalesPipelineID:    cfg.SalesPipelineID,
			BukkenObjectType:   cfg.BukkenObjectType,
		}, crm, rec, reporter, log)
		return e.Run, nil

	case "property-sales-stage-summary":
		e := sync.NewStageSummaryEngine(sync.StageSummaryConfig{
			SalesPipelineID: cfg.SalesPipelineID,
			HiddenOwners:    cfg.HiddenOwners,
			PortalID:        cfg.HubspotPortalID,
		}, crm, rec, reporter, log)
		return e.Run, nil

	case "purchase-summary":
		e := sync.NewPeriodSummaryEngine(sync.PeriodSummaryConfig{
			Variant:      sync.VariantPurchase,
			PipelineID:   cfg.PurchasePipelineID,
			HiddenOwners: cfg.HiddenOwners,
			BottomOwners: cfg.BottomOwners,
			PortalID:     cfg.HubspotPortalID,
		}, crm, rec, reporter, log)
		return e.Run, nil

	case "sales-summary":
		e := sync.NewPeriodSummaryEngine(sync.PeriodSummaryConfig{
			Variant:            sync.VariantSales,
			PipelineID:         cfg.SalesPipelineID,
			HiddenOwners:       cfg.HiddenOwners,
			BottomOwners:       cfg.BottomOwners,
			PortalID:           cfg.HubspotPortalID,
			IncludeDealDetails: true,
		}, crm, rec, reporter, log)
		return e.Run, nil
	}
	return nil, fmt.Errorf("no engine wired for job key %q", key)
}

// newLogger tees structured logs to stderr and a per-job-type file.
func newLogger(logDir, jobKey string) (*zap.SugaredLogger, func(), error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), zapcore.InfoLevel),
	}
	closeLog := func() {}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(logDir, jobKey+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel))
		closeLog = func() { _ = f.Close() }
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger.Sugar(), func() {
		_ = logger.Sync()
		closeLog()
	}, nil
}
