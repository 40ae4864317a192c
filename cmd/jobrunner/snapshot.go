package main

import (
	"context"
	gosync "sync"
	"time"

	"hubsync/internal/models"
	"hubsync/internal/store"
)

// recordingStore passes writes through to Postgres while keeping the
// batch payloads in memory, so a successful run can be archived as the
// exact rows it stored. Row-at-a-time writers (achievements, profit) are
// recorded as counters.
type recordingStore struct {
	*store.Store

	mu       gosync.Mutex
	payloads map[string]any
	counters map[string]int
}

func newRecordingStore(st *store.Store) *recordingStore {
	return &recordingStore{
		Store:    st,
		payloads: make(map[string]any),
		counters: make(map[string]int),
	}
}

func (r *recordingStore) record(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads[key] = value
}

func (r *recordingStore) count(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key]++
}

// snapshot returns everything recorded during the run.
func (r *recordingStore) snapshot() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(r.payloads)+1)
	for k, v := range r.payloads {
		out[k] = v
	}
	if len(r.counters) > 0 {
		counts := make(map[string]int, len(r.counters))
		for k, v := range r.counters {
			counts[k] = v
		}
		out["write_counts"] = counts
	}
	return out
}

func (r *recordingStore) ReplacePhaseSummary(ctx context.Context, aggregationDate time.Time, periodType string, rows []models.PhaseSummaryRow) error {
	if err := r.Store.ReplacePhaseSummary(ctx, aggregationDate, periodType, rows); err != nil {
		return err
	}
	r.record("phase_summary", rows)
	return nil
}

func (r *recordingStore) ReplaceScoringSummary(ctx context.Context, aggregationDate time.Time, rows []models.ScoringSummaryRow) error {
	if err := r.Store.ReplaceScoringSummary(ctx, aggregationDate, rows); err != nil {
		return err
	}
	r.record("scoring_summary", rows)
	return nil
}

func (r *recordingStore) ReplaceStageSummary(ctx context.Context, aggregationDate time.Time, rows []models.PropertyStageRow, ownerRows []models.OwnerPropertyStageRow) error {
	if err := r.Store.ReplaceStageSummary(ctx, aggregationDate, rows, ownerRows); err != nil {
		return err
	}
	r.record("stage_summary", rows)
	r.record("owner_stage_summary", ownerRows)
	return nil
}

func (r *recordingStore) UpsertPurchaseSummary(ctx context.Context, rows []models.PeriodSummaryRow) error {
	if err := r.Store.UpsertPurchaseSummary(ctx, rows); err != nil {
		return err
	}
	r.record("purchase_summary", rows)
	return nil
}

func (r *recordingStore) UpsertSalesSummary(ctx context.Context, rows []models.PeriodSummaryRow) error {
	if err := r.Store.UpsertSalesSummary(ctx, rows); err != nil {
		return err
	}
	r.record("sales_summary", rows)
	return nil
}

func (r *recordingStore) UpsertAchievement(ctx context.Context, a models.PurchaseAchievement) error {
	if err := r.Store.UpsertAchievement(ctx, a); err != nil {
		return err
	}
	r.count("achievements_upserted")
	return nil
}

func (r *recordingStore) UpdateAchievementFromSync(ctx context.Context, bukkenID string, a models.PurchaseAchievement) error {
	if err := r.Store.UpdateAchievementFromSync(ctx, bukkenID, a); err != nil {
		return err
	}
	r.count("achievements_updated")
	return nil
}

func (r *recordingStore) CreateProfit(ctx context.Context, rec models.ProfitRecord) (int64, error) {
	id, err := r.Store.CreateProfit(ctx, rec)
	if err != nil {
		return 0, err
	}
	r.count("profit_created")
	return id, nil
}

func (r *recordingStore) UpdateProfitFromSync(ctx context.Context, seqNo int64, rec models.ProfitRecord) error {
	if err := r.Store.UpdateProfitFromSync(ctx, seqNo, rec); err != nil {
		return err
	}
	r.count("profit_updated")
	return nil
}
