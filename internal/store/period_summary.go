package store

import (
	"context"
	"encoding/json"
	"fmt"

	"hubsync/internal/models"
)

// UpsertPurchaseSummary writes owner x month purchase summary rows, keyed by
// (aggregation_year, owner_id, month).
func (s *Store) UpsertPurchaseSummary(ctx context.Context, rows []models.PeriodSummaryRow) error {
	return s.upsertPeriodSummary(ctx, "purchase_summary", rows)
}

// UpsertSalesSummary writes owner x month sales summary rows.
func (s *Store) UpsertSalesSummary(ctx context.Context, rows []models.PeriodSummaryRow) error {
	return s.upsertPeriodSummary(ctx, "sales_summary", rows)
}

func (s *Store) upsertPeriodSummary(ctx context.Context, table string, rows []models.PeriodSummaryRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO %s
		(aggregation_year, owner_id, owner_name, month, total_deals, stage_breakdown, monthly_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (aggregation_year, owner_id, month) DO UPDATE SET
			owner_name = EXCLUDED.owner_name,
			total_deals = EXCLUDED.total_deals,
			stage_breakdown = EXCLUDED.stage_breakdown,
			monthly_data = EXCLUDED.monthly_data,
			updated_at = NOW()
	`, table)

	for _, r := range rows {
		breakdown, err := json.Marshal(r.Activity.StageBreakdown)
		if err != nil {
			return fmt.Errorf("marshal stage breakdown: %w", err)
		}
		monthly, err := json.Marshal(models.Envelope{SchemaVersion: models.SchemaVersion, Items: r.Activity})
		if err != nil {
			return fmt.Errorf("marshal monthly data: %w", err)
		}
		_, err = tx.Exec(ctx, query, r.AggregationYear, r.OwnerID, r.OwnerName, r.Month,
			r.Activity.TotalDeals, breakdown, monthly)
		if err != nil {
			return fmt.Errorf("upsert %s row: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
