package store

import (
	"context"
	"fmt"
	"time"

	"hubsync/internal/models"
)

// ReplaceStageSummary swaps out one aggregation date of the property stage
// summary tables in a single transaction.
func (s *Store) ReplaceStageSummary(ctx context.Context, aggregationDate time.Time, rows []models.PropertyStageRow, ownerRows []models.OwnerPropertyStageRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM property_sales_stage_summary WHERE aggregation_date = $1
	`, aggregationDate)
	if err != nil {
		return fmt.Errorf("delete stage summary: %w", err)
	}
	_, err = tx.Exec(ctx, `
		DELETE FROM owner_property_sales_stage_summary WHERE aggregation_date = $1
	`, aggregationDate)
	if err != nil {
		return fmt.Errorf("delete owner stage summary: %w", err)
	}

	for _, r := range rows {
		dealIDs, err := jsonEnvelope(r.DealIDs)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO property_sales_stage_summary
			(aggregation_date, property_id, property_name, stage_id, stage_label, count, deal_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, aggregationDate, r.PropertyID, r.PropertyName, r.StageID, r.StageLabel, r.Count, dealIDs)
		if err != nil {
			return fmt.Errorf("insert stage summary row: %w", err)
		}
	}

	for _, r := range ownerRows {
		dealIDs, err := jsonEnvelope(r.DealIDs)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO owner_property_sales_stage_summary
			(aggregation_date, owner_id, owner_name, property_id, property_name, stage_id, stage_label, count, deal_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, aggregationDate, r.OwnerID, r.OwnerName, r.PropertyID, r.PropertyName, r.StageID, r.StageLabel, r.Count, dealIDs)
		if err != nil {
			return fmt.Errorf("insert owner stage summary row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetStageDealDetails attaches enriched deal details to one stage summary
// row. Called by the best-effort enrichment pass after the main save.
func (s *Store) SetStageDealDetails(ctx context.Context, aggregationDate time.Time, propertyName, stageID string, details []models.DealDetail) error {
	b, err := jsonEnvelope(details)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE property_sales_stage_summary
		SET deal_details = $4, updated_at = NOW()
		WHERE aggregation_date = $1 AND property_name = $2 AND stage_id = $3
	`, aggregationDate, propertyName, stageID, b)
	if err != nil {
		return fmt.Errorf("update stage deal details: %w", err)
	}
	return nil
}

// SetOwnerStageDealDetails is the per-owner variant of SetStageDealDetails.
func (s *Store) SetOwnerStageDealDetails(ctx context.Context, aggregationDate time.Time, ownerID, propertyName, stageID string, details []models.DealDetail) error {
	b, err := jsonEnvelope(details)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE owner_property_sales_stage_summary
		SET deal_details = $5, updated_at = NOW()
		WHERE aggregation_date = $1 AND owner_id = $2 AND property_name = $3 AND stage_id = $4
	`, aggregationDate, ownerID, propertyName, stageID, b)
	if err != nil {
		return fmt.Errorf("update owner stage deal details: %w", err)
	}
	return nil
}
