package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hubsync/internal/models"
)

// jsonEnvelope marshals a versioned JSON side column. Empty input maps to NULL.
func jsonEnvelope(items any) ([]byte, error) {
	switch v := items.(type) {
	case nil:
		return nil, nil
	case []models.ContactRef:
		if len(v) == 0 {
			return nil, nil
		}
	case []string:
		if len(v) == 0 {
			return nil, nil
		}
	case []models.DealDetail:
		if len(v) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(models.Envelope{SchemaVersion: models.SchemaVersion, Items: items})
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return b, nil
}

// ReplacePhaseSummary swaps out one aggregation partition of
// contact_phase_summary in a single transaction.
func (s *Store) ReplacePhaseSummary(ctx context.Context, aggregationDate time.Time, periodType string, rows []models.PhaseSummaryRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	_, err = tx.Exec(ctx, `
		DELETE FROM contact_phase_summary
		WHERE aggregation_date = $1 AND period_type = $2
	`, aggregationDate, periodType)
	if err != nil {
		return fmt.Errorf("delete phase summary: %w", err)
	}

	for _, r := range rows {
		_, err = tx.Exec(ctx, `
			INSERT INTO contact_phase_summary
			(aggregation_date, period_type, owner_name, buy_phase, sell_phase, count)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		`, aggregationDate, periodType, r.OwnerName, r.BuyPhase, r.SellPhase, r.Count)
		if err != nil {
			return fmt.Errorf("insert phase summary row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReplaceScoringSummary swaps out one aggregation date of
// contact_scoring_summary in a single transaction.
func (s *Store) ReplaceScoringSummary(ctx context.Context, aggregationDate time.Time, rows []models.ScoringSummaryRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM contact_scoring_summary WHERE aggregation_date = $1
	`, aggregationDate)
	if err != nil {
		return fmt.Errorf("delete scoring summary: %w", err)
	}

	for _, r := range rows {
		cols := [][]models.ContactRef{
			r.Contacts.Industry,
			r.Contacts.PropertyType,
			r.Contacts.Area,
			r.Contacts.AreaCategory,
			r.Contacts.Gross,
			r.Contacts.AllFiveItems,
			r.Contacts.TargetAudience,
		}
		jsonCols := make([]any, len(cols))
		for i, c := range cols {
			b, err := jsonEnvelope(c)
			if err != nil {
				return err
			}
			if b == nil {
				jsonCols[i] = nil
			} else {
				jsonCols[i] = b
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO contact_scoring_summary
			(aggregation_date, owner_id, owner_name, pattern_type,
			 industry_count, property_type_count, area_count, area_category_count,
			 gross_count, all_five_items_count, target_audience_count,
			 industry_contact_ids, property_type_contact_ids, area_contact_ids,
			 area_category_contact_ids, gross_contact_ids, all_five_items_contact_ids,
			 target_audience_contact_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`, aggregationDate, r.OwnerID, r.OwnerName, r.PatternType,
			r.Counts.Industry, r.Counts.PropertyType, r.Counts.Area, r.Counts.AreaCategory,
			r.Counts.Gross, r.Counts.AllFiveItems, r.Counts.TargetAudience,
			jsonCols[0], jsonCols[1], jsonCols[2], jsonCols[3], jsonCols[4], jsonCols[5], jsonCols[6])
		if err != nil {
			return fmt.Errorf("insert scoring summary row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
