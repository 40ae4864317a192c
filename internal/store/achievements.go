package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hubsync/internal/models"
)

// AchievementExists reports whether a purchase achievement already tracks
// the given bukken.
func (s *Store) AchievementExists(ctx context.Context, bukkenID string) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM purchase_achievements WHERE hubspot_bukken_id = $1
	`, bukkenID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query achievement: %w", err)
	}
	return true, nil
}

// UpdateAchievementFromSync refreshes the display columns the CRM owns on
// an existing achievement. Everything else, including purchase_date and
// the operator-managed fields, is left alone.
func (s *Store) UpdateAchievementFromSync(ctx context.Context, bukkenID string, a models.PurchaseAchievement) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE purchase_achievements SET
			property_name = $2,
			building_age = $3,
			nearest_station = $4,
			prefecture = $5,
			city = $6,
			address_detail = $7,
			updated_at = NOW()
		WHERE hubspot_bukken_id = $1
	`, bukkenID, a.PropertyName, a.BuildingAge, a.NearestStation, a.Prefecture, a.City, a.AddressDetail)
	if err != nil {
		return fmt.Errorf("update achievement: %w", err)
	}
	return nil
}

// UpsertAchievement inserts or refreshes a purchase achievement keyed by
// hubspot_bukken_id. The update path only touches columns sourced from the
// CRM; property_image_url and is_public are operator-managed.
func (s *Store) UpsertAchievement(ctx context.Context, a models.PurchaseAchievement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO purchase_achievements
		(purchase_date, title, property_name, building_age, structure, nearest_station,
		 prefecture, city, address_detail, hubspot_bukken_id, hubspot_bukken_created_date,
		 hubspot_deal_id, is_public, property_image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (hubspot_bukken_id) DO UPDATE SET
			purchase_date = EXCLUDED.purchase_date,
			title = EXCLUDED.title,
			property_name = EXCLUDED.property_name,
			building_age = EXCLUDED.building_age,
			structure = EXCLUDED.structure,
			nearest_station = EXCLUDED.nearest_station,
			prefecture = EXCLUDED.prefecture,
			city = EXCLUDED.city,
			address_detail = EXCLUDED.address_detail,
			hubspot_bukken_created_date = EXCLUDED.hubspot_bukken_created_date,
			hubspot_deal_id = EXCLUDED.hubspot_deal_id,
			updated_at = NOW()
	`, a.PurchaseDate, a.Title, a.PropertyName, a.BuildingAge, a.Structure, a.NearestStation,
		a.Prefecture, a.City, a.AddressDetail, a.HubspotBukkenID, a.BukkenCreatedDate,
		a.HubspotDealID, a.IsPublic, a.PropertyImageURL)
	if err != nil {
		return fmt.Errorf("upsert achievement: %w", err)
	}
	return nil
}
