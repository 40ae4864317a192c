package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"hubsync/internal/models"
)

// GetProfitByPropertyID fetches a profit allocation row by bukken id.
func (s *Store) GetProfitByPropertyID(ctx context.Context, propertyID string) (models.ProfitRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT seq_no, property_id, property_name, property_type,
		       purchase_settlement_date, purchase_price::text,
		       sales_settlement_date, sales_price::text,
		       gross_profit::text, profit_confirmed, accounting_year_month
		FROM profit_management WHERE property_id = $1
	`, propertyID)

	var rec models.ProfitRecord
	var propertyType pgtype.Text
	var purchaseDate, salesDate, yearMonth pgtype.Date
	var purchasePrice, salesPrice, grossProfit pgtype.Text

	err := row.Scan(&rec.SeqNo, &rec.PropertyID, &rec.PropertyName, &propertyType,
		&purchaseDate, &purchasePrice, &salesDate, &salesPrice,
		&grossProfit, &rec.ProfitConfirmed, &yearMonth)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ProfitRecord{}, false, nil
	}
	if err != nil {
		return models.ProfitRecord{}, false, fmt.Errorf("scan profit record: %w", err)
	}

	rec.PropertyType = textPtr(propertyType)
	rec.PurchaseSettlementDate = datePtr(purchaseDate)
	rec.SalesSettlementDate = datePtr(salesDate)
	rec.AccountingYearMonth = datePtr(yearMonth)
	if rec.PurchasePrice, err = decimalPtr(purchasePrice); err != nil {
		return models.ProfitRecord{}, false, err
	}
	if rec.SalesPrice, err = decimalPtr(salesPrice); err != nil {
		return models.ProfitRecord{}, false, err
	}
	if rec.GrossProfit, err = decimalPtr(grossProfit); err != nil {
		return models.ProfitRecord{}, false, err
	}
	return rec, true, nil
}

// CreateProfit inserts a new profit allocation row and returns its seq_no.
func (s *Store) CreateProfit(ctx context.Context, rec models.ProfitRecord) (int64, error) {
	var seqNo int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO profit_management
		(property_id, property_name, property_type, purchase_settlement_date, purchase_price,
		 sales_settlement_date, sales_price, gross_profit, profit_confirmed, accounting_year_month)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq_no
	`, rec.PropertyID, rec.PropertyName, rec.PropertyType, rec.PurchaseSettlementDate,
		decimalArg(rec.PurchasePrice), rec.SalesSettlementDate, decimalArg(rec.SalesPrice),
		decimalArg(rec.GrossProfit), rec.ProfitConfirmed, rec.AccountingYearMonth).Scan(&seqNo)
	if err != nil {
		return 0, fmt.Errorf("insert profit record: %w", err)
	}
	return seqNo, nil
}

// UpdateProfitFromSync refreshes the CRM-sourced columns of a profit row.
// property_type and gross_profit are operator-edited and left untouched.
func (s *Store) UpdateProfitFromSync(ctx context.Context, seqNo int64, rec models.ProfitRecord) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE profit_management
		SET property_name = $2,
		    purchase_settlement_date = $3,
		    purchase_price = $4,
		    sales_settlement_date = $5,
		    sales_price = $6,
		    profit_confirmed = FALSE,
		    accounting_year_month = $7,
		    updated_at = NOW()
		WHERE seq_no = $1
	`, seqNo, rec.PropertyName, rec.PurchaseSettlementDate, decimalArg(rec.PurchasePrice),
		rec.SalesSettlementDate, decimalArg(rec.SalesPrice), rec.AccountingYearMonth)
	if err != nil {
		return fmt.Errorf("update profit record: %w", err)
	}
	return nil
}

// ListPropertyOwners returns the owner rows attached to a profit record.
func (s *Store) ListPropertyOwners(ctx context.Context, seqNo int64) ([]models.PropertyOwnerRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, profit_management_seq_no, property_id, owner_type, owner_id, owner_name,
		       settlement_date, price::text, profit_rate::text, profit_amount::text
		FROM property_owners WHERE profit_management_seq_no = $1
	`, seqNo)
	if err != nil {
		return nil, fmt.Errorf("query property owners: %w", err)
	}
	defer rows.Close()

	var out []models.PropertyOwnerRow
	for rows.Next() {
		var o models.PropertyOwnerRow
		var settlement pgtype.Date
		var price, rate, amount pgtype.Text
		if err := rows.Scan(&o.ID, &o.ProfitSeqNo, &o.PropertyID, &o.OwnerType, &o.OwnerID,
			&o.OwnerName, &settlement, &price, &rate, &amount); err != nil {
			return nil, fmt.Errorf("scan property owner: %w", err)
		}
		o.SettlementDate = datePtr(settlement)
		if o.Price, err = decimalPtr(price); err != nil {
			return nil, err
		}
		if o.ProfitRate, err = decimalPtr(rate); err != nil {
			return nil, err
		}
		if o.ProfitAmount, err = decimalPtr(amount); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CreatePropertyOwner inserts an owner row for a profit record.
func (s *Store) CreatePropertyOwner(ctx context.Context, o models.PropertyOwnerRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO property_owners
		(profit_management_seq_no, property_id, owner_type, owner_id, owner_name,
		 settlement_date, price, profit_rate, profit_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, o.ProfitSeqNo, o.PropertyID, o.OwnerType, o.OwnerID, o.OwnerName,
		o.SettlementDate, decimalArg(o.Price), decimalArg(o.ProfitRate), decimalArg(o.ProfitAmount))
	if err != nil {
		return fmt.Errorf("insert property owner: %w", err)
	}
	return nil
}

// UpdatePropertyOwnerFromSync refreshes CRM-sourced owner columns, keeping
// the operator-entered profit_rate and profit_amount.
func (s *Store) UpdatePropertyOwnerFromSync(ctx context.Context, id int64, o models.PropertyOwnerRow) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE property_owners
		SET owner_name = $2, settlement_date = $3, price = $4, updated_at = NOW()
		WHERE id = $1
	`, id, o.OwnerName, o.SettlementDate, decimalArg(o.Price))
	if err != nil {
		return fmt.Errorf("update property owner: %w", err)
	}
	return nil
}
