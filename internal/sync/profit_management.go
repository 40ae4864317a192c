package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hubsync/internal/hubspot"
	"hubsync/internal/models"
	"hubsync/internal/progress"
)

// ProfitConfig parameterizes the profit allocation sync.
type ProfitConfig struct {
	PurchasePipelineID string
	SalesPipelineID    string
	BukkenObjectType   string
}

// ProfitStore is the persistence the engine writes through.
type ProfitStore interface {
	GetProfitByPropertyID(ctx context.Context, propertyID string) (models.ProfitRecord, bool, error)
	CreateProfit(ctx context.Context, rec models.ProfitRecord) (int64, error)
	UpdateProfitFromSync(ctx context.Context, seqNo int64, rec models.ProfitRecord) error
	ListPropertyOwners(ctx context.Context, seqNo int64) ([]models.PropertyOwnerRow, error)
	CreatePropertyOwner(ctx context.Context, o models.PropertyOwnerRow) error
	UpdatePropertyOwnerFromSync(ctx context.Context, id int64, o models.PropertyOwnerRow) error
}

// ProfitEngine builds the profit allocation table from sales deals that
// have reached contract or settlement, joining in the linked bukken and
// its purchase deal. Rows an operator confirmed are never touched again.
type ProfitEngine struct {
	cfg      ProfitConfig
	crm      CRM
	store    ProfitStore
	progress *progress.Reporter
	log      *zap.SugaredLogger
	owners   *OwnerDirectory
}

func NewProfitEngine(cfg ProfitConfig, crm CRM, store ProfitStore, reporter *progress.Reporter, log *zap.SugaredLogger) *ProfitEngine {
	if cfg.BukkenObjectType == "" {
		cfg.BukkenObjectType = DefaultBukkenObjectType
	}
	return &ProfitEngine{cfg: cfg, crm: crm, store: store, progress: reporter, log: log}
}

// Run executes one sync.
func (e *ProfitEngine) Run(ctx context.Context) error {
	e.progress.Report(ctx, "loading reference data", 5)

	dir, err := NewOwnerDirectory(ctx, e.crm, e.log)
	if err != nil {
		return fmt.Errorf("load owners: %w", err)
	}
	e.owners = dir

	e.progress.Report(ctx, "fetching sales deals", 10)
	deals, err := e.salesDealsWithDates(ctx)
	if err != nil {
		return err
	}
	if len(deals) == 0 {
		e.log.Info("profit sync complete: no deals with settlement or contract date")
		e.progress.Report(ctx, "completed: 0 deals", 100)
		return nil
	}
	e.log.Infow("processing sales deals", "deals", len(deals))

	report := NewRunReport()
	for i, deal := range deals {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.processSalesDeal(ctx, deal, report); err != nil {
			e.log.Errorw("deal processing failed", "deal_id", deal.ID, "error", err)
			report.Skip("process_error")
		}
		if (i+1)%10 == 0 || i+1 == len(deals) {
			pct := 10 + (i+1)*85/len(deals)
			e.progress.Report(ctx, fmt.Sprintf("processing %d/%d deals", i+1, len(deals)), pct)
		}
	}

	e.log.Infow("profit sync complete", "report", report.String())
	e.progress.Report(ctx, "completed", 100)
	return nil
}

// salesDealsWithDates fetches every sales pipeline deal and keeps those
// with a settlement or contract date.
func (e *ProfitEngine) salesDealsWithDates(ctx context.Context) ([]hubspot.Object, error) {
	all, err := e.crm.SearchAll(ctx, "deals", hubspot.SearchRequest{
		FilterGroups: []hubspot.FilterGroup{{Filters: []hubspot.Filter{
			{PropertyName: "pipeline", Operator: "EQ", Value: e.cfg.SalesPipelineID},
		}}},
		Properties: []string{
			"dealname", "dealstage", "pipeline", "settlement_date", "contract_date",
			"hubspot_owner_id", "sales_sales_price", "research_purchase_price",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch sales deals: %w", err)
	}
	var out []hubspot.Object
	for _, deal := range all {
		if strings.TrimSpace(deal.Prop("settlement_date")) != "" || strings.TrimSpace(deal.Prop("contract_date")) != "" {
			out = append(out, deal)
		}
	}
	return out, nil
}

func (e *ProfitEngine) processSalesDeal(ctx context.Context, deal hubspot.Object, report *RunReport) error {
	bukken, ok, err := e.bukkenForDeal(ctx, deal.ID)
	if err != nil {
		return err
	}
	if !ok {
		report.Skip("no_bukken")
		return nil
	}

	salesSettlement := parseOptionalDate(deal.Prop("settlement_date"))
	salesContract := parseOptionalDate(deal.Prop("contract_date"))
	salesPrice := ParsePrice(deal.Prop("sales_sales_price"))
	salesOwnerID := deal.Prop("hubspot_owner_id")

	rec := models.ProfitRecord{
		PropertyID:          bukken.ID,
		PropertyName:        bukken.Prop("bukken_name"),
		SalesSettlementDate: salesSettlement,
		SalesPrice:          salesPrice,
		AccountingYearMonth: AccountingYearMonth(salesSettlement, salesContract),
	}

	purchase, hasPurchase, err := e.purchaseDealForBukken(ctx, bukken.ID)
	if err != nil {
		e.log.Warnw("purchase deal lookup failed", "bukken_id", bukken.ID, "error", err)
	}
	var purchaseOwnerID string
	if hasPurchase {
		rec.PurchaseSettlementDate = parseOptionalDate(purchase.Prop("settlement_date"))
		rec.PurchasePrice = ParsePrice(purchase.Prop("research_purchase_price"))
		purchaseOwnerID = purchase.Prop("hubspot_owner_id")
	}

	existing, found, err := e.store.GetProfitByPropertyID(ctx, bukken.ID)
	if err != nil {
		return err
	}

	var seqNo int64
	if found {
		if existing.ProfitConfirmed {
			e.log.Infow("profit confirmed, skipping", "property_id", bukken.ID)
			report.Skip("profit_confirmed")
			return nil
		}
		if err := e.store.UpdateProfitFromSync(ctx, existing.SeqNo, rec); err != nil {
			return err
		}
		seqNo = existing.SeqNo
	} else {
		if seqNo, err = e.store.CreateProfit(ctx, rec); err != nil {
			return err
		}
	}

	// Owner row failures do not fail the deal; the main record is saved.
	if err := e.saveOwnerRow(ctx, seqNo, bukken.ID, models.OwnerTypePurchase, purchaseOwnerID, rec.PurchaseSettlementDate, rec.PurchasePrice); err != nil {
		e.log.Warnw("purchase owner save failed", "property_id", bukken.ID, "error", err)
	}
	if err := e.saveOwnerRow(ctx, seqNo, bukken.ID, models.OwnerTypeSales, salesOwnerID, salesSettlement, salesPrice); err != nil {
		e.log.Warnw("sales owner save failed", "property_id", bukken.ID, "error", err)
	}

	report.Aggregate()
	return nil
}

func (e *ProfitEngine) bukkenForDeal(ctx context.Context, dealID string) (hubspot.Object, bool, error) {
	ids, err := e.crm.AssociatedIDs(ctx, "deals", dealID, e.cfg.BukkenObjectType)
	if err != nil {
		return hubspot.Object{}, false, fmt.Errorf("fetch bukken associations: %w", err)
	}
	if len(ids) == 0 {
		return hubspot.Object{}, false, nil
	}
	bukken, err := e.crm.GetObject(ctx, e.cfg.BukkenObjectType, ids[0], []string{"bukken_name"})
	if err != nil {
		return hubspot.Object{}, false, fmt.Errorf("fetch bukken %s: %w", ids[0], err)
	}
	return bukken, true, nil
}

// purchaseDealForBukken walks the bukken's deal associations and returns
// the first purchase pipeline deal.
func (e *ProfitEngine) purchaseDealForBukken(ctx context.Context, bukkenID string) (hubspot.Object, bool, error) {
	ids, err := e.crm.AssociatedIDs(ctx, e.cfg.BukkenObjectType, bukkenID, "deals")
	if err != nil {
		return hubspot.Object{}, false, err
	}
	if len(ids) == 0 {
		return hubspot.Object{}, false, nil
	}
	deals, err := e.crm.BatchRead(ctx, "deals", ids, []string{
		"pipeline", "settlement_date", "research_purchase_price", "hubspot_owner_id",
	})
	if err != nil {
		return hubspot.Object{}, false, err
	}
	for _, deal := range deals {
		if deal.Prop("pipeline") == e.cfg.PurchasePipelineID {
			return deal, true, nil
		}
	}
	return hubspot.Object{}, false, nil
}

// saveOwnerRow creates or refreshes one owner allocation row, keyed by
// (seq_no, owner_id, owner_type). profit_rate and profit_amount are
// operator-entered and survive updates.
func (e *ProfitEngine) saveOwnerRow(ctx context.Context, seqNo int64, propertyID, ownerType, ownerID string, settlement *time.Time, price *decimal.Decimal) error {
	if ownerID == "" {
		return nil
	}
	ownerName := e.owners.Name(ctx, ownerID)

	existing, err := e.store.ListPropertyOwners(ctx, seqNo)
	if err != nil {
		return err
	}
	for _, o := range existing {
		if o.OwnerID == ownerID && o.OwnerType == ownerType {
			if ownerName == "" {
				ownerName = o.OwnerName
			}
			return e.store.UpdatePropertyOwnerFromSync(ctx, o.ID, models.PropertyOwnerRow{
				OwnerName:      ownerName,
				SettlementDate: settlement,
				Price:          price,
			})
		}
	}
	return e.store.CreatePropertyOwner(ctx, models.PropertyOwnerRow{
		ProfitSeqNo:    seqNo,
		PropertyID:     propertyID,
		OwnerType:      ownerType,
		OwnerID:        ownerID,
		OwnerName:      ownerName,
		SettlementDate: settlement,
		Price:          price,
	})
}

// ParsePrice converts a CRM price string to a decimal. Thousands
// separators are tolerated; empty and malformed values map to nil.
func ParsePrice(raw string) *decimal.Decimal {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &d
}

// AccountingYearMonth derives the accounting month: first of the
// settlement month, else first of the contract month, else nil.
func AccountingYearMonth(settlement, contract *time.Time) *time.Time {
	switch {
	case settlement != nil:
		m := MonthStart(*settlement)
		return &m
	case contract != nil:
		m := MonthStart(*contract)
		return &m
	default:
		return nil
	}
}

// AllocateProfit computes an owner's share of the gross profit at the
// given percentage rate, rounded half up to the whole currency unit.
// The sync never calls it: profit rates are operator-entered after the
// fact and the stored amounts survive every sync untouched. It exists
// for the tooling that performs that allocation step.
func AllocateProfit(grossProfit, ratePercent decimal.Decimal) decimal.Decimal {
	return grossProfit.Mul(ratePercent).Div(decimal.NewFromInt(100)).Round(0)
}

func parseOptionalDate(raw string) *time.Time {
	if t, ok := ParseCRMDate(raw); ok {
		return &t
	}
	return nil
}
