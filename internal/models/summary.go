package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion tags the JSON side columns so readers can evolve safely.
const SchemaVersion = 1

// Envelope wraps a JSON side column with its schema version.
type Envelope struct {
	SchemaVersion int `json:"schema_version"`
	Items         any `json:"items"`
}

// PhaseSummaryRow is one owner x buy-phase x sell-phase bucket for a
// single aggregation partition.
type PhaseSummaryRow struct {
	AggregationDate time.Time `json:"aggregation_date"`
	PeriodType      string    `json:"period_type"`
	OwnerName       string    `json:"owner_name"`
	BuyPhase        string    `json:"buy_phase"`
	SellPhase       string    `json:"sell_phase"`
	Count           int       `json:"count"`
}

// Period types for contact phase summaries.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// ContactRef identifies a contact inside a summary JSON column.
type ContactRef struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
}

// ScoringCounts carries the per-metric contact counts for one owner and pattern.
type ScoringCounts struct {
	Industry       int `json:"industry"`
	PropertyType   int `json:"property_type"`
	Area           int `json:"area"`
	AreaCategory   int `json:"area_category"`
	Gross          int `json:"gross"`
	AllFiveItems   int `json:"all_five_items"`
	TargetAudience int `json:"target_audience"`
}

// ScoringContacts mirrors ScoringCounts with the contributing contacts.
type ScoringContacts struct {
	Industry       []ContactRef `json:"industry,omitempty"`
	PropertyType   []ContactRef `json:"property_type,omitempty"`
	Area           []ContactRef `json:"area,omitempty"`
	AreaCategory   []ContactRef `json:"area_category,omitempty"`
	Gross          []ContactRef `json:"gross,omitempty"`
	AllFiveItems   []ContactRef `json:"all_five_items,omitempty"`
	TargetAudience []ContactRef `json:"target_audience,omitempty"`
}

// All returns the metric slices in column order. The slices share backing
// arrays with the struct fields, so element edits are visible through both.
func (c *ScoringContacts) All() [][]ContactRef {
	return [][]ContactRef{
		c.Industry,
		c.PropertyType,
		c.Area,
		c.AreaCategory,
		c.Gross,
		c.AllFiveItems,
		c.TargetAudience,
	}
}

// ScoringSummaryRow is one owner x pattern row for an aggregation date.
type ScoringSummaryRow struct {
	AggregationDate time.Time       `json:"aggregation_date"`
	OwnerID         string          `json:"owner_id"`
	OwnerName       string          `json:"owner_name"`
	PatternType     string          `json:"pattern_type"`
	Counts          ScoringCounts   `json:"counts"`
	Contacts        ScoringContacts `json:"contacts"`
}

// PurchaseAchievement mirrors the purchase_achievements table. Columns the
// operators edit by hand are pointers so an update can leave them alone.
type PurchaseAchievement struct {
	ID                 int64      `json:"id"`
	PropertyImageURL   *string    `json:"property_image_url,omitempty"`
	PurchaseDate       *time.Time `json:"purchase_date,omitempty"`
	Title              *string    `json:"title,omitempty"`
	PropertyName       *string    `json:"property_name,omitempty"`
	BuildingAge        *int       `json:"building_age,omitempty"`
	Structure          *string    `json:"structure,omitempty"`
	NearestStation     *string    `json:"nearest_station,omitempty"`
	Prefecture         *string    `json:"prefecture,omitempty"`
	City               *string    `json:"city,omitempty"`
	AddressDetail      *string    `json:"address_detail,omitempty"`
	HubspotBukkenID    string     `json:"hubspot_bukken_id"`
	BukkenCreatedDate  *time.Time `json:"hubspot_bukken_created_date,omitempty"`
	HubspotDealID      *string    `json:"hubspot_deal_id,omitempty"`
	IsPublic           bool       `json:"is_public"`
}

// Owner roles on a profit allocation.
const (
	OwnerTypePurchase = "purchase"
	OwnerTypeSales    = "sales"
)

// ProfitRecord is the per-property profit allocation row. Prices use
// fixed-point decimals; nil means the source had no value.
type ProfitRecord struct {
	SeqNo                  int64
	PropertyID             string
	PropertyName           string
	PropertyType           *string
	PurchaseSettlementDate *time.Time
	PurchasePrice          *decimal.Decimal
	SalesSettlementDate    *time.Time
	SalesPrice             *decimal.Decimal
	GrossProfit            *decimal.Decimal
	ProfitConfirmed        bool
	AccountingYearMonth    *time.Time
}

// PropertyOwnerRow is a purchase or sales owner attached to a profit record.
// ProfitRate and ProfitAmount are operator-entered and preserved on sync.
type PropertyOwnerRow struct {
	ID             int64
	ProfitSeqNo    int64
	PropertyID     string
	OwnerType      string
	OwnerID        string
	OwnerName      string
	SettlementDate *time.Time
	Price          *decimal.Decimal
	ProfitRate     *decimal.Decimal
	ProfitAmount   *decimal.Decimal
}

// DealDetail is the enriched deal record stored in JSON side columns.
type DealDetail struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Stage       string `json:"stage,omitempty"`
	OwnerID     string `json:"owner,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	ContactName string `json:"contact_name,omitempty"`
	CreatedDate string `json:"created_date,omitempty"`
	Link        string `json:"hubspot_link,omitempty"`
}

// PropertyStageRow is a property x stage bucket for one aggregation date.
type PropertyStageRow struct {
	AggregationDate time.Time
	PropertyID      string
	PropertyName    string
	StageID         string
	StageLabel      string
	Count           int
	DealIDs         []string
	DealDetails     []DealDetail
}

// OwnerPropertyStageRow is the per-owner variant of PropertyStageRow.
type OwnerPropertyStageRow struct {
	AggregationDate time.Time
	OwnerID         string
	OwnerName       string
	PropertyID      string
	PropertyName    string
	StageID         string
	StageLabel      string
	Count           int
	DealIDs         []string
	DealDetails     []DealDetail
}

// MonthActivity is the monthly_data JSON payload for the purchase and
// sales summaries.
type MonthActivity struct {
	TotalDeals         int                     `json:"total_deals"`
	StageBreakdown     map[string]int          `json:"stage_breakdown"`
	ItemCounts         map[string]int          `json:"item_counts,omitempty"`
	ApplicableDeals    int                     `json:"applicable_deals"`
	NotApplicableDeals int                     `json:"not_applicable_deals"`
	DealIDsByStage     map[string][]string     `json:"deal_ids_by_stage,omitempty"`
	DealIDsByItem      map[string][]string     `json:"deal_ids_by_item,omitempty"`
	DetailsByStage     map[string][]DealDetail `json:"deal_details_by_stage,omitempty"`
	DetailsByItem      map[string][]DealDetail `json:"deal_details_by_monthly_item,omitempty"`
}

// PeriodSummaryRow is one owner x month row for purchase_summary or
// sales_summary, keyed by aggregation year.
type PeriodSummaryRow struct {
	AggregationYear int
	OwnerID         string
	OwnerName       string
	Month           int
	Activity        MonthActivity
}
