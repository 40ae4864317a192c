package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"hubsync/internal/hubspot"
	"hubsync/internal/models"
	"hubsync/internal/progress"
)

// Period summary variants.
const (
	VariantPurchase = "purchase"
	VariantSales    = "sales"
)

// UnknownStageLabel buckets deals whose stage id is not in the pipeline
// anymore.
const UnknownStageLabel = "不明"

// Stage breakdown key counting every deal of the month.
const totalStageKey = "全体"

// monthlyItem binds a date property to the item counter it feeds. The
// probability property names are swapped relative to their labels in the
// CRM schema, so the mapping preserves that swap.
type monthlyItem struct {
	key      string
	label    string
	property string
}

var purchaseMonthlyItems = []monthlyItem{
	{key: "bukken_created", label: "当月情報登録", property: "bukken_created"},
	{key: "survey_review", label: "当月調査/検討", property: "deal_survey_review_date"},
	{key: "purchase", label: "当月買付提出", property: "research_purchase_price_date"},
	{key: "probability_b", label: "当月見込み確度B", property: "deal_probability_a_date"},
	{key: "probability_a", label: "当月見込み確度A", property: "deal_probability_b_date"},
	{key: "farewell", label: "当月見送り", property: "deal_farewell_date"},
	{key: "lost", label: "当月失注", property: "deal_lost_date"},
	{key: "contract", label: "当月契約", property: "contract_date"},
	{key: "settlement", label: "当月決済", property: "settlement_date"},
}

var salesMonthlyItems = []monthlyItem{
	{key: "introduction", label: "当月物件紹介", property: "introduction_datetime"},
	{key: "disclosure", label: "当月資料開示", property: "deal_disclosure_date"},
	{key: "survey_review", label: "当月調査/検討", property: "deal_survey_review_date"},
	{key: "purchase", label: "当月買付取得", property: "purchase_date"},
	{key: "probability_b", label: "当月見込み確度B", property: "deal_probability_a_date"},
	{key: "probability_a", label: "当月見込み確度A", property: "deal_probability_b_date"},
	{key: "farewell", label: "当月見送り", property: "deal_farewell_date"},
	{key: "lost", label: "当月失注", property: "deal_lost_date"},
	{key: "contract", label: "当月契約", property: "contract_date"},
	{key: "settlement", label: "当月決済", property: "settlement_date"},
}

// PeriodSummaryConfig parameterizes the purchase and sales summary
// engines.
type PeriodSummaryConfig struct {
	Variant      string
	PipelineID   string
	HiddenOwners []string
	BottomOwners []string
	PortalID     string

	// IncludeDealDetails turns on the enrichment pass the sales report
	// consumes.
	IncludeDealDetails bool
	DetailWorkers      int
	DetailDelay        time.Duration
}

// PeriodSummaryStore is the persistence the engine writes through.
type PeriodSummaryStore interface {
	UpsertPurchaseSummary(ctx context.Context, rows []models.PeriodSummaryRow) error
	UpsertSalesSummary(ctx context.Context, rows []models.PeriodSummaryRow) error
}

// PeriodSummaryEngine builds the owner x month activity report over a
// two-year window (last year and the current year), stored one row per
// (aggregation_year, owner, month).
type PeriodSummaryEngine struct {
	cfg      PeriodSummaryConfig
	crm      CRM
	store    PeriodSummaryStore
	progress *progress.Reporter
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewPeriodSummaryEngine(cfg PeriodSummaryConfig, crm CRM, store PeriodSummaryStore, reporter *progress.Reporter, log *zap.SugaredLogger) *PeriodSummaryEngine {
	return &PeriodSummaryEngine{
		cfg:      cfg,
		crm:      crm,
		store:    store,
		progress: reporter,
		log:      log,
		now:      time.Now,
	}
}

type yearMonth struct {
	year  int
	month int
}

// Run executes one aggregation.
func (e *PeriodSummaryEngine) Run(ctx context.Context) error {
	e.progress.Report(ctx, "loading reference data", 5)

	dir, err := NewOwnerDirectory(ctx, e.crm, e.log)
	if err != nil {
		return fmt.Errorf("load owners: %w", err)
	}
	stageLabels, err := e.stageLabels(ctx)
	if err != nil {
		return err
	}
	if len(stageLabels) == 0 {
		return fmt.Errorf("pipeline %s has no stages", e.cfg.PipelineID)
	}

	currentYear := e.now().UTC().Year()
	lastYear := currentYear - 1

	e.progress.Report(ctx, "fetching deals", 15)
	deals, err := e.crm.SearchAll(ctx, "deals", hubspot.SearchRequest{
		FilterGroups: []hubspot.FilterGroup{{Filters: []hubspot.Filter{
			{PropertyName: "pipeline", Operator: "EQ", Value: e.cfg.PipelineID},
		}}},
		Properties: e.dealProperties(),
	})
	if err != nil {
		return fmt.Errorf("fetch deals: %w", err)
	}
	if len(deals) == 0 {
		e.log.Info("period summary: no deals in pipeline")
		e.progress.Report(ctx, "completed: 0 deals", 100)
		return nil
	}

	e.progress.Report(ctx, fmt.Sprintf("aggregating %d deals", len(deals)), 50)
	owners := e.visibleOwners(ctx, dir)
	activity, report := e.aggregate(deals, owners, stageLabels, lastYear, currentYear)

	if e.cfg.IncludeDealDetails {
		e.progress.Report(ctx, "attaching deal details", 70)
		e.attachDetails(ctx, activity)
	}

	e.progress.Report(ctx, "saving summary", 90)
	for _, year := range []int{lastYear, currentYear} {
		rows := e.rowsForYear(activity, owners, year)
		if err := e.save(ctx, rows); err != nil {
			return fmt.Errorf("save %s summary %d: %w", e.cfg.Variant, year, err)
		}
	}

	e.log.Infow("period summary complete", "variant", e.cfg.Variant, "report", report.String())
	e.progress.Report(ctx, "completed", 100)
	return nil
}

func (e *PeriodSummaryEngine) save(ctx context.Context, rows []models.PeriodSummaryRow) error {
	if e.cfg.Variant == VariantSales {
		return e.store.UpsertSalesSummary(ctx, rows)
	}
	return e.store.UpsertPurchaseSummary(ctx, rows)
}

func (e *PeriodSummaryEngine) items() []monthlyItem {
	if e.cfg.Variant == VariantSales {
		return salesMonthlyItems
	}
	return purchaseMonthlyItems
}

// bucketDateProperty is the property that assigns a deal to a month.
func (e *PeriodSummaryEngine) bucketDateProperty() string {
	if e.cfg.Variant == VariantSales {
		return "introduction_datetime"
	}
	return "bukken_created"
}

func (e *PeriodSummaryEngine) dealProperties() []string {
	props := []string{"dealname", "dealstage", "pipeline", "hubspot_owner_id", "createdate", e.bucketDateProperty()}
	if e.cfg.Variant == VariantPurchase {
		props = append(props, "deal_non_applicable")
	}
	for _, item := range e.items() {
		props = append(props, item.property)
	}
	return props
}

type visibleOwner struct {
	id   string
	name string
}

// visibleOwners lists the owners carried into the report: hidden names
// dropped, bottom names last, the rest sorted by name.
func (e *PeriodSummaryEngine) visibleOwners(ctx context.Context, dir *OwnerDirectory) []visibleOwner {
	hidden := NewHiddenOwnerFilter(e.cfg.HiddenOwners)
	bottom := NewHiddenOwnerFilter(e.cfg.BottomOwners)

	var regular, last []visibleOwner
	for id, name := range dir.Known() {
		if name == "" || hidden.Hidden(name) {
			continue
		}
		o := visibleOwner{id: id, name: name}
		if bottom.Hidden(name) {
			last = append(last, o)
		} else {
			regular = append(regular, o)
		}
	}
	byName := func(s []visibleOwner) {
		sort.Slice(s, func(i, j int) bool {
			if s[i].name == s[j].name {
				return s[i].id < s[j].id
			}
			return s[i].name < s[j].name
		})
	}
	byName(regular)
	byName(last)
	return append(regular, last...)
}

func (e *PeriodSummaryEngine) aggregate(deals []hubspot.Object, owners []visibleOwner, stageLabels map[string]string, fromYear, toYear int) (map[string]map[yearMonth]*models.MonthActivity, *RunReport) {
	visible := make(map[string]bool, len(owners))
	for _, o := range owners {
		visible[o.id] = true
	}

	report := NewRunReport()
	activity := make(map[string]map[yearMonth]*models.MonthActivity)

	ensure := func(ownerID string, ym yearMonth) *models.MonthActivity {
		if activity[ownerID] == nil {
			activity[ownerID] = make(map[yearMonth]*models.MonthActivity)
		}
		m := activity[ownerID][ym]
		if m == nil {
			m = &models.MonthActivity{
				StageBreakdown: make(map[string]int),
				ItemCounts:     make(map[string]int),
				DealIDsByStage: make(map[string][]string),
				DealIDsByItem:  make(map[string][]string),
			}
			activity[ownerID][ym] = m
		}
		return m
	}

	for _, deal := range deals {
		ownerID := deal.Prop("hubspot_owner_id")
		if ownerID == "" {
			report.Skip("no_owner")
			continue
		}
		if !visible[ownerID] {
			report.Skip("hidden_owner")
			continue
		}

		dealDate, ok := ParseCRMDate(deal.Prop(e.bucketDateProperty()))
		if !ok {
			dealDate, ok = ParseCRMDate(deal.Prop("createdate"))
		}
		if !ok {
			report.Skip("no_date")
			continue
		}
		if dealDate.Year() < fromYear || dealDate.Year() > toYear {
			report.Skip("outside_window")
			continue
		}

		ym := yearMonth{year: dealDate.Year(), month: int(dealDate.Month())}
		m := ensure(ownerID, ym)
		m.TotalDeals++

		label := stageLabels[deal.Prop("dealstage")]
		if label == "" {
			label = UnknownStageLabel
		}
		m.StageBreakdown[label]++

		if e.cfg.Variant == VariantSales {
			m.DealIDsByStage[label] = append(m.DealIDsByStage[label], deal.ID)
			m.DealIDsByStage[totalStageKey] = append(m.DealIDsByStage[totalStageKey], deal.ID)
		}
		if e.cfg.Variant == VariantPurchase {
			if deal.Prop("deal_non_applicable") == "true" {
				m.NotApplicableDeals++
			} else {
				m.ApplicableDeals++
			}
		}
		report.Aggregate()
	}

	// Second pass: bucket each item event into the month its date names.
	for _, deal := range deals {
		ownerID := deal.Prop("hubspot_owner_id")
		if ownerID == "" || !visible[ownerID] {
			continue
		}
		for _, item := range e.items() {
			t, ok := ParseCRMDate(deal.Prop(item.property))
			if !ok || t.Year() < fromYear || t.Year() > toYear {
				continue
			}
			ym := yearMonth{year: t.Year(), month: int(t.Month())}
			if e.cfg.Variant == VariantSales {
				// The sales report only annotates months that already
				// have bucketed deals.
				if activity[ownerID] == nil || activity[ownerID][ym] == nil {
					continue
				}
				m := activity[ownerID][ym]
				m.ItemCounts[item.key]++
				m.DealIDsByItem[item.label] = append(m.DealIDsByItem[item.label], deal.ID)
			} else {
				ensure(ownerID, ym).ItemCounts[item.key]++
			}
		}
	}
	return activity, report
}

// attachDetails fetches enriched records for every deal referenced by a
// stage or item list and files them next to the ids. Best effort.
func (e *PeriodSummaryEngine) attachDetails(ctx context.Context, activity map[string]map[yearMonth]*models.MonthActivity) {
	ids := make(map[string]bool)
	for _, months := range activity {
		for _, m := range months {
			for _, dealIDs := range m.DealIDsByStage {
				for _, id := range dealIDs {
					ids[id] = true
				}
			}
			for _, dealIDs := range m.DealIDsByItem {
				for _, id := range dealIDs {
					ids[id] = true
				}
			}
		}
	}
	if len(ids) == 0 {
		return
	}

	fetcher := newDetailFetcher(e.crm, e.log, e.cfg.DetailWorkers, e.cfg.DetailDelay, e.cfg.PortalID)
	details := fetcher.FetchAll(ctx, ids)
	if len(details) == 0 {
		return
	}

	collect := func(dealIDs []string) []models.DealDetail {
		var out []models.DealDetail
		for _, id := range dealIDs {
			if d, ok := details[id]; ok {
				out = append(out, d)
			}
		}
		return out
	}
	for _, months := range activity {
		for _, m := range months {
			for key, dealIDs := range m.DealIDsByStage {
				if ds := collect(dealIDs); len(ds) > 0 {
					if m.DetailsByStage == nil {
						m.DetailsByStage = make(map[string][]models.DealDetail)
					}
					m.DetailsByStage[key] = ds
				}
			}
			for key, dealIDs := range m.DealIDsByItem {
				if ds := collect(dealIDs); len(ds) > 0 {
					if m.DetailsByItem == nil {
						m.DetailsByItem = make(map[string][]models.DealDetail)
					}
					m.DetailsByItem[key] = ds
				}
			}
		}
	}
	e.log.Infow("deal details attached", "deals", len(details))
}

// rowsForYear flattens one aggregation year into storable rows, in owner
// then month order.
func (e *PeriodSummaryEngine) rowsForYear(activity map[string]map[yearMonth]*models.MonthActivity, owners []visibleOwner, year int) []models.PeriodSummaryRow {
	var rows []models.PeriodSummaryRow
	for _, o := range owners {
		months := activity[o.id]
		if months == nil {
			continue
		}
		for month := 1; month <= 12; month++ {
			m := months[yearMonth{year: year, month: month}]
			if m == nil {
				continue
			}
			rows = append(rows, models.PeriodSummaryRow{
				AggregationYear: year,
				OwnerID:         o.id,
				OwnerName:       o.name,
				Month:           month,
				Activity:        *m,
			})
		}
	}
	return rows
}

func (e *PeriodSummaryEngine) stageLabels(ctx context.Context) (map[string]string, error) {
	pipelines, err := e.crm.DealPipelines(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pipelines: %w", err)
	}
	for _, p := range pipelines {
		if p.ID == e.cfg.PipelineID {
			labels := make(map[string]string, len(p.Stages))
			for _, s := range p.Stages {
				labels[s.ID] = s.Label
			}
			return labels, nil
		}
	}
	return nil, nil
}
