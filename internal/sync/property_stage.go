package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hubsync/internal/hubspot"
	"hubsync/internal/models"
	"hubsync/internal/progress"
)

// StageDateMapping names the date property that marks a deal as having
// passed each sales stage. Stages without a mapping fall back to current
// dealstage equality. Both spellings of the survey and lost labels occur
// in the pipeline history.
var StageDateMapping = map[string]string{
	"物件紹介":   "introduction_datetime",
	"資料開示":   "deal_disclosure_date",
	"調査/検討":  "deal_survey_review_date",
	"調査／検討": "deal_survey_review_date",
	"買付取得":   "purchase_date",
	"見込み確度B": "deal_probability_b_date",
	"見込み確度A": "deal_probability_a_date",
	"契約":     "contract_date",
	"決済":     "settlement_date",
	"見送り":    "deal_farewell_date",
	"失注":     "deal_lost_date",
	"矢注":     "deal_lost_date",
}

var stageDealProperties = []string{
	"dealname",
	"dealstage",
	"pipeline",
	"hubspot_owner_id",
	"introduction_datetime",
	"deal_disclosure_date",
	"deal_survey_review_date",
	"purchase_date",
	"deal_probability_b_date",
	"deal_probability_a_date",
	"contract_date",
	"settlement_date",
	"deal_farewell_date",
	"deal_lost_date",
}

// StageSummaryConfig parameterizes the property stage engine.
type StageSummaryConfig struct {
	SalesPipelineID string
	HiddenOwners    []string
	PortalID        string

	DetailWorkers int
	DetailDelay   time.Duration
}

// StageStore is the persistence the engine writes through.
type StageStore interface {
	ReplaceStageSummary(ctx context.Context, aggregationDate time.Time, rows []models.PropertyStageRow, ownerRows []models.OwnerPropertyStageRow) error
	SetStageDealDetails(ctx context.Context, aggregationDate time.Time, propertyName, stageID string, details []models.DealDetail) error
	SetOwnerStageDealDetails(ctx context.Context, aggregationDate time.Time, ownerID, propertyName, stageID string, details []models.DealDetail) error
}

// StageSummaryEngine buckets sales deals per property and pipeline stage,
// then again per owner. A second best-effort pass attaches enriched deal
// details to the saved rows.
type StageSummaryEngine struct {
	cfg      StageSummaryConfig
	crm      CRM
	store    StageStore
	progress *progress.Reporter
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewStageSummaryEngine(cfg StageSummaryConfig, crm CRM, store StageStore, reporter *progress.Reporter, log *zap.SugaredLogger) *StageSummaryEngine {
	if cfg.DetailWorkers <= 0 {
		cfg.DetailWorkers = 2
	}
	if cfg.DetailDelay <= 0 {
		cfg.DetailDelay = time.Second
	}
	return &StageSummaryEngine{
		cfg:      cfg,
		crm:      crm,
		store:    store,
		progress: reporter,
		log:      log,
		now:      time.Now,
	}
}

// Run executes one aggregation.
func (e *StageSummaryEngine) Run(ctx context.Context) error {
	e.progress.Report(ctx, "loading reference data", 5)

	dir, err := NewOwnerDirectory(ctx, e.crm, e.log)
	if err != nil {
		return fmt.Errorf("load owners: %w", err)
	}
	stages, err := e.salesStages(ctx)
	if err != nil {
		return err
	}
	if len(stages) == 0 {
		return fmt.Errorf("sales pipeline %s has no stages", e.cfg.SalesPipelineID)
	}

	aggregationDate := e.now().UTC().Truncate(24 * time.Hour)

	e.progress.Report(ctx, "fetching deals", 15)
	deals, err := e.crm.SearchAll(ctx, "deals", hubspot.SearchRequest{
		FilterGroups: []hubspot.FilterGroup{{Filters: []hubspot.Filter{
			{PropertyName: "pipeline", Operator: "EQ", Value: e.cfg.SalesPipelineID},
		}}},
		Properties: stageDealProperties,
	})
	if err != nil {
		return fmt.Errorf("fetch sales deals: %w", err)
	}

	e.progress.Report(ctx, fmt.Sprintf("aggregating %d deals", len(deals)), 50)
	resolve := func(id string) string { return dir.Name(ctx, id) }
	hidden := NewHiddenOwnerFilter(e.cfg.HiddenOwners)
	rows, ownerRows, report := AggregateStages(deals, stages, resolve, hidden)

	for i := range rows {
		rows[i].AggregationDate = aggregationDate
	}
	for i := range ownerRows {
		ownerRows[i].AggregationDate = aggregationDate
	}

	e.progress.Report(ctx, "saving summary", 70)
	if err := e.store.ReplaceStageSummary(ctx, aggregationDate, rows, ownerRows); err != nil {
		return fmt.Errorf("save stage summary: %w", err)
	}
	e.log.Infow("property stage summary saved", "rows", len(rows), "owner_rows", len(ownerRows), "report", report.String())

	e.progress.Report(ctx, "attaching deal details", 80)
	e.attachDealDetails(ctx, aggregationDate, rows, ownerRows)

	e.progress.Report(ctx, "completed", 100)
	return nil
}

func (e *StageSummaryEngine) salesStages(ctx context.Context) ([]hubspot.Stage, error) {
	pipelines, err := e.crm.DealPipelines(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pipelines: %w", err)
	}
	for _, p := range pipelines {
		if p.ID == e.cfg.SalesPipelineID {
			return p.Stages, nil
		}
	}
	return nil, nil
}

// ExtractPropertyName takes the first whitespace-delimited token of a
// deal name. Full-width spaces count as separators.
func ExtractPropertyName(dealName string) string {
	fields := strings.FieldsFunc(dealName, func(r rune) bool {
		return r == ' ' || r == '　' || r == '\t'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// DealReachedStage reports whether the deal counts toward a stage: the
// mapped date property is set, or, for unmapped stages, the deal sits in
// that stage right now.
func DealReachedStage(deal hubspot.Object, stage hubspot.Stage) bool {
	if dateProp, ok := StageDateMapping[stage.Label]; ok {
		return strings.TrimSpace(deal.Prop(dateProp)) != ""
	}
	return deal.Prop("dealstage") == stage.ID
}

type stageBucket struct {
	count   int
	dealIDs []string
}

// AggregateStages buckets deals per property x stage and per owner x
// property x stage. Every stage gets a row even at zero count; hidden
// owners are kept in the property table but dropped from the owner table.
func AggregateStages(deals []hubspot.Object, stages []hubspot.Stage, resolveOwner func(string) string, hidden *HiddenOwnerFilter) ([]models.PropertyStageRow, []models.OwnerPropertyStageRow, *RunReport) {
	report := NewRunReport()

	type ownerKey struct{ ownerID, property string }
	var (
		propertyOrder []string
		propBuckets   = make(map[string]map[string]*stageBucket)
		ownerOrder    []ownerKey
		ownerBuckets  = make(map[ownerKey]map[string]*stageBucket)
		ownerNames    = make(map[string]string)
	)

	for _, deal := range deals {
		property := ExtractPropertyName(deal.Prop("dealname"))
		if property == "" {
			report.Skip("no_property_name")
			continue
		}

		if propBuckets[property] == nil {
			propBuckets[property] = make(map[string]*stageBucket, len(stages))
			propertyOrder = append(propertyOrder, property)
		}
		for _, stage := range stages {
			b := propBuckets[property][stage.ID]
			if b == nil {
				b = &stageBucket{}
				propBuckets[property][stage.ID] = b
			}
			if DealReachedStage(deal, stage) {
				b.count++
				b.dealIDs = append(b.dealIDs, deal.ID)
			}
		}

		ownerID := deal.Prop("hubspot_owner_id")
		if ownerID == "" {
			report.Skip("no_owner")
			continue
		}
		ownerName := resolveOwner(ownerID)
		if ownerName == "" {
			ownerName = ownerID
		}
		if hidden.Hidden(ownerName) {
			report.Skip("hidden_owner")
			continue
		}
		ownerNames[ownerID] = ownerName

		key := ownerKey{ownerID: ownerID, property: property}
		if ownerBuckets[key] == nil {
			ownerBuckets[key] = make(map[string]*stageBucket, len(stages))
			ownerOrder = append(ownerOrder, key)
		}
		for _, stage := range stages {
			b := ownerBuckets[key][stage.ID]
			if b == nil {
				b = &stageBucket{}
				ownerBuckets[key][stage.ID] = b
			}
			if DealReachedStage(deal, stage) {
				b.count++
				b.dealIDs = append(b.dealIDs, deal.ID)
			}
		}
		report.Aggregate()
	}

	var rows []models.PropertyStageRow
	for _, property := range propertyOrder {
		for _, stage := range stages {
			b := propBuckets[property][stage.ID]
			rows = append(rows, models.PropertyStageRow{
				PropertyID:   property,
				PropertyName: property,
				StageID:      stage.ID,
				StageLabel:   stage.Label,
				Count:        b.count,
				DealIDs:      b.dealIDs,
			})
		}
	}

	var ownerRows []models.OwnerPropertyStageRow
	for _, key := range ownerOrder {
		for _, stage := range stages {
			b := ownerBuckets[key][stage.ID]
			ownerRows = append(ownerRows, models.OwnerPropertyStageRow{
				OwnerID:      key.ownerID,
				OwnerName:    ownerNames[key.ownerID],
				PropertyID:   key.property,
				PropertyName: key.property,
				StageID:      stage.ID,
				StageLabel:   stage.Label,
				Count:        b.count,
				DealIDs:      b.dealIDs,
			})
		}
	}
	return rows, ownerRows, report
}

// attachDealDetails fetches enriched details for every referenced deal on
// a small worker pool and writes them back to the saved rows. Failures
// are logged and skipped; the summary itself already landed.
func (e *StageSummaryEngine) attachDealDetails(ctx context.Context, aggregationDate time.Time, rows []models.PropertyStageRow, ownerRows []models.OwnerPropertyStageRow) {
	ids := make(map[string]bool)
	for _, r := range rows {
		for _, id := range r.DealIDs {
			ids[id] = true
		}
	}
	for _, r := range ownerRows {
		for _, id := range r.DealIDs {
			ids[id] = true
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

	updated := 0
	for _, r := range rows {
		if ds := collect(r.DealIDs); len(ds) > 0 {
			if err := e.store.SetStageDealDetails(ctx, aggregationDate, r.PropertyName, r.StageID, ds); err != nil {
				e.log.Warnw("deal detail update failed", "property", r.PropertyName, "stage_id", r.StageID, "error", err)
				continue
			}
			updated++
		}
	}
	for _, r := range ownerRows {
		if ds := collect(r.DealIDs); len(ds) > 0 {
			if err := e.store.SetOwnerStageDealDetails(ctx, aggregationDate, r.OwnerID, r.PropertyName, r.StageID, ds); err != nil {
				e.log.Warnw("owner deal detail update failed", "owner_id", r.OwnerID, "property", r.PropertyName, "stage_id", r.StageID, "error", err)
				continue
			}
			updated++
		}
	}
	e.log.Infow("deal details attached", "deals", len(details), "rows_updated", updated)
}
