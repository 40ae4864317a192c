package sync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hubsync/internal/hubspot"
	"hubsync/internal/models"
	"hubsync/internal/progress"
)

// Custom object type id of the bukken (property) object in the CRM.
const DefaultBukkenObjectType = "2-39155607"

var bukkenProperties = []string{
	"bukken_name",
	"bukken_state",
	"bukken_city",
	"bukken_address",
	"bukken_age",
	"bukken_structure",
	"bukken_nearest_station",
	"nearest_station",
	"bukken_image_url",
	"property_image_url",
}

// AchievementConfig parameterizes the purchase achievement sync.
type AchievementConfig struct {
	PurchasePipelineID string
	BukkenObjectType   string
}

// AchievementStore is the persistence the engine writes through.
type AchievementStore interface {
	AchievementExists(ctx context.Context, bukkenID string) (bool, error)
	UpsertAchievement(ctx context.Context, a models.PurchaseAchievement) error
	UpdateAchievementFromSync(ctx context.Context, bukkenID string, a models.PurchaseAchievement) error
}

// AchievementEngine mirrors settled and contracted purchase deals into the
// purchase_achievements table, one row per bukken.
type AchievementEngine struct {
	cfg      AchievementConfig
	crm      CRM
	store    AchievementStore
	progress *progress.Reporter
	log      *zap.SugaredLogger
}

func NewAchievementEngine(cfg AchievementConfig, crm CRM, store AchievementStore, reporter *progress.Reporter, log *zap.SugaredLogger) *AchievementEngine {
	if cfg.BukkenObjectType == "" {
		cfg.BukkenObjectType = DefaultBukkenObjectType
	}
	return &AchievementEngine{cfg: cfg, crm: crm, store: store, progress: reporter, log: log}
}

// Run executes one sync.
func (e *AchievementEngine) Run(ctx context.Context) error {
	e.progress.Report(ctx, "resolving pipeline stages", 5)

	stageIDs, err := e.targetStageIDs(ctx)
	if err != nil {
		return err
	}
	if len(stageIDs) == 0 {
		e.log.Warnw("no settlement or contract stages found", "pipeline_id", e.cfg.PurchasePipelineID)
		e.progress.Report(ctx, "completed: 0 deals", 100)
		return nil
	}

	e.progress.Report(ctx, "fetching deals", 10)
	var deals []hubspot.Object
	for _, stageID := range stageIDs {
		batch, err := e.crm.SearchAll(ctx, "deals", hubspot.SearchRequest{
			FilterGroups: []hubspot.FilterGroup{{Filters: []hubspot.Filter{
				{PropertyName: "pipeline", Operator: "EQ", Value: e.cfg.PurchasePipelineID},
				{PropertyName: "dealstage", Operator: "EQ", Value: stageID},
			}}},
			Properties: []string{
				"dealname", "dealstage", "pipeline", "createdate",
				"settlement_date", "contract_date", "purchase_date",
			},
		})
		if err != nil {
			return fmt.Errorf("fetch deals for stage %s: %w", stageID, err)
		}
		deals = append(deals, batch...)
	}
	if len(deals) == 0 {
		e.log.Info("purchase achievement sync complete: no deals")
		e.progress.Report(ctx, "completed: 0 deals", 100)
		return nil
	}

	report := NewRunReport()
	for i, deal := range deals {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.processDeal(ctx, deal, report); err != nil {
			e.log.Errorw("deal processing failed", "deal_id", deal.ID, "error", err)
			report.Skip("process_error")
		}
		if (i+1)%10 == 0 || i+1 == len(deals) {
			pct := 10 + (i+1)*85/len(deals)
			e.progress.Report(ctx, fmt.Sprintf("processing %d/%d deals", i+1, len(deals)), pct)
		}
	}

	e.log.Infow("purchase achievement sync complete", "report", report.String())
	e.progress.Report(ctx, "completed", 100)
	return nil
}

// targetStageIDs returns the stage ids in the purchase pipeline whose
// label marks settlement or contract.
func (e *AchievementEngine) targetStageIDs(ctx context.Context) ([]string, error) {
	pipelines, err := e.crm.DealPipelines(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pipelines: %w", err)
	}
	var ids []string
	for _, p := range pipelines {
		if p.ID != e.cfg.PurchasePipelineID {
			continue
		}
		for _, s := range p.Stages {
			label := strings.ToLower(s.Label)
			if strings.Contains(label, "決済") || strings.Contains(label, "settlement") ||
				strings.Contains(label, "契約") || strings.Contains(label, "contract") {
				ids = append(ids, s.ID)
			}
		}
	}
	return ids, nil
}

func (e *AchievementEngine) processDeal(ctx context.Context, deal hubspot.Object, report *RunReport) error {
	bukken, ok, err := e.bukkenForDeal(ctx, deal.ID)
	if err != nil {
		return err
	}
	if !ok {
		report.Skip("no_bukken")
		return nil
	}

	a := achievementFromBukken(bukken)
	exists, err := e.store.AchievementExists(ctx, bukken.ID)
	if err != nil {
		return err
	}
	if exists {
		if err := e.store.UpdateAchievementFromSync(ctx, bukken.ID, a); err != nil {
			return err
		}
		report.Aggregate()
		return nil
	}

	dealID := deal.ID
	a.HubspotDealID = &dealID
	a.PurchaseDate = ExtractPurchaseDate(deal)
	title := BuildAchievementTitle(bukken)
	a.Title = &title
	if !bukken.CreatedAt.IsZero() {
		created := bukken.CreatedAt
		a.BukkenCreatedDate = &created
	}
	if err := e.store.UpsertAchievement(ctx, a); err != nil {
		return err
	}
	report.Aggregate()
	return nil
}

func (e *AchievementEngine) bukkenForDeal(ctx context.Context, dealID string) (hubspot.Object, bool, error) {
	ids, err := e.crm.AssociatedIDs(ctx, "deals", dealID, e.cfg.BukkenObjectType)
	if err != nil {
		return hubspot.Object{}, false, fmt.Errorf("fetch bukken associations: %w", err)
	}
	if len(ids) == 0 {
		return hubspot.Object{}, false, nil
	}
	bukken, err := e.crm.GetObject(ctx, e.cfg.BukkenObjectType, ids[0], bukkenProperties)
	if err != nil {
		return hubspot.Object{}, false, fmt.Errorf("fetch bukken %s: %w", ids[0], err)
	}
	return bukken, true, nil
}

// achievementFromBukken maps bukken properties onto an achievement row.
// The operator-managed fields stay unset.
func achievementFromBukken(bukken hubspot.Object) models.PurchaseAchievement {
	a := models.PurchaseAchievement{HubspotBukkenID: bukken.ID}
	a.PropertyName = optionalProp(bukken, "bukken_name")
	a.Structure = optionalProp(bukken, "bukken_structure")
	a.Prefecture = optionalProp(bukken, "bukken_state")
	a.City = optionalProp(bukken, "bukken_city")
	a.AddressDetail = optionalProp(bukken, "bukken_address")
	if station := firstProp(bukken, "bukken_nearest_station", "nearest_station"); station != "" {
		a.NearestStation = &station
	}
	if raw := bukken.Prop("bukken_age"); raw != "" {
		if age, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			a.BuildingAge = &age
		}
	}
	if image := firstProp(bukken, "bukken_image_url", "property_image_url"); image != "" {
		a.PropertyImageURL = &image
	}
	return a
}

// ExtractPurchaseDate picks the deal's purchase date, preferring
// settlement over contract over purchase over creation date.
func ExtractPurchaseDate(deal hubspot.Object) *time.Time {
	for _, prop := range []string{"settlement_date", "contract_date", "purchase_date", "createdate"} {
		if t, ok := ParseCRMDate(deal.Prop(prop)); ok {
			return &t
		}
	}
	return nil
}

// BuildAchievementTitle composes the public listing title from the bukken
// address parts, with a generic fallback at each level.
func BuildAchievementTitle(bukken hubspot.Object) string {
	state := bukken.Prop("bukken_state")
	city := bukken.Prop("bukken_city")
	name := bukken.Prop("bukken_name")
	switch {
	case state != "" && city != "" && name != "":
		return state + city + name
	case state != "" && city != "":
		return state + city + "一棟アパート"
	case name != "":
		return name
	default:
		return "物件情報"
	}
}

func optionalProp(o hubspot.Object, name string) *string {
	if v := o.Prop(name); v != "" {
		return &v
	}
	return nil
}

func firstProp(o hubspot.Object, names ...string) string {
	for _, name := range names {
		if v := o.Prop(name); v != "" {
			return v
		}
	}
	return ""
}
