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

// Default contact property names when label resolution finds nothing.
const (
	defaultBuyPhaseProperty  = "contractor_buy_phase"
	defaultSellPhaseProperty = "contractor_sell_phase"
)

// PhaseSummaryConfig parameterizes the contact phase engine. The weekly and
// monthly jobs run the same engine with a different period type.
type PhaseSummaryConfig struct {
	PeriodType     string
	TargetOwners   []string
	BuyPhaseLabel  string
	SellPhaseLabel string
}

// PhaseSummaryStore is the persistence the engine writes through.
type PhaseSummaryStore interface {
	ReplacePhaseSummary(ctx context.Context, aggregationDate time.Time, periodType string, rows []models.PhaseSummaryRow) error
}

// PhaseSummaryEngine counts contacts per owner and phase pair. A contact
// with only one phase set still contributes to that side; a contact with
// neither contributes nothing.
type PhaseSummaryEngine struct {
	cfg      PhaseSummaryConfig
	crm      CRM
	store    PhaseSummaryStore
	progress *progress.Reporter
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewPhaseSummaryEngine(cfg PhaseSummaryConfig, crm CRM, store PhaseSummaryStore, reporter *progress.Reporter, log *zap.SugaredLogger) *PhaseSummaryEngine {
	if cfg.BuyPhaseLabel == "" {
		cfg.BuyPhaseLabel = "仕入フェーズ"
	}
	if cfg.SellPhaseLabel == "" {
		cfg.SellPhaseLabel = "販売フェーズ"
	}
	if cfg.PeriodType == "" {
		cfg.PeriodType = models.PeriodWeekly
	}
	return &PhaseSummaryEngine{
		cfg:      cfg,
		crm:      crm,
		store:    store,
		progress: reporter,
		log:      log,
		now:      time.Now,
	}
}

// Run executes one aggregation.
func (e *PhaseSummaryEngine) Run(ctx context.Context) error {
	e.progress.Report(ctx, "loading reference data", 5)

	dir, err := NewOwnerDirectory(ctx, e.crm, e.log)
	if err != nil {
		return fmt.Errorf("load owners: %w", err)
	}

	buyProp, buyMap, err := e.resolvePhaseProperty(ctx, e.cfg.BuyPhaseLabel, defaultBuyPhaseProperty)
	if err != nil {
		return err
	}
	sellProp, sellMap, err := e.resolvePhaseProperty(ctx, e.cfg.SellPhaseLabel, defaultSellPhaseProperty)
	if err != nil {
		return err
	}

	aggregationDate := WeekMonday(e.now().UTC())
	if e.cfg.PeriodType == models.PeriodMonthly {
		aggregationDate = MonthStart(e.now().UTC())
	}
	e.log.Infow("aggregating contact phases", "period_type", e.cfg.PeriodType, "aggregation_date", aggregationDate.Format("2006-01-02"))

	e.progress.Report(ctx, "fetching contacts", 15)
	contacts, err := e.crm.SearchAll(ctx, "contacts", hubspot.SearchRequest{
		Properties: []string{"hubspot_owner_id", buyProp, sellProp},
	})
	if err != nil {
		return fmt.Errorf("fetch contacts: %w", err)
	}

	e.progress.Report(ctx, fmt.Sprintf("aggregating %d contacts", len(contacts)), 60)
	resolve := func(id string) string { return dir.Name(ctx, id) }
	rows, report := AggregatePhases(contacts, resolve, e.cfg.TargetOwners, buyProp, sellProp, buyMap, sellMap)

	e.progress.Report(ctx, "saving summary", 90)
	if err := e.store.ReplacePhaseSummary(ctx, aggregationDate, e.cfg.PeriodType, rows); err != nil {
		return fmt.Errorf("save phase summary: %w", err)
	}

	e.log.Infow("contact phase summary complete", "rows", len(rows), "report", report.String())
	e.progress.Report(ctx, "completed", 100)
	return nil
}

func (e *PhaseSummaryEngine) resolvePhaseProperty(ctx context.Context, label, fallback string) (string, map[string]string, error) {
	props, err := e.crm.ListProperties(ctx, "contacts")
	if err != nil {
		return "", nil, fmt.Errorf("list contact properties: %w", err)
	}
	for _, p := range props {
		if p.Label == label {
			return p.Name, BuildPhaseOptionMap(p.Options), nil
		}
	}
	e.log.Warnw("phase property label not found, using default", "label", label, "default", fallback)
	for _, p := range props {
		if p.Name == fallback {
			return p.Name, BuildPhaseOptionMap(p.Options), nil
		}
	}
	return fallback, map[string]string{}, nil
}

type phasePair struct {
	buy  string
	sell string
}

// AggregatePhases buckets contacts by owner and phase pair. Contacts
// without an owner, with an owner outside the target list, or with neither
// phase set are skipped and counted in the report.
func AggregatePhases(contacts []hubspot.Object, resolveOwner func(string) string, targetOwners []string, buyProp, sellProp string, buyMap, sellMap map[string]string) ([]models.PhaseSummaryRow, *RunReport) {
	targets := make(map[string]bool, len(targetOwners))
	for _, o := range targetOwners {
		targets[o] = true
	}

	report := NewRunReport()
	counts := make(map[string]map[phasePair]int)

	for _, contact := range contacts {
		ownerID := contact.Prop("hubspot_owner_id")
		if ownerID == "" {
			report.Skip("no_owner")
			continue
		}
		ownerName := resolveOwner(ownerID)
		if ownerName == "" || (len(targets) > 0 && !targets[ownerName]) {
			report.Skip("not_target_owner")
			continue
		}

		buy, buyOK := NormalizePhase(contact.Prop(buyProp), buyMap)
		sell, sellOK := NormalizePhase(contact.Prop(sellProp), sellMap)
		if !buyOK && !sellOK {
			report.Skip("no_phase")
			continue
		}

		if counts[ownerName] == nil {
			counts[ownerName] = make(map[phasePair]int)
		}
		counts[ownerName][phasePair{buy: buy, sell: sell}]++
		report.Aggregate()
	}

	var rows []models.PhaseSummaryRow
	for _, ownerName := range orderedOwners(targetOwners, counts) {
		pairs := counts[ownerName]
		for _, buy := range append([]string{""}, Phases...) {
			for _, sell := range append([]string{""}, Phases...) {
				if n := pairs[phasePair{buy: buy, sell: sell}]; n > 0 {
					rows = append(rows, models.PhaseSummaryRow{
						OwnerName: ownerName,
						BuyPhase:  buy,
						SellPhase: sell,
						Count:     n,
					})
				}
			}
		}
	}
	return rows, report
}

// orderedOwners keeps target list order first, then any extra owners seen.
func orderedOwners(targetOwners []string, counts map[string]map[phasePair]int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range targetOwners {
		if counts[o] != nil {
			out = append(out, o)
			seen[o] = true
		}
	}
	var extra []string
	for o := range counts {
		if !seen[o] {
			extra = append(extra, o)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
