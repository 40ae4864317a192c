package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"hubsync/internal/hubspot"
	"hubsync/internal/models"
	"hubsync/internal/progress"
)

// Pattern types a contact can fall into, derived from the buy-or-sell
// multi-select. Every contact is in "all"; the rest are mutually exclusive.
const (
	PatternAll       = "all"
	PatternBuy       = "buy"
	PatternSell      = "sell"
	PatternBuyOrSell = "buy_or_sell"
)

var patternOrder = []string{PatternAll, PatternBuy, PatternSell, PatternBuyOrSell}

// Specified values that keep a contact inside the target audience. A
// contact is excluded as soon as any metric has values but none of them
// is on the specified list; an empty metric never excludes.
var (
	DefaultSpecifiedIndustries     = []string{"売買仲介（エンド）", "買取"}
	DefaultSpecifiedPropertyTypes  = []string{"1棟AP", "1棟MS"}
	DefaultSpecifiedAreas          = []string{"東京", "神奈川", "千葉", "埼玉"}
	DefaultSpecifiedAreaCategories = []string{"狭域の郊外（地元特化）", "1都3県（郊外寄り）", "1都3県（23区寄り）"}
	DefaultSpecifiedGrosses        = []string{"〜1億", "1〜3億"}
)

// ScoringConfig parameterizes the contact scoring engine.
type ScoringConfig struct {
	TargetOwners            []string
	SpecifiedIndustries     []string
	SpecifiedPropertyTypes  []string
	SpecifiedAreas          []string
	SpecifiedAreaCategories []string
	SpecifiedGrosses        []string

	// IncludeCompanyNames turns on the company lookup pass. It is off by
	// default because it costs one association walk per contributing
	// contact.
	IncludeCompanyNames bool
	CompanyFetchWorkers int
}

// ScoringStore is the persistence the engine writes through.
type ScoringStore interface {
	ReplaceScoringSummary(ctx context.Context, aggregationDate time.Time, rows []models.ScoringSummaryRow) error
}

// ScoringSummaryEngine counts, per owner and pattern, how many contacts
// have each of the five profiling properties filled in, how many have all
// five, and how many remain inside the target audience.
type ScoringSummaryEngine struct {
	cfg      ScoringConfig
	crm      CRM
	store    ScoringStore
	progress *progress.Reporter
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewScoringSummaryEngine(cfg ScoringConfig, crm CRM, store ScoringStore, reporter *progress.Reporter, log *zap.SugaredLogger) *ScoringSummaryEngine {
	if cfg.SpecifiedIndustries == nil {
		cfg.SpecifiedIndustries = DefaultSpecifiedIndustries
	}
	if cfg.SpecifiedPropertyTypes == nil {
		cfg.SpecifiedPropertyTypes = DefaultSpecifiedPropertyTypes
	}
	if cfg.SpecifiedAreas == nil {
		cfg.SpecifiedAreas = DefaultSpecifiedAreas
	}
	if cfg.SpecifiedAreaCategories == nil {
		cfg.SpecifiedAreaCategories = DefaultSpecifiedAreaCategories
	}
	if cfg.SpecifiedGrosses == nil {
		cfg.SpecifiedGrosses = DefaultSpecifiedGrosses
	}
	if cfg.CompanyFetchWorkers <= 0 {
		cfg.CompanyFetchWorkers = 2
	}
	return &ScoringSummaryEngine{
		cfg:      cfg,
		crm:      crm,
		store:    store,
		progress: reporter,
		log:      log,
		now:      time.Now,
	}
}

// Run executes one aggregation.
func (e *ScoringSummaryEngine) Run(ctx context.Context) error {
	e.progress.Report(ctx, "loading reference data", 5)

	dir, err := NewOwnerDirectory(ctx, e.crm, e.log)
	if err != nil {
		return fmt.Errorf("load owners: %w", err)
	}
	targetIDs := dir.IDsForNames(e.cfg.TargetOwners)
	if len(targetIDs) == 0 {
		e.log.Warnw("no target owners resolved, nothing to aggregate", "target_owners", e.cfg.TargetOwners)
		e.progress.Report(ctx, "completed", 100)
		return nil
	}

	aggregationDate := WeekMonday(e.now().UTC())

	e.progress.Report(ctx, "fetching contacts", 15)
	contacts, err := e.crm.SearchAll(ctx, "contacts", hubspot.SearchRequest{
		Properties: []string{
			"hubspot_owner_id",
			"firstname",
			"lastname",
			"contractor_industry",
			"contractor_property_type",
			"contractor_area",
			"contractor_area_category",
			"contractor_gross2",
			"contractor_buy_or_sell",
		},
	})
	if err != nil {
		return fmt.Errorf("fetch contacts: %w", err)
	}

	e.progress.Report(ctx, fmt.Sprintf("scoring %d contacts", len(contacts)), 55)
	resolve := func(id string) string { return dir.Name(ctx, id) }
	rows, report := AggregateScoring(contacts, resolve, targetIDs, e.cfg)

	if report.Aggregated == 0 {
		e.log.Infow("contact scoring summary: no contributing contacts", "report", report.String())
		e.progress.Report(ctx, "completed", 100)
		return nil
	}

	if e.cfg.IncludeCompanyNames {
		e.progress.Report(ctx, "resolving company names", 75)
		e.fillCompanyNames(ctx, rows)
	}

	e.progress.Report(ctx, "saving summary", 90)
	if err := e.store.ReplaceScoringSummary(ctx, aggregationDate, rows); err != nil {
		return fmt.Errorf("save scoring summary: %w", err)
	}

	e.log.Infow("contact scoring summary complete", "rows", len(rows), "report", report.String())
	e.progress.Report(ctx, "completed", 100)
	return nil
}

// SplitMultiValue splits a multi-select property value on the separators
// the CRM uses. Empty fragments are dropped.
func SplitMultiValue(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == ','
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ContactPatterns classifies a buy-or-sell multi-select into pattern
// types. "all" is always present.
func ContactPatterns(buyOrSell string) []string {
	values := SplitMultiValue(buyOrSell)
	hasBuy, hasSell := false, false
	for _, v := range values {
		switch v {
		case "仕入":
			hasBuy = true
		case "売却":
			hasSell = true
		}
	}
	patterns := []string{PatternAll}
	switch {
	case hasBuy && hasSell:
		patterns = append(patterns, PatternBuyOrSell)
	case hasBuy:
		patterns = append(patterns, PatternBuy)
	case hasSell:
		patterns = append(patterns, PatternSell)
	}
	return patterns
}

func hasSpecified(values, specified []string) bool {
	for _, v := range values {
		for _, s := range specified {
			if v == s {
				return true
			}
		}
	}
	return false
}

// isTargetAudience reports whether a contact stays in the target
// audience. A metric with values that all fall outside the specified
// list excludes the contact; a metric with no values does not.
func isTargetAudience(o hubspot.Object, cfg ScoringConfig) bool {
	checks := []struct {
		property  string
		specified []string
	}{
		{"contractor_industry", cfg.SpecifiedIndustries},
		{"contractor_property_type", cfg.SpecifiedPropertyTypes},
		{"contractor_area", cfg.SpecifiedAreas},
		{"contractor_area_category", cfg.SpecifiedAreaCategories},
		{"contractor_gross2", cfg.SpecifiedGrosses},
	}
	for _, c := range checks {
		values := SplitMultiValue(o.Prop(c.property))
		if len(values) > 0 && !hasSpecified(values, c.specified) {
			return false
		}
	}
	return true
}

type ownerScore struct {
	counts   models.ScoringCounts
	contacts models.ScoringContacts
}

func (s *ownerScore) add(count *int, refs *[]models.ContactRef, ref models.ContactRef) {
	*count++
	*refs = append(*refs, ref)
}

// AggregateScoring buckets contacts by pattern and owner. One row is
// emitted for every pattern x target owner combination, including all-zero
// ones, in a fixed order.
func AggregateScoring(contacts []hubspot.Object, resolveOwner func(string) string, targetIDs []string, cfg ScoringConfig) ([]models.ScoringSummaryRow, *RunReport) {
	targets := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		targets[id] = true
	}

	report := NewRunReport()
	scores := make(map[string]map[string]*ownerScore, len(patternOrder))
	for _, p := range patternOrder {
		scores[p] = make(map[string]*ownerScore)
	}

	for _, contact := range contacts {
		ownerID := contact.Prop("hubspot_owner_id")
		if ownerID == "" {
			report.Skip("no_owner")
			continue
		}
		if !targets[ownerID] {
			report.Skip("not_target_owner")
			continue
		}

		ref := models.ContactRef{ID: contact.ID, Name: contactDisplayName(contact), Company: "-"}

		hasIndustry := strings.TrimSpace(contact.Prop("contractor_industry")) != ""
		hasPropertyType := strings.TrimSpace(contact.Prop("contractor_property_type")) != ""
		hasArea := strings.TrimSpace(contact.Prop("contractor_area")) != ""
		hasAreaCategory := strings.TrimSpace(contact.Prop("contractor_area_category")) != ""
		hasGross := strings.TrimSpace(contact.Prop("contractor_gross2")) != ""
		targetAudience := isTargetAudience(contact, cfg)

		for _, pattern := range ContactPatterns(contact.Prop("contractor_buy_or_sell")) {
			score := scores[pattern][ownerID]
			if score == nil {
				score = &ownerScore{}
				scores[pattern][ownerID] = score
			}
			if hasIndustry {
				score.add(&score.counts.Industry, &score.contacts.Industry, ref)
			}
			if hasPropertyType {
				score.add(&score.counts.PropertyType, &score.contacts.PropertyType, ref)
			}
			if hasArea {
				score.add(&score.counts.Area, &score.contacts.Area, ref)
			}
			if hasAreaCategory {
				score.add(&score.counts.AreaCategory, &score.contacts.AreaCategory, ref)
			}
			if hasGross {
				score.add(&score.counts.Gross, &score.contacts.Gross, ref)
			}
			if hasIndustry && hasPropertyType && hasArea && hasAreaCategory && hasGross {
				score.add(&score.counts.AllFiveItems, &score.contacts.AllFiveItems, ref)
			}
			if targetAudience {
				score.add(&score.counts.TargetAudience, &score.contacts.TargetAudience, ref)
			}
		}
		report.Aggregate()
	}

	rows := make([]models.ScoringSummaryRow, 0, len(patternOrder)*len(targetIDs))
	for _, pattern := range patternOrder {
		for _, ownerID := range targetIDs {
			row := models.ScoringSummaryRow{
				OwnerID:     ownerID,
				OwnerName:   resolveOwner(ownerID),
				PatternType: pattern,
			}
			if score := scores[pattern][ownerID]; score != nil {
				row.Counts = score.counts
				row.Contacts = score.contacts
			}
			rows = append(rows, row)
		}
	}
	return rows, report
}

func contactDisplayName(o hubspot.Object) string {
	last := strings.TrimSpace(o.Prop("lastname"))
	first := strings.TrimSpace(o.Prop("firstname"))
	name := strings.TrimSpace(last + " " + first)
	if name == "" {
		return o.ID
	}
	return name
}

// fillCompanyNames resolves the associated company for every contributing
// contact and writes it into the contact refs in place. Lookups run on a
// small worker pool; failures leave the placeholder untouched.
func (e *ScoringSummaryEngine) fillCompanyNames(ctx context.Context, rows []models.ScoringSummaryRow) {
	ids := make(map[string]bool)
	for i := range rows {
		for _, refs := range rows[i].Contacts.All() {
			for _, ref := range refs {
				if ref.Company == "" || ref.Company == "-" {
					ids[ref.ID] = true
				}
			}
		}
	}
	if len(ids) == 0 {
		return
	}

	var (
		mu    gosync.Mutex
		wg    gosync.WaitGroup
		names = make(map[string]string, len(ids))
		sem   = make(chan struct{}, e.cfg.CompanyFetchWorkers)
	)
	for id := range ids {
		wg.Add(1)
		go func(contactID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			name := e.companyName(ctx, contactID)
			mu.Lock()
			names[contactID] = name
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	for i := range rows {
		for _, refs := range rows[i].Contacts.All() {
			for j := range refs {
				if name := names[refs[j].ID]; name != "" && name != "-" {
					refs[j].Company = name
				}
			}
		}
	}
	e.log.Infow("company name resolution finished", "contacts", len(ids))
}

func (e *ScoringSummaryEngine) companyName(ctx context.Context, contactID string) string {
	companyIDs, err := e.crm.AssociatedIDs(ctx, "contacts", contactID, "companies")
	if err != nil || len(companyIDs) == 0 {
		return "-"
	}
	company, err := e.crm.GetObject(ctx, "companies", companyIDs[0], []string{"name"})
	if err != nil {
		e.log.Debugw("company lookup failed", "contact_id", contactID, "error", err)
		return "-"
	}
	if name := company.Prop("name"); name != "" {
		return name
	}
	return "-"
}
