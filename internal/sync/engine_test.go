package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"hubsync/internal/hubspot"
	"hubsync/internal/models"
	"hubsync/internal/progress"
)

// fakeCRM serves canned data for engine tests.
type fakeCRM struct {
	owners       []hubspot.Owner
	properties   map[string][]hubspot.Property
	searches     map[string][]hubspot.Object
	pipelines    []hubspot.Pipeline
	associations map[string][]string
	objects      map[string]hubspot.Object
}

func (f *fakeCRM) SearchAll(_ context.Context, objectType string, _ hubspot.SearchRequest) ([]hubspot.Object, error) {
	return f.searches[objectType], nil
}

func (f *fakeCRM) ListOwners(context.Context) ([]hubspot.Owner, error) { return f.owners, nil }

func (f *fakeCRM) GetOwner(_ context.Context, id string) (hubspot.Owner, error) {
	for _, o := range f.owners {
		if o.ID == id {
			return o, nil
		}
	}
	return hubspot.Owner{}, fmt.Errorf("owner %s not found", id)
}

func (f *fakeCRM) DealPipelines(context.Context) ([]hubspot.Pipeline, error) {
	return f.pipelines, nil
}

func (f *fakeCRM) ListProperties(_ context.Context, objectType string) ([]hubspot.Property, error) {
	return f.properties[objectType], nil
}

func (f *fakeCRM) AssociatedIDs(_ context.Context, fromType, fromID, toType string) ([]string, error) {
	return f.associations[fromType+"/"+fromID+"/"+toType], nil
}

func (f *fakeCRM) GetObject(_ context.Context, objectType, id string, _ []string) (hubspot.Object, error) {
	if obj, ok := f.objects[objectType+"/"+id]; ok {
		return obj, nil
	}
	return hubspot.Object{ID: id}, nil
}

func (f *fakeCRM) BatchRead(context.Context, string, []string, []string) ([]hubspot.Object, error) {
	return nil, nil
}

type fakePhaseStore struct {
	date   time.Time
	period string
	rows   []models.PhaseSummaryRow
	calls  int
}

func (s *fakePhaseStore) ReplacePhaseSummary(_ context.Context, date time.Time, periodType string, rows []models.PhaseSummaryRow) error {
	s.date = date
	s.period = periodType
	s.rows = rows
	s.calls++
	return nil
}

func TestPhaseSummaryEngineRun(t *testing.T) {
	crm := &fakeCRM{
		owners: []hubspot.Owner{{ID: "101", LastName: "山田", FirstName: "太郎"}},
		properties: map[string][]hubspot.Property{
			"contacts": {
				{Name: "contractor_buy_phase", Label: "仕入フェーズ", Options: []hubspot.PropertyOption{
					{Label: "S：成約した", Value: "opt_s"},
				}},
				{Name: "contractor_sell_phase", Label: "販売フェーズ"},
			},
		},
		searches: map[string][]hubspot.Object{
			"contacts": {
				contact("1", "101", "opt_s", ""),
				contact("2", "101", "opt_s", "A：金額次第"),
				contact("3", "101", "", ""),
			},
		},
	}
	store := &fakePhaseStore{}
	log := zap.NewNop().Sugar()
	reporter := progress.New(nil, 0, log)

	e := NewPhaseSummaryEngine(PhaseSummaryConfig{
		PeriodType:   models.PeriodWeekly,
		TargetOwners: []string{"山田 太郎"},
	}, crm, store, reporter, log)
	e.now = func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected one save, got %d", store.calls)
	}
	if store.period != models.PeriodWeekly {
		t.Fatalf("period = %q", store.period)
	}
	if store.date.Format("2006-01-02") != "2025-03-10" {
		t.Fatalf("aggregation date = %s, want that week's Monday", store.date.Format("2006-01-02"))
	}
	if len(store.rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", store.rows)
	}
	for _, row := range store.rows {
		if row.BuyPhase != "S" {
			t.Fatalf("option value should map through the property options: %+v", row)
		}
	}

	// A second run replaces rather than appends.
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if store.calls != 2 || len(store.rows) != 2 {
		t.Fatalf("second run should write the same 2 rows, got %d calls %d rows", store.calls, len(store.rows))
	}
}

func TestPhaseSummaryEngineMonthlyDate(t *testing.T) {
	crm := &fakeCRM{
		owners:     []hubspot.Owner{{ID: "101", LastName: "山田", FirstName: "太郎"}},
		properties: map[string][]hubspot.Property{},
		searches:   map[string][]hubspot.Object{},
	}
	store := &fakePhaseStore{}
	log := zap.NewNop().Sugar()

	e := NewPhaseSummaryEngine(PhaseSummaryConfig{PeriodType: models.PeriodMonthly}, crm, store, progress.New(nil, 0, log), log)
	e.now = func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.date.Format("2006-01-02") != "2025-03-01" {
		t.Fatalf("monthly aggregation date = %s", store.date.Format("2006-01-02"))
	}
}

type fakeScoringStore struct {
	rows []models.ScoringSummaryRow
}

func (s *fakeScoringStore) ReplaceScoringSummary(_ context.Context, _ time.Time, rows []models.ScoringSummaryRow) error {
	s.rows = rows
	return nil
}

func TestScoringSummaryEngineResolvesCompanyNames(t *testing.T) {
	crm := &fakeCRM{
		owners: []hubspot.Owner{{ID: "101", LastName: "山田", FirstName: "太郎"}},
		searches: map[string][]hubspot.Object{
			"contacts": {
				{ID: "1", Properties: map[string]string{
					"hubspot_owner_id":    "101",
					"lastname":            "佐藤",
					"firstname":           "花子",
					"contractor_industry": "買取",
				}},
				{ID: "2", Properties: map[string]string{
					"hubspot_owner_id":    "101",
					"contractor_industry": "買取",
				}},
			},
		},
		associations: map[string][]string{
			"contacts/1/companies": {"9"},
		},
		objects: map[string]hubspot.Object{
			"companies/9": {ID: "9", Properties: map[string]string{"name": "株式会社テスト"}},
		},
	}
	store := &fakeScoringStore{}
	log := zap.NewNop().Sugar()

	e := NewScoringSummaryEngine(ScoringConfig{
		TargetOwners:        []string{"山田 太郎"},
		IncludeCompanyNames: true,
	}, crm, store, progress.New(nil, 0, log), log)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.rows) == 0 {
		t.Fatalf("no rows saved")
	}

	companies := map[string]string{}
	for _, row := range store.rows {
		if row.PatternType != PatternAll {
			continue
		}
		for _, ref := range row.Contacts.Industry {
			companies[ref.ID] = ref.Company
		}
	}
	if companies["1"] != "株式会社テスト" {
		t.Fatalf("associated company should be resolved into the refs, got %q", companies["1"])
	}
	if companies["2"] != "-" {
		t.Fatalf("contact without a company keeps the placeholder, got %q", companies["2"])
	}
}
