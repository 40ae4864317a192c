package sync

import (
	"testing"

	"hubsync/internal/hubspot"
)

func TestExtractPropertyName(t *testing.T) {
	cases := []struct {
		dealName string
		want     string
	}{
		{"メゾン桜 田中様", "メゾン桜"},
		{"メゾン桜　田中様", "メゾン桜"},
		{"メゾン桜", "メゾン桜"},
		{"\tメゾン桜 ", "メゾン桜"},
		{"   ", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := ExtractPropertyName(c.dealName); got != c.want {
			t.Fatalf("ExtractPropertyName(%q) = %q, want %q", c.dealName, got, c.want)
		}
	}
}

func TestDealReachedStage(t *testing.T) {
	introduction := hubspot.Stage{ID: "st-1", Label: "物件紹介"}
	unmapped := hubspot.Stage{ID: "st-9", Label: "社内確認"}

	withDate := hubspot.Object{Properties: map[string]string{
		"introduction_datetime": "2025-03-01",
		"dealstage":             "st-9",
	}}
	if !DealReachedStage(withDate, introduction) {
		t.Fatalf("set date property should count")
	}
	if !DealReachedStage(withDate, unmapped) {
		t.Fatalf("unmapped stage falls back to the current dealstage")
	}

	without := hubspot.Object{Properties: map[string]string{"dealstage": "st-2"}}
	if DealReachedStage(without, introduction) {
		t.Fatalf("empty date property must not count")
	}
	if DealReachedStage(without, unmapped) {
		t.Fatalf("deal in another stage must not count for an unmapped stage")
	}
}

func stageDeal(id, name, ownerID string, props map[string]string) hubspot.Object {
	p := map[string]string{"dealname": name, "hubspot_owner_id": ownerID}
	for k, v := range props {
		p[k] = v
	}
	return hubspot.Object{ID: id, Properties: p}
}

func TestAggregateStages(t *testing.T) {
	stages := []hubspot.Stage{
		{ID: "st-1", Label: "物件紹介"},
		{ID: "st-2", Label: "契約"},
	}
	deals := []hubspot.Object{
		stageDeal("d-1", "メゾン桜 田中様", "101", map[string]string{
			"introduction_datetime": "2025-03-01",
			"contract_date":         "2025-04-01",
		}),
		stageDeal("d-2", "メゾン桜 佐藤様", "102", map[string]string{
			"introduction_datetime": "2025-03-02",
		}),
		stageDeal("d-3", "ハイツ欅 鈴木様", "102", nil),
		stageDeal("d-4", " 田中様", "101", nil),
	}
	resolve := func(id string) string {
		return map[string]string{"101": "甲谷 健", "102": "佐藤 一"}[id]
	}
	hidden := NewHiddenOwnerFilter([]string{"甲谷"})

	rows, ownerRows, report := AggregateStages(deals, stages, resolve, hidden)

	// 3 properties x 2 stages, zero counts included.
	if len(rows) != 6 {
		t.Fatalf("expected 6 property rows, got %d", len(rows))
	}
	get := func(property, stageID string) (int, []string) {
		for _, r := range rows {
			if r.PropertyName == property && r.StageID == stageID {
				return r.Count, r.DealIDs
			}
		}
		t.Fatalf("missing row %s/%s", property, stageID)
		return 0, nil
	}
	if n, ids := get("メゾン桜", "st-1"); n != 2 || len(ids) != 2 {
		t.Fatalf("メゾン桜 introductions = %d %v", n, ids)
	}
	if n, ids := get("メゾン桜", "st-2"); n != 1 || len(ids) != 1 || ids[0] != "d-1" {
		t.Fatalf("メゾン桜 contracts = %d %v", n, ids)
	}
	if n, _ := get("ハイツ欅", "st-1"); n != 0 {
		t.Fatalf("zero-count stage row should still exist, got %d", n)
	}

	// Hidden owner stays in the property table but not the owner table.
	for _, r := range ownerRows {
		if r.OwnerName == "甲谷 健" {
			t.Fatalf("hidden owner leaked into owner rows: %+v", r)
		}
	}
	// Owner 102 has two properties, each with every stage.
	if len(ownerRows) != 4 {
		t.Fatalf("expected 4 owner rows, got %d", len(ownerRows))
	}
	if report.Skipped["hidden_owner"] != 2 {
		t.Fatalf("expected 2 hidden owner skips: %s", report)
	}
	if !report.Reconciles() {
		t.Fatalf("report does not reconcile: %s", report)
	}
}
