package sync

import (
	"testing"

	"hubsync/internal/hubspot"
)

func contact(id, ownerID, buy, sell string) hubspot.Object {
	return hubspot.Object{ID: id, Properties: map[string]string{
		"hubspot_owner_id":      ownerID,
		"contractor_buy_phase":  buy,
		"contractor_sell_phase": sell,
	}}
}

func TestAggregatePhases(t *testing.T) {
	contacts := []hubspot.Object{
		contact("1", "101", "S：成約した", "A：金額次第"),
		contact("2", "101", "S：成約した", "A：金額次第"),
		contact("3", "101", "S：成約した", "A：金額次第"),
		contact("4", "101", "S：成約した", ""),
		contact("5", "101", "S：成約した", ""),
		contact("6", "101", "S：成約した", ""),
		contact("7", "101", "B：検討中", "C：条件次第"),
		contact("8", "101", "", ""),
		contact("9", "101", "未設定", ""),
		contact("10", "", "S：成約した", ""),
	}
	resolve := func(id string) string {
		if id == "101" {
			return "山田 太郎"
		}
		return ""
	}

	rows, report := AggregatePhases(contacts, resolve, []string{"山田 太郎"},
		"contractor_buy_phase", "contractor_sell_phase", nil, nil)

	if report.Processed != 10 || report.Aggregated != 7 {
		t.Fatalf("report: %s", report)
	}
	if report.Skipped["no_phase"] != 2 || report.Skipped["no_owner"] != 1 {
		t.Fatalf("unexpected skip reasons: %s", report)
	}
	if !report.Reconciles() {
		t.Fatalf("report does not reconcile: %s", report)
	}

	want := map[[2]string]int{
		{"S", "A"}: 3,
		{"S", ""}:  6 - 3,
		{"B", "C"}: 1,
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d: %+v", len(want), len(rows), rows)
	}
	buyTotals := map[string]int{}
	sellTotals := map[string]int{}
	for _, row := range rows {
		if row.OwnerName != "山田 太郎" {
			t.Fatalf("unexpected owner %q", row.OwnerName)
		}
		if want[[2]string{row.BuyPhase, row.SellPhase}] != row.Count {
			t.Fatalf("pair (%q,%q) = %d, want %d", row.BuyPhase, row.SellPhase, row.Count, want[[2]string{row.BuyPhase, row.SellPhase}])
		}
		buyTotals[row.BuyPhase] += row.Count
		sellTotals[row.SellPhase] += row.Count
	}
	// Marginal totals: one-sided contributions still count on their side.
	if buyTotals["S"] != 6 || buyTotals["B"] != 1 {
		t.Fatalf("buy totals: %v", buyTotals)
	}
	if sellTotals["A"] != 3 || sellTotals["C"] != 1 {
		t.Fatalf("sell totals: %v", sellTotals)
	}
}

func TestAggregatePhasesSkipsNonTargetOwners(t *testing.T) {
	contacts := []hubspot.Object{
		contact("1", "101", "S：成約した", ""),
		contact("2", "202", "S：成約した", ""),
	}
	resolve := func(id string) string {
		return map[string]string{"101": "山田 太郎", "202": "他部署 花子"}[id]
	}

	rows, report := AggregatePhases(contacts, resolve, []string{"山田 太郎"},
		"contractor_buy_phase", "contractor_sell_phase", nil, nil)
	if len(rows) != 1 || rows[0].Count != 1 {
		t.Fatalf("expected one row for the target owner, got %+v", rows)
	}
	if report.Skipped["not_target_owner"] != 1 {
		t.Fatalf("expected one not_target_owner skip: %s", report)
	}
}

func TestAggregatePhasesEmptyTargetListKeepsEveryOwner(t *testing.T) {
	contacts := []hubspot.Object{
		contact("1", "101", "S：成約した", ""),
		contact("2", "202", "", "A：金額次第"),
	}
	resolve := func(id string) string {
		return map[string]string{"101": "山田 太郎", "202": "佐藤 花子"}[id]
	}

	rows, report := AggregatePhases(contacts, resolve, nil,
		"contractor_buy_phase", "contractor_sell_phase", nil, nil)
	if report.Aggregated != 2 {
		t.Fatalf("expected both contacts aggregated: %s", report)
	}
	owners := map[string]bool{}
	for _, row := range rows {
		owners[row.OwnerName] = true
	}
	if !owners["山田 太郎"] || !owners["佐藤 花子"] {
		t.Fatalf("expected rows for both owners, got %+v", rows)
	}
}
