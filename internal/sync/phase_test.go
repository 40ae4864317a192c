package sync

import (
	"testing"

	"hubsync/internal/hubspot"
)

func TestExtractPhaseFromLabel(t *testing.T) {
	cases := []struct {
		label string
		want  string
		ok    bool
	}{
		{"S：成約した（金額OK＋条件OK）", "S", true},
		{"A：金額次第で成約", "A", true},
		{"B: 検討中", "B", true},
		{"z", "Z", true},
		{"  C：条件次第  ", "C", true},
		{"未設定", "", false},
		{"", "", false},
		{"その他：S", "", false},
	}
	for _, c := range cases {
		got, ok := ExtractPhaseFromLabel(c.label)
		if ok != c.ok || got != c.want {
			t.Fatalf("ExtractPhaseFromLabel(%q) = %q, %v; want %q, %v", c.label, got, ok, c.want, c.ok)
		}
	}
}

func TestNormalizePhase(t *testing.T) {
	optionMap := map[string]string{
		"phase_s_value": "S",
		"D：対象外":        "D",
	}

	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"phase_s_value", "S", true},
		{"D：対象外", "D", true},
		{"A：金額次第で成約", "A", true},
		{"b", "B", true},
		{"", "", false},
		{"unknown_value", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizePhase(c.raw, optionMap)
		if ok != c.ok || got != c.want {
			t.Fatalf("NormalizePhase(%q) = %q, %v; want %q, %v", c.raw, got, ok, c.want, c.ok)
		}
	}
}

func TestBuildPhaseOptionMap(t *testing.T) {
	options := []hubspot.PropertyOption{
		{Label: "S：成約した", Value: "opt_s"},
		{Label: "Z：対象外", Value: "opt_z"},
		{Label: "未分類", Value: "opt_misc"},
	}
	m := BuildPhaseOptionMap(options)
	if m["opt_s"] != "S" || m["S：成約した"] != "S" {
		t.Fatalf("expected both value and label keys for S, got %v", m)
	}
	if m["opt_z"] != "Z" {
		t.Fatalf("expected opt_z -> Z, got %q", m["opt_z"])
	}
	if _, ok := m["opt_misc"]; ok {
		t.Fatalf("option without a phase code must be omitted")
	}
}
