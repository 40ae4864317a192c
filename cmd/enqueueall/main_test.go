package main

import (
	"testing"
	"time"

	"hubsync/internal/queue"
)

func keys(defs []queue.Definition) map[string]bool {
	out := make(map[string]bool, len(defs))
	for _, d := range defs {
		out[d.Key] = true
	}
	return out
}

func TestDueDefinitions(t *testing.T) {
	// 2025-03-12 is a plain Wednesday.
	wed := time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC)
	got := keys(dueDefinitions(wed))
	if !got["sales-summary"] || got["contact-phase-summary"] || got["contact-phase-summary-monthly"] {
		t.Fatalf("weekday run: %v", got)
	}

	// 2025-03-10 is a Monday: weekly jobs join.
	mon := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	got = keys(dueDefinitions(mon))
	if !got["contact-phase-summary"] || !got["contact-scoring-summary"] || got["contact-phase-summary-monthly"] {
		t.Fatalf("monday run: %v", got)
	}

	// 2025-09-01 is both a Monday and the 1st: everything fires.
	first := time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC)
	got = keys(dueDefinitions(first))
	for _, def := range queue.All() {
		if !got[def.Key] {
			t.Fatalf("1st-of-month monday should fire %s: %v", def.Key, got)
		}
	}
}
