package queue

import (
	"testing"
)

func TestLookupKnownKeys(t *testing.T) {
	for _, key := range []string{
		"contact-phase-summary",
		"contact-phase-summary-monthly",
		"contact-scoring-summary",
		"purchase-achievements",
		"profit-management",
		"property-sales-stage-summary",
		"purchase-summary",
		"sales-summary",
	} {
		def, ok := Lookup(key)
		if !ok {
			t.Fatalf("expected %s to be registered", key)
		}
		if def.Key != key {
			t.Fatalf("definition key mismatch: %s != %s", def.Key, key)
		}
		if def.Priority <= 0 {
			t.Fatalf("expected positive priority for %s", key)
		}
	}
}

func TestLookupUnknownKey(t *testing.T) {
	if _, ok := Lookup("contact-sales-badge"); ok {
		t.Fatalf("expected unregistered key to be rejected")
	}
	if _, ok := Lookup(""); ok {
		t.Fatalf("expected empty key to be rejected")
	}
}

func TestByCadence(t *testing.T) {
	daily := ByCadence(CadenceDaily)
	if len(daily) != 5 {
		t.Fatalf("expected 5 daily jobs, got %d", len(daily))
	}
	monthly := ByCadence(CadenceMonthly)
	if len(monthly) != 1 || monthly[0].Key != "contact-phase-summary-monthly" {
		t.Fatalf("unexpected monthly set: %+v", monthly)
	}
}
