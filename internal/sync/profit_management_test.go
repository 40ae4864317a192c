package sync

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParsePrice(t *testing.T) {
	if got := ParsePrice("100,000"); got == nil || !got.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("ParsePrice(100,000) = %v", got)
	}
	if got := ParsePrice(" 1234.5 "); got == nil || !got.Equal(decimal.RequireFromString("1234.5")) {
		t.Fatalf("ParsePrice(1234.5) = %v", got)
	}
	if got := ParsePrice(""); got != nil {
		t.Fatalf("empty price should be nil, got %v", got)
	}
	if got := ParsePrice("未定"); got != nil {
		t.Fatalf("malformed price should be nil, got %v", got)
	}
}

func TestParsePriceSumsExactly(t *testing.T) {
	// 100.10 three times must be exactly 300.30, never 300.30000000000004.
	sum := decimal.Zero
	for i := 0; i < 3; i++ {
		p := ParsePrice("100.10")
		if p == nil {
			t.Fatalf("ParsePrice returned nil")
		}
		sum = sum.Add(*p)
	}
	if !sum.Equal(decimal.RequireFromString("300.30")) {
		t.Fatalf("sum = %s, want 300.30", sum)
	}
}

func TestAccountingYearMonth(t *testing.T) {
	settlement := time.Date(2025, 6, 17, 10, 0, 0, 0, time.UTC)
	contract := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)

	if got := AccountingYearMonth(&settlement, &contract); got == nil || got.Format("2006-01-02") != "2025-06-01" {
		t.Fatalf("settlement month should win: %v", got)
	}
	if got := AccountingYearMonth(nil, &contract); got == nil || got.Format("2006-01-02") != "2025-04-01" {
		t.Fatalf("contract month is the fallback: %v", got)
	}
	if got := AccountingYearMonth(nil, nil); got != nil {
		t.Fatalf("no dates should yield nil, got %v", got)
	}
}

func TestAllocateProfit(t *testing.T) {
	cases := []struct {
		gross string
		rate  string
		want  string
	}{
		{"10000000", "30", "3000000"},
		{"1000001", "50", "500001"},  // 500000.5 rounds away from zero
		{"999999", "33", "330000"},   // 329999.67 rounds up
		{"10000000", "0", "0"},
		{"-1000001", "50", "-500001"},
	}
	for _, c := range cases {
		got := AllocateProfit(decimal.RequireFromString(c.gross), decimal.RequireFromString(c.rate))
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Fatalf("AllocateProfit(%s, %s%%) = %s, want %s", c.gross, c.rate, got, c.want)
		}
	}
}
