package sync

import (
	"testing"
	"time"
)

func TestParseCRMDate(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"2025-03-15", "2025-03-15", true},
		{"2025-03-15T09:30:00Z", "2025-03-15", true},
		{"2025-03-15T09:30:00", "2025-03-15", true},
		{"1742000400000", "2025-03-15", true},
		{"  ", "", false},
		{"not-a-date", "", false},
	}
	for _, c := range cases {
		got, ok := ParseCRMDate(c.raw)
		if ok != c.ok {
			t.Fatalf("ParseCRMDate(%q) ok = %v, want %v", c.raw, ok, c.ok)
		}
		if ok && got.Format("2006-01-02") != c.want {
			t.Fatalf("ParseCRMDate(%q) = %s, want %s", c.raw, got.Format("2006-01-02"), c.want)
		}
	}
}

func TestWeekMonday(t *testing.T) {
	// 2025-03-15 is a Saturday; that week's Monday is the 10th.
	sat := time.Date(2025, 3, 15, 13, 45, 0, 0, time.UTC)
	if got := WeekMonday(sat); got.Format("2006-01-02") != "2025-03-10" {
		t.Fatalf("WeekMonday(Saturday) = %s", got.Format("2006-01-02"))
	}
	mon := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := WeekMonday(mon); !got.Equal(mon) {
		t.Fatalf("WeekMonday(Monday) = %s", got.Format("2006-01-02"))
	}
	sun := time.Date(2025, 3, 16, 23, 59, 0, 0, time.UTC)
	if got := WeekMonday(sun); got.Format("2006-01-02") != "2025-03-10" {
		t.Fatalf("WeekMonday(Sunday) = %s, Sunday belongs to the prior Monday", got.Format("2006-01-02"))
	}
}

func TestMonthStart(t *testing.T) {
	in := time.Date(2025, 12, 31, 18, 0, 0, 0, time.UTC)
	if got := MonthStart(in); got.Format("2006-01-02") != "2025-12-01" {
		t.Fatalf("MonthStart = %s", got.Format("2006-01-02"))
	}
}
