package sync

import (
	"fmt"
	"sort"
	"strings"
)

// RunReport tracks the processed/skipped/aggregated reconciliation every
// engine performs as its internal self-check.
type RunReport struct {
	Processed  int
	Aggregated int
	Skipped    map[string]int
}

func NewRunReport() *RunReport {
	return &RunReport{Skipped: make(map[string]int)}
}

// Skip counts a record excluded for the given reason.
func (r *RunReport) Skip(reason string) {
	r.Processed++
	r.Skipped[reason]++
}

// Aggregate counts a record that contributed to at least one bucket.
func (r *RunReport) Aggregate() {
	r.Processed++
	r.Aggregated++
}

// Reconciles checks processed = aggregated + sum(skipped).
func (r *RunReport) Reconciles() bool {
	total := r.Aggregated
	for _, n := range r.Skipped {
		total += n
	}
	return total == r.Processed
}

// String renders the report for the completion log line.
func (r *RunReport) String() string {
	reasons := make([]string, 0, len(r.Skipped))
	for reason := range r.Skipped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	var b strings.Builder
	fmt.Fprintf(&b, "processed=%d aggregated=%d", r.Processed, r.Aggregated)
	for _, reason := range reasons {
		fmt.Fprintf(&b, " skipped[%s]=%d", reason, r.Skipped[reason])
	}
	if !r.Reconciles() {
		b.WriteString(" RECONCILE-MISMATCH")
	}
	return b.String()
}
