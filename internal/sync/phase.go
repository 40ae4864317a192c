package sync

import (
	"strings"

	"hubsync/internal/hubspot"
)

// Phases is the closed set of phase codes, in display order.
var Phases = []string{"S", "A", "B", "C", "D", "Z"}

func isPhase(v string) bool {
	for _, p := range Phases {
		if v == p {
			return true
		}
	}
	return false
}

// ExtractPhaseFromLabel pulls the phase code out of an option label like
// "S：成約した（金額OK＋条件OK）". Both the full-width and ASCII colon occur
// in real portal data.
func ExtractPhaseFromLabel(label string) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}

	upper := strings.ToUpper(label)
	if first := string([]rune(upper)[0]); isPhase(first) {
		return first, true
	}

	for _, sep := range []string{"：", ":"} {
		if strings.Contains(label, sep) {
			head := strings.ToUpper(strings.TrimSpace(strings.SplitN(label, sep, 2)[0]))
			if isPhase(head) {
				return head, true
			}
		}
	}
	return "", false
}

// NormalizePhase maps a raw property value onto a phase code. The option
// map translates stored values and labels; free text falls back to label
// extraction and finally a single-letter uppercase check. Anything else is
// excluded from the aggregation rather than miscategorized.
func NormalizePhase(raw string, optionMap map[string]string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if mapped, ok := optionMap[raw]; ok && isPhase(mapped) {
		return mapped, true
	}
	if extracted, ok := ExtractPhaseFromLabel(raw); ok {
		return extracted, true
	}
	if upper := strings.ToUpper(raw); isPhase(upper) {
		return upper, true
	}
	return "", false
}

// BuildPhaseOptionMap indexes a property's options by both label and stored
// value, each resolving to the extracted phase code.
func BuildPhaseOptionMap(options []hubspot.PropertyOption) map[string]string {
	m := make(map[string]string, len(options)*2)
	for _, opt := range options {
		phase, ok := ExtractPhaseFromLabel(opt.Label)
		if !ok {
			continue
		}
		if opt.Label != "" {
			m[opt.Label] = phase
		}
		if opt.Value != "" {
			m[opt.Value] = phase
		}
	}
	return m
}
