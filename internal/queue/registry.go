package queue

// Cadence buckets used by the enqueue-all scheduler.
const (
	CadenceDaily   = "daily"
	CadenceWeekly  = "weekly"
	CadenceMonthly = "monthly"
)

// Definition describes a runnable batch job type.
type Definition struct {
	Key        string
	Name       string
	Priority   int
	MaxRetries int
	Cadence    string
}

// registry is the closed set of job types. Enqueue rejects anything else.
var registry = []Definition{
	{Key: "contact-phase-summary", Name: "Contact phase summary (weekly)", Priority: 5, MaxRetries: 2, Cadence: CadenceWeekly},
	{Key: "contact-phase-summary-monthly", Name: "Contact phase summary (monthly)", Priority: 4, MaxRetries: 2, Cadence: CadenceMonthly},
	{Key: "contact-scoring-summary", Name: "Contact scoring summary", Priority: 5, MaxRetries: 2, Cadence: CadenceWeekly},
	{Key: "purchase-achievements", Name: "Purchase achievements sync", Priority: 3, MaxRetries: 2, Cadence: CadenceDaily},
	{Key: "profit-management", Name: "Profit management sync", Priority: 4, MaxRetries: 2, Cadence: CadenceDaily},
	{Key: "property-sales-stage-summary", Name: "Property sales stage summary", Priority: 4, MaxRetries: 2, Cadence: CadenceDaily},
	{Key: "purchase-summary", Name: "Purchase summary", Priority: 3, MaxRetries: 2, Cadence: CadenceDaily},
	{Key: "sales-summary", Name: "Sales summary", Priority: 3, MaxRetries: 2, Cadence: CadenceDaily},
}

// Lookup returns the definition for a job key.
func Lookup(key string) (Definition, bool) {
	for _, d := range registry {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// All returns every registered definition.
func All() []Definition {
	out := make([]Definition, len(registry))
	copy(out, registry)
	return out
}

// ByCadence returns the definitions scheduled at the given cadence.
func ByCadence(cadence string) []Definition {
	var out []Definition
	for _, d := range registry {
		if d.Cadence == cadence {
			out = append(out, d)
		}
	}
	return out
}
