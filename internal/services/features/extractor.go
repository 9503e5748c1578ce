package features

import (
	"sort"
	"time"

	"RiskGate/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Window is a count and sum over the records of one kind in [Start, End).
type Window struct {
	Type  string          `json:"type"`
	Start time.Time       `json:"start"`
	End   time.Time       `json:"end"`
	Count int             `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// Filter selects ledger records.
type Filter func(models.TransactionRecord) bool

// OfKind matches records of kind k. An empty kind matches everything.
func OfKind(k models.Kind) Filter {
	return func(r models.TransactionRecord) bool { return k == "" || r.Kind == k }
}

// WithStatus matches records in the given status.
func WithStatus(s models.Stage) Filter {
	return func(r models.TransactionRecord) bool { return r.Status == s }
}

// WithoutStatus drops records in the given status.
func WithoutStatus(s models.Stage) Filter {
	return func(r models.TransactionRecord) bool { return r.Status != s }
}

// Excluding drops the record with the given id.
func Excluding(id string) Filter {
	return func(r models.TransactionRecord) bool { return id == "" || r.ID != id }
}

// AmountIn matches amounts in [lo, hi).
func AmountIn(lo, hi decimal.Decimal) Filter {
	return func(r models.TransactionRecord) bool {
		return r.Amount.GreaterThanOrEqual(lo) && r.Amount.LessThan(hi)
	}
}

// Select returns the records matching every filter.
func Select(records []models.TransactionRecord, filters ...Filter) []models.TransactionRecord {
	out := make([]models.TransactionRecord, 0, len(records))
next:
	for _, r := range records {
		for _, f := range filters {
			if !f(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

// Aggregate counts and sums records created in [start, end) that match filters.
func Aggregate(name string, records []models.TransactionRecord, start, end time.Time, filters ...Filter) Window {
	w := Window{Type: name, Start: start, End: end, Sum: decimal.Zero}
	for _, r := range Select(records, filters...) {
		if r.CreatedAt.Before(start) || !r.CreatedAt.Before(end) {
			continue
		}
		w.Count++
		w.Sum = w.Sum.Add(r.Amount)
	}
	return w
}

// Latest returns the most recent record matching filters.
func Latest(records []models.TransactionRecord, filters ...Filter) (models.TransactionRecord, bool) {
	var (
		best  models.TransactionRecord
		found bool
	)
	for _, r := range Select(records, filters...) {
		if !found || r.CreatedAt.After(best.CreatedAt) {
			best, found = r, true
		}
	}
	return best, found
}

// Distinct counts distinct non-empty values.
func Distinct(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// HourShare is the fraction of timestamps that fall in hour (0-23) of loc.
func HourShare(times []time.Time, hour int, loc *time.Location) float64 {
	if len(times) == 0 {
		return 0
	}
	if loc == nil {
		loc = time.UTC
	}
	n := 0
	for _, t := range times {
		if t.In(loc).Hour() == hour {
			n++
		}
	}
	return float64(n) / float64(len(times))
}

// SortByCreated orders records oldest first.
func SortByCreated(records []models.TransactionRecord) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
}
