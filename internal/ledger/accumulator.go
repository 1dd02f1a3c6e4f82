package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rvilela/acerto/internal/money"
)

// Merge appends incoming entries to existing, skipping any whose
// timestamp is already present. Replaying an already-ingested transcript
// therefore never double-counts, and manual corrections on existing
// entries survive re-ingestion untouched. Month-total rows never collide:
// they are derived, not merged.
func Merge(existing, incoming []Entry) (merged []Entry, added int) {
	seen := make(map[string]bool, len(existing))
	for i := range existing {
		if !existing[i].MonthTotal {
			seen[existing[i].Key()] = true
		}
	}

	merged = append(merged, existing...)
	for _, e := range incoming {
		if e.MonthTotal || seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		merged = append(merged, e)
		added++
	}
	return merged, added
}

// RecomputeMonthTotals strips previously synthesized month-total rows,
// sums each party's transfer column per calendar month, and interleaves a
// fresh total row — dated end-of-day on the month's last day — for every
// month where either party's sum is non-zero. Disregarded entries are
// excluded from the sums but kept in the listing.
func RecomputeMonthTotals(entries []Entry, parties Parties) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.MonthTotal {
			out = append(out, e)
		}
	}

	type monthSum struct {
		a, b decimal.Decimal
	}
	sums := make(map[string]monthSum)
	for i := range out {
		e := &out[i]
		if e.Classification != Transfer || e.Disregarded {
			continue
		}
		key := e.Timestamp.Format("2006-01")
		s := sums[key]
		s.a = s.a.Add(parseOrZero(e.PartyAmounts[0]))
		s.b = s.b.Add(parseOrZero(e.PartyAmounts[1]))
		sums[key] = s
	}

	for key, s := range sums {
		if s.a.IsZero() && s.b.IsZero() {
			continue
		}
		month, _ := time.Parse("2006-01", key)
		total := Entry{
			Timestamp:   endOfMonth(month),
			Description: fmt.Sprintf("Total %s", month.Format("01/2006")),
			MonthTotal:  true,
		}
		if !s.a.IsZero() {
			total.PartyAmounts[0] = money.Format(s.a)
		}
		if !s.b.IsZero() {
			total.PartyAmounts[1] = money.Format(s.b)
		}
		out = append(out, total)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			// A real 23:59:59 entry sorts before the month's total row.
			return !out[i].MonthTotal && out[j].MonthTotal
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Balance sums each party's transfer column over the whole ledger,
// skipping disregarded and total rows.
func Balance(entries []Entry) (a, b decimal.Decimal) {
	for i := range entries {
		e := &entries[i]
		if e.MonthTotal || e.Disregarded || e.Classification != Transfer {
			continue
		}
		a = a.Add(parseOrZero(e.PartyAmounts[0]))
		b = b.Add(parseOrZero(e.PartyAmounts[1]))
	}
	return a, b
}

func parseOrZero(s string) decimal.Decimal {
	d, err := money.Parse(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func endOfMonth(month time.Time) time.Time {
	firstOfNext := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.Add(-time.Second)
}
