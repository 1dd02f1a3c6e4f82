package ledger

import (
	"testing"
	"time"
)

var testParties = Parties{A: "Ricardo", B: "Rafael"}

func entryAt(t *testing.T, ts string, mut func(*Entry)) Entry {
	t.Helper()
	parsed, err := time.Parse(TimestampLayout, ts)
	if err != nil {
		t.Fatal(err)
	}
	e := Entry{
		Timestamp:      parsed,
		Sender:         "Ricardo",
		Classification: Payment,
		Description:    "Padaria",
	}
	if mut != nil {
		mut(&e)
	}
	return e
}

func transferBy(t *testing.T, ts, sender, amount string) Entry {
	t.Helper()
	return entryAt(t, ts, func(e *Entry) {
		e.Sender = sender
		e.Classification = Transfer
		e.Amount = amount
		slot, ok := testParties.SlotFor(sender)
		if !ok {
			t.Fatalf("unknown sender %q", sender)
		}
		e.PartyAmounts[slot] = amount
	})
}

func TestMerge_SkipsDuplicateTimestamps(t *testing.T) {
	existing := []Entry{
		entryAt(t, "18/04/2025 12:45:03", func(e *Entry) { e.Annotation = "fix: amount 10,00→12,00" }),
	}
	incoming := []Entry{
		entryAt(t, "18/04/2025 12:45:03", nil), // replayed ingestion
		entryAt(t, "19/04/2025 09:00:00", nil),
	}

	merged, added := Merge(existing, incoming)
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if len(merged) != 2 {
		t.Fatalf("merged has %d entries, want 2", len(merged))
	}
	// The existing entry, with its manual correction, must win.
	if merged[0].Annotation != "fix: amount 10,00→12,00" {
		t.Errorf("existing entry clobbered by replay: %+v", merged[0])
	}
}

func TestMerge_ReplayIsIdempotent(t *testing.T) {
	batch := []Entry{
		entryAt(t, "18/04/2025 12:45:03", nil),
		entryAt(t, "19/04/2025 09:00:00", nil),
	}

	once, _ := Merge(nil, batch)
	twice, added := Merge(once, batch)
	if added != 0 {
		t.Errorf("second merge added %d entries, want 0", added)
	}
	if len(twice) != len(once) {
		t.Errorf("second merge changed entry count: %d -> %d", len(once), len(twice))
	}
}

func TestRecomputeMonthTotals(t *testing.T) {
	entries := []Entry{
		transferBy(t, "18/04/2025 12:45:03", "Ricardo", "29,90"),
		transferBy(t, "20/04/2025 08:00:00", "Rafael", "100,00"),
		transferBy(t, "02/05/2025 10:00:00", "Ricardo", "1.000,00"),
		entryAt(t, "03/05/2025 11:00:00", nil), // payment, never attributed
		// June has only a disregarded transfer: no total row expected.
		transferBy(t, "10/06/2025 09:00:00", "Rafael", "50,00"),
	}
	entries[4].Disregarded = true

	// Stale totals from a previous run must be purged, not doubled.
	stale := Entry{Timestamp: time.Date(2025, 4, 30, 23, 59, 59, 0, time.UTC), MonthTotal: true}
	stale.PartyAmounts[0] = "999,99"
	entries = append(entries, stale)

	out := RecomputeMonthTotals(entries, testParties)

	var totals []Entry
	for _, e := range out {
		if e.MonthTotal {
			totals = append(totals, e)
		}
	}
	if len(totals) != 2 {
		t.Fatalf("got %d month totals, want 2 (April, May): %+v", len(totals), totals)
	}

	april := totals[0]
	if got := april.Timestamp.Format(TimestampLayout); got != "30/04/2025 23:59:59" {
		t.Errorf("April total dated %s, want last day end-of-day", got)
	}
	if april.PartyAmounts[0] != "29,90" || april.PartyAmounts[1] != "100,00" {
		t.Errorf("April sums = %q/%q, want 29,90/100,00", april.PartyAmounts[0], april.PartyAmounts[1])
	}

	may := totals[1]
	if got := may.Timestamp.Format(TimestampLayout); got != "31/05/2025 23:59:59" {
		t.Errorf("May total dated %s, want last day end-of-day", got)
	}
	if may.PartyAmounts[0] != "1.000,00" || may.PartyAmounts[1] != "" {
		t.Errorf("May sums = %q/%q, want 1.000,00/empty", may.PartyAmounts[0], may.PartyAmounts[1])
	}

	// Full set stays time-sorted with totals at month boundaries.
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp.Before(out[i-1].Timestamp) {
			t.Errorf("output not sorted at %d: %s after %s", i, out[i].Key(), out[i-1].Key())
		}
	}
}

func TestRecomputeMonthTotals_Recomputable(t *testing.T) {
	entries := []Entry{transferBy(t, "18/04/2025 12:45:03", "Ricardo", "29,90")}

	once := RecomputeMonthTotals(entries, testParties)
	twice := RecomputeMonthTotals(once, testParties)
	if len(once) != len(twice) {
		t.Fatalf("recompute not stable: %d -> %d entries", len(once), len(twice))
	}
}

func TestBalance(t *testing.T) {
	entries := []Entry{
		transferBy(t, "18/04/2025 12:45:03", "Ricardo", "29,90"),
		transferBy(t, "19/04/2025 12:45:03", "Rafael", "10,00"),
		transferBy(t, "20/04/2025 12:45:03", "Ricardo", "0,10"),
	}
	entries[2].Disregarded = true

	a, b := Balance(entries)
	if a.String() != "29.9" {
		t.Errorf("party A balance = %s, want 29.9 (disregarded excluded)", a)
	}
	if b.String() != "10" {
		t.Errorf("party B balance = %s, want 10", b)
	}
}

func TestPartiesSlotFor(t *testing.T) {
	if slot, ok := testParties.SlotFor("Ricardo"); !ok || slot != 0 {
		t.Errorf("SlotFor(Ricardo) = %d, %v", slot, ok)
	}
	if slot, ok := testParties.SlotFor(" Rafael "); !ok || slot != 1 {
		t.Errorf("SlotFor(Rafael) = %d, %v", slot, ok)
	}
	if _, ok := testParties.SlotFor("Maria"); ok {
		t.Error("SlotFor(Maria) should not resolve")
	}
}
