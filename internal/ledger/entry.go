// Package ledger holds the reconciliation ledger: the entry model, the
// incremental merge and month-total math, and the sqlite-backed store.
package ledger

import (
	"strings"
	"time"
)

// TimestampLayout is the human-facing entry key format, matching the
// chat transcript ("18/04/2025 12:45:03").
const TimestampLayout = "02/01/2006 15:04:05"

// Classification of a receipt.
type Classification string

const (
	// Transfer is money moved directly between the two tracked parties
	// (PIX or wire-equivalent). Only transfers count toward who-owes-whom.
	Transfer Classification = "transferencia"
	// Payment is spend to a third-party merchant.
	Payment Classification = "pagamento"
	// Unknown means extraction could not decide.
	Unknown Classification = "desconhecido"
)

// ParseClassification accepts the stored literals plus their English
// aliases, which the fix command takes on the command line.
func ParseClassification(s string) (Classification, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transferencia", "transferência", "transfer":
		return Transfer, true
	case "pagamento", "payment":
		return Payment, true
	case "desconhecido", "unknown":
		return Unknown, true
	}
	return "", false
}

// Parties names the two tracked parties. Slot 0 is party A, slot 1 is
// party B; entry amounts are attributed by slot.
type Parties struct {
	A string
	B string
}

// SlotFor maps a message sender to a party slot.
func (p Parties) SlotFor(sender string) (int, bool) {
	switch strings.TrimSpace(sender) {
	case p.A:
		return 0, true
	case p.B:
		return 1, true
	}
	return 0, false
}

// Name returns the party name for a slot.
func (p Parties) Name(slot int) string {
	if slot == 1 {
		return p.B
	}
	return p.A
}

// Entry is one receipt record, or a synthetic month total. The timestamp
// is the natural key for non-total entries. Entries are never deleted;
// corrections mutate fields and dismissals flag Disregarded.
type Entry struct {
	Timestamp      time.Time
	Sender         string
	Classification Classification
	// Amount is the extracted or overridden value in canonical decimal
	// form; empty when nothing could be extracted.
	Amount         string
	Description    string
	AttachmentName string
	OCRText        string
	// PartyAmounts holds per-party transfer attributions; at most one
	// slot is populated, and only for Transfer entries.
	PartyAmounts [2]string
	// Annotation is the free-text audit trail ("fix: amount 10,00→12,00").
	Annotation  string
	Disregarded bool
	// MonthTotal marks the derived subtotal rows, recomputed from scratch
	// on every ledger rebuild and never edited individually.
	MonthTotal bool
}

// Key returns the timestamp in its human-facing form.
func (e *Entry) Key() string {
	return e.Timestamp.Format(TimestampLayout)
}

// PartyAmount returns the amount attributed to the given slot.
func (e *Entry) PartyAmount(slot int) string {
	if slot < 0 || slot > 1 {
		return ""
	}
	return e.PartyAmounts[slot]
}

// Annotate appends note to the entry's audit annotation.
func (e *Entry) Annotate(note string) {
	if e.Annotation == "" {
		e.Annotation = note
		return
	}
	e.Annotation += "; " + note
}
