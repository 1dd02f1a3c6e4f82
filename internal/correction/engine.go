// Package correction applies point-in-time fixes to single ledger
// entries: field overrides, dismissals, image rotation and forced
// re-extraction. Every invocation, successful or not, appends exactly one
// record to the correction history.
package correction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rvilela/acerto/internal/files"
	"github.com/rvilela/acerto/internal/infer"
	"github.com/rvilela/acerto/internal/ledger"
	"github.com/rvilela/acerto/internal/logger"
	"github.com/rvilela/acerto/internal/money"
	"github.com/rvilela/acerto/internal/ocr"
)

// Input-validation and missing-resource failures, reported distinctly so
// callers (and tests) can tell them apart. None of them crash a batch.
var (
	ErrBadTimestamp       = errors.New("correction: malformed timestamp, want DD/MM/YYYY HH:MM:SS")
	ErrBadAmount          = errors.New("correction: malformed amount")
	ErrBadClassification  = errors.New("correction: unknown classification")
	ErrBadRotation        = errors.New("correction: rotation must be 90, 180 or 270")
	ErrEntryNotFound      = errors.New("correction: no ledger entry with that timestamp")
	ErrAttachmentNotFound = errors.New("correction: attachment file not found")
)

// Request describes one correction. Empty/zero fields are left untouched.
type Request struct {
	Timestamp         string
	NewAmount         string
	NewClassification string
	NewDescription    string
	Dismiss           bool
	RotateDegrees     int
	Reinfer           bool
}

// Outcome reports what a successful correction did.
type Outcome struct {
	Entry *ledger.Entry
	// Reinferred carries newly derived values when Reinfer was requested.
	// They are surfaced for the caller to judge, never auto-applied.
	Reinferred *infer.Fields
	// ReinferredOCRText is the freshly extracted text behind Reinferred.
	ReinferredOCRText string
}

// Engine wires the correction operations over the ledger store and the
// extraction components.
type Engine struct {
	repo      ledger.Repository
	parties   ledger.Parties
	resolver  *files.Resolver
	extractor *ocr.Extractor
	inferrer  *infer.Engine
	// fallbackLog is a JSONL path used when the history table write
	// fails; the audit trail must never drop silently.
	fallbackLog string
}

// NewEngine creates a correction engine.
func NewEngine(repo ledger.Repository, parties ledger.Parties, resolver *files.Resolver,
	extractor *ocr.Extractor, inferrer *infer.Engine, fallbackLog string) *Engine {
	return &Engine{
		repo:        repo,
		parties:     parties,
		resolver:    resolver,
		extractor:   extractor,
		inferrer:    inferrer,
		fallbackLog: fallbackLog,
	}
}

// Fix executes one correction request. The entry is located by exact
// timestamp; validation failures and missing resources abort the
// operation with no partial mutation, but still produce a history record.
func (e *Engine) Fix(ctx context.Context, req Request) (out *Outcome, err error) {
	start := time.Now()
	rec := ledger.CorrectionRecord{
		ID:         uuid.NewString(),
		Command:    commandOf(req),
		Changes:    map[string]ledger.FieldChange{},
		ExecutedAt: start,
	}
	defer func() {
		rec.Success = err == nil
		if err != nil {
			rec.Error = err.Error()
		}
		rec.Duration = time.Since(start)
		e.appendRecord(ctx, rec)
	}()

	ts, parseErr := time.Parse(ledger.TimestampLayout, strings.TrimSpace(req.Timestamp))
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTimestamp, req.Timestamp)
	}
	rec.EntryTimestamp = ts

	newAmount := ""
	if req.NewAmount != "" {
		if !money.Valid(req.NewAmount) {
			return nil, fmt.Errorf("%w: %q", ErrBadAmount, req.NewAmount)
		}
		newAmount = money.Normalize(req.NewAmount)
	}

	var newClass ledger.Classification
	if req.NewClassification != "" {
		var ok bool
		if newClass, ok = ledger.ParseClassification(req.NewClassification); !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadClassification, req.NewClassification)
		}
	}

	if req.RotateDegrees != 0 && req.RotateDegrees != 90 && req.RotateDegrees != 180 && req.RotateDegrees != 270 {
		return nil, fmt.Errorf("%w: got %d", ErrBadRotation, req.RotateDegrees)
	}

	entries, loadErr := e.repo.LoadAll(ctx)
	if loadErr != nil {
		return nil, fmt.Errorf("correction.Fix: %w", loadErr)
	}

	entry := findEntry(entries, ts)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, req.Timestamp)
	}

	out = &Outcome{Entry: entry}

	if req.Dismiss {
		// Dismiss short-circuits field edits for this call; an already
		// dismissed entry stays dismissed and only gains a record.
		rec.Changes["disregarded"] = ledger.FieldChange{
			Old: fmt.Sprintf("%v", entry.Disregarded), New: "true",
		}
		entry.Disregarded = true
		entry.Annotate("dismiss")
	} else {
		e.applyFieldEdits(entry, newAmount, newClass, req.NewDescription, rec.Changes)
	}

	if req.RotateDegrees != 0 {
		if err := e.rotate(entry, req.RotateDegrees, rec.Changes); err != nil {
			return nil, err
		}
	}

	if req.Reinfer {
		text, fields, reinfErr := e.reinfer(ctx, entry)
		if reinfErr != nil {
			return nil, reinfErr
		}
		out.Reinferred = &fields
		out.ReinferredOCRText = text
	}

	entries = ledger.RecomputeMonthTotals(entries, e.parties)
	if saveErr := e.repo.SaveAll(ctx, entries); saveErr != nil {
		return nil, fmt.Errorf("correction.Fix: save: %w", saveErr)
	}

	// SaveAll persisted a copy; re-find so the outcome reflects it.
	out.Entry = findEntry(entries, ts)
	return out, nil
}

// applyFieldEdits performs the supplied overrides. A new amount on a
// transfer whose party slot is still empty is auto-applied to that slot.
func (e *Engine) applyFieldEdits(entry *ledger.Entry, newAmount string,
	newClass ledger.Classification, newDesc string, changes map[string]ledger.FieldChange) {

	if newAmount != "" {
		slot, slotOK := e.parties.SlotFor(entry.Sender)
		if entry.Classification == ledger.Transfer && slotOK && entry.PartyAmounts[slot] == "" {
			changes["amount"] = ledger.FieldChange{Old: entry.Amount, New: newAmount}
			entry.Amount = newAmount
			entry.PartyAmounts[slot] = newAmount
			entry.Annotate(fmt.Sprintf("fix-auto: amount %s (%s)", newAmount, e.parties.Name(slot)))
		} else {
			changes["amount"] = ledger.FieldChange{Old: entry.Amount, New: newAmount}
			entry.Annotate(fmt.Sprintf("fix: amount: %s→%s", entry.Amount, newAmount))
			entry.Amount = newAmount
			if entry.Classification == ledger.Transfer && slotOK {
				entry.PartyAmounts[slot] = newAmount
			}
		}
	}

	if newClass != "" && newClass != entry.Classification {
		changes["classification"] = ledger.FieldChange{Old: string(entry.Classification), New: string(newClass)}
		entry.Annotate(fmt.Sprintf("fix: classification: %s→%s", entry.Classification, newClass))
		entry.Classification = newClass
		slot, slotOK := e.parties.SlotFor(entry.Sender)
		if newClass == ledger.Transfer && slotOK && entry.Amount != "" {
			entry.PartyAmounts[slot] = entry.Amount
		}
		if newClass != ledger.Transfer {
			// Party columns carry transfers only.
			entry.PartyAmounts[0] = ""
			entry.PartyAmounts[1] = ""
		}
	}

	if newDesc != "" && newDesc != entry.Description {
		changes["description"] = ledger.FieldChange{Old: entry.Description, New: newDesc}
		entry.Annotate(fmt.Sprintf("fix: description: %s→%s", entry.Description, newDesc))
		entry.Description = newDesc
	}
}

func (e *Engine) rotate(entry *ledger.Entry, degrees int, changes map[string]ledger.FieldChange) error {
	if entry.AttachmentName == "" {
		return fmt.Errorf("%w: entry has no attachment", ErrAttachmentNotFound)
	}
	path, err := e.resolver.Resolve(entry.AttachmentName)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAttachmentNotFound, entry.AttachmentName)
	}

	rotatedPath, err := files.Rotate(path, degrees)
	if err != nil {
		return fmt.Errorf("correction: rotate: %w", err)
	}
	entry.Annotate(fmt.Sprintf("rotate: %d", degrees))
	changes["rotation"] = ledger.FieldChange{New: fmt.Sprintf("%d", degrees)}

	// A rotated PDF becomes a PNG raster; keep the entry pointing at it.
	if newBase := filepath.Base(rotatedPath); newBase != entry.AttachmentName {
		changes["attachment_name"] = ledger.FieldChange{Old: entry.AttachmentName, New: newBase}
		entry.AttachmentName = newBase
	}
	return nil
}

// reinfer re-runs OCR (bypassing the cache) and inference against the
// attachment and reports the derived values without applying them.
func (e *Engine) reinfer(ctx context.Context, entry *ledger.Entry) (string, infer.Fields, error) {
	if entry.AttachmentName == "" {
		return "", infer.Fields{}, fmt.Errorf("%w: entry has no attachment", ErrAttachmentNotFound)
	}
	res := e.extractor.ExtractForced(ctx, entry.AttachmentName)
	if res.Kind == ocr.NotFound {
		return "", infer.Fields{}, fmt.Errorf("%w: %s", ErrAttachmentNotFound, entry.AttachmentName)
	}

	imagePath, _ := e.resolver.Resolve(entry.AttachmentName)
	fields := e.inferrer.Infer(ctx, res.Text, imagePath)
	return res.Text, fields, nil
}

// appendRecord durably logs the attempt. A failed history-table write
// falls back to a JSONL append so the record is never lost silently.
func (e *Engine) appendRecord(ctx context.Context, rec ledger.CorrectionRecord) {
	if err := e.repo.AppendCorrection(ctx, rec); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("record_id", rec.ID).Msg("correction history write failed, using fallback log")
		if fbErr := appendJSONL(e.fallbackLog, rec); fbErr != nil {
			log.Error().Err(fbErr).Str("record_id", rec.ID).Msg("correction fallback log write failed")
		}
	}
}

func findEntry(entries []ledger.Entry, ts time.Time) *ledger.Entry {
	for i := range entries {
		if !entries[i].MonthTotal && entries[i].Timestamp.Equal(ts) {
			return &entries[i]
		}
	}
	return nil
}

func commandOf(req Request) string {
	var parts []string
	if req.Dismiss {
		parts = append(parts, "dismiss")
	}
	if req.NewAmount != "" || req.NewClassification != "" || req.NewDescription != "" {
		parts = append(parts, "fix")
	}
	if req.RotateDegrees != 0 {
		parts = append(parts, "rotate")
	}
	if req.Reinfer {
		parts = append(parts, "reinfer")
	}
	if len(parts) == 0 {
		return "fix"
	}
	return strings.Join(parts, "+")
}
