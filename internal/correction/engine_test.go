package correction

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/rvilela/acerto/internal/files"
	"github.com/rvilela/acerto/internal/infer"
	"github.com/rvilela/acerto/internal/ledger"
	"github.com/rvilela/acerto/internal/ocr"
)

var testParties = ledger.Parties{A: "Ricardo", B: "Rafael"}

type fixture struct {
	engine   *Engine
	repo     *ledger.SQLiteRepository
	incoming string
}

type fakeOCREngine struct{ text string }

func (f *fakeOCREngine) ImageText(path string) (string, error) { return f.text, nil }

type fakeLLM struct{ amount, desc, classify string }

func (f *fakeLLM) GenerateText(ctx context.Context, prompt string) (string, error) {
	switch {
	case f.amount != "" && strings.Contains(prompt, "total amount"):
		return f.amount, nil
	case f.classify != "" && strings.Contains(prompt, "transferencia or pagamento"):
		return f.classify, nil
	case f.desc != "":
		return f.desc, nil
	}
	return "", errors.New("no answer configured")
}

func (f *fakeLLM) GenerateVision(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	return "", errors.New("no vision configured")
}

func newFixture(t *testing.T, entries []ledger.Entry, ocrText string) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := ledger.OpenSQLite(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.SaveAll(context.Background(), entries); err != nil {
		t.Fatalf("seed SaveAll failed: %v", err)
	}

	incoming := t.TempDir()
	resolver := files.NewResolver(incoming, t.TempDir())

	cache, err := ocr.OpenCache(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })
	extractor := ocr.NewExtractor(cache, resolver, &fakeOCREngine{text: ocrText})

	inferrer := infer.NewEngine(&fakeLLM{amount: "55,00", desc: "Mercado Central", classify: "transferencia"}, 5*time.Second)

	eng := NewEngine(repo, testParties, resolver, extractor, inferrer, filepath.Join(dir, "corrections.jsonl"))
	return &fixture{engine: eng, repo: repo, incoming: incoming}
}

func seedEntry(t *testing.T, ts string, mut func(*ledger.Entry)) ledger.Entry {
	t.Helper()
	parsed, err := time.Parse(ledger.TimestampLayout, ts)
	if err != nil {
		t.Fatal(err)
	}
	e := ledger.Entry{
		Timestamp:      parsed,
		Sender:         "Ricardo",
		Classification: ledger.Transfer,
		AttachmentName: "receipt.png",
		Description:    "Padaria",
	}
	if mut != nil {
		mut(&e)
	}
	return e
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * 13) % 256)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func countRecords(t *testing.T, repo *ledger.SQLiteRepository) []ledger.CorrectionRecord {
	t.Helper()
	recs, err := repo.ListCorrections(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestFix_AutoApplyAmountToPartyColumn(t *testing.T) {
	fx := newFixture(t, []ledger.Entry{seedEntry(t, "18/04/2025 12:45:03", nil)}, "")

	out, err := fx.engine.Fix(context.Background(), Request{
		Timestamp: "18/04/2025 12:45:03",
		NewAmount: "12,00",
	})
	if err != nil {
		t.Fatalf("Fix failed: %v", err)
	}

	if got := out.Entry.PartyAmount(0); got != "12,00" {
		t.Errorf("party A amount = %q, want 12,00", got)
	}
	if got := out.Entry.PartyAmount(1); got != "" {
		t.Errorf("party B amount = %q, want empty", got)
	}
	if !strings.Contains(out.Entry.Annotation, "fix-auto") {
		t.Errorf("annotation = %q, want fix-auto marker", out.Entry.Annotation)
	}

	recs := countRecords(t, fx.repo)
	if len(recs) != 1 || !recs[0].Success {
		t.Fatalf("records = %+v, want one successful record", recs)
	}
}

func TestFix_ExplicitOverrides(t *testing.T) {
	fx := newFixture(t, []ledger.Entry{seedEntry(t, "18/04/2025 12:45:03", func(e *ledger.Entry) {
		e.Amount = "10,00"
		e.PartyAmounts[0] = "10,00"
	})}, "")

	out, err := fx.engine.Fix(context.Background(), Request{
		Timestamp:      "18/04/2025 12:45:03",
		NewAmount:      "12,00",
		NewDescription: "Feira da semana",
	})
	if err != nil {
		t.Fatalf("Fix failed: %v", err)
	}

	if out.Entry.Amount != "12,00" || out.Entry.PartyAmount(0) != "12,00" {
		t.Errorf("amount override not applied: %+v", out.Entry)
	}
	if out.Entry.Description != "Feira da semana" {
		t.Errorf("description = %q", out.Entry.Description)
	}
	if !strings.Contains(out.Entry.Annotation, "fix: amount: 10,00→12,00") {
		t.Errorf("annotation = %q", out.Entry.Annotation)
	}
}

func TestFix_ReclassifyMovesPartyAmount(t *testing.T) {
	fx := newFixture(t, []ledger.Entry{seedEntry(t, "18/04/2025 12:45:03", func(e *ledger.Entry) {
		e.Classification = ledger.Payment
		e.Amount = "30,00"
	})}, "")

	out, err := fx.engine.Fix(context.Background(), Request{
		Timestamp:         "18/04/2025 12:45:03",
		NewClassification: "transferencia",
	})
	if err != nil {
		t.Fatalf("Fix failed: %v", err)
	}
	if out.Entry.Classification != ledger.Transfer {
		t.Errorf("classification = %q", out.Entry.Classification)
	}
	if out.Entry.PartyAmount(0) != "30,00" {
		t.Errorf("party A amount = %q, want amount moved into column on reclassify", out.Entry.PartyAmount(0))
	}

	// And back: party columns must clear when it stops being a transfer.
	out, err = fx.engine.Fix(context.Background(), Request{
		Timestamp:         "18/04/2025 12:45:03",
		NewClassification: "pagamento",
	})
	if err != nil {
		t.Fatalf("second Fix failed: %v", err)
	}
	if out.Entry.PartyAmount(0) != "" || out.Entry.PartyAmount(1) != "" {
		t.Errorf("party columns not cleared: %+v", out.Entry.PartyAmounts)
	}
}

func TestFix_DismissIsIdempotent(t *testing.T) {
	fx := newFixture(t, []ledger.Entry{seedEntry(t, "18/04/2025 12:45:03", func(e *ledger.Entry) {
		e.Amount = "10,00"
		e.PartyAmounts[0] = "10,00"
	})}, "")
	ctx := context.Background()

	first, err := fx.engine.Fix(ctx, Request{Timestamp: "18/04/2025 12:45:03", Dismiss: true})
	if err != nil {
		t.Fatalf("first dismiss failed: %v", err)
	}
	if !first.Entry.Disregarded {
		t.Error("entry not disregarded after dismiss")
	}

	second, err := fx.engine.Fix(ctx, Request{Timestamp: "18/04/2025 12:45:03", Dismiss: true})
	if err != nil {
		t.Fatalf("second dismiss failed: %v", err)
	}
	if !second.Entry.Disregarded {
		t.Error("entry lost disregarded flag on second dismiss")
	}
	if second.Entry.Amount != "10,00" || second.Entry.PartyAmount(0) != "10,00" {
		t.Errorf("dismiss altered other fields: %+v", second.Entry)
	}
	if got := len(countRecords(t, fx.repo)); got != 2 {
		t.Errorf("history has %d records, want 2 (one per invocation)", got)
	}
}

func TestFix_DismissExcludesFromTotals(t *testing.T) {
	fx := newFixture(t, []ledger.Entry{seedEntry(t, "18/04/2025 12:45:03", func(e *ledger.Entry) {
		e.Amount = "10,00"
		e.PartyAmounts[0] = "10,00"
	})}, "")
	ctx := context.Background()

	if _, err := fx.engine.Fix(ctx, Request{Timestamp: "18/04/2025 12:45:03", Dismiss: true}); err != nil {
		t.Fatal(err)
	}

	entries, err := fx.repo.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.MonthTotal {
			t.Errorf("month total survived dismissal of its only transfer: %+v", e)
		}
	}
}

func TestFix_ValidationErrors(t *testing.T) {
	fx := newFixture(t, []ledger.Entry{seedEntry(t, "18/04/2025 12:45:03", nil)}, "")
	ctx := context.Background()

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "bad timestamp", req: Request{Timestamp: "2025-04-18 12:45"}, wantErr: ErrBadTimestamp},
		{name: "bad amount", req: Request{Timestamp: "18/04/2025 12:45:03", NewAmount: "abc"}, wantErr: ErrBadAmount},
		{name: "bad classification", req: Request{Timestamp: "18/04/2025 12:45:03", NewClassification: "weird"}, wantErr: ErrBadClassification},
		{name: "bad rotation", req: Request{Timestamp: "18/04/2025 12:45:03", RotateDegrees: 45}, wantErr: ErrBadRotation},
		{name: "entry not found", req: Request{Timestamp: "01/01/2020 00:00:00"}, wantErr: ErrEntryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.engine.Fix(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fix error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	recs := countRecords(t, fx.repo)
	if len(recs) != len(tests) {
		t.Errorf("history has %d records, want %d (every attempt logged)", len(recs), len(tests))
	}
	for _, rec := range recs {
		if rec.Success {
			t.Errorf("failed attempt logged as success: %+v", rec)
		}
	}
}

func TestFix_RotateAttachment(t *testing.T) {
	fx := newFixture(t, []ledger.Entry{seedEntry(t, "18/04/2025 12:45:03", nil)}, "")
	writePNG(t, filepath.Join(fx.incoming, "receipt.png"), 2, 4)

	out, err := fx.engine.Fix(context.Background(), Request{
		Timestamp:     "18/04/2025 12:45:03",
		RotateDegrees: 90,
	})
	if err != nil {
		t.Fatalf("Fix failed: %v", err)
	}
	if !strings.Contains(out.Entry.Annotation, "rotate: 90") {
		t.Errorf("annotation = %q", out.Entry.Annotation)
	}

	img, err := imaging.Open(filepath.Join(fx.incoming, "receipt.png"))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Errorf("rotated image is %dx%d, want 4x2", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestFix_RotateMissingAttachment(t *testing.T) {
	fx := newFixture(t, []ledger.Entry{seedEntry(t, "18/04/2025 12:45:03", nil)}, "")

	_, err := fx.engine.Fix(context.Background(), Request{
		Timestamp:     "18/04/2025 12:45:03",
		RotateDegrees: 90,
	})
	if !errors.Is(err, ErrAttachmentNotFound) {
		t.Errorf("Fix error = %v, want ErrAttachmentNotFound", err)
	}
}

func TestFix_ReinferSurfacesWithoutApplying(t *testing.T) {
	fx := newFixture(t, []ledger.Entry{seedEntry(t, "18/04/2025 12:45:03", func(e *ledger.Entry) {
		e.Amount = "10,00"
		e.PartyAmounts[0] = "10,00"
	})}, "PIX recebido R$ 55,00 Mercado Central")
	writePNG(t, filepath.Join(fx.incoming, "receipt.png"), 20, 20)

	out, err := fx.engine.Fix(context.Background(), Request{
		Timestamp: "18/04/2025 12:45:03",
		Reinfer:   true,
	})
	if err != nil {
		t.Fatalf("Fix failed: %v", err)
	}
	if out.Reinferred == nil {
		t.Fatal("expected reinferred fields")
	}
	if out.Reinferred.Amount != "55,00" {
		t.Errorf("reinferred amount = %q, want 55,00", out.Reinferred.Amount)
	}
	if out.ReinferredOCRText == "" {
		t.Error("expected freshly extracted OCR text")
	}
	// Derived values are reported, never auto-applied.
	if out.Entry.Amount != "10,00" {
		t.Errorf("entry amount changed to %q; reinfer must not apply", out.Entry.Amount)
	}
}
