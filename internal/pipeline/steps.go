package pipeline

import (
	"context"
	"fmt"

	"github.com/rvilela/acerto/internal/chat"
	"github.com/rvilela/acerto/internal/files"
	"github.com/rvilela/acerto/internal/infer"
	"github.com/rvilela/acerto/internal/ledger"
	"github.com/rvilela/acerto/internal/ocr"
)

// Step is a single stage of the per-attachment pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State is the shared state threaded through the steps for one attachment.
type State struct {
	Attachment chat.Attachment
	Path       string
	OCR        ocr.Result
	Fields     infer.Fields
	Entry      ledger.Entry
}

// errSkip aborts the remaining steps without counting as a failure.
var errSkip = fmt.Errorf("pipeline: attachment skipped")

// ResolveStep locates the attachment file in the incoming or processed
// directory. A missing file skips the attachment; the transcript often
// references media that was never exported.
type ResolveStep struct {
	Resolver *files.Resolver
}

func (s *ResolveStep) Execute(ctx context.Context, state *State) error {
	path, err := s.Resolver.Resolve(state.Attachment.Filename)
	if err != nil {
		return fmt.Errorf("%w: %s", errSkip, state.Attachment.Filename)
	}
	state.Path = path
	return nil
}

// ExtractTextStep runs OCR (cache-first) against the resolved file.
// Extraction failures do not stop the pipeline; inference degrades on
// empty text and the entry records what little is known.
type ExtractTextStep struct {
	Extractor *ocr.Extractor
}

func (s *ExtractTextStep) Execute(ctx context.Context, state *State) error {
	state.OCR = s.Extractor.Extract(ctx, state.Attachment.Filename)
	if state.OCR.Kind == ocr.NotFound {
		return fmt.Errorf("%w: %s", errSkip, state.Attachment.Filename)
	}
	return nil
}

// InferFieldsStep derives amount, classification and description from the
// extracted text, escalating to the vision call when text yields no amount.
type InferFieldsStep struct {
	Inferrer *infer.Engine
}

func (s *InferFieldsStep) Execute(ctx context.Context, state *State) error {
	state.Fields = s.Inferrer.Infer(ctx, state.OCR.Text, state.Path)
	return nil
}

// BuildEntryStep assembles the ledger entry. A transfer amount is
// attributed to the sender's party column; payment and unknown amounts
// stay in the general amount field only.
type BuildEntryStep struct {
	Parties ledger.Parties
}

func (s *BuildEntryStep) Execute(ctx context.Context, state *State) error {
	e := ledger.Entry{
		Timestamp:      state.Attachment.Timestamp,
		Sender:         state.Attachment.Sender,
		Classification: state.Fields.Classification,
		Amount:         state.Fields.Amount,
		Description:    state.Fields.Description,
		AttachmentName: state.Attachment.Filename,
		OCRText:        state.OCR.Text,
	}
	if e.Classification == ledger.Transfer && e.Amount != "" {
		if slot, ok := s.Parties.SlotFor(e.Sender); ok {
			e.PartyAmounts[slot] = e.Amount
		}
	}
	state.Entry = e
	return nil
}
