// Package pipeline ingests a chat transcript export: it scans the
// transcript for attachment references, runs OCR and field inference on
// each new attachment concurrently, and merges the resulting entries
// into the ledger in one single-writer section at the end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rvilela/acerto/internal/chat"
	"github.com/rvilela/acerto/internal/files"
	"github.com/rvilela/acerto/internal/infer"
	"github.com/rvilela/acerto/internal/ledger"
	"github.com/rvilela/acerto/internal/logger"
	"github.com/rvilela/acerto/internal/ocr"
)

// Summary reports what one ingestion run did.
type Summary struct {
	// Attachments found in the transcript.
	Found int
	// Skipped before any OCR/LLM cost: timestamp already in the ledger.
	AlreadyKnown int
	// Skipped because the attachment file could not be located.
	FileMissing int
	// Entries newly merged into the ledger.
	Added int
	// Attachments whose pipeline failed outright.
	Failed int
}

// Ingestor runs the batch ingestion. Attachment pipelines are
// independent and run on a fixed worker pool; the ledger update at the
// end is the only section that touches shared persistent state.
type Ingestor struct {
	repo        ledger.Repository
	parties     ledger.Parties
	steps       []Step
	workers     int
	incomingDir string
	processedD  string
}

// NewIngestor wires the per-attachment steps in order. workers <= 0
// falls back to 4.
func NewIngestor(repo ledger.Repository, parties ledger.Parties, resolver *files.Resolver,
	extractor *ocr.Extractor, inferrer *infer.Engine, workers int,
	incomingDir, processedDir string) *Ingestor {
	if workers <= 0 {
		workers = 4
	}
	return &Ingestor{
		repo:    repo,
		parties: parties,
		steps: []Step{
			&ResolveStep{Resolver: resolver},
			&ExtractTextStep{Extractor: extractor},
			&InferFieldsStep{Inferrer: inferrer},
			&BuildEntryStep{Parties: parties},
		},
		workers:     workers,
		incomingDir: incomingDir,
		processedD:  processedDir,
	}
}

// Run ingests one transcript file. Replaying a transcript that was
// already ingested is a no-op apart from the summary counts.
func (in *Ingestor) Run(ctx context.Context, transcriptPath string) (Summary, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	var sum Summary

	attachments, err := chat.ParseFile(transcriptPath)
	if err != nil {
		return sum, fmt.Errorf("pipeline.Run: %w", err)
	}
	sum.Found = len(attachments)

	existing, err := in.repo.LoadAll(ctx)
	if err != nil {
		return sum, fmt.Errorf("pipeline.Run: %w", err)
	}

	known := knownTimestamps(existing)
	var pending []chat.Attachment
	for _, a := range attachments {
		if _, ok := known[a.Timestamp.Unix()]; ok {
			sum.AlreadyKnown++
			continue
		}
		pending = append(pending, a)
	}

	if len(pending) == 0 {
		log.Info().Int("found", sum.Found).Msg("nothing new to ingest")
		return sum, nil
	}

	entries, missing, failed := in.process(ctx, pending)
	sum.FileMissing = missing
	sum.Failed = failed

	merged, added := ledger.Merge(existing, entries)
	merged = ledger.RecomputeMonthTotals(merged, in.parties)
	if err := in.repo.SaveAll(ctx, merged); err != nil {
		return sum, fmt.Errorf("pipeline.Run: save: %w", err)
	}
	sum.Added = added

	in.archive(ctx, entries)

	log.Info().
		Int("found", sum.Found).
		Int("already_known", sum.AlreadyKnown).
		Int("added", sum.Added).
		Int("file_missing", sum.FileMissing).
		Int("failed", sum.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("ingestion finished")
	return sum, nil
}

// process fans the pending attachments out to the worker pool and
// collects the built entries. Order is not preserved; the accumulator
// sorts on save.
func (in *Ingestor) process(ctx context.Context, pending []chat.Attachment) (entries []ledger.Entry, missing, failed int) {
	log := logger.FromContext(ctx)

	jobs := make(chan chat.Attachment)
	results := make(chan result, len(pending))

	var wg sync.WaitGroup
	for i := 0; i < in.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				results <- in.runSteps(ctx, a)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, a := range pending {
			select {
			case jobs <- a:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		switch {
		case res.err == nil:
			entries = append(entries, res.entry)
		case errors.Is(res.err, errSkip):
			missing++
			log.Warn().Str("attachment", res.attachment).Msg("attachment skipped")
		default:
			failed++
			log.Error().Err(res.err).Str("attachment", res.attachment).Msg("attachment pipeline failed")
		}
	}
	return entries, missing, failed
}

type result struct {
	attachment string
	entry      ledger.Entry
	err        error
}

func (in *Ingestor) runSteps(ctx context.Context, a chat.Attachment) result {
	state := &State{Attachment: a}
	for _, step := range in.steps {
		if err := step.Execute(ctx, state); err != nil {
			return result{attachment: a.Filename, err: err}
		}
	}
	return result{attachment: a.Filename, entry: state.Entry}
}

// archive moves successfully processed attachment files from the
// incoming directory to the processed directory. Files already archived
// stay where they are; a failed move is logged, not fatal, since the
// resolver probes both locations anyway.
func (in *Ingestor) archive(ctx context.Context, entries []ledger.Entry) {
	if in.incomingDir == "" || in.processedD == "" {
		return
	}
	log := logger.FromContext(ctx)
	for _, e := range entries {
		src := filepath.Join(in.incomingDir, e.AttachmentName)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(in.processedD, e.AttachmentName)
		if err := os.MkdirAll(in.processedD, 0o755); err != nil {
			log.Warn().Err(err).Msg("processed dir unavailable")
			return
		}
		if err := os.Rename(src, dst); err != nil {
			log.Warn().Err(err).Str("attachment", e.AttachmentName).Msg("archive move failed")
		}
	}
}

// knownTimestamps indexes the non-total entry timestamps already in the
// ledger so replayed attachments are skipped before any OCR/LLM cost.
func knownTimestamps(entries []ledger.Entry) map[int64]struct{} {
	known := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		if e.MonthTotal {
			continue
		}
		known[e.Timestamp.Unix()] = struct{}{}
	}
	return known
}
