package ocr

import (
	"context"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/rvilela/acerto/internal/files"
	"github.com/rvilela/acerto/internal/logger"
)

// Extractor runs the extraction chain for one attachment: cache lookup,
// two-location path resolution, then the type-specific OCR path. Safe for
// concurrent use by ingestion workers; the cache store serializes writes.
type Extractor struct {
	cache    *Cache
	resolver *files.Resolver
	engine   Engine
}

// NewExtractor wires an extractor over the given cache, resolver and
// OCR engine.
func NewExtractor(cache *Cache, resolver *files.Resolver, engine Engine) *Extractor {
	return &Extractor{cache: cache, resolver: resolver, engine: engine}
}

// Extract returns the text for the attachment. Once an attachment has
// been read successfully it is served from the cache forever; use
// ExtractForced when the correction engine explicitly asks for a re-read.
func (e *Extractor) Extract(ctx context.Context, name string) Result {
	if text, ok, err := e.cache.Get(name); err == nil && ok {
		return found(text)
	} else if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("attachment", name).Msg("ocr cache read failed, extracting")
	}
	return e.extract(ctx, name)
}

// ExtractForced bypasses the cache read and re-runs the full chain.
// The cache stays write-once, so a forced run never clobbers the stored
// text of an already-cached attachment.
func (e *Extractor) ExtractForced(ctx context.Context, name string) Result {
	return e.extract(ctx, name)
}

func (e *Extractor) extract(ctx context.Context, name string) Result {
	log := logger.FromContext(ctx)

	path, err := e.resolver.Resolve(name)
	if err != nil {
		log.Warn().Str("attachment", name).Msg("attachment not found in any known location")
		return Result{Kind: NotFound}
	}

	var (
		text string
		kind Kind
	)
	if files.IsPDF(path) {
		text, kind = e.pdfText(ctx, path)
	} else {
		text, kind = e.imageText(path)
	}
	if kind != TextFound {
		log.Warn().Str("attachment", name).Stringer("outcome", kind).Msg("extraction yielded no text")
		return Result{Kind: kind}
	}

	text = collapseWhitespace(text)
	if text == "" {
		return Result{Kind: NoTextDetected}
	}

	if err := e.cache.Put(name, text); err != nil {
		log.Error().Err(err).Str("attachment", name).Msg("ocr cache write failed")
	}
	return found(text)
}

// imageText preprocesses the raster (grayscale + Otsu binarize) and OCRs
// it. Any engine failure degrades to LoadError, never an error return.
func (e *Extractor) imageText(path string) (string, Kind) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", LoadError
	}

	gray := imaging.Grayscale(img)
	if gray.Bounds().Dy() < 800 {
		gray = imaging.Resize(gray, 0, 1200, imaging.Lanczos)
	}
	bw := binarize(gray)

	tmp, err := os.CreateTemp("", "acerto-ocr-*.png")
	if err != nil {
		return "", LoadError
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := imaging.Save(bw, tmpPath); err != nil {
		return "", LoadError
	}

	text, err := e.engine.ImageText(tmpPath)
	if err != nil {
		return "", LoadError
	}
	if strings.TrimSpace(text) == "" {
		return "", NoTextDetected
	}
	return text, TextFound
}

// pdfText tries the embedded text layer first, then rasterizes each page
// and OCRs it like an image.
func (e *Extractor) pdfText(ctx context.Context, path string) (string, Kind) {
	if text, err := pdfTextLayer(path); err == nil && strings.TrimSpace(text) != "" {
		return text, TextFound
	}

	dir, err := os.MkdirTemp("", "acerto-pdf-")
	if err != nil {
		return "", LoadError
	}
	defer os.RemoveAll(dir)

	pages, err := rasterizePDF(path, dir)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("pdf", path).Msg("pdf rasterization failed")
		return "", LoadError
	}

	var parts []string
	for _, page := range pages {
		text, kind := e.imageText(page)
		if kind == TextFound {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", NoTextDetected
	}
	return strings.Join(parts, " "), TextFound
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
