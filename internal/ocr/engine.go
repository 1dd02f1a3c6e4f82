package ocr

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Engine is the OCR boundary. It is narrow on purpose: a path in, plain
// text out. Tests substitute a fake; production uses Tesseract.
type Engine interface {
	ImageText(path string) (string, error)
}

// TesseractEngine runs Tesseract through gosseract.
type TesseractEngine struct {
	// Language is the tessdata language code, e.g. "por".
	Language string
}

// ImageText OCRs a single raster file.
func (e *TesseractEngine) ImageText(path string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if e.Language != "" {
		if err := client.SetLanguage(e.Language); err != nil {
			return "", fmt.Errorf("ocr.TesseractEngine: set language %q: %w", e.Language, err)
		}
	}
	if err := client.SetImage(path); err != nil {
		return "", fmt.Errorf("ocr.TesseractEngine: set image %s: %w", path, err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr.TesseractEngine: %s: %w", path, err)
	}
	return text, nil
}
