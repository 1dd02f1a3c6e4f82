package ocr

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// pdfTextLayer extracts the embedded text layer of a PDF, the cheap and
// exact path. Returns "" (no error) when the PDF has no text layer.
func pdfTextLayer(path string) (string, error) {
	out, err := exec.Command("pdftotext", "-layout", path, "-").Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext %s: %w", path, err)
	}
	return string(out), nil
}

// rasterizePDF renders every page of the PDF to PNG files under dir and
// returns their paths in page order.
func rasterizePDF(path, dir string) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	out, err := exec.Command("pdftoppm", "-png", "-r", "200", path, prefix).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm %s: %v: %s", path, err, strings.TrimSpace(string(out)))
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm %s: glob: %w", path, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdftoppm %s: no pages rendered", path)
	}
	sort.Strings(pages)
	return pages, nil
}
