package files

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Rotate rotates the raster at path by degrees (90, 180 or 270,
// counter-clockwise) and overwrites the file in place. PDFs are converted
// to a PNG raster first; the rotated PNG replaces the original PDF so the
// next extraction sees the corrected orientation.
func Rotate(path string, degrees int) (string, error) {
	if degrees != 90 && degrees != 180 && degrees != 270 {
		return "", fmt.Errorf("files.Rotate: invalid rotation %d, want 90, 180 or 270", degrees)
	}

	target := path
	if IsPDF(path) {
		converted, err := pdfToImage(path)
		if err != nil {
			return "", fmt.Errorf("files.Rotate: %w", err)
		}
		target = converted
	}

	img, err := imaging.Open(target)
	if err != nil {
		return "", fmt.Errorf("files.Rotate: open %s: %w", target, err)
	}

	var rotated = img
	switch degrees {
	case 90:
		rotated = imaging.Rotate90(img)
	case 180:
		rotated = imaging.Rotate180(img)
	case 270:
		rotated = imaging.Rotate270(img)
	}

	if err := imaging.Save(rotated, target); err != nil {
		return "", fmt.Errorf("files.Rotate: save %s: %w", target, err)
	}
	return target, nil
}

// pdfToImage rasterizes the first page of a PDF next to the original and
// returns the new PNG path. The PDF itself is left untouched.
func pdfToImage(path string) (string, error) {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	out, err := exec.Command("pdftoppm", "-png", "-r", "200", "-f", "1", "-l", "1", "-singlefile", path, stem).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("pdftoppm %s: %v: %s", path, err, strings.TrimSpace(string(out)))
	}
	png := stem + ".png"
	if _, err := os.Stat(png); err != nil {
		return "", fmt.Errorf("pdftoppm %s: no output produced", path)
	}
	return png, nil
}
