package ocr

import (
	"image"
	"image/color"
)

// binarize converts an image to black and white using Otsu's automatic
// threshold, which maximizes between-class variance over the intensity
// histogram. Receipts photographed in bad light OCR noticeably better
// after this step.
func binarize(img image.Image) *image.Gray {
	src := toGray(img)
	threshold := otsuThreshold(src)

	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if src.GrayAt(x, y).Y > threshold {
				dst.SetGray(x, y, color.Gray{Y: 255})
			} else {
				dst.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return dst
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	g := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return g
}

func otsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}

	var (
		sumBack    float64
		weightBack int
		maxVar     float64
		threshold  uint8
	)
	for i := 0; i < 256; i++ {
		weightBack += hist[i]
		if weightBack == 0 {
			continue
		}
		weightFore := total - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(i) * float64(hist[i])

		meanBack := sumBack / float64(weightBack)
		meanFore := (sum - sumBack) / float64(weightFore)
		diff := meanBack - meanFore
		variance := float64(weightBack) * float64(weightFore) * diff * diff
		if variance > maxVar {
			maxVar = variance
			threshold = uint8(i)
		}
	}
	return threshold
}
