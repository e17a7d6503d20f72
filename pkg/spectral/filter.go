package spectral

import (
	"image"
	"math"

	"github.com/feichai0017/document-deskew/pkg/imageops"
)

const (
	// WhitePercent is the fraction of pixels the filter keeps.
	WhitePercent = 0.0022222
	// StartThreshold is the first gray level the filter tries.
	StartThreshold = 190
)

var (
	// White marks a kept pixel.
	White = imageops.ARGB{255, 255, 255, 255}
	// Sentinel marks a discarded pixel.
	Sentinel = imageops.ARGB{255, 255, 0, 0}
)

// FilterThreshold finds the gray level at which img is split. Starting from
// StartThreshold and lowering it one level at a time, it stops at the first
// threshold t where the number of pixels with a green channel above t reaches
// round(area * WhitePercent). It returns t and that number of pixels.
//
// Lowering the threshold never turns a kept pixel back, so a cumulative
// histogram gives the same answer as rescanning the image at every level.
func FilterThreshold(img image.Image) (threshold, whites int) {
	src := imageops.ToNRGBA(img)
	w, h := imageops.Size(src)

	var hist [256]int
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			hist[imageops.Intensity(src, col, row)]++
		}
	}

	target := int(math.Round(float64(w*h) * WhitePercent))

	for level := 255; level > StartThreshold; level-- {
		whites += hist[level]
	}
	threshold = StartThreshold
	for whites < target && threshold >= 0 {
		whites += hist[threshold]
		threshold--
	}
	return threshold, whites
}

// Binarize paints every pixel whose green channel is above threshold White and
// every other pixel Sentinel.
func Binarize(img image.Image, threshold int) *image.NRGBA {
	src := imageops.ToNRGBA(img)
	w, h := imageops.Size(src)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if int(imageops.Intensity(src, col, row)) > threshold {
				imageops.SetPixel(dst, col, row, White)
			} else {
				imageops.SetPixel(dst, col, row, Sentinel)
			}
		}
	}
	return dst
}

// Filter keeps roughly the brightest WhitePercent of img's pixels, see
// FilterThreshold. An image too small to keep a single pixel is split at
// StartThreshold.
func Filter(img image.Image) *image.NRGBA {
	threshold, _ := FilterThreshold(img)
	return Binarize(img, threshold)
}
