/*
Package imageops provides the pixel-level transforms used around the text
alignment pipeline: grayscale conversion, clipping, rotation, block painting
and a handful of simple per-pixel filters.

Every function leaves its input untouched and returns a new *image.NRGBA
anchored at the origin.
*/
package imageops

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Posterize levels.
const (
	posterLowCutoff = 64
	posterMidCutoff = 128
	posterLow       = 32
	posterMid       = 96
	posterHigh      = 222
)

// Grayscale returns the grayscale version of img. The gray level is stored in
// all three colour channels.
func Grayscale(img image.Image) *image.NRGBA {
	return imaging.Grayscale(img)
}

// RedChannel keeps only the alpha and red channels of every pixel.
func RedChannel(img image.Image) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: c.R, A: c.A}
	})
}

// Mirror flips img horizontally.
func Mirror(img image.Image) *image.NRGBA {
	return imaging.FlipH(img)
}

// Negative replaces every colour channel c with 255-c. Alpha is kept.
func Negative(img image.Image) *image.NRGBA {
	return imaging.Invert(img)
}

// Posterize maps each colour channel to one of three levels: values up to 64
// become 32, values up to 128 become 96 and everything above becomes 222.
func Posterize(img image.Image) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: posterLevel(c.R), G: posterLevel(c.G), B: posterLevel(c.B), A: c.A}
	})
}

func posterLevel(v uint8) uint8 {
	switch {
	case v <= posterLowCutoff:
		return posterLow
	case v <= posterMidCutoff:
		return posterMid
	default:
		return posterHigh
	}
}

// Clip returns the part of img covered by rect. rect is given in the image's
// coordinate space and must be non-empty and lie completely within the image,
// otherwise an error wrapping ErrImageProcessing is returned.
func Clip(img image.Image, rect image.Rectangle) (*image.NRGBA, error) {
	if rect.Empty() || !rect.In(img.Bounds()) {
		return nil, fmt.Errorf("%w: clipping box %v does not fit within image bounds %v",
			ErrImageProcessing, rect, img.Bounds())
	}
	return imaging.Crop(img, rect), nil
}

// Rotate rotates img clockwise by degrees about its centre. The canvas grows
// to hold the whole rotated image and uncovered pixels are opaque white.
func Rotate(img image.Image, degrees float64) *image.NRGBA {
	return imaging.Rotate(img, -degrees, color.White)
}
