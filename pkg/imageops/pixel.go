package imageops

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// ErrImageProcessing is returned when a transform cannot be applied to an
// image, e.g. a clipping rectangle that leaves the image.
var ErrImageProcessing = errors.New("image processing error")

// ARGB holds the four channels of a pixel in alpha, red, green, blue order.
type ARGB [4]uint8

// Channel indices into an ARGB value.
const (
	Alpha = iota
	Red
	Green
	Blue
)

// Packed returns the pixel as a single 0xAARRGGBB value.
func (p ARGB) Packed() uint32 {
	return uint32(p[Alpha])<<24 | uint32(p[Red])<<16 | uint32(p[Green])<<8 | uint32(p[Blue])
}

// UnpackARGB splits a 0xAARRGGBB value into its channels.
func UnpackARGB(v uint32) ARGB {
	return ARGB{uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)}
}

// Pixel returns the channels of the pixel at (col, row). img must have its
// origin at (0, 0).
func Pixel(img *image.NRGBA, col, row int) ARGB {
	i := img.PixOffset(col, row)
	s := img.Pix[i : i+4 : i+4]
	return ARGB{s[3], s[0], s[1], s[2]}
}

// SetPixel stores p at (col, row).
func SetPixel(img *image.NRGBA, col, row int, p ARGB) {
	i := img.PixOffset(col, row)
	s := img.Pix[i : i+4 : i+4]
	s[0], s[1], s[2], s[3] = p[Red], p[Green], p[Blue], p[Alpha]
}

// Intensity returns the green channel at (col, row), which is used as the
// gray level of an already grayscaled image.
func Intensity(img *image.NRGBA, col, row int) uint8 {
	return img.Pix[img.PixOffset(col, row)+1]
}

// ToNRGBA returns img as an NRGBA image anchored at the origin. Images that
// already satisfy this are returned as is and must not be modified by the
// caller.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

// Size returns the width and height of img.
func Size(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
