package spectral

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/feichai0017/document-deskew/pkg/imageops"
)

// ErrInvalidArgument is returned when an Output is built from matrices that
// do not describe the same spectrum, or when a transform has nothing to work on.
var ErrInvalidArgument = errors.New("invalid argument")

// Output is the amplitude/phase decomposition of a 2-D spectrum. Row u and
// column v of both matrices hold the coefficient for frequency (u, v), so the
// matrices have as many rows as the source image is tall and as many columns
// as it is wide.
type Output struct {
	amplitude *mat.Dense
	phase     *mat.Dense
}

// NewOutput pairs an amplitude and a phase matrix. Both must be non-nil and
// have the same dimensions.
func NewOutput(amplitude, phase *mat.Dense) (*Output, error) {
	if amplitude == nil || phase == nil {
		return nil, fmt.Errorf("%w: amplitude and phase are required", ErrInvalidArgument)
	}
	ar, ac := amplitude.Dims()
	pr, pc := phase.Dims()
	if ar != pr || ac != pc {
		return nil, fmt.Errorf("%w: amplitude is %dx%d but phase is %dx%d",
			ErrInvalidArgument, ar, ac, pr, pc)
	}
	return &Output{amplitude: amplitude, phase: phase}, nil
}

// Amplitude returns the amplitude matrix. It is shared with the Output.
func (o *Output) Amplitude() *mat.Dense { return o.amplitude }

// Phase returns the phase matrix. It is shared with the Output.
func (o *Output) Phase() *mat.Dense { return o.phase }

// Dims returns the number of frequency rows and columns.
func (o *Output) Dims() (rows, cols int) { return o.amplitude.Dims() }

// AmplitudeImage renders the amplitude on a logarithmic gray scale. With
// max the largest amplitude, every cell a becomes round(255/ln(1+max) * ln(1+a))
// in the red, green and blue channels of an opaque pixel at (v, u). The largest
// amplitude maps to 255. Values outside [0, 255] are clamped and a spectrum
// that is zero everywhere renders black.
func (o *Output) AmplitudeImage() *image.NRGBA {
	rows, cols := o.Dims()
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))

	scale := 255 / math.Log1p(mat.Max(o.amplitude))
	for u := 0; u < rows; u++ {
		for v := 0; v < cols; v++ {
			level := channelLevel(scale * math.Log1p(o.amplitude.At(u, v)))
			imageops.SetPixel(img, v, u, imageops.ARGB{255, level, level, level})
		}
	}
	return img
}

func channelLevel(x float64) uint8 {
	switch {
	case math.IsNaN(x) || x <= 0:
		return 0
	case x >= 255:
		return 255
	default:
		return uint8(math.Round(x))
	}
}
