/*
Package spectral computes the 2-D discrete Fourier transform of an image's gray
levels and turns its amplitude into a thresholded map of the strongest
frequencies.

For an image of height H and width W with gray level I(x, y) at row x and
column y, the coefficient for frequency (u, v) is

	F(u, v) = sum over x, y of I(x, y) * exp(i * 2*pi * (u*x/H + v*y/W))

The transform is unnormalised and uses the positive exponent.
*/
package spectral

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/feichai0017/document-deskew/pkg/imageops"
)

// Method selects how the spectrum is computed.
type Method int

const (
	// MethodDirect evaluates the double sum for every frequency.
	MethodDirect Method = iota
	// MethodFast applies one-dimensional FFTs along rows and then columns.
	// Results agree with MethodDirect up to floating point rounding.
	MethodFast
)

func (m Method) String() string {
	switch m {
	case MethodDirect:
		return "direct"
	case MethodFast:
		return "fast"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps "direct" and "fast" to their Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "direct":
		return MethodDirect, nil
	case "fast":
		return MethodFast, nil
	default:
		return MethodDirect, fmt.Errorf("%w: unknown transform method %q", ErrInvalidArgument, s)
	}
}

// Options tune DFTWith.
type Options struct {
	// Workers bounds the number of frequency rows computed at once.
	// Zero means runtime.GOMAXPROCS(0).
	Workers int
	Method  Method
}

// DFT computes the direct transform of img's gray levels.
func DFT(img image.Image) (*Output, error) {
	return DFTWith(context.Background(), img, Options{})
}

// DFTWith computes the transform of img's gray levels. The direct method
// produces the same values whatever the number of workers: every coefficient is
// summed by a single goroutine in row-major order of the source. ctx is checked
// between frequency rows.
func DFTWith(ctx context.Context, img image.Image, opts Options) (*Output, error) {
	gray := imageops.Grayscale(img)
	w, h := imageops.Size(gray)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidArgument)
	}

	levels := make([]float64, h*w)
	for x := 0; x < h; x++ {
		for y := 0; y < w; y++ {
			levels[x*w+y] = float64(imageops.Intensity(gray, y, x))
		}
	}

	amplitude := make([]float64, h*w)
	phase := make([]float64, h*w)

	var err error
	switch opts.Method {
	case MethodDirect:
		err = direct(ctx, levels, h, w, opts.workers(), amplitude, phase)
	case MethodFast:
		err = fast(ctx, levels, h, w, amplitude, phase)
	default:
		err = fmt.Errorf("%w: unknown transform method %v", ErrInvalidArgument, opts.Method)
	}
	if err != nil {
		return nil, err
	}

	return NewOutput(mat.NewDense(h, w, amplitude), mat.NewDense(h, w, phase))
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// direct fills amplitude and phase one frequency row per task.
func direct(ctx context.Context, levels []float64, h, w, workers int, amplitude, phase []float64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for u := 0; u < h; u++ {
		if gctx.Err() != nil {
			break
		}
		u := u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for v := 0; v < w; v++ {
				re, im := coefficient(levels, h, w, u, v)
				amplitude[u*w+v], phase[u*w+v] = polar(re, im)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("dft cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dft cancelled: %w", err)
	}
	return nil
}

// coefficient sums the contribution of every source pixel to frequency (u, v).
func coefficient(levels []float64, h, w, u, v int) (re, im float64) {
	for x := 0; x < h; x++ {
		row := levels[x*w : (x+1)*w]
		for y, level := range row {
			theta := 2 * math.Pi * (float64(u*x)/float64(h) + float64(v*y)/float64(w))
			sin, cos := math.Sincos(theta)
			re += level * cos
			im += level * sin
		}
	}
	return re, im
}

// polar converts a coefficient to amplitude and phase. The phase is the
// principal arctangent of im/re and is zero whenever either part is zero.
func polar(re, im float64) (amplitude, phase float64) {
	amplitude = math.Sqrt(re*re + im*im)
	if re == 0 || im == 0 {
		return amplitude, 0
	}
	return amplitude, math.Atan(im / re)
}

// fast evaluates the same sum as direct with two passes of 1-D transforms.
// fourier's Sequence uses the positive exponent without scaling, which is the
// convention of the direct sum.
func fast(ctx context.Context, levels []float64, h, w int, amplitude, phase []float64) error {
	rows := fourier.NewCmplxFFT(w)
	spectrum := make([]complex128, h*w)
	line := make([]complex128, w)
	for x := 0; x < h; x++ {
		for y := 0; y < w; y++ {
			line[y] = complex(levels[x*w+y], 0)
		}
		rows.Sequence(spectrum[x*w:(x+1)*w], line)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dft cancelled: %w", err)
	}

	cols := fourier.NewCmplxFFT(h)
	in := make([]complex128, h)
	out := make([]complex128, h)
	for v := 0; v < w; v++ {
		for x := 0; x < h; x++ {
			in[x] = spectrum[x*w+v]
		}
		cols.Sequence(out, in)
		for u := 0; u < h; u++ {
			amplitude[u*w+v], phase[u*w+v] = polar(real(out[u]), imag(out[u]))
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dft cancelled: %w", err)
	}
	return nil
}
