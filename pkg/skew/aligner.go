/*
Package skew estimates and corrects the skew of scanned text.

Lines of text produce a bright streak in the amplitude spectrum of an image,
perpendicular to the lines. The Aligner squares and shrinks the image, computes
its spectrum, keeps the brightest frequencies, gathers them around the centre of
the spectrum and fits a line through them. The direction of that line gives the
rotation that levels the text.
*/
package skew

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/feichai0017/document-deskew/pkg/imageops"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/spectral"
)

// MaxSize is the largest side of the square the spectrum is computed on.
const MaxSize = 150

// ErrIndeterminateSkew is returned when the spectrum shows no usable direction,
// e.g. for a blank page.
var ErrIndeterminateSkew = fmt.Errorf("%w: indeterminate skew", imageops.ErrImageProcessing)

// Result describes one skew detection.
type Result struct {
	Slope    float64
	Positive bool
	// Angle is atan(1/Slope) in radians.
	Angle float64
	// Degrees is the clockwise rotation that levels the text.
	Degrees float64

	Quadrants [4]int
	// Found counts the bright points met by the spiral search, including the
	// ones on the centre lines.
	Found     int
	Threshold int
	Whites    int
	// Side is the side of the normalised square.
	Side int

	Timings Timings
}

// Timings records how long each stage took.
type Timings struct {
	Normalize time.Duration
	Transform time.Duration
	Filter    time.Duration
	Search    time.Duration
	Rotate    time.Duration
}

// Total returns the sum of all stages.
func (t Timings) Total() time.Duration {
	return t.Normalize + t.Transform + t.Filter + t.Search + t.Rotate
}

// Aligner runs the detection pipeline. It holds no per-image state and is safe
// for concurrent use.
type Aligner struct {
	accuracy int
	maxSize  int
	dft      spectral.Options
	log      logger.Logger
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithLogger sets the logger stage records are written to.
func WithLogger(l logger.Logger) Option {
	return func(a *Aligner) {
		if l != nil {
			a.log = l
		}
	}
}

// WithAccuracy sets how many bright points are gathered.
func WithAccuracy(n int) Option {
	return func(a *Aligner) {
		if n > 0 {
			a.accuracy = n
		}
	}
}

// WithMaxSize sets the side of the normalised square.
func WithMaxSize(n int) Option {
	return func(a *Aligner) {
		if n > 0 {
			a.maxSize = n
		}
	}
}

// WithWorkers bounds the goroutines used by the transform.
func WithWorkers(n int) Option {
	return func(a *Aligner) {
		a.dft.Workers = n
	}
}

// WithMethod selects the transform.
func WithMethod(m spectral.Method) Option {
	return func(a *Aligner) {
		a.dft.Method = m
	}
}

// NewAligner returns an Aligner with DefaultAccuracy and MaxSize unless
// overridden.
func NewAligner(opts ...Option) *Aligner {
	a := &Aligner{
		accuracy: DefaultAccuracy,
		maxSize:  MaxSize,
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Normalize turns img into a square of side at most MaxSize centred on img.
//
// When both sides exceed MaxSize the image is block painted with blocks of
// min(w, h)/MaxSize pixels and MaxSize x MaxSize pixels are sampled one block
// apart, starting from the top-left corner of the centred square. Otherwise the
// centred square is clipped out.
func (a *Aligner) Normalize(img image.Image) (*image.NRGBA, error) {
	src := imageops.ToNRGBA(img)
	w, h := imageops.Size(src)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", imageops.ErrImageProcessing)
	}
	side := min(w, h)

	if w > a.maxSize && h > a.maxSize {
		block := side / a.maxSize
		painted := imageops.BlockPaint(src, block)
		left, top := w/2-side/2, h/2-side/2

		dst := image.NewNRGBA(image.Rect(0, 0, a.maxSize, a.maxSize))
		for row := 0; row < a.maxSize; row++ {
			for col := 0; col < a.maxSize; col++ {
				imageops.SetPixel(dst, col, row, imageops.Pixel(painted, left+col*block, top+row*block))
			}
		}
		return dst, nil
	}

	var box image.Rectangle
	if w < h {
		top := h/2 - w/2
		box = image.Rect(0, top, w, top+w)
	} else {
		left := w/2 - h/2
		box = image.Rect(left, 0, left+h, h)
	}
	return imageops.Clip(src, box)
}

// Detect estimates the skew of img without rotating it.
func (a *Aligner) Detect(ctx context.Context, img image.Image) (*Result, error) {
	res := &Result{}

	start := time.Now()
	square, err := a.Normalize(img)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize image: %w", err)
	}
	res.Side, _ = imageops.Size(square)
	res.Timings.Normalize = time.Since(start)

	start = time.Now()
	out, err := spectral.DFTWith(ctx, square, a.dft)
	if err != nil {
		return nil, fmt.Errorf("failed to transform image: %w", err)
	}
	res.Timings.Transform = time.Since(start)
	a.log.Debug("spectrum computed",
		logger.Int("side", res.Side),
		logger.String("method", a.dft.Method.String()),
		logger.Duration("elapsed", res.Timings.Transform))

	start = time.Now()
	visual := out.AmplitudeImage()
	res.Threshold, res.Whites = spectral.FilterThreshold(visual)
	filtered := spectral.Binarize(visual, res.Threshold)
	res.Timings.Filter = time.Since(start)
	a.log.Debug("spectrum filtered",
		logger.Int("threshold", res.Threshold),
		logger.Int("whites", res.Whites))
	// Below level 0 every spectrum pixel is kept and the search only sees
	// the ring geometry.
	if res.Threshold < 0 {
		return nil, fmt.Errorf("%w: flat spectrum", ErrIndeterminateSkew)
	}

	start = time.Now()
	q := SpiralSearch(filtered, a.accuracy)
	res.Found = q.Found
	res.Quadrants = [4]int{len(q.Q1), len(q.Q2), len(q.Q3), len(q.Q4)}
	est := EstimateSkew(q)
	res.Slope, res.Positive = est.Slope, est.Positive
	res.Timings.Search = time.Since(start)
	a.log.Debug("peaks located",
		logger.Any("quadrants", res.Quadrants),
		logger.Float64("slope", res.Slope),
		logger.Bool("positive", res.Positive))

	res.Angle, res.Degrees, err = Rotation(est)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Rotation converts an estimate into the angle atan(1/slope) and the clockwise
// rotation in degrees that levels the text. A zero or undefined slope has no
// usable direction and yields ErrIndeterminateSkew.
func Rotation(est Estimate) (angle, degrees float64, err error) {
	if est.Slope == 0 || math.IsNaN(est.Slope) {
		return 0, 0, fmt.Errorf("%w: slope %v", ErrIndeterminateSkew, est.Slope)
	}
	angle = math.Atan(1 / est.Slope)
	if math.IsNaN(angle) {
		return 0, 0, fmt.Errorf("%w: angle undefined for slope %v", ErrIndeterminateSkew, est.Slope)
	}
	if est.Positive {
		return angle, 180 * (2*math.Pi - angle) / math.Pi, nil
	}
	return angle, 180 * (-angle) / math.Pi, nil
}

// Align detects the skew of img and rotates the original image, not the
// normalised square, to level it.
func (a *Aligner) Align(ctx context.Context, img image.Image) (*image.NRGBA, *Result, error) {
	res, err := a.Detect(ctx, img)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	aligned := imageops.Rotate(img, res.Degrees)
	res.Timings.Rotate = time.Since(start)

	a.log.Info("image aligned",
		logger.Float64("degrees", res.Degrees),
		logger.Float64("slope", res.Slope),
		logger.Duration("elapsed", res.Timings.Total()))
	return aligned, res, nil
}
