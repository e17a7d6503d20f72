package spectral

import (
	"context"
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/feichai0017/document-deskew/pkg/imageops"
)

func grayImage(w, h int, level func(col, row int) uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			v := level(col, row)
			img.SetNRGBA(col, row, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func randomImage(w, h int, seed int64) *image.NRGBA {
	r := rand.New(rand.NewSource(seed))
	return grayImage(w, h, func(int, int) uint8 { return uint8(r.Intn(256)) })
}

func TestNewOutputDimensions(t *testing.T) {
	_, err := NewOutput(mat.NewDense(2, 3, nil), mat.NewDense(3, 2, nil))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewOutput(nil, mat.NewDense(1, 1, nil))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	out, err := NewOutput(mat.NewDense(2, 3, nil), mat.NewDense(2, 3, nil))
	require.NoError(t, err)
	rows, cols := out.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
}

func TestDFTDimensions(t *testing.T) {
	out, err := DFT(randomImage(5, 3, 1))
	require.NoError(t, err)

	rows, cols := out.Amplitude().Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 5, cols)
	rows, cols = out.Phase().Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 5, cols)

	_, err = DFT(image.NewNRGBA(image.Rect(0, 0, 0, 4)))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDFTConstantImage(t *testing.T) {
	out, err := DFT(grayImage(4, 4, func(int, int) uint8 { return 10 }))
	require.NoError(t, err)

	// All the energy sits in the DC term, whose imaginary sum is exactly zero.
	assert.InDelta(t, 160, out.Amplitude().At(0, 0), 1e-9)
	assert.Equal(t, 0.0, out.Phase().At(0, 0))
	for u := 0; u < 4; u++ {
		for v := 0; v < 4; v++ {
			if u == 0 && v == 0 {
				continue
			}
			assert.InDelta(t, 0, out.Amplitude().At(u, v), 1e-9, "(%d,%d)", u, v)
		}
	}
}

func TestDFTSinglePixel(t *testing.T) {
	// A single bright pixel at row 0, column 1 of a 1x4 image gives
	// F(0, v) = 100 * exp(i*2*pi*v/4).
	img := grayImage(4, 1, func(col, _ int) uint8 {
		if col == 1 {
			return 100
		}
		return 0
	})
	out, err := DFT(img)
	require.NoError(t, err)

	for v := 0; v < 4; v++ {
		assert.InDelta(t, 100, out.Amplitude().At(0, v), 1e-9)
	}
	// v=0: im is exactly 0.
	assert.Equal(t, 0.0, out.Phase().At(0, 0))
	// v=1: pi/2, re ~ 6e-15, phase is atan(im/re) close to +pi/2.
	assert.InDelta(t, math.Pi/2, math.Abs(out.Phase().At(0, 1)), 1e-9)
}

func TestDFTPhaseIsPrincipalArctangent(t *testing.T) {
	out, err := DFT(randomImage(6, 5, 2))
	require.NoError(t, err)

	rows, cols := out.Dims()
	for u := 0; u < rows; u++ {
		for v := 0; v < cols; v++ {
			assert.GreaterOrEqual(t, out.Amplitude().At(u, v), 0.0)
			p := out.Phase().At(u, v)
			assert.True(t, p >= -math.Pi/2 && p <= math.Pi/2, "phase %v out of range", p)
		}
	}
}

func TestDFTWorkersAreBitIdentical(t *testing.T) {
	img := randomImage(17, 13, 3)

	seq, err := DFTWith(context.Background(), img, Options{Workers: 1})
	require.NoError(t, err)
	par, err := DFTWith(context.Background(), img, Options{Workers: 8})
	require.NoError(t, err)

	assert.True(t, mat.Equal(seq.Amplitude(), par.Amplitude()))
	assert.True(t, mat.Equal(seq.Phase(), par.Phase()))
}

func TestDFTFastMatchesDirect(t *testing.T) {
	img := randomImage(12, 9, 4)

	direct, err := DFT(img)
	require.NoError(t, err)
	fast, err := DFTWith(context.Background(), img, Options{Method: MethodFast})
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(direct.Amplitude(), fast.Amplitude(), 1e-6))
}

func TestDFTCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DFTWith(ctx, randomImage(8, 8, 5), Options{})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = DFTWith(ctx, randomImage(8, 8, 5), Options{Method: MethodFast})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("fast")
	require.NoError(t, err)
	assert.Equal(t, MethodFast, m)

	m, err = ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodDirect, m)

	_, err = ParseMethod("wavelet")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAmplitudeImage(t *testing.T) {
	peak := math.E*math.E - 1 // ln(1+max) = 2, so the scale is 127.5.
	amplitude := mat.NewDense(2, 2, []float64{0, peak, math.Exp(1.5) - 1, peak})
	out, err := NewOutput(amplitude, mat.NewDense(2, 2, nil))
	require.NoError(t, err)

	img := out.AmplitudeImage()
	require.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())

	assert.Equal(t, imageops.ARGB{255, 0, 0, 0}, imageops.Pixel(img, 0, 0))
	assert.Equal(t, imageops.ARGB{255, 255, 255, 255}, imageops.Pixel(img, 1, 0))
	// 1.5 * 127.5 rounds to 191.
	assert.Equal(t, imageops.ARGB{255, 191, 191, 191}, imageops.Pixel(img, 0, 1))
	assert.Equal(t, imageops.ARGB{255, 255, 255, 255}, imageops.Pixel(img, 1, 1))
}

func TestAmplitudeImageAllZero(t *testing.T) {
	out, err := NewOutput(mat.NewDense(2, 3, nil), mat.NewDense(2, 3, nil))
	require.NoError(t, err)

	img := out.AmplitudeImage()
	for row := 0; row < 2; row++ {
		for col := 0; col < 3; col++ {
			assert.Equal(t, imageops.ARGB{255, 0, 0, 0}, imageops.Pixel(img, col, row))
		}
	}
}

// rescanFilter applies the threshold loop literally: one pass over the image per
// level, counting each pixel the first time it turns white.
func rescanFilter(img *image.NRGBA) (*image.NRGBA, int, int) {
	w, h := imageops.Size(img)
	dst := image.NewNRGBA(img.Rect)
	target := int(math.Round(float64(w*h) * WhitePercent))
	white := make([]bool, w*h)
	count := 0
	threshold := StartThreshold
	for {
		for row := 0; row < h; row++ {
			for col := 0; col < w; col++ {
				if int(imageops.Intensity(img, col, row)) > threshold {
					if !white[row*w+col] {
						white[row*w+col] = true
						count++
					}
					imageops.SetPixel(dst, col, row, White)
				} else if !white[row*w+col] {
					imageops.SetPixel(dst, col, row, Sentinel)
				}
			}
		}
		if count >= target {
			return dst, threshold, count
		}
		threshold--
	}
}

func TestFilterMatchesRescan(t *testing.T) {
	cases := map[string]*image.NRGBA{
		"random":    randomImage(40, 30, 6),
		"dark":      grayImage(30, 30, func(col, row int) uint8 { return uint8((col + row) % 50) }),
		"bright":    grayImage(30, 30, func(int, int) uint8 { return 250 }),
		"black":     grayImage(25, 25, func(int, int) uint8 { return 0 }),
		"gradient":  grayImage(64, 16, func(col, _ int) uint8 { return uint8(col * 4) }),
		"too small": grayImage(3, 3, func(int, int) uint8 { return 200 }),
	}
	for name, img := range cases {
		t.Run(name, func(t *testing.T) {
			want, wantThreshold, wantCount := rescanFilter(img)

			threshold, whites := FilterThreshold(img)
			assert.Equal(t, wantThreshold, threshold)
			assert.Equal(t, wantCount, whites)
			assert.Equal(t, want.Pix, Filter(img).Pix)
		})
	}
}

func TestFilterThreshold(t *testing.T) {
	// 10000 pixels: the target is 22. Exactly 22 pixels are at 150 and
	// everything else is black.
	img := grayImage(100, 100, func(col, row int) uint8 {
		if row == 0 && col < 22 {
			return 150
		}
		return 0
	})

	threshold, whites := FilterThreshold(img)
	assert.Equal(t, 149, threshold)
	assert.Equal(t, 22, whites)

	out := Filter(img)
	assert.Equal(t, White, imageops.Pixel(out, 21, 0))
	assert.Equal(t, Sentinel, imageops.Pixel(out, 22, 0))
}
