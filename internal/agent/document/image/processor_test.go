package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/pkg/imageops"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/skew"
	"github.com/feichai0017/document-deskew/pkg/spectral"
)

type fakeRecognizer struct {
	got    image.Image
	err    error
	closed bool
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img image.Image) (*models.OCRResult, error) {
	f.got = img
	if f.err != nil {
		return nil, f.err
	}
	return &models.OCRResult{Text: "hello", Words: 1, Confidence: 91}, nil
}

func (f *fakeRecognizer) Close() error {
	f.closed = true
	return nil
}

func fill(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func diagonalPNG(t *testing.T, side int) []byte {
	t.Helper()
	img := fill(side, side, color.White)
	for i := 0; i < side; i++ {
		img.Set(i, i, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func fastAligner() *skew.Aligner {
	return skew.NewAligner(skew.WithMethod(spectral.MethodFast))
}

func TestNewProcessorRequiresDependencies(t *testing.T) {
	_, err := NewProcessor(nil, fastAligner(), nil, nil)
	assert.Error(t, err)

	_, err = NewProcessor(logger.NewTestLogger(), nil, nil, nil)
	assert.Error(t, err)
}

func TestCanProcess(t *testing.T) {
	p, err := NewProcessor(logger.NewTestLogger(), fastAligner(), nil, nil)
	require.NoError(t, err)

	assert.True(t, p.CanProcess("image/png"))
	assert.True(t, p.CanProcess("image/tiff"))
	assert.True(t, p.CanProcess("image/webp"))
	assert.False(t, p.CanProcess("application/pdf"))
}

func TestExtractMetadata(t *testing.T) {
	p, err := NewProcessor(logger.NewTestLogger(), fastAligner(), nil, nil)
	require.NoError(t, err)

	data := diagonalPNG(t, 20)
	meta, err := p.ExtractMetadata(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, "image/png", meta.MimeType)
	assert.Equal(t, 20, meta.Width)
	assert.Equal(t, 20, meta.Height)
	assert.Equal(t, int64(len(data)), meta.FileSize)
	assert.Len(t, meta.Hash, 64)

	_, err = p.ExtractMetadata(context.Background(), bytes.NewReader([]byte("plain text")))
	assert.ErrorIs(t, err, imageops.ErrImageProcessing)

	limited, err := NewProcessor(logger.NewTestLogger(), fastAligner(), nil, &ProcessOptions{MaxPixels: 100})
	require.NoError(t, err)
	_, err = limited.ExtractMetadata(context.Background(), bytes.NewReader(data))
	assert.ErrorIs(t, err, imageops.ErrImageProcessing)
}

func TestProcessAlignsDiagonal(t *testing.T) {
	rec := &fakeRecognizer{}
	p, err := NewProcessor(logger.NewTestLogger(), fastAligner(), rec, nil)
	require.NoError(t, err)

	outcome, err := p.Process(context.Background(), bytes.NewReader(diagonalPNG(t, 150)))
	require.NoError(t, err)

	require.NotNil(t, outcome.Result)
	assert.InDelta(t, 315, outcome.Result.Degrees, 1e-6)
	assert.Equal(t, 150, outcome.Input.Width)
	require.NotNil(t, outcome.Aligned)
	assert.Greater(t, outcome.Aligned.Bounds().Dx(), 150)

	require.NotNil(t, outcome.OCR)
	assert.Equal(t, "hello", outcome.OCR.Text)

	// 识别前经过二值化
	_, isGray := rec.got.(*image.Gray)
	assert.True(t, isGray)

	require.NoError(t, p.Close())
	assert.True(t, rec.closed)
}

func TestProcessToleratesRecognizerFailure(t *testing.T) {
	log := logger.NewTestLogger()
	p, err := NewProcessor(log, fastAligner(), &fakeRecognizer{err: errors.New("tesseract missing")}, nil)
	require.NoError(t, err)

	outcome, err := p.Process(context.Background(), bytes.NewReader(diagonalPNG(t, 150)))
	require.NoError(t, err)
	assert.Nil(t, outcome.OCR)
	assert.NotNil(t, outcome.Aligned)
	assert.True(t, log.Contains("ERROR", "Failed to recognize text"))
}

func TestProcessBlankImage(t *testing.T) {
	p, err := NewProcessor(logger.NewTestLogger(), fastAligner(), nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, fill(10, 10, color.Black)))

	_, err = p.Process(context.Background(), &buf)
	assert.ErrorIs(t, err, skew.ErrIndeterminateSkew)
	assert.ErrorIs(t, err, imageops.ErrImageProcessing)
}

func TestAdaptiveThreshold(t *testing.T) {
	img := fill(9, 9, color.White)
	img.Set(4, 4, color.Black)

	out, err := NewAdaptiveThresholdProcessor(3, 10).Process(img)
	require.NoError(t, err)
	gray := out.(*image.Gray)

	assert.Equal(t, uint8(0), gray.GrayAt(4, 4).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(3, 4).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)

	_, err = NewAdaptiveThresholdProcessor(0, 10).Process(img)
	assert.ErrorIs(t, err, imageops.ErrImageProcessing)
}

func TestPreprocessorChain(t *testing.T) {
	stages := func(chain []ImagePreprocessor) []string {
		names := make([]string, len(chain))
		for i, p := range chain {
			names[i] = fmt.Sprintf("%T", p)
		}
		return names
	}

	chain := buildPreprocessors(&PreprocessConfig{AdaptiveBlockSize: 3})
	assert.Equal(t, []string{
		"*image.GrayscaleProcessor",
		"*image.DenoiseProcessor",
		"*image.ContrastNormalizationProcessor",
		"*image.SharpenProcessor",
	}, stages(chain))

	chain = buildPreprocessors(&PreprocessConfig{AdaptiveBlockSize: 3, Median: true, Binarize: true})
	assert.Equal(t, []string{
		"*image.GrayscaleProcessor",
		"*image.MedianProcessor",
		"*image.DenoiseProcessor",
		"*image.ContrastNormalizationProcessor",
		"*image.SharpenProcessor",
		"*image.AdaptiveThresholdProcessor",
	}, stages(chain))

	same := fill(2, 2, color.White)
	out, err := NewDenoiseProcessor(0).Process(same)
	require.NoError(t, err)
	assert.Same(t, same, out)
}
