package validator

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-deskew/pkg/logger"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestValidateAcceptsPNG(t *testing.T) {
	v := NewImageValidator(logger.NewTestLogger(), nil)
	data := encodePNG(t, 40, 30)

	result, err := v.Validate("scan.PNG", int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, result.IsValid, "%v", result.Errors)
	assert.NoError(t, result.Err())
	assert.Equal(t, "png", result.FileInfo.Format)
	assert.Equal(t, "image/png", result.FileInfo.MimeType)
	assert.Equal(t, ".png", result.FileInfo.Extension)
	assert.Equal(t, 40, result.FileInfo.Width)
	assert.Equal(t, 30, result.FileInfo.Height)
	assert.Len(t, result.FileInfo.Hash, 64)
}

func TestValidateRejects(t *testing.T) {
	data := encodePNG(t, 40, 30)

	tests := []struct {
		name     string
		filename string
		data     []byte
		config   *ValidatorConfig
		code     string
	}{
		{"extension", "scan.pdf", data, nil, "INVALID_FILE_TYPE"},
		{"mismatched content", "scan.jpg", data, nil, "INVALID_MIME_TYPE"},
		{"garbage", "scan.png", []byte("not an image at all"), nil, "UNDECODABLE_IMAGE"},
		{"too large", "scan.png", data, &ValidatorConfig{
			MaxFileSize:  10,
			AllowedTypes: DefaultConfig().AllowedTypes,
			MinDimension: 1,
		}, "FILE_TOO_LARGE"},
		{"dimension", "scan.png", data, &ValidatorConfig{
			MaxFileSize:  1 << 20,
			AllowedTypes: DefaultConfig().AllowedTypes,
			MinDimension: 1,
			MaxDimension: 32,
		}, "IMAGE_TOO_LARGE"},
		{"pixels", "scan.png", data, &ValidatorConfig{
			MaxFileSize:  1 << 20,
			AllowedTypes: DefaultConfig().AllowedTypes,
			MinDimension: 1,
			MaxPixels:    100,
		}, "TOO_MANY_PIXELS"},
		{"small", "scan.png", data, &ValidatorConfig{
			MaxFileSize:  1 << 20,
			AllowedTypes: DefaultConfig().AllowedTypes,
			MinDimension: 50,
		}, "IMAGE_TOO_SMALL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewImageValidator(logger.NewTestLogger(), tt.config)
			result, err := v.Validate(tt.filename, int64(len(tt.data)), bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.False(t, result.IsValid)

			codes := make([]string, len(result.Errors))
			for i, e := range result.Errors {
				codes[i] = e.Code
			}
			assert.Contains(t, codes, tt.code)
			assert.ErrorIs(t, result.Err(), ErrInvalidImage)
		})
	}
}

func TestValidateRewinds(t *testing.T) {
	v := NewImageValidator(nil, nil)
	data := encodePNG(t, 8, 8)
	r := bytes.NewReader(data)

	_, err := v.Validate("a.png", int64(len(data)), r)
	require.NoError(t, err)

	img, err := png.Decode(r)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}
