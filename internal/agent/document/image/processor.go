// internal/agent/document/image/processor.go
package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/feichai0017/document-deskew/internal/agent/document"
	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/pkg/imageops"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/skew"
)

// Processor 图像处理器：解码、倾斜校正，可选文字识别
type Processor struct {
	logger        logger.Logger
	aligner       *skew.Aligner
	recognizer    document.TextRecognizer
	preprocessors []ImagePreprocessor
	config        *ProcessOptions
}

// 处理选项
type ProcessOptions struct {
	MaxPixels        int
	PreprocessConfig *PreprocessConfig
}

// PreprocessConfig 识别前的预处理参数，作用于校正后的图像
type PreprocessConfig struct {
	AdaptiveBlockSize int
	AdaptiveConstant  float64
	Median            bool
	DenoiseStrength   float64
	SharpenStrength   float64
	ContrastAmount    float64
	Binarize          bool
}

// DefaultProcessOptions 默认处理选项
func DefaultProcessOptions() *ProcessOptions {
	return &ProcessOptions{
		MaxPixels: 100_000_000,
		PreprocessConfig: &PreprocessConfig{
			AdaptiveBlockSize: 15,
			AdaptiveConstant:  10,
			Median:            true,
			DenoiseStrength:   0.5,
			SharpenStrength:   0.5,
			ContrastAmount:    20,
			Binarize:          true,
		},
	}
}

// 创建新的处理器。recognizer 为 nil 时跳过文字识别。
func NewProcessor(log logger.Logger, aligner *skew.Aligner, recognizer document.TextRecognizer, opts *ProcessOptions) (*Processor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if aligner == nil {
		return nil, fmt.Errorf("aligner is required")
	}

	// 设置默认选项
	if opts == nil {
		opts = DefaultProcessOptions()
	}
	if opts.PreprocessConfig == nil {
		opts.PreprocessConfig = DefaultProcessOptions().PreprocessConfig
	}

	return &Processor{
		logger:        log,
		aligner:       aligner,
		recognizer:    recognizer,
		preprocessors: buildPreprocessors(opts.PreprocessConfig),
		config:        opts,
	}, nil
}

// 构建预处理管道
func buildPreprocessors(cfg *PreprocessConfig) []ImagePreprocessor {
	chain := []ImagePreprocessor{NewGrayscaleProcessor()}
	if cfg.Median {
		chain = append(chain, NewMedianProcessor())
	}
	chain = append(chain,
		NewDenoiseProcessor(cfg.DenoiseStrength),
		NewContrastNormalizationProcessor(cfg.ContrastAmount),
		NewSharpenProcessor(cfg.SharpenStrength),
	)
	if cfg.Binarize {
		chain = append(chain, NewAdaptiveThresholdProcessor(cfg.AdaptiveBlockSize, cfg.AdaptiveConstant))
	}
	return chain
}

func (p *Processor) CanProcess(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/bmp", "image/tiff", "image/webp":
		return true
	default:
		return false
	}
}

// 处理图像
func (p *Processor) Process(ctx context.Context, file io.Reader) (*document.Outcome, error) {
	// 读取图像数据
	imageData, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	meta, err := p.metadata(imageData)
	if err != nil {
		return nil, err
	}

	// 解码图像
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", imageops.ErrImageProcessing, err)
	}

	aligned, res, err := p.aligner.Align(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to align %s: %w", meta.Hash[:8], err)
	}

	outcome := &document.Outcome{
		Input:   meta,
		Aligned: aligned,
		Result:  res,
	}

	if p.recognizer == nil {
		return outcome, nil
	}

	// 应用预处理管道
	processed, err := p.applyPreprocessing(aligned)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess image: %w", err)
	}

	// 识别失败不影响校正结果
	ocr, err := p.recognizer.Recognize(ctx, processed)
	if err != nil {
		p.logger.Error("Failed to recognize text", logger.Error(err))
		return outcome, nil
	}
	outcome.OCR = ocr

	return outcome, nil
}

// 图像预处理
func (p *Processor) applyPreprocessing(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	var err error
	result := img

	for _, processor := range p.preprocessors {
		result, err = processor.Process(result)
		if err != nil {
			p.logger.Error("Preprocessing failed", logger.Error(err))
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if result == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}

	return result, nil
}

// ExtractMetadata 实现 document.Processor 接口
func (p *Processor) ExtractMetadata(ctx context.Context, file io.Reader) (models.ImageMetadata, error) {
	imageData, err := io.ReadAll(file)
	if err != nil {
		return models.ImageMetadata{}, fmt.Errorf("failed to read image data: %w", err)
	}
	return p.metadata(imageData)
}

// metadata 只解析图像头部，不解码像素
func (p *Processor) metadata(imageData []byte) (models.ImageMetadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return models.ImageMetadata{}, fmt.Errorf("%w: failed to decode image header: %v", imageops.ErrImageProcessing, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return models.ImageMetadata{}, fmt.Errorf("%w: empty image", imageops.ErrImageProcessing)
	}
	if p.config.MaxPixels > 0 && cfg.Width*cfg.Height > p.config.MaxPixels {
		return models.ImageMetadata{}, fmt.Errorf("%w: image %dx%d exceeds %d pixels",
			imageops.ErrImageProcessing, cfg.Width, cfg.Height, p.config.MaxPixels)
	}

	// 计算文件哈希
	hash := sha256.Sum256(imageData)

	return models.ImageMetadata{
		MimeType:  "image/" + format,
		Format:    format,
		FileSize:  int64(len(imageData)),
		Width:     cfg.Width,
		Height:    cfg.Height,
		Hash:      hex.EncodeToString(hash[:]),
		CreatedAt: time.Now(),
	}, nil
}

// Close 实现 document.Processor 接口的 Close 方法
func (p *Processor) Close() error {
	if p.recognizer != nil {
		return p.recognizer.Close()
	}
	return nil
}
