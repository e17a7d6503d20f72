// Package ocr recognises text on aligned images with Tesseract.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/pkg/logger"
)

// Config 识别参数
type Config struct {
	Languages     []string
	PageSegMode   gosseract.PageSegMode
	Whitelist     string
	MinConfidence float64
}

// DefaultConfig 默认识别参数
func DefaultConfig(language string) *Config {
	if language == "" {
		language = "eng"
	}
	return &Config{
		Languages:     strings.Split(language, "+"),
		PageSegMode:   gosseract.PSM_AUTO,
		MinConfidence: 60,
	}
}

// Engine 基于 Tesseract 的文字识别
type Engine struct {
	config *Config
	logger logger.Logger
}

func NewEngine(cfg *Config, log logger.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	return &Engine{config: cfg, logger: log}
}

// Recognize 识别整张图像。每次调用使用独立的客户端，gosseract.Client 不能并发使用。
func (e *Engine) Recognize(ctx context.Context, img image.Image) (*models.OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	// 设置语言和页面分割模式
	if err := client.SetLanguage(e.config.Languages...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(e.config.PageSegMode); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if e.config.Whitelist != "" {
		if err := client.SetWhitelist(e.config.Whitelist); err != nil {
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	// 设置图像数据
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	// 获取文本
	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to get text: %w", err)
	}

	// 获取单词级别的置信度
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("Failed to get bounding boxes", logger.Error(err))
		}
		boxes = nil
	}

	return summarize(text, boxes, e.config.MinConfidence), nil
}

func (e *Engine) Close() error {
	return nil
}

// 后处理识别结果，过滤低置信度单词
func summarize(text string, boxes []gosseract.BoundingBox, minConfidence float64) *models.OCRResult {
	var total float64
	var words int
	for _, box := range boxes {
		if box.Confidence < minConfidence || strings.TrimSpace(box.Word) == "" {
			continue
		}
		total += box.Confidence
		words++
	}

	result := &models.OCRResult{
		Text:  strings.Join(strings.Fields(text), " "),
		Words: words,
	}
	if words > 0 {
		result.Confidence = total / float64(words)
	}
	return result
}
