package document

import (
	"context"
	"image"
	"io"

	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/pkg/skew"
)

// Outcome 单张图像的处理结果
type Outcome struct {
	Input   models.ImageMetadata
	Aligned *image.NRGBA
	Result  *skew.Result
	OCR     *models.OCRResult
}

// Processor 图像处理器接口
type Processor interface {
	// CanProcess 检查是否可以处理指定MIME类型的文件
	CanProcess(mimeType string) bool

	// Process 解码、校正图像并返回处理结果
	Process(ctx context.Context, reader io.Reader) (*Outcome, error)

	// ExtractMetadata 提取图像元数据
	ExtractMetadata(ctx context.Context, reader io.Reader) (models.ImageMetadata, error)

	// Close 清理资源
	Close() error
}

// TextRecognizer 对校正后的图像做文字识别
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (*models.OCRResult, error)
	Close() error
}
