package agent

import (
	"fmt"
	"strings"

	"github.com/feichai0017/document-deskew/internal/agent/document"
	"github.com/feichai0017/document-deskew/pkg/logger"
)

// 添加扩展名到 MIME 类型的映射
var extToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

type ProcessorFactory struct {
	processors map[string]document.Processor
	logger     logger.Logger
}

// NewProcessorFactory 为 processor 支持的每种 MIME 类型注册处理器
func NewProcessorFactory(log logger.Logger, processors ...document.Processor) (*ProcessorFactory, error) {
	factory := &ProcessorFactory{
		processors: make(map[string]document.Processor),
		logger:     log,
	}

	for _, p := range processors {
		for _, mimeType := range extToMIME {
			if p.CanProcess(mimeType) {
				if _, ok := factory.processors[mimeType]; !ok {
					factory.processors[mimeType] = p
				}
			}
		}
	}
	if len(factory.processors) == 0 {
		return nil, fmt.Errorf("no processor registered")
	}

	return factory, nil
}

// GetProcessor 按扩展名或 MIME 类型查找处理器
func (f *ProcessorFactory) GetProcessor(fileType string) (document.Processor, error) {
	fileType = strings.ToLower(fileType)

	// 将扩展名转换为 MIME 类型
	mimeType := fileType
	if strings.HasPrefix(fileType, ".") {
		var ok bool
		mimeType, ok = extToMIME[fileType]
		if !ok {
			f.logger.Error("Unsupported file type",
				logger.String("fileType", fileType),
			)
			return nil, fmt.Errorf("unsupported file type: %s", fileType)
		}
	}

	// 获取处理器
	processor, ok := f.processors[mimeType]
	if !ok {
		f.logger.Error("No processor found",
			logger.String("mimeType", mimeType),
		)
		return nil, fmt.Errorf("no processor found for mime type: %s", mimeType)
	}

	return processor, nil
}

// Close 关闭所有处理器
func (f *ProcessorFactory) Close() error {
	seen := make(map[document.Processor]bool)
	var firstErr error
	for _, p := range f.processors {
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
