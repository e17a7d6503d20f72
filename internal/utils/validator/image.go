// internal/utils/validator/image.go
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/feichai0017/document-deskew/pkg/logger"
)

// ErrInvalidImage 上传的文件未通过校验
var ErrInvalidImage = errors.New("invalid image")

// ImageValidator 图像验证器
type ImageValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 最大文件大小（字节）
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
	MinDimension int                 // 图片最小边长
	MaxDimension int                 // 图片最大边长
	MaxPixels    int                 // 图片最大像素数
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Hash      string `json:"hash"`
}

// Err 将失败的结果转换为 error
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return fmt.Errorf("%w %s: %s", ErrInvalidImage, r.FileInfo.Filename, strings.Join(msgs, "; "))
}

// DefaultConfig 默认配置
func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 20 * 1024 * 1024, // 20MB
		AllowedTypes: map[string][]string{
			".jpg":  {"image/jpeg"},
			".jpeg": {"image/jpeg"},
			".png":  {"image/png"},
			".gif":  {"image/gif"},
			".bmp":  {"image/bmp"},
			".tif":  {"image/tiff"},
			".tiff": {"image/tiff"},
			".webp": {"image/webp"},
		},
		MinDimension: 1,
		MaxDimension: 20000,
		MaxPixels:    100_000_000,
	}
}

// NewImageValidator 创建新的图像验证器
func NewImageValidator(logger logger.Logger, config *ValidatorConfig) *ImageValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &ImageValidator{
		logger: logger,
		config: config,
	}
}

// ValidateFile 验证单个上传文件
func (v *ImageValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return v.Validate(file.Filename, file.Size, f)
}

// Validate 验证任意可回绕的数据流
func (v *ImageValidator) Validate(filename string, size int64, r io.ReadSeeker) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      size,
			Extension: strings.ToLower(filepath.Ext(filename)),
		},
	}

	// 计算文件哈希
	hash, err := calculateHash(r)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	// 重置文件指针
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}

	// 基本验证
	result.add(v.performBasicValidation(result.FileInfo)...)

	// 解析图像头部，得到格式和尺寸
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		result.add(ValidationError{
			Code:    "UNDECODABLE_IMAGE",
			Message: fmt.Sprintf("cannot decode image header: %v", err),
			Field:   "content",
		})
		return result, nil
	}
	result.FileInfo.Format = format
	result.FileInfo.MimeType = "image/" + format
	result.FileInfo.Width = cfg.Width
	result.FileInfo.Height = cfg.Height

	result.add(v.validateMimeType(result.FileInfo)...)
	result.add(v.validateDimensions(result.FileInfo)...)

	if !result.IsValid && v.logger != nil {
		v.logger.Warn("Image validation failed",
			logger.String("filename", filename),
			logger.Any("errors", result.Errors),
		)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}
	return result, nil
}

// ValidateFiles 批量验证文件
func (v *ImageValidator) ValidateFiles(files []*multipart.FileHeader) ([]*ValidationResult, error) {
	results := make([]*ValidationResult, len(files))
	var g errgroup.Group

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			result, err := v.ValidateFile(file)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ValidationResult) add(errs ...ValidationError) {
	if len(errs) == 0 {
		return
	}
	r.IsValid = false
	r.Errors = append(r.Errors, errs...)
}

// 基本验证
func (v *ImageValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errs []ValidationError

	// 检查文件大小
	if fileInfo.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("file size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if fileInfo.Size == 0 {
		errs = append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "file is empty",
			Field:   "size",
		})
	}

	// 检查文件扩展名
	if _, ok := v.config.AllowedTypes[fileInfo.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("file type %q is not allowed", fileInfo.Extension),
			Field:   "extension",
		})
	}

	return errs
}

// MIME类型验证
func (v *ImageValidator) validateMimeType(fileInfo FileInfo) []ValidationError {
	allowed, ok := v.config.AllowedTypes[fileInfo.Extension]
	if !ok {
		// 扩展名错误已在基本验证中报告
		return nil
	}

	for _, mime := range allowed {
		if mime == fileInfo.MimeType {
			return nil
		}
	}

	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("content type %s does not match extension %s", fileInfo.MimeType, fileInfo.Extension),
		Field:   "mimeType",
	}}
}

// 尺寸验证
func (v *ImageValidator) validateDimensions(fileInfo FileInfo) []ValidationError {
	var errs []ValidationError
	w, h := fileInfo.Width, fileInfo.Height

	if w < v.config.MinDimension || h < v.config.MinDimension {
		errs = append(errs, ValidationError{
			Code:    "IMAGE_TOO_SMALL",
			Message: fmt.Sprintf("image %dx%d is smaller than %d pixels", w, h, v.config.MinDimension),
			Field:   "dimensions",
		})
	}
	if v.config.MaxDimension > 0 && (w > v.config.MaxDimension || h > v.config.MaxDimension) {
		errs = append(errs, ValidationError{
			Code:    "IMAGE_TOO_LARGE",
			Message: fmt.Sprintf("image %dx%d exceeds %d pixels per side", w, h, v.config.MaxDimension),
			Field:   "dimensions",
		})
	}
	if v.config.MaxPixels > 0 && w*h > v.config.MaxPixels {
		errs = append(errs, ValidationError{
			Code:    "TOO_MANY_PIXELS",
			Message: fmt.Sprintf("image has %d pixels, limit is %d", w*h, v.config.MaxPixels),
			Field:   "dimensions",
		})
	}

	return errs
}

// 计算文件哈希
func calculateHash(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
