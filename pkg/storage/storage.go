package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/storage/memory"
	"github.com/feichai0017/document-deskew/pkg/storage/minio"
	"github.com/feichai0017/document-deskew/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

// ErrNotFound 对象不存在，各后端均包装 fs.ErrNotExist
var ErrNotFound = fs.ErrNotExist

// Storage 接口定义
type Storage interface {
	// Store 存储文件
	Store(ctx context.Context, reader io.Reader, key string, contentType string) (string, error)
	// Get 获取文件
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除文件
	Delete(ctx context.Context, key string) error
	// CleanupBefore 清理过期文件
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// 对象键布局
const (
	uploadPrefix  = "uploads"
	alignedPrefix = "aligned"
	reportPrefix  = "reports"
)

// UploadKey 原始上传文件的对象键
func UploadKey(taskID, filename string) string {
	return path.Join(uploadPrefix, taskID, path.Base(filename))
}

// AlignedKey 对齐后 PNG 图像的对象键
func AlignedKey(taskID string) string {
	return path.Join(alignedPrefix, taskID+".png")
}

// ReportKey 对齐报告的对象键
func ReportKey(taskID string) string {
	return path.Join(reportPrefix, taskID+".json")
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(storageType StorageType, logger logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.GetClient(logger)
	case StorageTypeMinio:
		return minio.GetClient(logger)
	case StorageTypeMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
