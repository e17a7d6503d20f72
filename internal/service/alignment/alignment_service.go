package alignment

import (
	"context"
	"errors"
	"image"
	"io"
	"mime/multipart"

	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/pkg/queue"
)

// ErrTaskNotReady 任务尚未完成，结果不可用
var ErrTaskNotReady = errors.New("task is not completed")

// AlignedImage 同步对齐的结果
type AlignedImage struct {
	Image  *image.NRGBA
	Report *models.AlignmentReport
}

type AlignmentProcessor interface {
	// AlignFile 同步校正单个文件
	AlignFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*AlignedImage, error)
	// ProcessFile 存储文件并提交异步校正任务
	ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ProcessingTask, error)
	ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error)
	// HandleTask 由 worker 调用，执行队列中的任务
	HandleTask(ctx context.Context, task *queue.Task) error
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	GetReport(ctx context.Context, taskID string) (*models.AlignmentReport, error)
	GetAlignedImage(ctx context.Context, taskID string) (io.ReadCloser, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupTasks(ctx context.Context) error
}
