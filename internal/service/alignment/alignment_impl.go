package alignment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-deskew/internal/agent"
	"github.com/feichai0017/document-deskew/internal/agent/document"
	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/internal/utils/validator"
	"github.com/feichai0017/document-deskew/pkg/converters"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/queue"
	"github.com/feichai0017/document-deskew/pkg/storage"
)

var _ AlignmentProcessor = (*AlignmentService)(nil)

type AlignmentService struct {
	processorFactory *agent.ProcessorFactory
	validator        *validator.ImageValidator
	converter        converters.ReportConverter
	queue            queue.Queue
	storage          storage.Storage
	logger           logger.Logger
	config           *ServiceConfig
}

type ServiceConfig struct {
	QueuePriority   int
	MaxConcurrent   int
	ProcessTimeout  time.Duration
	RetentionPeriod time.Duration
}

// DefaultServiceConfig 默认服务配置
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		QueuePriority:   2,
		MaxConcurrent:   5,
		ProcessTimeout:  10 * time.Minute,
		RetentionPeriod: 24 * time.Hour,
	}
}

func NewService(
	factory *agent.ProcessorFactory,
	v *validator.ImageValidator,
	q queue.Queue,
	store storage.Storage,
	log logger.Logger,
	cfg *ServiceConfig,
) *AlignmentService {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if v == nil {
		v = validator.NewImageValidator(log, nil)
	}

	return &AlignmentService{
		processorFactory: factory,
		validator:        v,
		converter:        converters.NewJSONReportConverter(),
		queue:            q,
		storage:          store,
		logger:           log,
		config:           cfg,
	}
}

// AlignFile 同步校正单个文件
func (s *AlignmentService) AlignFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*AlignedImage, error) {
	info, err := s.validateFile(file, header)
	if err != nil {
		return nil, err
	}

	outcome, err := s.process(ctx, file, info.MimeType)
	if err != nil {
		return nil, err
	}

	report, err := s.report(outcome, header.Filename)
	if err != nil {
		return nil, err
	}

	return &AlignedImage{Image: outcome.Aligned, Report: report}, nil
}

// ProcessFile 处理单个文件
func (s *AlignmentService) ProcessFile(
	ctx context.Context,
	file multipart.File,
	header *multipart.FileHeader,
) (*models.ProcessingTask, error) {
	s.logger.Info("Starting file processing",
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
	)

	// 验证文件
	info, err := s.validateFile(file, header)
	if err != nil {
		return nil, err
	}

	// 生成任务ID
	taskID := uuid.New().String()
	now := time.Now()

	// 创建处理任务
	task := &models.ProcessingTask{
		ID:        taskID,
		Status:    models.StatusPending,
		Type:      models.TaskTypeAlign,
		Priority:  s.config.QueuePriority,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: map[string]string{
			"filename": header.Filename,
			"size":     fmt.Sprintf("%d", header.Size),
			"type":     info.Extension,
			"hash":     info.Hash,
		},
	}

	// 存储文件
	key, err := s.storage.Store(ctx, file, storage.UploadKey(taskID, header.Filename), info.MimeType)
	if err != nil {
		s.logger.Error("Failed to store file",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	// 保存初始状态，先于入队，避免 worker 的状态被覆盖
	initialStatus := &queue.TaskStatus{
		TaskID:    taskID,
		Status:    string(models.StatusPending),
		StartedAt: now,
	}
	if err := s.queue.SaveStatus(ctx, initialStatus); err != nil {
		s.logger.Error("Failed to save initial status",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
	}

	// 准备任务数据
	queueTask := &queue.Task{
		ID:       taskID,
		Type:     queue.TaskTypeImageAlign,
		Priority: task.Priority,
		Payload: queue.AlignPayload{
			FileKey:  key,
			Filename: header.Filename,
			Size:     header.Size,
			MimeType: info.MimeType,
		},
		Metadata:  task.Metadata,
		CreatedAt: task.CreatedAt,
	}

	// 加入处理队列
	if err := s.queue.Enqueue(ctx, queueTask); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", logger.String("key", key), logger.Error(delErr))
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("Alignment task created",
		logger.String("taskId", taskID),
		logger.String("filename", header.Filename),
	)

	return task, nil
}

// ProcessBatch 批量处理文件，结果顺序与输入一致
func (s *AlignmentService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, len(files))

	// 使用 errgroup 来管理并发和错误
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.config.MaxConcurrent))

	for i, header := range files {
		i, header := i, header
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer file.Close()

			task, err := s.ProcessFile(gctx, file, header)
			if err != nil {
				return fmt.Errorf("failed to process file %s: %w", header.Filename, err)
			}
			tasks[i] = task
			return nil
		})
	}

	err := g.Wait()

	// 返回已提交的任务
	submitted := tasks[:0]
	for _, t := range tasks {
		if t != nil {
			submitted = append(submitted, t)
		}
	}
	return submitted, err
}

// HandleTask 实现校正任务处理逻辑
func (s *AlignmentService) HandleTask(ctx context.Context, task *queue.Task) error {
	if task == nil || task.ID == "" || task.Payload.FileKey == "" {
		return fmt.Errorf("invalid task: missing required data")
	}

	log := s.logger.With(logger.String("taskId", task.ID))
	log.Info("Processing image", logger.String("filename", task.Payload.Filename))

	started := time.Now()
	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    string(models.StatusRunning),
		Progress:  0.1,
		StartedAt: started,
	})

	report, err := s.handle(ctx, task)
	if err != nil {
		log.Error("Image alignment failed", logger.Error(err))
		s.saveStatus(ctx, &queue.TaskStatus{
			TaskID:     task.ID,
			Status:     string(models.StatusFailed),
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: time.Now(),
		})
		return err
	}

	degrees := report.Estimate.Degrees
	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     string(models.StatusCompleted),
		Progress:   1.0,
		Degrees:    &degrees,
		StartedAt:  started,
		FinishedAt: time.Now(),
	})

	log.Info("Image alignment completed",
		logger.Float64("degrees", degrees),
		logger.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (s *AlignmentService) handle(ctx context.Context, task *queue.Task) (*models.AlignmentReport, error) {
	// 获取文件
	reader, err := s.storage.Get(ctx, task.Payload.FileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	defer reader.Close()

	fileType := task.Payload.MimeType
	if fileType == "" {
		fileType = filepath.Ext(task.Payload.Filename)
	}

	outcome, err := s.process(ctx, reader, fileType)
	if err != nil {
		return nil, err
	}

	report, err := s.report(outcome, task.Payload.Filename)
	if err != nil {
		return nil, err
	}
	report.TaskID = task.ID

	// 存储校正后的图像
	img := new(bytes.Buffer)
	if err := imaging.Encode(img, outcome.Aligned, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode aligned image: %w", err)
	}
	report.Output.FileSize = int64(img.Len())
	if _, err := s.storage.Store(ctx, bytes.NewReader(img.Bytes()), storage.AlignedKey(task.ID), "image/png"); err != nil {
		return nil, fmt.Errorf("failed to store aligned image: %w", err)
	}

	// 序列化并存储报告
	buf := new(bytes.Buffer)
	if err := converters.Encode(buf, report); err != nil {
		return nil, err
	}
	if _, err := s.storage.Store(ctx, buf, storage.ReportKey(task.ID), "application/json"); err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	return report, nil
}

func (s *AlignmentService) process(ctx context.Context, r io.Reader, fileType string) (*document.Outcome, error) {
	// 获取处理器
	processor, err := s.processorFactory.GetProcessor(fileType)
	if err != nil {
		return nil, fmt.Errorf("failed to get processor: %w", err)
	}

	if s.config.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ProcessTimeout)
		defer cancel()
	}

	outcome, err := processor.Process(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}
	return outcome, nil
}

func (s *AlignmentService) report(outcome *document.Outcome, filename string) (*models.AlignmentReport, error) {
	input := outcome.Input
	input.FileName = filename

	report, err := s.converter.Convert(input, outcome.Aligned, outcome.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to convert result: %w", err)
	}
	report.OCR = outcome.OCR
	return report, nil
}

// GetProcessingStatus 获取处理状态
func (s *AlignmentService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	task := &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    models.ParseStatus(status.Status),
		Type:      models.TaskTypeAlign,
		Progress:  status.Progress,
		Error:     status.Error,
		Metadata:  make(map[string]string),
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}
	if status.Degrees != nil {
		task.Metadata["degrees"] = fmt.Sprintf("%.4f", *status.Degrees)
	}
	return task, nil
}

// GetReport 获取校正报告
func (s *AlignmentService) GetReport(ctx context.Context, taskID string) (*models.AlignmentReport, error) {
	if err := s.ensureCompleted(ctx, taskID); err != nil {
		return nil, err
	}

	reader, err := s.storage.Get(ctx, storage.ReportKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	defer reader.Close()

	return converters.Decode(reader)
}

// GetAlignedImage 获取校正后的 PNG 图像，调用方负责关闭
func (s *AlignmentService) GetAlignedImage(ctx context.Context, taskID string) (io.ReadCloser, error) {
	if err := s.ensureCompleted(ctx, taskID); err != nil {
		return nil, err
	}

	reader, err := s.storage.Get(ctx, storage.AlignedKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to get aligned image: %w", err)
	}
	return reader, nil
}

func (s *AlignmentService) ensureCompleted(ctx context.Context, taskID string) error {
	status, err := s.GetProcessingStatus(ctx, taskID)
	if err != nil {
		return err
	}
	if status.Status != models.StatusCompleted {
		return fmt.Errorf("%w: %s is %s", ErrTaskNotReady, taskID, status.Status)
	}
	return nil
}

// CancelTask 取消任务
func (s *AlignmentService) CancelTask(ctx context.Context, taskID string) error {
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	s.logger.Info("Task cancelled",
		logger.String("taskId", taskID),
	)

	return nil
}

// CleanupTasks 清理过期任务
func (s *AlignmentService) CleanupTasks(ctx context.Context) error {
	threshold := time.Now().Add(-s.config.RetentionPeriod)

	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}

	s.logger.Info("Completed tasks cleanup",
		logger.Time("threshold", threshold),
	)

	return nil
}

// validateFile 验证文件
func (s *AlignmentService) validateFile(file multipart.File, header *multipart.FileHeader) (*validator.FileInfo, error) {
	result, err := s.validator.Validate(header.Filename, header.Size, file)
	if err != nil {
		return nil, fmt.Errorf("failed to validate %s: %w", header.Filename, err)
	}
	if err := result.Err(); err != nil {
		s.logger.Error("File validation failed",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, err
	}
	return &result.FileInfo, nil
}

func (s *AlignmentService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}
