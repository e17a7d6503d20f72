package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-deskew/internal/utils/validator"
	"github.com/feichai0017/document-deskew/pkg/imageops"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/queue"
)

// TaskHandler 执行一个已出队的校正任务
type TaskHandler interface {
	HandleTask(ctx context.Context, task *queue.Task) error
}

type AlignWorker struct {
	BaseWorker
	handler TaskHandler
}

func NewAlignWorker(cfg *Config, handler TaskHandler, log logger.Logger) (*AlignWorker, error) {
	if handler == nil {
		return nil, fmt.Errorf("task handler is required")
	}

	w := &AlignWorker{
		BaseWorker: newBaseWorker(cfg, log),
		handler:    handler,
	}

	// 注册任务处理器
	w.registerHandlers()
	return w, nil
}

func (w *AlignWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeImageAlign, w.handleImageAlign)
}

func (w *AlignWorker) handleImageAlign(ctx context.Context, t *asynq.Task) error {
	// 反序列化任务
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	// 检查必要字段
	if task.ID == "" || task.Payload.FileKey == "" {
		w.logger.Error("Invalid task data",
			logger.String("taskId", task.ID),
			logger.Any("payload", task.Payload),
		)
		return fmt.Errorf("invalid task data: missing required fields: %w", asynq.SkipRetry)
	}

	w.logger.Info("Processing align task",
		logger.String("taskId", task.ID),
		logger.String("filename", task.Payload.Filename),
	)

	ctx = logger.WithTaskID(ctx, task.ID)

	// 获取任务写入器
	if rw := t.ResultWriter(); rw != nil {
		writeResult(w.logger, rw, `{"status":"running","progress":0}`)
	}

	err := w.handler.HandleTask(ctx, &task)
	if err != nil {
		if rw := t.ResultWriter(); rw != nil {
			writeResult(w.logger, rw, fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))
		}
		// 图像本身无法处理时重试无意义
		if permanent(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if rw := t.ResultWriter(); rw != nil {
		writeResult(w.logger, rw, `{"status":"completed","progress":100}`)
	}
	return nil
}

func permanent(err error) bool {
	return errors.Is(err, imageops.ErrImageProcessing) || errors.Is(err, validator.ErrInvalidImage)
}

func writeResult(log logger.Logger, rw *asynq.ResultWriter, body string) {
	if _, err := rw.Write([]byte(body)); err != nil {
		log.Error("Failed to write task result", logger.Error(err))
	}
}

func sprint(args []interface{}) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}
