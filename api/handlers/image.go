package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/internal/service/alignment"
	"github.com/feichai0017/document-deskew/internal/utils/validator"
	"github.com/feichai0017/document-deskew/pkg/imageops"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/queue"
	"github.com/feichai0017/document-deskew/pkg/storage"
)

// 同步校正响应头
const (
	HeaderSkewDegrees   = "X-Skew-Degrees"
	HeaderSkewSlope     = "X-Skew-Slope"
	HeaderSkewThreshold = "X-Skew-Threshold"
)

type ImageHandler struct {
	service alignment.AlignmentProcessor
	logger  logger.ContextLogger
}

// ProcessResponse 定义处理响应结构
type ProcessResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func NewImageHandler(service alignment.AlignmentProcessor, log logger.Logger) *ImageHandler {
	return &ImageHandler{
		service: service,
		logger:  logger.NewContextLogger(log),
	}
}

// AlignImage 同步校正单张图像。默认返回 PNG，format=json 时返回报告。
func (h *ImageHandler) AlignImage(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	res, err := h.service.AlignFile(c.Request.Context(), file, header)
	if err != nil {
		h.handleError(c, statusFor(err, http.StatusInternalServerError), "Failed to align image", err)
		return
	}

	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, res.Report)
		return
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, res.Image, imaging.PNG); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to encode image", err)
		return
	}

	est := res.Report.Estimate
	c.Header(HeaderSkewDegrees, strconv.FormatFloat(est.Degrees, 'f', -1, 64))
	c.Header(HeaderSkewSlope, strconv.FormatFloat(est.Slope, 'f', -1, 64))
	c.Header(HeaderSkewThreshold, strconv.Itoa(est.Threshold))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// ProcessImage 提交异步校正任务
func (h *ImageHandler) ProcessImage(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	task, err := h.service.ProcessFile(c.Request.Context(), file, header)
	if err != nil {
		h.handleError(c, statusFor(err, http.StatusInternalServerError), "Failed to process file", err)
		return
	}

	c.JSON(http.StatusAccepted, processResponse(task, header.Filename, header.Size))
}

// ProcessBatch 批量提交
func (h *ImageHandler) ProcessBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	tasks, err := h.service.ProcessBatch(c.Request.Context(), files)
	if err != nil {
		h.handleError(c, statusFor(err, http.StatusInternalServerError), "Failed to process files", err)
		return
	}

	responses := make([]ProcessResponse, len(tasks))
	for i, task := range tasks {
		size, _ := strconv.ParseInt(task.Metadata["size"], 10, 64)
		responses[i] = processResponse(task, task.Metadata["filename"], size)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": fmt.Sprintf("Processing %d images", len(files)),
		"tasks":   responses,
	})
}

// GetStatus 获取处理状态
func (h *ImageHandler) GetStatus(c *gin.Context) {
	taskID := c.Param("taskId")

	task, err := h.service.GetProcessingStatus(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, statusFor(err, http.StatusInternalServerError), "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"error":     task.Error,
		"metadata":  task.Metadata,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
		"updatedAt": task.UpdatedAt.Format(time.RFC3339),
	})
}

// GetReport 获取校正报告
func (h *ImageHandler) GetReport(c *gin.Context) {
	taskID := c.Param("taskId")

	report, err := h.service.GetReport(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, statusFor(err, http.StatusInternalServerError), "Failed to get report", err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// DownloadResult 下载校正后的图像
func (h *ImageHandler) DownloadResult(c *gin.Context) {
	taskID := c.Param("taskId")

	rc, err := h.service.GetAlignedImage(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, statusFor(err, http.StatusInternalServerError), "Failed to get result", err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=aligned_%s.png", taskID))
	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.FromContext(c.Request.Context()).Error("Failed to stream result",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
	}
}

// CancelTask 取消处理任务
func (h *ImageHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")

	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.handleError(c, statusFor(err, http.StatusInternalServerError), "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

func processResponse(task *models.ProcessingTask, filename string, size int64) ProcessResponse {
	return ProcessResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  filename,
		FileSize:  size,
		FileType:  filepath.Ext(filename),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	}
}

// statusFor 将领域错误映射为 HTTP 状态码
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, validator.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, imageops.ErrImageProcessing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, queue.ErrTaskNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, alignment.ErrTaskNotReady):
		return http.StatusConflict
	default:
		return fallback
	}
}

// handleError 统一错误处理
func (h *ImageHandler) handleError(c *gin.Context, status int, message string, err error) {
	log := h.logger.FromContext(c.Request.Context())
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{
		Message:   message,
		RequestID: logger.RequestID(c.Request.Context()),
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.AbortWithStatusJSON(status, response)
}
