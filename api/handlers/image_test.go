package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/internal/service/alignment"
	"github.com/feichai0017/document-deskew/internal/utils/validator"
	"github.com/feichai0017/document-deskew/pkg/imageops"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/queue"
	"github.com/feichai0017/document-deskew/pkg/skew"
	"github.com/feichai0017/document-deskew/pkg/storage"
)

// stubService 只实现被测处理器用到的方法，其余返回 err
type stubService struct {
	err    error
	report *models.AlignmentReport
}

func (s *stubService) AlignFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*alignment.AlignedImage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &alignment.AlignedImage{Image: image.NewNRGBA(image.Rect(0, 0, 1, 1)), Report: s.report}, nil
}

func (s *stubService) ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ProcessingTask, error) {
	return nil, s.err
}

func (s *stubService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	return nil, s.err
}

func (s *stubService) HandleTask(ctx context.Context, task *queue.Task) error { return s.err }

func (s *stubService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	return nil, s.err
}

func (s *stubService) GetReport(ctx context.Context, taskID string) (*models.AlignmentReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func (s *stubService) GetAlignedImage(ctx context.Context, taskID string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader("png")), nil
}

func (s *stubService) CancelTask(ctx context.Context, taskID string) error { return s.err }

func (s *stubService) CleanupTasks(ctx context.Context) error { return s.err }

func testContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, rec
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid image", fmt.Errorf("%w scan.png: too large", validator.ErrInvalidImage), http.StatusBadRequest},
		{"processing", fmt.Errorf("failed to align: %w", imageops.ErrImageProcessing), http.StatusUnprocessableEntity},
		{"indeterminate skew", fmt.Errorf("failed to align abcd1234: %w", skew.ErrIndeterminateSkew), http.StatusUnprocessableEntity},
		{"unknown task", fmt.Errorf("failed to get task status: %w", queue.ErrTaskNotFound), http.StatusNotFound},
		{"missing object", fmt.Errorf("failed to get file: %w: reports/t1.json", storage.ErrNotFound), http.StatusNotFound},
		{"not ready", fmt.Errorf("%w: t1", alignment.ErrTaskNotReady), http.StatusConflict},
		{"other", errors.New("redis down"), http.StatusInternalServerError},
		{"nil", nil, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err, http.StatusInternalServerError))
		})
	}
	assert.Equal(t, http.StatusBadGateway, statusFor(errors.New("x"), http.StatusBadGateway))
}

func TestHandleErrorLogLevel(t *testing.T) {
	log := logger.NewTestLogger()
	h := NewImageHandler(&stubService{}, log)

	c, rec := testContext(http.MethodGet, "/api/v1/images/report/t1")
	c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), "req-7"))
	h.handleError(c, http.StatusConflict, "Failed to get report", alignment.ErrTaskNotReady)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.True(t, c.IsAborted())
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Failed to get report", resp.Message)
	assert.Equal(t, alignment.ErrTaskNotReady.Error(), resp.Error)
	assert.Equal(t, "req-7", resp.RequestID)
	assert.True(t, log.Contains("WARN", "Failed to get report"))

	c, rec = testContext(http.MethodGet, "/api/v1/images/report/t1")
	h.handleError(c, http.StatusInternalServerError, "Failed to get report", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, log.Contains("ERROR", "Failed to get report"))
	resp = ErrorResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Error)
	assert.Empty(t, resp.RequestID)
}

func TestGetReportHandler(t *testing.T) {
	report := &models.AlignmentReport{TaskID: "t1", Estimate: models.SkewEstimate{Degrees: 315, Slope: 1}}
	h := NewImageHandler(&stubService{report: report}, logger.NewTestLogger())

	c, rec := testContext(http.MethodGet, "/api/v1/images/report/t1")
	c.Params = gin.Params{{Key: "taskId", Value: "t1"}}
	h.GetReport(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.AlignmentReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, 315.0, got.Estimate.Degrees)
}

func TestTaskHandlersMapErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		handler func(h *ImageHandler) gin.HandlerFunc
		want    int
	}{
		{"status not found", queue.ErrTaskNotFound, func(h *ImageHandler) gin.HandlerFunc { return h.GetStatus }, http.StatusNotFound},
		{"report not ready", alignment.ErrTaskNotReady, func(h *ImageHandler) gin.HandlerFunc { return h.GetReport }, http.StatusConflict},
		{"download missing", storage.ErrNotFound, func(h *ImageHandler) gin.HandlerFunc { return h.DownloadResult }, http.StatusNotFound},
		{"cancel failure", errors.New("redis down"), func(h *ImageHandler) gin.HandlerFunc { return h.CancelTask }, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewImageHandler(&stubService{err: tt.err}, logger.NewTestLogger())
			c, rec := testContext(http.MethodGet, "/api/v1/images/x/t1")
			c.Params = gin.Params{{Key: "taskId", Value: "t1"}}

			tt.handler(h)(c)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestDownloadResultHeaders(t *testing.T) {
	h := NewImageHandler(&stubService{}, logger.NewTestLogger())
	c, rec := testContext(http.MethodGet, "/api/v1/images/download/t9")
	c.Params = gin.Params{{Key: "taskId", Value: "t9"}}

	h.DownloadResult(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=aligned_t9.png", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "png", rec.Body.String())
}
