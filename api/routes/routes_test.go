package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-deskew/api/handlers"
	"github.com/feichai0017/document-deskew/api/middleware"
	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/internal/service/alignment"
	"github.com/feichai0017/document-deskew/internal/utils/validator"
	"github.com/feichai0017/document-deskew/pkg/imageops"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/queue"
)

type fakeService struct {
	alignErr error
	statuses map[string]models.ProcessingStatus
	batch    []string
}

func (f *fakeService) AlignFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*alignment.AlignedImage, error) {
	if f.alignErr != nil {
		return nil, f.alignErr
	}
	return &alignment.AlignedImage{
		Image: image.NewNRGBA(image.Rect(0, 0, 3, 2)),
		Report: &models.AlignmentReport{
			Input:    models.ImageMetadata{FileName: header.Filename},
			Estimate: models.SkewEstimate{Slope: 1, Degrees: 315, Threshold: 172},
		},
	}, nil
}

func (f *fakeService) ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ProcessingTask, error) {
	if f.alignErr != nil {
		return nil, f.alignErr
	}
	return &models.ProcessingTask{ID: "t1", Status: models.StatusPending, CreatedAt: time.Now()}, nil
}

func (f *fakeService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, len(files))
	for i, fh := range files {
		f.batch = append(f.batch, fh.Filename)
		tasks[i] = &models.ProcessingTask{
			ID:       fmt.Sprintf("t%d", i),
			Status:   models.StatusPending,
			Metadata: map[string]string{"filename": fh.Filename, "size": fmt.Sprint(fh.Size)},
		}
	}
	return tasks, nil
}

func (f *fakeService) HandleTask(ctx context.Context, task *queue.Task) error { return nil }

func (f *fakeService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, ok := f.statuses[taskID]
	if !ok {
		return nil, fmt.Errorf("failed to get task status: %w", queue.ErrTaskNotFound)
	}
	return &models.ProcessingTask{ID: taskID, Status: status, Metadata: map[string]string{}}, nil
}

func (f *fakeService) GetReport(ctx context.Context, taskID string) (*models.AlignmentReport, error) {
	if f.statuses[taskID] != models.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", alignment.ErrTaskNotReady, taskID)
	}
	return &models.AlignmentReport{TaskID: taskID, Estimate: models.SkewEstimate{Degrees: 45}}, nil
}

func (f *fakeService) GetAlignedImage(ctx context.Context, taskID string) (io.ReadCloser, error) {
	if f.statuses[taskID] != models.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", alignment.ErrTaskNotReady, taskID)
	}
	return io.NopCloser(bytes.NewReader([]byte("png-bytes"))), nil
}

func (f *fakeService) CancelTask(ctx context.Context, taskID string) error {
	if _, ok := f.statuses[taskID]; !ok {
		return fmt.Errorf("failed to cancel task: %w", queue.ErrTaskNotFound)
	}
	return nil
}

func (f *fakeService) CleanupTasks(ctx context.Context) error { return nil }

func newRouter(svc alignment.AlignmentProcessor, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r, handlers.NewHandlers(svc, log), Options{Logger: log, MaxUploadSize: 1 << 20})
	return r
}

func upload(t *testing.T, path, field string, names ...string) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for _, name := range names {
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("data"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r := newRouter(&fakeService{}, logger.NewTestLogger())

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
}

func TestAlignReturnsPNG(t *testing.T) {
	r := newRouter(&fakeService{}, logger.NewTestLogger())

	rec := serve(r, upload(t, "/api/v1/images/align", "file", "scan.png"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "315", rec.Header().Get(handlers.HeaderSkewDegrees))
	assert.Equal(t, "1", rec.Header().Get(handlers.HeaderSkewSlope))
	assert.Equal(t, "172", rec.Header().Get(handlers.HeaderSkewThreshold))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
}

func TestAlignReturnsReport(t *testing.T) {
	r := newRouter(&fakeService{}, logger.NewTestLogger())

	rec := serve(r, upload(t, "/api/v1/images/align?format=json", "file", "scan.png"))
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.AlignmentReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "scan.png", report.Input.FileName)
	assert.Equal(t, 315.0, report.Estimate.Degrees)
}

func TestAlignErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid upload", fmt.Errorf("%w scan.png: bad", validator.ErrInvalidImage), http.StatusBadRequest},
		{"unalignable", fmt.Errorf("failed: %w", imageops.ErrImageProcessing), http.StatusUnprocessableEntity},
		{"internal", fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := logger.NewTestLogger()
			r := newRouter(&fakeService{alignErr: tt.err}, log)

			req := upload(t, "/api/v1/images/align", "file", "scan.png")
			req.Header.Set(middleware.HeaderRequestID, "req-42")
			rec := serve(r, req)
			assert.Equal(t, tt.code, rec.Code)

			var resp handlers.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.err.Error(), resp.Error)
			assert.Equal(t, "req-42", resp.RequestID)
			assert.Equal(t, "req-42", rec.Header().Get(middleware.HeaderRequestID))
		})
	}
}

func TestAlignMissingFile(t *testing.T) {
	r := newRouter(&fakeService{}, logger.NewTestLogger())

	rec := serve(r, upload(t, "/api/v1/images/align", "other", "scan.png"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessAndBatch(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, logger.NewTestLogger())

	rec := serve(r, upload(t, "/api/v1/images/process", "file", "scan.png"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp handlers.ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.TaskID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, ".png", resp.FileType)

	rec = serve(r, upload(t, "/api/v1/images/batch", "files", "a.png", "b.jpg"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var batch struct {
		Tasks []handlers.ProcessResponse `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	require.Len(t, batch.Tasks, 2)
	assert.Equal(t, "b.jpg", batch.Tasks[1].Filename)
	assert.Equal(t, int64(4), batch.Tasks[1].FileSize)
	assert.Equal(t, []string{"a.png", "b.jpg"}, svc.batch)

	rec = serve(r, upload(t, "/api/v1/images/batch", "files"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskEndpoints(t *testing.T) {
	svc := &fakeService{statuses: map[string]models.ProcessingStatus{
		"done":    models.StatusCompleted,
		"waiting": models.StatusPending,
	}}
	r := newRouter(svc, logger.NewTestLogger())

	tests := []struct {
		method, path string
		code         int
	}{
		{http.MethodGet, "/api/v1/images/status/done", http.StatusOK},
		{http.MethodGet, "/api/v1/images/status/missing", http.StatusNotFound},
		{http.MethodGet, "/api/v1/images/report/done", http.StatusOK},
		{http.MethodGet, "/api/v1/images/report/waiting", http.StatusConflict},
		{http.MethodGet, "/api/v1/images/download/done", http.StatusOK},
		{http.MethodGet, "/api/v1/images/download/waiting", http.StatusConflict},
		{http.MethodDelete, "/api/v1/images/task/waiting", http.StatusOK},
		{http.MethodDelete, "/api/v1/images/task/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := serve(r, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.code, rec.Code, "%s %s", tt.method, tt.path)
	}

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/images/download/done", nil))
	assert.Equal(t, "png-bytes", rec.Body.String())
	assert.Equal(t, "attachment; filename=aligned_done.png", rec.Header().Get("Content-Disposition"))
}

func TestAccessLog(t *testing.T) {
	log := logger.NewTestLogger()
	r := newRouter(&fakeService{}, log)

	serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, log.Contains("INFO", "HTTP request"))
}
