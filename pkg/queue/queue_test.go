package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFor(t *testing.T) {
	assert.Equal(t, QueueCritical, queueFor(1))
	assert.Equal(t, QueueDefault, queueFor(2))
	assert.Equal(t, QueueLow, queueFor(0))
	assert.Equal(t, QueueLow, queueFor(7))
}

func TestConvertAsynqStatus(t *testing.T) {
	done := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		info     *asynq.TaskInfo
		status   string
		progress float64
		errMsg   string
	}{
		{"pending", &asynq.TaskInfo{ID: "a", State: asynq.TaskStatePending}, "pending", 0, ""},
		{"scheduled", &asynq.TaskInfo{ID: "a", State: asynq.TaskStateScheduled}, "pending", 0, ""},
		{"active", &asynq.TaskInfo{ID: "a", State: asynq.TaskStateActive}, "running", 0.5, ""},
		{"completed", &asynq.TaskInfo{ID: "a", State: asynq.TaskStateCompleted, CompletedAt: done}, "completed", 1, ""},
		{"retry", &asynq.TaskInfo{ID: "a", State: asynq.TaskStateRetry, LastErr: "redis down"}, "pending", 0, "redis down"},
		{"archived", &asynq.TaskInfo{ID: "a", State: asynq.TaskStateArchived, LastErr: "indeterminate skew"}, "failed", 0, "indeterminate skew"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertAsynqStatus(tt.info)
			assert.Equal(t, "a", got.TaskID)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.progress, got.Progress)
			assert.Equal(t, tt.errMsg, got.Error)
		})
	}

	assert.Equal(t, done, convertAsynqStatus(tests[3].info).FinishedAt)
}

func TestTaskRoundTrip(t *testing.T) {
	task := &Task{
		ID:   "t1",
		Type: TaskTypeImageAlign,
		Payload: AlignPayload{
			FileKey:  "uploads/t1/scan.png",
			Filename: "scan.png",
			Size:     1024,
			MimeType: "image/png",
		},
		Metadata: map[string]string{"filename": "scan.png"},
	}

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, task.Payload, decoded.Payload)
	assert.Equal(t, "uploads/t1/scan.png", decoded.Payload.FileKey)
}

func TestStatusKey(t *testing.T) {
	assert.Equal(t, "task_status:t1", statusKey("t1"))
}
