package models

import (
	"time"
)

// TaskTypeAlign 图像对齐任务类型
const TaskTypeAlign = "image:align"

// ImageMetadata 图像元数据
type ImageMetadata struct {
	FileName  string    `json:"fileName"`
	MimeType  string    `json:"mimeType"`
	Format    string    `json:"format"`
	FileSize  int64     `json:"fileSize"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Hash      string    `json:"hash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SkewEstimate 倾斜估计结果
type SkewEstimate struct {
	Slope     float64 `json:"slope"`
	Positive  bool    `json:"positive"`
	Angle     float64 `json:"angle"`
	Degrees   float64 `json:"degrees"`
	Quadrants [4]int  `json:"quadrants"`
	Found     int     `json:"found"`
	Threshold int     `json:"threshold"`
	Whites    int     `json:"whites"`
	Side      int     `json:"side"`
}

// StageTimings 各阶段耗时（毫秒）
type StageTimings struct {
	Normalize float64 `json:"normalizeMs"`
	Transform float64 `json:"transformMs"`
	Filter    float64 `json:"filterMs"`
	Search    float64 `json:"searchMs"`
	Rotate    float64 `json:"rotateMs"`
	Total     float64 `json:"totalMs"`
}

// OCRResult 对齐后图像的文字识别结果
type OCRResult struct {
	Text       string  `json:"text"`
	Words      int     `json:"words"`
	Confidence float64 `json:"confidence"`
}

// AlignmentReport 对齐报告
type AlignmentReport struct {
	TaskID      string        `json:"taskId,omitempty"`
	Input       ImageMetadata `json:"input"`
	Output      ImageMetadata `json:"output"`
	Estimate    SkewEstimate  `json:"estimate"`
	Timings     StageTimings  `json:"timings"`
	OCR         *OCRResult    `json:"ocr,omitempty"`
	ProcessedAt time.Time     `json:"processedAt"`
}

type ProcessingTask struct {
	ID        string            `json:"id"`
	Status    ProcessingStatus  `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)

// ParseStatus 将队列状态字符串映射为 ProcessingStatus
func ParseStatus(s string) ProcessingStatus {
	switch s {
	case "running", "active":
		return StatusRunning
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "cancelled":
		return StatusCancelled
	default:
		return StatusPending
	}
}

// Done 是否为终止状态
func (s ProcessingStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
