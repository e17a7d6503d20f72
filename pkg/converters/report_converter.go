package converters

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"time"

	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/pkg/skew"
)

// ReportConverter 定义对齐报告转换器接口
type ReportConverter interface {
	Convert(input models.ImageMetadata, output image.Image, res *skew.Result) (*models.AlignmentReport, error)
}

// JSONReportConverter 将对齐结果转换为 JSON 报告
type JSONReportConverter struct {
	now func() time.Time
}

func NewJSONReportConverter() *JSONReportConverter {
	return &JSONReportConverter{now: time.Now}
}

func (c *JSONReportConverter) Convert(input models.ImageMetadata, output image.Image, res *skew.Result) (*models.AlignmentReport, error) {
	if res == nil {
		return nil, fmt.Errorf("no alignment result to convert")
	}
	if math.IsNaN(res.Slope) || math.IsInf(res.Slope, 0) {
		return nil, fmt.Errorf("alignment result has no finite slope")
	}

	report := &models.AlignmentReport{
		Input: input,
		Estimate: models.SkewEstimate{
			Slope:     res.Slope,
			Positive:  res.Positive,
			Angle:     res.Angle,
			Degrees:   res.Degrees,
			Quadrants: res.Quadrants,
			Found:     res.Found,
			Threshold: res.Threshold,
			Whites:    res.Whites,
			Side:      res.Side,
		},
		Timings: models.StageTimings{
			Normalize: millis(res.Timings.Normalize),
			Transform: millis(res.Timings.Transform),
			Filter:    millis(res.Timings.Filter),
			Search:    millis(res.Timings.Search),
			Rotate:    millis(res.Timings.Rotate),
			Total:     millis(res.Timings.Total()),
		},
		ProcessedAt: c.now(),
	}

	// 输出图像统一编码为 PNG
	report.Output = models.ImageMetadata{
		FileName:  input.FileName,
		MimeType:  "image/png",
		Format:    "png",
		CreatedAt: report.ProcessedAt,
	}
	if output != nil {
		b := output.Bounds()
		report.Output.Width, report.Output.Height = b.Dx(), b.Dy()
	}

	return report, nil
}

// Encode 写出缩进格式的 JSON 报告
func Encode(w io.Writer, report *models.AlignmentReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// Decode 读取 JSON 报告
func Decode(r io.Reader) (*models.AlignmentReport, error) {
	var report models.AlignmentReport
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
