package image

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/document-deskew/pkg/imageops"
)

// ImagePreprocessor 图像预处理接口
type ImagePreprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// 灰度处理器
type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

// 中值滤波处理器，去除扫描件上的椒盐噪声
type MedianProcessor struct{}

func NewMedianProcessor() *MedianProcessor {
	return &MedianProcessor{}
}

func (p *MedianProcessor) Process(img image.Image) (image.Image, error) {
	return imageops.Denoise(img), nil
}

// 降噪处理器
type DenoiseProcessor struct {
	strength float64
}

func NewDenoiseProcessor(strength float64) *DenoiseProcessor {
	return &DenoiseProcessor{strength: strength}
}

func (p *DenoiseProcessor) Process(img image.Image) (image.Image, error) {
	if p.strength <= 0 {
		return img, nil
	}
	// 使用高斯模糊进行降噪
	return imaging.Blur(img, p.strength), nil
}

// 锐化处理器
type SharpenProcessor struct {
	strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
	return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	if p.strength <= 0 {
		return img, nil
	}
	return imaging.Sharpen(img, p.strength), nil
}

// 对比度处理器
type ContrastNormalizationProcessor struct {
	amount float64
}

func NewContrastNormalizationProcessor(amount float64) *ContrastNormalizationProcessor {
	return &ContrastNormalizationProcessor{amount: amount}
}

func (p *ContrastNormalizationProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.amount), nil
}

// 自适应阈值处理器
type AdaptiveThresholdProcessor struct {
	blockSize int
	constant  float64
}

func NewAdaptiveThresholdProcessor(blockSize int, constant float64) *AdaptiveThresholdProcessor {
	return &AdaptiveThresholdProcessor{
		blockSize: blockSize,
		constant:  constant,
	}
}

// Process 像素低于邻域均值减常数时置黑，否则置白。
// 邻域均值通过积分图计算。
func (p *AdaptiveThresholdProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	if p.blockSize < 1 {
		return nil, fmt.Errorf("%w: block size must be positive, got %d", imageops.ErrImageProcessing, p.blockSize)
	}

	// 转换为灰度图像
	gray := imaging.Grayscale(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()

	// integral[(y)*(w+1)+x] 为 [0,x)×[0,y) 的灰度和
	stride := w + 1
	integral := make([]uint64, stride*(h+1))
	for y := 0; y < h; y++ {
		var row uint64
		for x := 0; x < w; x++ {
			row += uint64(gray.Pix[y*gray.Stride+x*4])
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + row
		}
	}

	result := image.NewGray(image.Rect(0, 0, w, h))
	half := p.blockSize / 2

	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-half), min(h, y+half+1)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-half), min(w, x+half+1)
			sum := integral[y1*stride+x1] - integral[y0*stride+x1] - integral[y1*stride+x0] + integral[y0*stride+x0]
			mean := float64(sum) / float64((y1-y0)*(x1-x0))

			pixel := float64(gray.Pix[y*gray.Stride+x*4])
			if pixel < mean-p.constant {
				result.SetGray(x, y, color.Gray{Y: 0})
			} else {
				result.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	return result, nil
}
