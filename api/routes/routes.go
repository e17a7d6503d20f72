package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-deskew/api/handlers"
	"github.com/feichai0017/document-deskew/api/middleware"
	"github.com/feichai0017/document-deskew/pkg/logger"
)

// Options 路由配置
type Options struct {
	Logger        logger.Logger
	MaxUploadSize int64
}

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, opts Options) {
	// 全局中间件
	r.Use(middleware.RequestID())
	if opts.Logger != nil {
		r.Use(middleware.AccessLog(opts.Logger))
	}
	r.Use(middleware.CORS())

	// 健康检查
	r.GET("/health", handlers.HealthCheck)

	// API 版本组
	v1 := r.Group("/api/v1")
	v1.GET("/health", handlers.HealthCheck)

	// 图像处理路由组
	images := v1.Group("/images")
	images.Use(middleware.MaxBodySize(opts.MaxUploadSize))
	{
		images.POST("/align", h.Image.AlignImage)
		images.POST("/process", h.Image.ProcessImage)
		images.POST("/batch", h.Image.ProcessBatch)
		images.GET("/status/:taskId", h.Image.GetStatus)
		images.GET("/report/:taskId", h.Image.GetReport)
		images.GET("/download/:taskId", h.Image.DownloadResult)
		images.DELETE("/task/:taskId", h.Image.CancelTask)
	}
}
