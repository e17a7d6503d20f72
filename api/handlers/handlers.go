package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-deskew/internal/service/alignment"
	"github.com/feichai0017/document-deskew/pkg/logger"
)

type Handlers struct {
	Image *ImageHandler
}

func NewHandlers(
	alignmentService alignment.AlignmentProcessor,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Image: NewImageHandler(alignmentService, logger),
	}
}

// HealthCheck 健康检查
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
