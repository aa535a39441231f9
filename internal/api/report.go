package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"diligencego/internal/report"
)

type generateReportRequest struct {
	FileBase64 string `json:"fileBase64"`
}

// generateReport drafts a report from one base64 document. The route is
// public and served under two paths.
func (h *Handler) generateReport(c *gin.Context) {
	// base64 inflates the payload by a third
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes/3*4+4096)
	var req generateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.FileBase64) == "" {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file received"})
		return
	}
	text, err := h.reporter.GenerateFromDocument(c.Request.Context(), req.FileBase64)
	if err != nil {
		if errors.Is(err, report.ErrEmptyDocument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file received"})
			return
		}
		h.logger.Error("generate report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": text})
}
