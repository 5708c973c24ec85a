package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-scanner/backend/internal/services"
)

type ScanHandler struct {
	loop *services.ScanLoop
}

// NewScanHandler creates the scan handler. loop is nil when no scan
// directory is configured.
func NewScanHandler(loop *services.ScanLoop) *ScanHandler {
	return &ScanHandler{loop: loop}
}

// GetLatest returns the result of the most recent scan cycle.
func (h *ScanHandler) GetLatest(c *gin.Context) {
	if h.loop == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scan loop is not enabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"busy":   h.loop.Busy(),
		"result": h.loop.Latest(),
	})
}
