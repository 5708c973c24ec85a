package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-scanner/backend/internal/services"
)

type FingerprintHandler struct {
	identifier *services.Identifier
}

func NewFingerprintHandler(identifier *services.Identifier) *FingerprintHandler {
	return &FingerprintHandler{identifier: identifier}
}

// GetStatus reports the visual index state without loading it.
func (h *FingerprintHandler) GetStatus(c *gin.Context) {
	status, ok := h.identifier.FingerprintStatus()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "visual identification is not configured"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Build loads the index from its cache, building it when missing or stale.
// With force=true the cache is ignored and every sample is fetched again.
func (h *FingerprintHandler) Build(c *gin.Context) {
	if !h.identifier.HasFingerprints() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "visual identification is not configured"})
		return
	}

	build := h.identifier.EnsureFingerprintIndex
	if c.Query("force") == "true" {
		build = h.identifier.RebuildFingerprintIndex
	}
	if err := build(c.Request.Context()); err != nil {
		log.Printf("[API] Fingerprint build failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status, _ := h.identifier.FingerprintStatus()
	c.JSON(http.StatusOK, status)
}
