package handlers

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-scanner/backend/internal/services"
)

const (
	defaultSearchLimit = 50
	maxUploadBytes     = 10 << 20
)

type CardHandler struct {
	identifier   *services.Identifier
	recognizer   services.TextRecognizer
	imageStorage *services.ImageStorageService
}

// NewCardHandler creates the card handler. recognizer and imageStorage may be
// nil; uploads are then identified visually only and not kept.
func NewCardHandler(identifier *services.Identifier, recognizer services.TextRecognizer, imageStorage *services.ImageStorageService) *CardHandler {
	return &CardHandler{
		identifier:   identifier,
		recognizer:   recognizer,
		imageStorage: imageStorage,
	}
}

func (h *CardHandler) SearchCards(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	c.JSON(http.StatusOK, h.identifier.Catalog().Search(query, limit))
}

func (h *CardHandler) GetCard(c *gin.Context) {
	card, ok := h.identifier.Catalog().Card(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}
	c.JSON(http.StatusOK, card)
}

type identifyRequest struct {
	Text  string          `json:"text"`
	Words []string        `json:"words"`
	Zones *services.Zones `json:"zones"`
}

// IdentifyCard runs the text path over client-side OCR output.
func (h *CardHandler) IdentifyCard(c *gin.Context) {
	var req identifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" && req.Zones == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	result := h.identifier.IdentifyTextDetailed(services.RecognizedText{
		FullText: req.Text,
		Words:    req.Words,
		Zones:    req.Zones,
	})

	c.JSON(http.StatusOK, gin.H{
		"fields":      result.Fields,
		"stage":       result.Stage,
		"candidates":  result.Candidates,
		"cards":       result.Cards(),
		"total_count": len(result.Candidates),
		"has_more":    false,
	})
}

// IdentifyCardFromImage identifies an uploaded photo. The image comes either
// as a multipart "image" file or as base64 in a JSON body. Text recognition
// runs first when tesseract is available; the fingerprint index is the
// fallback.
func (h *CardHandler) IdentifyCardFromImage(c *gin.Context) {
	if h.recognizer == nil && !h.identifier.HasFingerprints() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Card identification is not available",
			"message": "neither tesseract nor the fingerprint index is configured",
		})
		return
	}

	imageBytes, err := readUploadedImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "No image provided",
			"message": err.Error(),
		})
		return
	}

	img, err := imaging.Decode(bytes.NewReader(imageBytes), imaging.AutoOrientation(true))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image data"})
		return
	}

	var stored string
	if h.imageStorage != nil {
		if stored, err = h.imageStorage.SaveImage(imageBytes); err != nil {
			log.Printf("[API] Failed to store upload: %v", err)
		}
	}

	result, err := services.IdentifyCapture(c.Request.Context(), h.identifier, h.recognizer, img)
	result.Image = stored
	if err != nil {
		log.Printf("[API] Image identification failed: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrFingerprintIndexNotReady) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"error":   "Card identification failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetOCRStatus reports whether server-side text recognition is available.
func (h *CardHandler) GetOCRStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"text_recognition": h.recognizer != nil,
		"fingerprints":     h.identifier.HasFingerprints(),
	})
}

func readUploadedImage(c *gin.Context) ([]byte, error) {
	if file, err := c.FormFile("image"); err == nil {
		if file.Size > maxUploadBytes {
			return nil, errors.New("uploaded file is too large")
		}
		src, err := file.Open()
		if err != nil {
			return nil, errors.New("failed to open uploaded file")
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
		if err != nil {
			return nil, errors.New("failed to read uploaded file")
		}
		return data, nil
	}

	var req struct {
		Image string `json:"image"` // Base64 encoded image, data URL prefix allowed
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		return nil, errors.New("upload an image file or provide base64 encoded image in JSON body")
	}
	return services.DecodeBase64Image(req.Image)
}
