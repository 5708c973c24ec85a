package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/codyseavey/tcg-scanner/backend/internal/metrics"
)

// TextRecognizer turns a card image into recognized text with zones.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (RecognizedText, error)
}

// ServerOCRService runs Tesseract over fixed regions of the card image.
type ServerOCRService struct {
	tesseractPath string
	language      string
}

// ocrRegion is a band of the card given as fractions of the image height.
type ocrRegion struct {
	name   string
	y1, y2 float64
	psm    string
}

// Card layout bands: name and HP across the top, attacks in the lower middle,
// number and set info along the bottom edge. The full card is read too so
// nothing outside the bands is lost.
var ocrRegions = []ocrRegion{
	{name: "top", y1: 0.0, y2: 0.15, psm: "7"},
	{name: "middle", y1: 0.45, y2: 0.85, psm: "6"},
	{name: "bottom", y1: 0.85, y2: 1.0, psm: "6"},
	{name: "full", y1: 0.0, y2: 1.0, psm: "3"},
}

// NewServerOCRService creates an OCR service. An empty path looks tesseract up
// in PATH; an empty language defaults to English.
func NewServerOCRService(tesseractPath, language string) *ServerOCRService {
	if tesseractPath == "" {
		found, err := exec.LookPath("tesseract")
		if err != nil {
			found = "tesseract" // Will fail at runtime if not found
		}
		tesseractPath = found
	}
	if language == "" {
		language = "eng"
	}
	return &ServerOCRService{tesseractPath: tesseractPath, language: language}
}

// IsAvailable checks if Tesseract is available on the system
func (s *ServerOCRService) IsAvailable() bool {
	cmd := exec.Command(s.tesseractPath, "--version")
	return cmd.Run() == nil
}

// Recognize reads each card band and assembles the zones. An image with no
// readable text yields an empty result, not an error.
func (s *ServerOCRService) Recognize(ctx context.Context, img image.Image) (RecognizedText, error) {
	start := time.Now()
	defer func() {
		metrics.OCRProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	bounds := img.Bounds()
	if bounds.Empty() {
		return RecognizedText{}, fmt.Errorf("empty image")
	}

	texts := make(map[string]string, len(ocrRegions))
	for _, region := range ocrRegions {
		if err := ctx.Err(); err != nil {
			return RecognizedText{}, err
		}
		data, err := preprocessRegionForOCR(cropBand(img, region.y1, region.y2))
		if err != nil {
			return RecognizedText{}, err
		}
		lines, err := s.runTesseract(ctx, data, region.psm)
		if err != nil {
			log.Printf("[OCR] Region %s failed: %v", region.name, err)
			continue
		}
		texts[region.name] = strings.Join(postProcessOCRLines(lines), "\n")
	}

	return assembleRecognizedText(texts["top"], texts["middle"], texts["bottom"], texts["full"]), nil
}

// RecognizeBytes decodes image data and recognizes it.
func (s *ServerOCRService) RecognizeBytes(ctx context.Context, imageData []byte) (RecognizedText, error) {
	img, err := imaging.Decode(bytes.NewReader(imageData), imaging.AutoOrientation(true))
	if err != nil {
		return RecognizedText{}, fmt.Errorf("invalid image data: %w", err)
	}
	return s.Recognize(ctx, img)
}

// RecognizeFile validates the path and recognizes the image on disk.
func (s *ServerOCRService) RecognizeFile(ctx context.Context, imagePath string) (RecognizedText, error) {
	cleanPath, err := validateImagePath(imagePath)
	if err != nil {
		return RecognizedText{}, fmt.Errorf("invalid image path: %w", err)
	}
	img, err := imaging.Open(cleanPath, imaging.AutoOrientation(true))
	if err != nil {
		return RecognizedText{}, err
	}
	return s.Recognize(ctx, img)
}

// assembleRecognizedText builds the recognizer output. The full-card read is
// the full text when present; otherwise the bands are joined top to bottom.
func assembleRecognizedText(top, middle, bottom, full string) RecognizedText {
	fullText := full
	if strings.TrimSpace(fullText) == "" {
		var parts []string
		for _, p := range []string{top, middle, bottom} {
			if strings.TrimSpace(p) != "" {
				parts = append(parts, p)
			}
		}
		fullText = strings.Join(parts, "\n")
	}

	result := RecognizedText{
		FullText: fullText,
		Words:    strings.Fields(strings.ToLower(fullText)),
	}
	if top != "" || middle != "" || bottom != "" {
		result.Zones = &Zones{Top: top, Middle: middle, Bottom: bottom}
	}
	return result
}

// runTesseract runs Tesseract OCR on image data with specified PSM mode
func (s *ServerOCRService) runTesseract(ctx context.Context, imageData []byte, psm string) ([]string, error) {
	cmd := exec.CommandContext(ctx,
		s.tesseractPath,
		"stdin",
		"stdout",
		"-l", s.language,
		"--psm", psm,
		"--oem", "3",
	)

	cmd.Stdin = bytes.NewReader(imageData)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract error: %w - %s", err, strings.TrimSpace(stderr.String()))
	}
	return splitAndCleanLines(stdout.String()), nil
}

// cropBand returns the horizontal band between fractions y1 and y2 of the
// image height.
func cropBand(img image.Image, y1, y2 float64) image.Image {
	b := img.Bounds()
	top := b.Min.Y + int(float64(b.Dy())*y1)
	bottom := b.Min.Y + int(float64(b.Dy())*y2)
	if bottom <= top {
		bottom = top + 1
	}
	return imaging.Crop(img, image.Rect(b.Min.X, top, b.Max.X, bottom))
}

// preprocessRegionForOCR converts to grayscale, stretches contrast and
// sharpens glyph edges, then encodes as PNG for tesseract's stdin.
func preprocessRegionForOCR(img image.Image) ([]byte, error) {
	proc := imaging.Grayscale(img)
	proc = imaging.AdjustContrast(proc, 30)
	proc = imaging.Sharpen(proc, 1.5)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, proc, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// postProcessOCRLines cleans up common OCR errors
func postProcessOCRLines(lines []string) []string {
	var cleaned []string

	for _, line := range lines {
		if len(line) < 2 {
			continue
		}

		corrected := correctOCRErrors(line)

		// Skip lines that are mostly special characters
		alnum, total := 0, 0
		for _, c := range corrected {
			total++
			if c == ' ' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c > 0x7f {
				alnum++
			}
		}
		if alnum < total/2 {
			continue
		}

		cleaned = append(cleaned, corrected)
	}

	return cleaned
}

// ocrCorrections fixes common tesseract misreads on card fonts. Applied in
// order.
var ocrCorrections = []struct{ wrong, right string }{
	// HP misreads (common on dark cards)
	{" HED ", " HP "},
	{" HEP ", " HP "},
	{" HB ", " HP "},
	{"HED ", "HP "},
	{"HEP ", "HP "},
	// Pokemon misspellings
	{"Pokérnon", "Pokémon"},
	{"Pokermon", "Pokémon"},
	{"Pokernon", "Pokémon"},
	// l/1 and O/0 confusion around card numbers
	{"l/", "1/"},
	{"/l", "/1"},
	{"O/", "0/"},
	{"/O", "/0"},
	{"2l0", "210"},
	{"3l0", "310"},
	{"1O0", "100"},
	{"2O0", "200"},
	{"3O0", "300"},
}

func correctOCRErrors(text string) string {
	result := text
	for _, c := range ocrCorrections {
		result = strings.ReplaceAll(result, c.wrong, c.right)
	}
	return result
}

// DecodeBase64Image decodes a base64 image, with or without a data URL prefix.
func DecodeBase64Image(base64Data string) ([]byte, error) {
	if idx := strings.Index(base64Data, ","); idx != -1 {
		base64Data = base64Data[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(base64Data))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 data: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	return data, nil
}

// splitAndCleanLines splits text into lines and removes empty/whitespace lines
func splitAndCleanLines(text string) []string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
}

// validateImagePath resolves imagePath and checks it is a regular image file.
// Symlinks are refused.
func validateImagePath(imagePath string) (string, error) {
	absPath, err := filepath.Abs(filepath.Clean(imagePath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return "", fmt.Errorf("file not found: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("symbolic links are not allowed")
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("path is not a regular file")
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !allowedImageExtensions[ext] {
		return "", fmt.Errorf("unsupported image format: %s", ext)
	}
	return absPath, nil
}
