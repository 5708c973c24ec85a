package services

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ImageStorageService keeps uploaded card images on disk under unique names.
type ImageStorageService struct {
	storageDir string
}

// NewImageStorageService creates the storage directory if needed.
func NewImageStorageService(storageDir string) *ImageStorageService {
	if storageDir == "" {
		storageDir = "./data/scanned_images"
	}

	// Will fail on actual writes instead.
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		log.Printf("[ImageStorage] Could not create %s: %v", storageDir, err)
	}

	return &ImageStorageService{storageDir: storageDir}
}

var imageExtensionsByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// SaveImage writes image data under a fresh uuid name and returns the file
// name. The extension follows the sniffed content type; anything that is not
// a known image type is refused.
func (s *ImageStorageService) SaveImage(imageData []byte) (string, error) {
	if len(imageData) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	contentType := http.DetectContentType(imageData)
	ext, ok := imageExtensionsByType[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported image type: %s", contentType)
	}

	filename := uuid.New().String() + ext
	if err := os.WriteFile(filepath.Join(s.storageDir, filename), imageData, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return filename, nil
}

// Path returns the on-disk location of a stored file name.
func (s *ImageStorageService) Path(filename string) string {
	return filepath.Join(s.storageDir, filepath.Base(filename))
}

// GetStorageDir returns the storage directory path
func (s *ImageStorageService) GetStorageDir() string {
	return s.storageDir
}
