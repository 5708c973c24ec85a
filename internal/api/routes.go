package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codyseavey/tcg-scanner/backend/internal/api/handlers"
	"github.com/codyseavey/tcg-scanner/backend/internal/config"
	"github.com/codyseavey/tcg-scanner/backend/internal/services"
)

// SetupRouter wires the HTTP API. recognizer, imageStorage and scanLoop are
// optional.
func SetupRouter(cfg config.ServerConfig, identifier *services.Identifier, recognizer services.TextRecognizer, imageStorage *services.ImageStorageService, scanLoop *services.ScanLoop) *gin.Engine {
	router := gin.Default()

	// CORS configuration - allow origins from config
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowCredentials = false // Explicitly set
	router.Use(cors.New(corsConfig))
	router.Use(MetricsMiddleware())

	// Initialize handlers
	cardHandler := handlers.NewCardHandler(identifier, recognizer, imageStorage)
	fingerprintHandler := handlers.NewFingerprintHandler(identifier)
	scanHandler := handlers.NewScanHandler(scanLoop)

	// Serve scanned images
	if imageStorage != nil {
		router.Static("/images/scanned", imageStorage.GetStorageDir())
	}

	// API routes
	api := router.Group("/api")
	{
		// Card routes
		cards := api.Group("/cards")
		{
			cards.GET("/search", cardHandler.SearchCards)
			cards.GET("/ocr-status", cardHandler.GetOCRStatus)
			cards.GET("/:id", cardHandler.GetCard)
			cards.POST("/identify", cardHandler.IdentifyCard)
			cards.POST("/identify-image", cardHandler.IdentifyCardFromImage)
		}

		// Fingerprint index routes
		fingerprints := api.Group("/fingerprints")
		{
			fingerprints.GET("/status", fingerprintHandler.GetStatus)
			fingerprints.POST("/build", fingerprintHandler.Build)
		}

		api.GET("/scan/latest", scanHandler.GetLatest)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "cards": identifier.Catalog().Len()})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
