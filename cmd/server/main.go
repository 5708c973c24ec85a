package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codyseavey/tcg-scanner/backend/internal/api"
	"github.com/codyseavey/tcg-scanner/backend/internal/app"
	"github.com/codyseavey/tcg-scanner/backend/internal/config"
	"github.com/codyseavey/tcg-scanner/backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Catalog load failures are fatal
	engine, err := app.NewEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize identification engine: %v", err)
	}

	recognizer := app.Recognizer(cfg.OCR)
	imageStorageService := services.NewImageStorageService(cfg.Server.ScannedImagesDir)

	// Create a cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Warm the fingerprint index in the background; a cold index is built on
	// the first visual query otherwise.
	go func() {
		if err := engine.Identifier.EnsureFingerprintIndex(ctx); err != nil {
			log.Printf("[Fingerprint] Initial load failed: %v", err)
		}
	}()

	var scanLoop *services.ScanLoop
	if cfg.Scan.Dir != "" {
		scanLoop = services.NewScanLoop(engine.Identifier, recognizer, cfg.Scan.Dir, cfg.Scan.Interval)

		// Start scan loop in background with panic recovery
		go func() {
			for {
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in scan loop: %v - restarting in 30 seconds", r)
						}
					}()
					scanLoop.Start(ctx)
				}()

				select {
				case <-ctx.Done():
					return // Graceful shutdown
				case <-time.After(30 * time.Second):
					log.Println("Scan loop restarting after panic recovery...")
				}
			}
		}()
	}

	// Setup router
	router := api.SetupRouter(cfg.Server, engine.Identifier, recognizer, imageStorageService, scanLoop)

	// Create HTTP server for graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Cancel the context to stop the scan loop and any index build
	cancel()

	// Give outstanding requests a deadline to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
