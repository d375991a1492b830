package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/crmsync/internal/app"
	"github.com/prudhvinik1/crmsync/internal/config"
	"github.com/prudhvinik1/crmsync/internal/handlers"
	"github.com/prudhvinik1/crmsync/internal/services"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Invalid server config: %v", err)
	}

	logger := app.NewLogger(cfg, os.Stderr)

	// Initialize stores and the sync engine
	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer deps.Close()

	tokens := services.NewTokenService(cfg.APIClientID, cfg.APIClientSecretHash, cfg.JWTSecret, cfg.JWTExpiry)
	syncHandler := handlers.NewSyncHandler(deps.Sync, deps.Definitions.Lookup, deps.Lookups, deps.Status, cfg.PrimaryKeyFormat, logger)
	router := handlers.NewRouter(handlers.NewAuthHandler(tokens), syncHandler, tokens)

	// Start Server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
