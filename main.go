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

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/langwatch/langwatch-sub008/db"
	"github.com/langwatch/langwatch-sub008/env"
	"github.com/langwatch/langwatch-sub008/middleware"
	"github.com/langwatch/langwatch-sub008/routes"
	"github.com/rs/cors"
)

func main() {
	// Load .env if present
	_ = godotenv.Load()

	// Validate configuration
	if env.APIKey == "" {
		log.Println("WARNING: API_KEY is not set, authentication is disabled")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Connect to ClickHouse
	if err := db.Connect(ctx, env.ClickHouseAddr, env.ClickHouseDatabase, env.ClickHouseUsername, env.ClickHousePassword); err != nil {
		log.Fatalf("❌ failed to connect to ClickHouse: %v", err)
	}
	defer db.Close()

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingMiddleware)

	r.HandleFunc("/health", routes.HealthHandler).Methods(http.MethodGet)

	// V1 API routes (with auth middleware)
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.AuthMiddleware)

	v1.HandleFunc("/analytics/timeseries", routes.TimeseriesHandler).Methods(http.MethodPost)
	v1.HandleFunc("/analytics/dimensions", routes.DimensionValuesHandler).Methods(http.MethodGet)
	v1.HandleFunc("/analytics/top", routes.TopDocumentsHandler).Methods(http.MethodPost)
	v1.HandleFunc("/analytics/events", routes.EventsFeedHandler).Methods(http.MethodGet)

	// CORS Middleware
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"X-Requested-With", "Content-Type", "Origin", "Authorization", "Accept", "X-Api-Key"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	})

	// Launch Server
	fmt.Printf("✅ analytics API running on port %s\n", env.Port)
	fmt.Println()

	server := &http.Server{
		Addr:         ":" + env.Port,
		Handler:      corsMiddleware.Handler(r),
		ReadTimeout:  env.QueryTimeout,
		WriteTimeout: env.QueryTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("shutting down...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	cancel()
	log.Println("shutdown complete")
}
