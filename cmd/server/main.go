/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fee allocation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Read environment configuration, then command-line flag overrides
  2. Initialize SQLite store
  3. Wire engine service and API handler
  4. Configure HTTP router
  5. Start server with graceful shutdown

CONFIGURATION:
  Environment (FEE_ prefix, via envconfig):
    FEE_PORT          HTTP server port (default: 8080)
    FEE_DB            SQLite database path (default: fees.db)
    FEE_CORS_ORIGINS  Allowed CORS origins, comma-separated
    FEE_PENALTY_RATE  Monthly penalty rate on carried arrears (default: 0.01)

  Flags override the environment:
    -port    HTTP server port
    -db      SQLite database path (":memory:" for in-memory)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/fees.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Custom penalty rate
  FEE_PENALTY_RATE=0.02 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/blocledger/fee-engine/api"
	"github.com/blocledger/fee-engine/engine"
	"github.com/blocledger/fee-engine/store/sqlite"
)

// Config is the environment-driven server configuration.
type Config struct {
	Port        int      `default:"8080"`
	DB          string   `default:"fees.db"`
	CorsOrigins []string `split_words:"true" default:"http://localhost:5173,http://localhost:8080"`
	PenaltyRate float64  `split_words:"true" default:"0.01"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("fee", &cfg); err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}

	// Flag overrides
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DB, "SQLite database path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire engine and handler
	svc := engine.NewService(store, engine.FlatMonthlyPenalty{
		Rate: decimal.NewFromFloat(cfg.PenaltyRate),
	})
	handler := api.NewHandler(svc)

	// Create router
	router := api.NewRouter(handler, cfg.CorsOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
