/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Campo Vida order engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and environment config
  2. Initialize SQLite store
  3. Pick infra backends: Redis daily counter and Kafka notifier when
     configured, in-process fallbacks otherwise
  4. Wire ledger, state machine, admission, handler, router
  5. Start auto-confirm scheduler and HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -addr    HTTP listen address (overrides HTTP_ADDR)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  See config/config.go for the full variable list. A .env file in the
  working directory is honored in development.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the auto-confirm scheduler
  4. Close database, Kafka, and Redis connections
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/campo-vida.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run with Redis and Kafka
  REDIS_ADDR=localhost:6379 KAFKA_BROKERS=localhost:9092 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campo-vida/order-engine/api"
	"github.com/campo-vida/order-engine/config"
	"github.com/campo-vida/order-engine/inventory"
	"github.com/campo-vida/order-engine/notify"
	"github.com/campo-vida/order-engine/orders"
	"github.com/campo-vida/order-engine/redisx"
	"github.com/campo-vida/order-engine/store"
	"github.com/campo-vida/order-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags override the environment
	addr := flag.String("addr", cfg.HTTPAddr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	// Initialize store
	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Daily delivery counter: Redis when configured, in-memory otherwise
	var counter orders.DailyCounter
	if cfg.RedisAddr != "" {
		rc := redisx.NewCounter(cfg.RedisAddr)
		defer rc.Close()
		counter = rc
		log.Printf("[Main] Daily counter: redis at %s", cfg.RedisAddr)
	} else {
		counter = store.NewCounter()
		log.Println("[Main] Daily counter: in-memory")
	}

	// Status notifier: Kafka when configured, log otherwise
	var notifier orders.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafka(cfg.KafkaBrokers)
		defer kn.Close()
		notifier = kn
		log.Printf("[Main] Notifier: kafka at %v", cfg.KafkaBrokers)
	} else {
		notifier = notify.NewLog()
		log.Println("[Main] Notifier: log")
	}

	// Wire the domain
	ledger := inventory.NewLedger(db)
	machine := orders.NewStateMachine(db, ledger, db, notifier, cfg.Approval)
	admission := orders.NewAdmission(
		ledger, db, db, db, counter, machine,
		cfg.Fees, cfg.Approval, cfg.Hours, cfg.DailyDeliveryCap,
	)

	handler := api.NewHandler(admission, machine, ledger, db, db, db)
	router := api.NewRouter(handler)

	// Auto-confirm scheduler
	scheduler := api.NewAutoConfirmScheduler(db, machine)
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("[Main] Server starting on %s", *addr)
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
