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

	"github.com/wardenhq/warden/internal/archive"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/eventlog"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/runner/agenthttp"
	"github.com/wardenhq/warden/internal/scan"
	transport "github.com/wardenhq/warden/internal/transport/http"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting warden control plane...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Agent host: %s", cfg.AgentURL)

	// Initialize target policy
	source := policy.DefaultPolicy
	if cfg.PolicyPath != "" {
		data, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			log.Fatalf("Failed to read policy file %s: %v", cfg.PolicyPath, err)
		}
		source = string(data)
		log.Printf("Target policy: %s", cfg.PolicyPath)
	}
	policyEngine, err := policy.NewEngine(context.Background(), source)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize scan archive (optional)
	var store *archive.Archive
	if cfg.DatabaseURL != "" {
		store, err = archive.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open archive database: %v", err)
		}
		defer store.Close()
		log.Printf("Archive database: %s", cfg.DatabaseURL)
	}

	// Initialize agent client
	agentClient := agenthttp.NewClient(cfg.AgentURL, cfg.StreamTimeout, cfg.PushTimeout)

	// Initialize scan manager
	manager := scan.NewManager(agentClient, eventlog.New(), policyEngine, store)

	// Create HTTP server
	server := transport.NewServer(manager)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Warden stopped")
}
