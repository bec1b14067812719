// Package main provides the lightweight entry point for the PharmaGuard MCP Server.
// This version requires no external databases - uses in-memory caching and SQLite.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pharmaguard-server/internal/config"
	"github.com/pharmaguard-server/internal/mcp"
)

func main() {
	cfg, err := config.LoadLiteConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// stdout belongs to the MCP stdio transport
	log.SetOutput(os.Stderr)
	log.Printf("Starting PharmaGuard MCP Server (Lite) with transport: %s", cfg.Transport)
	log.Printf("Data directory: %s", cfg.DataDir)

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Printf("MCP server failed: %v", err)
		return
	}

	log.Println("PharmaGuard MCP Server (Lite) stopped")
}
