package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/adventurebook/server/internal/api"
	"github.com/adventurebook/server/internal/db"
)

func main() {
	// Get configuration from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "adventures.db"
	}

	if os.Getenv("AUTH_SECRET") == "" {
		log.Println("AUTH_SECRET not set, using development secret")
	}

	// Initialize database
	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Create API server
	server := api.NewServer(database)

	// Start HTTP server
	addr := fmt.Sprintf(":%s", port)
	log.Printf("Starting server on %s", addr)

	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
