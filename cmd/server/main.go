package main

import (
	"log"

	approuters "github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/app_routers"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/configuration"

	"github.com/joho/godotenv"
)

func main() {
	// Missing .env is fine, config falls back to defaults
	_ = godotenv.Load()

	container, err := configuration.BuildContainer()
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	approuters.StartServer(container)
}
