package main

import (
	"log"

	"agora/cmd/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env (optional); deployments rely on real environment variables.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on system env vars")
	}

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
