// migrate runs the embedded schema migrations; use go run ./cmd/migrate.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"agora/cmd/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on system env vars")
	}

	databaseURL := strings.TrimSpace(os.Getenv("AGORA_DATABASE_URL"))
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "AGORA_DATABASE_URL is not set; create a .env or export it")
		os.Exit(1)
	}

	changed, err := db.Migrate(databaseURL, *direction)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	if changed {
		fmt.Println("migrations applied:", *direction)
	} else {
		fmt.Println("schema already up to date")
	}
}
