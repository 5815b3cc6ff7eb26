// Package db carries the embedded schema migrations shared by the migrate
// CLI and the boot-time automigrate path.
package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationFS embeds the SQL files that define the agora schema.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// Migrate applies the embedded migrations against databaseURL. direction is
// "up" or "down". The returned bool reports whether anything changed; an
// already-current database is success.
func Migrate(databaseURL, direction string) (bool, error) {
	if databaseURL == "" {
		return false, errors.New("db: database URL is empty")
	}
	if direction != "up" && direction != "down" {
		return false, fmt.Errorf("db: direction must be up or down, got %q", direction)
	}

	src, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("db: migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return false, fmt.Errorf("db: migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("db: migrate %s: %w", direction, err)
	}
	return true, nil
}
