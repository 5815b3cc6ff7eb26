package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationFS_WellFormedPairs(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("no migrations embedded")
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %q", name)
		}

		b, err := fs.ReadFile(MigrationFS, "migrations/"+name)
		if err != nil {
			t.Fatalf("read %q: %v", name, err)
		}
		if len(b) == 0 {
			t.Fatalf("migration %q is empty", name)
		}
	}

	// Every up needs a down and vice versa.
	for base := range ups {
		if !downs[base] {
			t.Fatalf("migration %q has no down file", base)
		}
	}
	for base := range downs {
		if !ups[base] {
			t.Fatalf("migration %q has no up file", base)
		}
	}
}

func TestMigrate_RejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := Migrate("", "up"); err == nil {
		t.Fatalf("expected error for empty database URL")
	}
	if _, err := Migrate("postgres://localhost:5432/agora", "sideways"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}
