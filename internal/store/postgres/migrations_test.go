package postgres

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		t.Fatalf("failed to read embedded migrations: %v", err)
	}

	var up, down int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}
	if up == 0 || up != down {
		t.Errorf("expected paired up/down migrations, got %d up and %d down", up, down)
	}

	data, err := fs.ReadFile(migrationFS, "migrations/000001_create_simulation_results.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "simulation_results") {
		t.Error("first migration should create simulation_results")
	}
}
