package pgstore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "9999_dir.up.sql"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migrationFiles() error = %v", err)
	}

	want := []string{
		filepath.Join(dir, "0001_a.up.sql"),
		filepath.Join(dir, "0002_b.up.sql"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("migrationFiles() = %v, want %v", got, want)
	}
}

func TestMigrationFiles_RepoMigrations(t *testing.T) {
	got, err := migrationFiles(filepath.Join("..", "..", "..", "db", "migrations"))
	if err != nil {
		t.Fatalf("migrationFiles() error = %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one migration in db/migrations")
	}
}

func TestMigrationFiles_MissingDir(t *testing.T) {
	if _, err := migrationFiles(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}
