// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lherron/cartsync/internal/db"
)

// TempDB creates a migrated temporary SQLite database, closed when the test
// ends.
func TempDB(t *testing.T) (*db.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.OpenMigrated(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	return database, dbPath
}

// SeedCategory inserts a category row and returns its id.
func SeedCategory(t *testing.T, database *db.DB, id, name, slug string) string {
	t.Helper()
	if _, err := database.Exec(`INSERT INTO categories (id, name, slug) VALUES (?, ?, ?)`, id, name, slug); err != nil {
		t.Fatalf("Failed to seed category %s: %v", slug, err)
	}
	return id
}

// SeedProduct inserts a product row in categoryID.
func SeedProduct(t *testing.T, database *db.DB, id, slug, categoryID string, price float64) {
	t.Helper()
	_, err := database.Exec(`
		INSERT INTO products (id, name, slug, category_id, price) VALUES (?, ?, ?, ?, ?)
	`, id, "Product "+id, slug, categoryID, price)
	if err != nil {
		t.Fatalf("Failed to seed product %s: %v", id, err)
	}
}

// WriteFile writes content to a file in dir and returns its path.
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}
