package store

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"peerprep/interview/internal/models"
)

// newTestStore opens an isolated in-memory SQLite database per test, the
// same shape the teacher's user service uses for its repository tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(models.AllTables()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return &Store{db: db}
}
