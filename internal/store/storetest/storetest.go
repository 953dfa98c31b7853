// Package storetest stands up an isolated in-memory SQLite-backed
// *store.Store for use by other packages' tests, the same role the teacher's
// user service's testhelpers.SetupTestDB plays for its repository tests.
package storetest

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"peerprep/interview/internal/models"
	"peerprep/interview/internal/store"
)

// Open creates a fresh, migrated, in-memory database scoped to t.Name() and
// wraps it in a *store.Store.
func Open(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(models.AllTables()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return store.NewWithDB(db)
}
