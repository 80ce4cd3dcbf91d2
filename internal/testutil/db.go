// Package testutil holds shared fixtures for package tests: an isolated
// sqlite database per test, faker-backed builders and fakes for the
// notifier and event publisher.
package testutil

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hackcrew/hackathon-platform/internal/database"
	"github.com/hackcrew/hackathon-platform/internal/repository"
)

// NewDB opens a private in-memory sqlite database and migrates it. The
// database disappears when the test finishes.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// NewStore is NewDB wrapped in a repository.Store.
func NewStore(t testing.TB) *repository.Store {
	t.Helper()
	return repository.New(NewDB(t))
}
