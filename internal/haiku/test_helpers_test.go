package haiku

import (
	"context"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const exampleHaiku = "This is an\nVery Cool\nHaiku"

var fixedNow = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	// every pooled connection to :memory: would otherwise see its own empty database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{
		Database: openTestDatabase(t),
		Clock: func() time.Time {
			return fixedNow
		},
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func mustInsert(t *testing.T, store *Store, request InsertRequest) Record {
	t.Helper()
	record, err := store.Insert(context.Background(), request)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	return record
}

func authorsOf(records []Record) []string {
	authors := make([]string, 0, len(records))
	for _, record := range records {
		authors = append(authors, record.Author)
	}
	return authors
}
