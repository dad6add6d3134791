//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/carouselmaker/internal/platform/postgres/migrations"
	"github.com/stretchr/testify/require"
)

var migrateOnce struct {
	sync.Once
	err error
}

// GetTestDB opens a connection to the test database and applies migrations
// once per test binary.
func GetTestDB() (*sql.DB, error) {
	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		return nil, errors.New("no test database URL configured")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping test database: %w", err)
	}

	migrateOnce.Do(func() {
		migrateOnce.err = ApplyMigrations(db)
	})
	if migrateOnce.err != nil {
		_ = db.Close()
		return nil, migrateOnce.err
	}

	return db, nil
}

// GetTestDBWithT returns a migrated test database closed at test cleanup.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()
	db, err := GetTestDB()
	require.NoError(t, err, "failed to get test database")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// ApplyMigrations runs the embedded goose migrations up to the latest version.
func ApplyMigrations(db *sql.DB) error {
	return migrations.Run(db, "up", nil)
}

// CleanupTables truncates every application table at test cleanup.
func CleanupTables(t *testing.T, db *sql.DB) {
	t.Helper()
	t.Cleanup(func() {
		_, err := db.Exec(`TRUNCATE slides, credit_transactions, carousel_generations, tasks, users CASCADE`)
		if err != nil {
			t.Logf("Warning: failed to truncate tables: %v", err)
		}
	})
}
