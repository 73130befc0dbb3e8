//go:build integration

package store

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// SetupTestDB connects to the integration-test Postgres instance
// (provisioned by docker-compose) and applies every migration.
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{
		Host:            "localhost",
		Port:            "5432",
		User:            "postgres",
		Password:        "postgres",
		DB:              "lnurlw_boltcard_test",
		SslMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5,
		MaxConnIdleTime: 1,
	}

	db, err := NewDB(cfg, zap.NewNop())
	require.NoError(t, err, "failed to connect to test database")

	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	migrationsPath := filepath.Join(dir, "../../migrations")
	db.migrationPath = "file://" + migrationsPath

	require.NoError(t, db.RunMigrations(), "failed to run migrations on test database")
	return db
}

// CleanupTestDB truncates every table so each test starts from empty.
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := db.pool.Exec(ctx, `TRUNCATE TABLE card_payments, cards RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "failed to truncate tables")
}

// testMasterKey is a fixed 32-byte key used only to exercise the at-rest
// key-encryption path in integration tests.
func testMasterKey() []byte {
	return []byte("01234567890123456789012345678901")[:32]
}
