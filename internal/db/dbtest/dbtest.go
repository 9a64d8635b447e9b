// Package dbtest opens the PostgreSQL database used by DB-backed tests.
// Tests are skipped unless TEST_DSN is set; run them with -p 1 since every
// package truncates the same tables.
package dbtest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"skibook/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var tables = []string{
	"bonus_transactions",
	"bonus_settings",
	"wallet_transactions",
	"wallets",
	"webhook_logs",
	"bookings",
	"transactions",
	"group_trainings",
	"slots",
	"schedule_blocks",
	"resources",
	"clients",
}

func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DSN")
	if dsn == "" {
		t.Skip("TEST_DSN not set, skipping database test")
	}

	conn, err := db.Connect(dsn)
	if err != nil {
		t.Skipf("cannot connect to test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.RunMigrations(conn, migrationsDir()))
	Clean(t, conn)
	return conn
}

func Clean(t *testing.T, conn *sqlx.DB) {
	t.Helper()
	for _, table := range tables {
		_, err := conn.Exec("TRUNCATE TABLE " + table + " RESTART IDENTITY CASCADE")
		require.NoError(t, err, "failed to clean table "+table)
	}
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

func CreateClient(t *testing.T, conn *sqlx.DB, phone string) int64 {
	t.Helper()
	var id int64
	err := conn.QueryRow(`
		INSERT INTO clients (full_name, phone, password_hash, referral_code)
		VALUES ('Test Client', $1, 'x', $1)
		RETURNING id
	`, phone).Scan(&id)
	require.NoError(t, err)
	return id
}

func CreateResource(t *testing.T, conn *sqlx.DB, name string, priceCents int64) int64 {
	t.Helper()
	var id int64
	err := conn.QueryRow(`
		INSERT INTO resources (kind, name, price_cents)
		VALUES ('simulator', $1, $2)
		RETURNING id
	`, name, priceCents).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateSlot inserts an available slot; date is YYYY-MM-DD, times HH:MM.
func CreateSlot(t *testing.T, conn *sqlx.DB, resourceID int64, date, start, end string) int64 {
	t.Helper()
	var id int64
	err := conn.QueryRow(`
		INSERT INTO slots (resource_id, slot_date, start_time, end_time)
		VALUES ($1, $2::date, $3::time, $4::time)
		RETURNING id
	`, resourceID, date, start, end).Scan(&id)
	require.NoError(t, err)
	return id
}
