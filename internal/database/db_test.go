// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/oliverandrich/qr-checkin/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

func openMemory(t *testing.T, dsn string) *sqlx.DB {
	t.Helper()
	db, err := database.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sqlx.DB, name string) bool {
	t.Helper()
	var count int
	require.NoError(t, db.Get(&count, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?", name))
	return count == 1
}

func TestOpen_Schema(t *testing.T) {
	db := openMemory(t, ":memory:")

	for _, table := range []string{"staff", "participants", "issued_tokens"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	var foreignKeys int
	require.NoError(t, db.Get(&foreignKeys, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, foreignKeys)
}

func TestOpen_KeepsExplicitParams(t *testing.T) {
	db := openMemory(t, ":memory:?_txlock=deferred")
	assert.True(t, tableExists(t, db, "issued_tokens"))
}

func TestOpen_DefaultDSN(t *testing.T) {
	t.Chdir(t.TempDir())

	db := openMemory(t, "")

	_, err := os.Stat(filepath.Join("data", "checkin.db"))
	require.NoError(t, err)
	var mode string
	require.NoError(t, db.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event", "checkin.db")

	db := openMemory(t, path)

	assert.FileExists(t, path)
	assert.True(t, tableExists(t, db, "issued_tokens"))
}

func TestSchema_Constraints(t *testing.T) {
	db := openMemory(t, ":memory:")
	insert := `INSERT INTO issued_tokens (token_value, owner_id, issued_at) VALUES (?, ?, CURRENT_TIMESTAMP)`

	_, err := db.Exec(insert, "same", "owner-1")
	require.NoError(t, err)

	_, err = db.Exec(insert, "same", "owner-2")
	assert.Error(t, err, "token_value is unique")

	_, err = db.Exec(`INSERT INTO issued_tokens (token_value, owner_id, state, issued_at) VALUES ('t', 'o', 'consumed', CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "consumed rows need consumed_by and consumed_at")
}

func TestMigrations_DownAndUp(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t, ":memory:")

	version, err := database.MigrationVersion(ctx, db.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	require.NoError(t, database.MigrateDown(ctx, db.DB))
	assert.False(t, tableExists(t, db, "issued_tokens"))

	require.NoError(t, database.RunMigrations(ctx, db.DB))
	assert.True(t, tableExists(t, db, "issued_tokens"))
}

func TestMigrateReset(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t, ":memory:")

	require.NoError(t, database.MigrateReset(ctx, db.DB))

	assert.False(t, tableExists(t, db, "issued_tokens"))
	version, err := database.MigrationVersion(ctx, db.DB)
	require.NoError(t, err)
	assert.Zero(t, version)
}
