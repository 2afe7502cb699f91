package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"checkpoint-gate/internal/config"
)

type widget struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func TestOpenSQLiteAutoMigrates(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}
	db, err := Open(cfg, zerolog.Nop(), &widget{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, db.Create(&widget{Name: "barrier"}).Error)
	var got widget
	require.NoError(t, db.First(&got).Error)
	assert.Equal(t, "barrier", got.Name)
}

func TestSetupClosesPoolOnFailure(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())

	err = setup(conn, func(*gorm.DB) error { return errors.New("migration 3 failed") })
	assert.ErrorContains(t, err, "migration 3 failed")
	assert.ErrorContains(t, sqlDB.Ping(), "database is closed")
}

func TestSetupKeepsPoolOnSuccess(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(conn) })

	require.NoError(t, setup(conn, func(*gorm.DB) error { return nil }))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql", DSN: "x"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestMigrationsCoverEveryTable(t *testing.T) {
	all := strings.Join(migrationStatements, "\n")
	for _, table := range []string{"vehicles", "license_plates", "authorization_checks", "plate_recognitions", "actuation_events"} {
		assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+table, table)
	}
}
