package services

import (
	"testing"

	"clash-reminders/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB opens a fresh in-memory database with the full schema. One open
// connection, so the :memory: database survives the whole test.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.TrackedClan{},
		&models.PlayerAccount{},
		&models.EventSnapshot{},
		&models.ReminderConfig{},
		&models.ReminderTime{},
		&models.NotificationLog{},
	))
	return db
}
