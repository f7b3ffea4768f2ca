package persistence

import (
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zenus-ai/zenus/internal/infrastructure/persistence/models"
)

// gormConfig returns the shared GORM options: UTC timestamps and a quiet
// logger (the CLI owns user-facing output, not the ORM).
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// OpenActionsDB opens (creating if absent) <stateRoot>/actions.db and
// migrates the transaction/action/checkpoint tables used by C4 and C5.
func OpenActionsDB(stateRoot string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(stateRoot, "actions.db")), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open actions db: %w", err)
	}
	if err := db.AutoMigrate(
		&models.TransactionModel{},
		&models.ActionModel{},
		&models.CheckpointModel{},
	); err != nil {
		return nil, fmt.Errorf("migrate actions db: %w", err)
	}
	return db, nil
}

// OpenFailuresDB opens (creating if absent) <stateRoot>/failures.db and
// migrates the failure-log and failure-pattern tables used by C10.
func OpenFailuresDB(stateRoot string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(stateRoot, "failures.db")), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open failures db: %w", err)
	}
	if err := db.AutoMigrate(
		&models.FailureModel{},
		&models.FailurePatternModel{},
	); err != nil {
		return nil, fmt.Errorf("migrate failures db: %w", err)
	}
	return db, nil
}
