// Package db opens the gorm connection and runs migrations.
package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/studysensei/exambot/internal/chat"
	"github.com/studysensei/exambot/internal/config"
	"github.com/studysensei/exambot/internal/models"
)

// Connect opens the configured database and migrates the schema.
func Connect(cfg config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		dialector = mysql.Open(cfg.DBDSN)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}

	if err := gdb.AutoMigrate(
		&models.User{},
		&chat.Session{},
		&chat.Turn{},
		&chat.Job{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gdb, nil
}
