// Package db constructs the storage clients. Instances are created by the
// process entry point and injected into the components that use them; there
// is no lazy connect-on-first-access global.
package db

import (
	"fmt"
	"time"

	"stemdesk/config"
	"stemdesk/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the MySQL database with gorm and configures the connection
// pool.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return gdb, nil
}

// Migrate creates or updates the schema for all StemDesk records.
func Migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&model.Upload{},
		&model.AnalysisResult{},
		&model.StemmapRecord{},
		&model.Export{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}
	return nil
}

// Close shuts down the underlying connection pool.
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
