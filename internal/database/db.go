package database

import (
	"fmt"
	"time"

	"hrms/internal/config"
	"hrms/internal/logger"
	"hrms/internal/model"
	"hrms/internal/repository"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// TenantTables are the tables the tenant guard scopes to the caller's company
var TenantTables = []string{
	"payroll_cycles",
	"payroll_payments",
	"reconciliations",
	"reconciliation_items",
	"audit_logs",
}

// NewConnection opens the pool, installs plugins and migrates the schema
func NewConnection(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.New(logger.Get(), gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Error,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		logger.Get().WithError(err).Warn("failed to install otelgorm plugin")
	}
	if err := db.Use(repository.NewTenantGuardPlugin(TenantTables...)); err != nil {
		return nil, fmt.Errorf("failed to install tenant guard: %w", err)
	}

	if err := Migrate(db); err != nil {
		logger.Get().WithError(err).Warn("failed to auto-migrate models")
	}

	return db, nil
}

// Migrate registers the explicit join tables and auto-migrates every model
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&model.Role{}, "Permissions", &model.RolePermission{}); err != nil {
		return err
	}
	if err := db.SetupJoinTable(&model.User{}, "Roles", &model.UserRole{}); err != nil {
		return err
	}
	return db.AutoMigrate(
		&model.Company{},
		&model.Permission{},
		&model.Role{},
		&model.User{},
		&model.PayrollCycle{},
		&model.PayrollPayment{},
		&model.Reconciliation{},
		&model.ReconciliationItem{},
		&model.AuditLog{},
	)
}
