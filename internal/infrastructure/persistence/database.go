package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/medrx/backend/internal/infrastructure/config"
	"github.com/medrx/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Database is an open connection pool shared by the repositories and the
// unit of work
type Database struct {
	DB     *gorm.DB
	sqlDB  *sql.DB
	driver string
}

// Option customizes Open
type Option func(*gorm.Config)

// WithGormLogger routes GORM's query log through l
func WithGormLogger(l logger.Interface) Option {
	return func(c *gorm.Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Open connects to the configured database, sizes the pool and verifies the
// connection before returning
func Open(ctx context.Context, cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}
	dialector, err := dialectorFor(driver, cfg)
	if err != nil {
		return nil, err
	}

	gcfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            driver == DriverPostgres,
		TranslateError:         true,
	}
	for _, opt := range opts {
		opt(gcfg)
	}

	gdb, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	configurePool(sqlDB, driver, cfg)

	d := &Database{DB: gdb, sqlDB: sqlDB, driver: driver}
	if err := d.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func dialectorFor(driver string, cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres:
		return postgres.Open(cfg.DSN()), nil
	case DriverSQLite:
		return sqlite.Open(sqliteDSN(cfg.SQLitePath)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func configurePool(sqlDB *sql.DB, driver string, cfg *config.DatabaseConfig) {
	if driver == DriverSQLite {
		// One writer at a time; a second connection would fail with SQLITE_BUSY
		// instead of waiting for the batch locks.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		return
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return "file::memory:?cache=shared&_foreign_keys=on"
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on"
}

// Driver returns DriverPostgres or DriverSQLite
func (d *Database) Driver() string {
	return d.driver
}

// System returns the OpenTelemetry db.system value for the driver
func (d *Database) System() string {
	if d.driver == DriverSQLite {
		return "sqlite"
	}
	return "postgresql"
}

// SQL returns the pool under GORM, for migrations and pool metrics
func (d *Database) SQL() *sql.DB {
	return d.sqlDB
}

// AutoMigrate creates or updates the schema from the GORM models. PostgreSQL
// deployments run the SQL migrations instead.
func (d *Database) AutoMigrate(ctx context.Context) error {
	if err := d.DB.WithContext(ctx).AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Ping checks that a connection can be acquired
func (d *Database) Ping(ctx context.Context) error {
	if err := d.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", d.driver, err)
	}
	return nil
}

// Close closes the pool
func (d *Database) Close() error {
	return d.sqlDB.Close()
}
