// Package integration runs the fulfillment stack against a real PostgreSQL
// started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/medrx/backend/internal/infrastructure/config"
	"github.com/medrx/backend/internal/infrastructure/logger"
	"github.com/medrx/backend/internal/infrastructure/migration"
	"github.com/medrx/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testDBName     = "medrx_test"
	testDBUser     = "postgres"
	testDBPassword = "medrx"
)

// TestDB is a migrated PostgreSQL reached through the same connection setup
// the server uses
type TestDB struct {
	DB    *gorm.DB
	SqlDB *sql.DB
}

// NewTestDB starts a throwaway PostgreSQL container and applies the embedded
// migrations. The container is terminated when the test ends. Set
// TEST_DB_DEBUG to log every statement.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test needs docker")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase(testDBName),
		tcpostgres.WithUsername(testDBUser),
		tcpostgres.WithPassword(testDBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	level := gormlogger.Warn
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = gormlogger.Info
	}
	database, err := persistence.Open(ctx, &config.DatabaseConfig{
		Driver:          persistence.DriverPostgres,
		Host:            host,
		Port:            port.Int(),
		User:            testDBUser,
		Password:        testDBPassword,
		DBName:          testDBName,
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5,
		ConnMaxIdleTime: 1,
	}, persistence.WithGormLogger(logger.NewGormLogger(zaptest.NewLogger(t), level)))
	require.NoError(t, err, "connect to postgres")
	t.Cleanup(func() { _ = database.Close() })

	sqlDB := database.SQL()
	m, err := migration.New(sqlDB, zaptest.NewLogger(t))
	require.NoError(t, err, "create migrator")
	require.NoError(t, m.Up(), "apply migrations")

	return &TestDB{DB: database.DB, SqlDB: sqlDB}
}
