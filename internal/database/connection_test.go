package database

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pharmaguard-server/internal/domain"
)

func TestConfigFromDomain(t *testing.T) {
	tests := []struct {
		name string
		in   domain.DatabaseConfig
		want Config
	}{
		{
			name: "defaults",
			in:   domain.DatabaseConfig{Host: "db", Port: 5432, Database: "pharmaguard", Username: "pg"},
			want: Config{
				Host: "db", Port: 5432, Database: "pharmaguard", Username: "pg",
				MaxConns: 10, MaxConnLife: time.Hour, MaxConnIdle: 30 * time.Minute, SSLMode: "disable",
			},
		},
		{
			name: "explicit",
			in: domain.DatabaseConfig{
				Host: "db", Port: 6543, Database: "pg", Username: "u", Password: "p",
				SSLMode: "require", MaxOpenConns: 20, MaxIdleConns: 4, ConnMaxLifetime: 15 * time.Minute,
			},
			want: Config{
				Host: "db", Port: 6543, Database: "pg", Username: "u", Password: "p",
				MaxConns: 20, MinConns: 4, MaxConnLife: 15 * time.Minute, MaxConnIdle: 30 * time.Minute, SSLMode: "require",
			},
		},
		{
			name: "idle above max is dropped",
			in:   domain.DatabaseConfig{MaxOpenConns: 2, MaxIdleConns: 5},
			want: Config{MaxConns: 2, MaxConnLife: time.Hour, MaxConnIdle: 30 * time.Minute, SSLMode: "disable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigFromDomain(&tt.in))
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	c := Config{Host: "localhost", Port: 5432, Database: "pharmaguard", Username: "pg", Password: "secret", SSLMode: "disable"}
	assert.Equal(t, "host=localhost port=5432 dbname=pharmaguard user=pg password=secret sslmode=disable", c.DSN())
}

func TestSourceURL(t *testing.T) {
	assert.Equal(t, "file://migrations", SourceURL("migrations"))
	assert.Equal(t, "file:///srv/migrations", SourceURL("/srv/migrations"))
	assert.Equal(t, "file://migrations", SourceURL("file://migrations"))
}

func TestDatabaseConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	config := ConfigFromDomain(&domain.DatabaseConfig{
		Host:         host,
		Port:         port.Int(),
		Database:     "testdb",
		Username:     "testuser",
		Password:     "testpass",
		MaxIdleConns: 2,
	})

	db, err := NewConnection(ctx, config, logger)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Health(ctx))
	assert.NotZero(t, db.Stats().TotalConns())

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	runner, err := NewMigrationRunner(connStr, "../../migrations", logger)
	require.NoError(t, err)
	defer runner.Close()

	require.NoError(t, runner.Up(ctx))
	version, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// running again is a no-op
	require.NoError(t, runner.Up(ctx))

	var tables int
	err = db.Pool.QueryRow(ctx, `SELECT count(*) FROM information_schema.tables
		WHERE table_name IN ('analysis_reports', 'feedback')`).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 2, tables)
}
