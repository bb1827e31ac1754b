//go:build integration

// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/reference-service/internal/config"
	"github.com/helixir/reference-service/internal/database"
)

// StartPostgres runs a PostgreSQL container, applies the migrations and
// returns a connected pool. The container is removed when the test ends.
func StartPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("reference_service"),
		postgres.WithUsername("refsvc"),
		postgres.WithPassword("refsvc"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Driver:         config.DriverPostgres,
		Host:           host,
		Port:           port.Int(),
		User:           "refsvc",
		Password:       "refsvc",
		Name:           "reference_service",
		SSLMode:        config.SSLModeDisable,
		MaxConns:       5,
		ConnectTimeout: 10 * time.Second,
	}

	db, err := database.New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	m, err := database.NewMigrator(db, zerolog.Nop())
	require.NoError(t, err)
	_, err = m.Up()
	require.NoError(t, err)
	require.NoError(t, m.Close())

	return db
}
