package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/pkg/config"
)

func integrationDB(t *testing.T) *DB {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	t.Setenv("DATA_SOURCE", config.SourcePostgres)
	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestNew_PingAndHealth(t *testing.T) {
	db := integrationDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, db.Ping(ctx))

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.Stats.MaxConns, int32(0))
}

func TestMigrate_Idempotent(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))
}

func TestNew_InvalidURL(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:      "invalid://url",
			MaxConns: 1,
		},
	}

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestSchemaStatements(t *testing.T) {
	require.NotEmpty(t, schemaStatements)
	for _, stmt := range schemaStatements {
		assert.Contains(t, stmt, "IF NOT EXISTS")
	}
}
