package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sri0013/vnf-project/internal/config"
	"github.com/sri0013/vnf-project/internal/testutil"
)

func TestNewDatabaseClients_InvalidURL(t *testing.T) {
	_, err := NewDatabaseClients(context.Background(), config.DatabaseConfig{URL: "postgres://%zz"})
	assert.Error(t, err)
}

func TestDatabaseClients_MigrateAndRiver(t *testing.T) {
	dsn := testutil.DSN()
	if dsn == "" {
		t.Skip("PostgreSQL not configured: set TEST_DATABASE_URL or DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clients, err := NewDatabaseClients(ctx, config.DatabaseConfig{URL: dsn, MaxConns: 4})
	require.NoError(t, err)
	defer clients.Close()

	require.NoError(t, clients.Migrate(ctx))
	require.NoError(t, clients.Migrate(ctx), "migrations are idempotent")

	require.NoError(t, clients.InitRiverClient(river.NewWorkers(), config.RiverConfig{}))
	assert.NotNil(t, clients.RiverClient)
}
