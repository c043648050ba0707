package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/pkg/config"
	"github.com/wonny/ashare-rotation/pkg/database"
)

func TestRepository_RoundTrip(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	t.Setenv("DATA_SOURCE", config.SourcePostgres)
	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := database.New(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.Migrate(ctx))

	repo := NewRepository(db.Pool)
	run := NewRun(sampleConfig(), "hash", time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, repo.SaveRun(ctx, run))

	run.Finish(sampleResult(), nil, time.Now().UTC())
	require.NoError(t, repo.SaveRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	require.Len(t, got.NAV, 4)
	assert.Equal(t, d("2024-02-29"), got.NAV[2].Date.UTC())
	require.Len(t, got.Periods, 3)
	assert.Equal(t, "600003", got.Periods[1].Instruments[0].Code)
	assert.InDelta(t, run.Summary.FinalNAV, got.Summary.FinalNAV, 1e-12)

	infos, err := repo.ListRuns(ctx, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, infos)
}
