package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/portfolio"
	"github.com/wonny/ashare-rotation/internal/s1_universe"
	"github.com/wonny/ashare-rotation/internal/selection"
)

func d(s string) time.Time {
	t, _ := time.Parse(contracts.DateLayout, s)
	return t
}

func sampleConfig() backtest.Config {
	return backtest.Config{
		Strategy:        "scenario",
		StartDate:       d("2024-01-02"),
		EndDate:         d("2024-03-29"),
		InitialCapital:  10000,
		TransactionCost: 0.001,
		Universe:        s1_universe.Config{Prefixes: []string{"600"}, MinPrice: 4, CapBasis: contracts.CapTotal},
		Selection:       selection.Config{Metric: selection.MetricPrice, Direction: selection.Ascending, Count: 1},
		Constraints:     portfolio.DefaultConstraints(),
	}
}

func sampleResult() *backtest.Result {
	result := &backtest.Result{
		Config: sampleConfig(),
		NAV: []contracts.NAVPoint{
			{Date: d("2024-01-02"), NAV: 1.0},
			{Date: d("2024-01-31"), NAV: 1.0},
			{Date: d("2024-02-29"), NAV: 1.1},
			{Date: d("2024-03-29"), NAV: 0.99},
		},
		Periods: []contracts.PeriodRecord{
			{PeriodIndex: 0, SelectionDate: d("2024-01-31"), NAVAfter: 1.0,
				Instruments: []contracts.HeldInstrument{{Code: "600001", Name: "A", Shares: 2000, EntryPrice: 5, InvestedCapital: 10000}}},
			{PeriodIndex: 1, SelectionDate: d("2024-02-29"), Realized: true, GrossReturn: 0.1, RealizedReturn: 0.1, NAVAfter: 1.1,
				Instruments: []contracts.HeldInstrument{{Code: "600003", Name: "C", Shares: 3600, EntryPrice: 3, InvestedCapital: 10800}}},
			{PeriodIndex: 2, SelectionDate: d("2024-03-29"), Realized: true, GrossReturn: -0.1, RealizedReturn: -0.1, NAVAfter: 0.99,
				Instruments: []contracts.HeldInstrument{}},
		},
		Degradations: []contracts.Degradation{},
	}
	result.Summary = backtest.ComputeSummary(result)
	return result
}

func TestRun_Finish(t *testing.T) {
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		result *backtest.Result
		err    error
		want   RunStatus
	}{
		{name: "completed", result: sampleResult(), want: RunCompleted},
		{name: "failed", err: errors.New("store down"), want: RunFailed},
		{name: "aborted", result: &backtest.Result{Aborted: true}, err: context.Canceled, want: RunAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := NewRun(sampleConfig(), "hash", now)
			assert.Equal(t, RunPending, run.Status)
			assert.NotEqual(t, uuid.Nil, run.ID)

			run.Finish(tt.result, tt.err, now)
			assert.Equal(t, tt.want, run.Status)
			assert.True(t, run.Status.Done())
			require.NotNil(t, run.FinishedAt)
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), run.Error)
			}
		})
	}
}

func TestRun_InfoAndDocument(t *testing.T) {
	run := NewRun(sampleConfig(), "hash", time.Now())
	run.Finish(sampleResult(), nil, time.Now())

	info := run.Info()
	assert.Equal(t, "2024-01-02", info.StartDate)
	assert.Equal(t, "2024-03-29", info.EndDate)
	assert.InDelta(t, 0.99, info.Summary.FinalNAV, 1e-12)

	doc := run.Document()
	assert.Equal(t, run.ID.String(), doc.RunID)
	assert.Equal(t, "scenario", doc.Strategy)
	assert.Len(t, doc.NAV, 4)
	assert.False(t, doc.Aborted)
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	first := NewRun(sampleConfig(), "h1", base)
	second := NewRun(sampleConfig(), "h2", base.Add(time.Minute))
	third := NewRun(sampleConfig(), "h3", base.Add(time.Minute))
	for _, r := range []*Run{first, second, third} {
		require.NoError(t, repo.SaveRun(ctx, r))
	}

	first.Finish(sampleResult(), nil, base.Add(time.Hour))
	require.NoError(t, repo.SaveRun(ctx, first))

	got, err := repo.GetRun(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Len(t, got.NAV, 4)

	infos, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, third.ID, infos[0].ID)
	assert.Equal(t, second.ID, infos[1].ID)
	assert.Equal(t, first.ID, infos[2].ID)

	limited, err := repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = repo.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewMemoryRepository()
	assert.ErrorIs(t, repo.SaveRun(ctx, NewRun(sampleConfig(), "h", time.Now())), context.Canceled)
	_, err := repo.ListRuns(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzer(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	run := NewRun(sampleConfig(), "h", time.Now())
	run.Finish(sampleResult(), nil, time.Now())
	require.NoError(t, repo.SaveRun(ctx, run))

	report, err := NewAnalyzer(repo, nil).Analyze(ctx, run.ID)
	require.NoError(t, err)

	require.Len(t, report.Monthly, 3)
	assert.Equal(t, "2024-01", report.Monthly[0].Label)
	assert.InDelta(t, 0, report.Monthly[0].Return, 1e-12)
	assert.InDelta(t, 0.1, report.Monthly[1].Return, 1e-12)
	assert.InDelta(t, -0.1, report.Monthly[2].Return, 1e-12)

	require.Len(t, report.Yearly, 1)
	assert.Equal(t, "2024", report.Yearly[0].Label)
	assert.InDelta(t, -0.01, report.Yearly[0].Return, 1e-12)

	assert.InDelta(t, 0.1, report.AvgWin, 1e-12)
	assert.InDelta(t, -0.1, report.AvgLoss, 1e-12)
	assert.InDelta(t, 1.0, report.ProfitFactor, 1e-12)

	_, err = NewAnalyzer(repo, nil).Analyze(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestBucketReturns_SpansYears(t *testing.T) {
	run := &Run{NAV: []contracts.NAVPoint{
		{Date: d("2023-11-01"), NAV: 1.0},
		{Date: d("2023-12-29"), NAV: 1.2},
		{Date: d("2024-01-31"), NAV: 0.9},
	}}

	yearly := bucketReturns(run, "2006")
	require.Len(t, yearly, 2)
	assert.InDelta(t, 0.2, yearly[0].Return, 1e-12)
	assert.InDelta(t, -0.25, yearly[1].Return, 1e-12)
}
