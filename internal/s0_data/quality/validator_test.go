package quality

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/s0_data/memstore"
)

var checkDate = time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

func seedStore() *memstore.Store {
	store := memstore.New()
	for _, code := range []string{"600001", "600002", "600003", "600004"} {
		store.AddInstrument(contracts.Instrument{Code: code, Name: code})
	}
	rows := []contracts.MarketRow{
		{Code: "600001", TradeDate: checkDate, Open: 5, Close: 5.1, TotalMarketCap: 1e9, FloatMarketCap: 8e8},
		{Code: "600002", TradeDate: checkDate, Open: 7, Close: 7.2, TotalMarketCap: 2e9, FloatMarketCap: 1e9},
		{Code: "600003", TradeDate: checkDate, Open: 3, Close: 3.1}, // no caps
		{Code: "000001", TradeDate: checkDate, Open: 10, Close: 10},
		{Code: "000002", TradeDate: checkDate, Open: 10, Close: 10},
	}
	for _, row := range rows {
		store.AddRow(row)
	}

	// 2024-05 → required period 2024 Q1
	q1 := contracts.ReportPeriod{Year: 2024, Kind: contracts.PeriodQ1}
	for _, code := range []string{"600001", "600002"} {
		store.AddFundamental(contracts.FundamentalRecord{Code: code, Period: q1, Indicator: contracts.IndicatorBasicEPS, Value: 0.1})
	}
	return store
}

func TestQualityGate_Check(t *testing.T) {
	gate := NewQualityGate(seedStore(), DefaultConfig([]string{"000001", "000002", "000027", "000006"}))

	snapshot, err := gate.Check(context.Background(), checkDate)
	require.NoError(t, err)

	assert.Equal(t, checkDate, snapshot.Date)
	assert.Equal(t, 4, snapshot.TotalStocks)
	assert.Equal(t, 2, snapshot.ValidStocks)
	assert.InDelta(t, 0.75, snapshot.Coverage[CoveragePrice], 1e-12)
	assert.InDelta(t, 0.5, snapshot.Coverage[CoverageMarketCap], 1e-12)
	assert.InDelta(t, 0.5, snapshot.Coverage[CoverageFundamentals], 1e-12)
	assert.InDelta(t, 0.5, snapshot.Coverage[CoverageBenchmarks], 1e-12)
	assert.InDelta(t, 0.35*0.75+0.25*0.5+0.25*0.5+0.15*0.5, snapshot.QualityScore, 1e-12)
	assert.False(t, snapshot.Passed)
}

func TestQualityGate_Passes(t *testing.T) {
	cfg := Config{Benchmarks: []string{"000001"}}
	snapshot, err := NewQualityGate(seedStore(), cfg).Check(context.Background(), checkDate)
	require.NoError(t, err)
	assert.True(t, snapshot.Passed)
	assert.InDelta(t, 1.0, snapshot.Coverage[CoverageBenchmarks], 1e-12)
}

func TestQualityGate_EmptyStore(t *testing.T) {
	snapshot, err := NewQualityGate(memstore.New(), DefaultConfig(nil)).Check(context.Background(), checkDate)
	require.NoError(t, err)
	assert.Zero(t, snapshot.TotalStocks)
	assert.Zero(t, snapshot.QualityScore)
	assert.False(t, snapshot.Passed)
}

type failingStore struct{ *memstore.Store }

func (failingStore) RowsForDate(context.Context, time.Time) ([]contracts.MarketRow, error) {
	return nil, errors.New("disk gone")
}

func TestQualityGate_StoreError(t *testing.T) {
	_, err := NewQualityGate(failingStore{seedStore()}, DefaultConfig(nil)).Check(context.Background(), checkDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}
