package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/s0_data/memstore"
	"github.com/wonny/ashare-rotation/pkg/redis"
)

// countingStore records how often each read reaches the inner store
type countingStore struct {
	*memstore.Store
	calls map[string]int
}

func (c *countingStore) RowsForDate(ctx context.Context, date time.Time) ([]contracts.MarketRow, error) {
	c.calls["rows"]++
	return c.Store.RowsForDate(ctx, date)
}

func (c *countingStore) RowsForInstrumentsOnDate(ctx context.Context, codes []string, date time.Time) ([]contracts.MarketRow, error) {
	c.calls["rows_codes"]++
	return c.Store.RowsForInstrumentsOnDate(ctx, codes, date)
}

func (c *countingStore) TradingDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	c.calls["dates"]++
	return c.Store.TradingDates(ctx, start, end)
}

func (c *countingStore) FirstDateAfter(ctx context.Context, date time.Time) (time.Time, bool, error) {
	c.calls["first_after"]++
	return c.Store.FirstDateAfter(ctx, date)
}

func (c *countingStore) Value(ctx context.Context, code string, period contracts.ReportPeriod, indicator string) (float64, bool, error) {
	c.calls["value"]++
	return c.Store.Value(ctx, code, period, indicator)
}

func (c *countingStore) Instruments(ctx context.Context) (map[string]contracts.Instrument, error) {
	c.calls["instruments"]++
	return c.Store.Instruments(ctx)
}

func fixture(t *testing.T) (*countingStore, *Store) {
	t.Helper()
	mem := memstore.New()
	day := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	mem.AddRow(contracts.MarketRow{Code: "600000", TradeDate: day, Open: 7, Close: 7.1})
	mem.AddRow(contracts.MarketRow{Code: "000001", TradeDate: day, Open: 9, Close: 9.2})
	mem.AddRow(contracts.MarketRow{Code: "000001", TradeDate: day.AddDate(0, 0, 1), Open: 9.2, Close: 9.3})
	mem.AddInstrument(contracts.Instrument{Code: "600000", Name: "浦发银行"})
	mem.AddFundamental(contracts.FundamentalRecord{
		Code:      "600000",
		Period:    contracts.ReportPeriod{Year: 2023, Kind: contracts.PeriodQ3},
		Indicator: contracts.IndicatorBasicEPS,
		Value:     1.2,
	})

	inner := &countingStore{Store: mem, calls: map[string]int{}}
	// disabled shared tier
	shared := redis.NewCache(nil, "test")
	store, err := New(inner, 128, shared, nil)
	require.NoError(t, err)
	return inner, store
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(memstore.New(), 0, nil, nil)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)
}

func TestStore_RowsForDateCached(t *testing.T) {
	inner, store := fixture(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	first, err := store.RowsForDate(ctx, day)
	require.NoError(t, err)
	second, err := store.RowsForDate(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls["rows"])

	// callers own the returned slice
	first[0].Close = -1
	third, err := store.RowsForDate(ctx, day)
	require.NoError(t, err)
	assert.NotEqual(t, -1.0, third[0].Close)
}

func TestStore_RowsForCodesKeyIgnoresOrder(t *testing.T) {
	inner, store := fixture(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	_, err := store.RowsForInstrumentsOnDate(ctx, []string{"600000", "000001"}, day)
	require.NoError(t, err)
	rows, err := store.RowsForInstrumentsOnDate(ctx, []string{"000001", "600000"}, day)
	require.NoError(t, err)

	assert.Len(t, rows, 2)
	assert.Equal(t, 1, inner.calls["rows_codes"])
}

func TestStore_MissingFundamentalIsCached(t *testing.T) {
	inner, store := fixture(t)
	ctx := context.Background()
	annual := contracts.ReportPeriod{Year: 2022, Kind: contracts.PeriodAnnual}

	for i := 0; i < 3; i++ {
		_, ok, err := store.Value(ctx, "600000", annual, contracts.IndicatorBasicEPS)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, inner.calls["value"])

	v, ok, err := store.Value(ctx, "600000", contracts.ReportPeriod{Year: 2023, Kind: contracts.PeriodQ3}, contracts.IndicatorBasicEPS)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.2, v)
}

func TestStore_Instruments(t *testing.T) {
	inner, store := fixture(t)
	ctx := context.Background()

	a, err := store.Instruments(ctx)
	require.NoError(t, err)
	delete(a, "600000")

	b, err := store.Instruments(ctx)
	require.NoError(t, err)
	assert.Contains(t, b, "600000")
	assert.Equal(t, 1, inner.calls["instruments"])
}

func TestStore_FirstDateAfterAndDates(t *testing.T) {
	inner, store := fixture(t)
	ctx := context.Background()

	next, ok, err := store.FirstDateAfter(ctx, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), next)

	dates, err := store.TradingDates(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, dates, 1)
	_, err = store.TradingDates(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls["dates"])
	assert.Greater(t, store.Len(), 0)
}

func TestStore_LatestDateIsNotCached(t *testing.T) {
	inner, store := fixture(t)
	ctx := context.Background()
	latest := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	next := latest.AddDate(0, 0, 1)

	_, ok, err := store.FirstDateAfter(ctx, latest)
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := store.RowsForInstrumentsOnDate(ctx, []string{"000001", "600000"}, next)
	require.NoError(t, err)
	assert.Empty(t, rows)
	dates, err := store.TradingDates(ctx, latest, next)
	require.NoError(t, err)
	assert.Len(t, dates, 1)

	// 일일 import 도착
	inner.AddRow(contracts.MarketRow{Code: "000001", TradeDate: next, Open: 9.3, Close: 9.4})
	inner.AddRow(contracts.MarketRow{Code: "600000", TradeDate: next, Open: 7.1, Close: 7.2})

	found, ok, err := store.FirstDateAfter(ctx, latest)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, next, found)

	rows, err = store.RowsForInstrumentsOnDate(ctx, []string{"000001", "600000"}, next)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, inner.calls["rows_codes"])

	dates, err = store.TradingDates(ctx, latest, next)
	require.NoError(t, err)
	assert.Len(t, dates, 2)
	assert.Equal(t, 2, inner.calls["dates"])
}
