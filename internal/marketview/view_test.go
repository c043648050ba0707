package marketview

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/internal/calendar"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/s0_data/memstore"
)

func d(s string) time.Time {
	t, _ := time.Parse(contracts.DateLayout, s)
	return t
}

// leakyStore returns a row from another day, as a misbehaving backend might
type leakyStore struct {
	*memstore.Store
}

func (l leakyStore) RowsForDate(ctx context.Context, date time.Time) ([]contracts.MarketRow, error) {
	rows, err := l.Store.RowsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return append(rows, contracts.MarketRow{Code: "999999", TradeDate: date.AddDate(0, 0, 1), Close: 1}), nil
}

func fixture(t *testing.T) (*memstore.Store, *View) {
	t.Helper()
	store := memstore.New()
	for _, day := range []string{"2024-01-30", "2024-01-31", "2024-02-01"} {
		for _, code := range calendar.DefaultConfig().Benchmarks {
			store.AddRow(contracts.MarketRow{Code: code, TradeDate: d(day), Open: 10, Close: 11})
		}
	}
	store.AddRow(contracts.MarketRow{Code: "600000", TradeDate: d("2024-01-31"), Open: 7, Close: 7.5})
	store.AddRow(contracts.MarketRow{Code: "600000", TradeDate: d("2024-02-01"), Open: 7.6, Close: 8})

	cal, err := calendar.New(store, calendar.DefaultConfig(), nil)
	require.NoError(t, err)
	return store, New(cal, leakyStore{store}, nil)
}

func TestSnapshotAsOf_ResolvesBackward(t *testing.T) {
	_, view := fixture(t)

	// Saturday resolves to Thursday
	snap, err := view.SnapshotAsOf(context.Background(), d("2024-02-03"))
	require.NoError(t, err)

	assert.Equal(t, d("2024-02-03"), snap.AsOf)
	assert.Equal(t, d("2024-02-01"), snap.Date)
	assert.Equal(t, 6, snap.Count())
	for _, row := range snap.Rows {
		assert.Equal(t, snap.Date, row.TradeDate)
	}

	row, ok := snap.Row("600000")
	require.True(t, ok)
	assert.Equal(t, 8.0, row.Close)
}

func TestSnapshotAsOf_Unresolved(t *testing.T) {
	_, view := fixture(t)

	snap, err := view.SnapshotAsOf(context.Background(), d("2023-06-30"))
	require.NoError(t, err)
	assert.True(t, snap.Date.IsZero())
	assert.Equal(t, 0, snap.Count())
}

func TestOpenPrices(t *testing.T) {
	_, view := fixture(t)

	prices, err := view.OpenPrices(context.Background(), []string{"600000", "600001"}, d("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"600000": 7.6}, prices)
}

func TestClosePricesAsOf(t *testing.T) {
	_, view := fixture(t)
	ctx := context.Background()

	prices, day, ok, err := view.ClosePricesAsOf(ctx, []string{"600000"}, d("2024-02-04"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d("2024-02-01"), day)
	assert.Equal(t, 8.0, prices["600000"])

	_, _, ok, err = view.ClosePricesAsOf(ctx, []string{"600000"}, d("2023-01-01"))
	require.NoError(t, err)
	assert.False(t, ok)
}
