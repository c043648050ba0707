package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

var tradeDate = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func selection(codes ...string) *contracts.SelectionRecord {
	rec := &contracts.SelectionRecord{Date: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Metric: "price"}
	for i, code := range codes {
		rec.Stocks = append(rec.Stocks, contracts.SelectedStock{Code: code, Name: "N" + code, Rank: i + 1, MetricValue: float64(i)})
	}
	return rec
}

func newAllocator(t *testing.T, c Constraints) *Allocator {
	t.Helper()
	a, err := NewAllocator(c, nil)
	require.NoError(t, err)
	return a
}

func TestAllocate_EqualBudgetLots(t *testing.T) {
	a := newAllocator(t, DefaultConstraints())

	alloc, errs := a.Allocate(selection("600001", "600002"), tradeDate, map[string]float64{
		"600001": 10,
		"600002": 33,
	}, 100000)

	assert.Empty(t, errs)
	require.Len(t, alloc.Positions, 2)
	assert.Equal(t, int64(5000), alloc.Positions[0].Shares)
	assert.InDelta(t, 50000, alloc.Positions[0].InvestedCapital, 1e-9)
	assert.Equal(t, int64(1500), alloc.Positions[1].Shares)
	assert.InDelta(t, 49500, alloc.Positions[1].InvestedCapital, 1e-9)
	assert.InDelta(t, 50000, alloc.Positions[1].Budget, 1e-9)
	assert.InDelta(t, 99500, alloc.Invested, 1e-9)
	assert.InDelta(t, 500, alloc.RemainingCash, 1e-9)
	assert.Equal(t, tradeDate, alloc.Positions[0].TradeDate)
	assert.Equal(t, "N600001", alloc.Positions[0].Name)
}

func TestAllocate_ForcedLotOverspends(t *testing.T) {
	a := newAllocator(t, DefaultConstraints())

	alloc, errs := a.Allocate(selection("600001"), tradeDate, map[string]float64{"600001": 50}, 1000)

	assert.Empty(t, errs)
	require.Len(t, alloc.Positions, 1)
	assert.Equal(t, int64(100), alloc.Positions[0].Shares)
	assert.InDelta(t, 5000, alloc.Invested, 1e-9)
	assert.InDelta(t, -4000, alloc.RemainingCash, 1e-9)
}

func TestAllocate_WithoutForcedLotSkips(t *testing.T) {
	c := DefaultConstraints()
	c.ForceMinimumLot = false
	a := newAllocator(t, c)

	alloc, errs := a.Allocate(selection("600001"), tradeDate, map[string]float64{"600001": 50}, 1000)

	assert.Empty(t, errs)
	assert.True(t, alloc.IsEmpty())
	assert.Equal(t, []string{"600001"}, alloc.Skipped)
	assert.InDelta(t, 1000, alloc.RemainingCash, 1e-9)
}

func TestAllocate_MissingPrice(t *testing.T) {
	a := newAllocator(t, DefaultConstraints())

	alloc, errs := a.Allocate(selection("600001", "600002", "600003"), tradeDate, map[string]float64{
		"600001": 10,
		"600003": 0,
	}, 90000)

	require.Len(t, errs, 2)
	var mp *contracts.MissingPriceError
	require.True(t, errors.As(errs[0], &mp))
	assert.Equal(t, "600002", mp.Code)
	assert.Equal(t, contracts.PriceEntry, mp.Side)
	assert.True(t, errors.Is(errs[1], contracts.ErrMissingPrice))

	// budget still divides over the full selection
	require.Len(t, alloc.Positions, 1)
	assert.Equal(t, int64(3000), alloc.Positions[0].Shares)
	assert.ElementsMatch(t, []string{"600002", "600003"}, alloc.Skipped)
	assert.InDelta(t, 60000, alloc.RemainingCash, 1e-9)
}

func TestAllocate_LotInvariant(t *testing.T) {
	a := newAllocator(t, DefaultConstraints())
	prices := map[string]float64{
		"600001": 3.17, "600002": 12.89, "600003": 101.5, "600004": 7.03, "600005": 1999.99,
	}

	alloc, errs := a.Allocate(selection("600001", "600002", "600003", "600004", "600005"), tradeDate, prices, 1234567.89)

	assert.Empty(t, errs)
	require.Len(t, alloc.Positions, 5)
	for _, p := range alloc.Positions {
		assert.Zero(t, p.Shares%DefaultLotSize, p.Code)
		assert.GreaterOrEqual(t, p.Shares, DefaultLotSize, p.Code)
		assert.InDelta(t, float64(p.Shares)*p.EntryPrice, p.InvestedCapital, 1e-6, p.Code)
	}
	assert.InDelta(t, alloc.Capital-alloc.Invested, alloc.RemainingCash, 1e-6)
}

func TestAllocate_BlackListAndEmpty(t *testing.T) {
	c := DefaultConstraints()
	c.BlackList = []string{"600002"}
	a := newAllocator(t, c)

	alloc, errs := a.Allocate(selection("600001", "600002"), tradeDate, map[string]float64{"600001": 10, "600002": 10}, 100000)
	assert.Empty(t, errs)
	require.Len(t, alloc.Positions, 1)
	assert.Equal(t, int64(10000), alloc.Positions[0].Shares)

	empty, errs := a.Allocate(nil, tradeDate, nil, 100000)
	assert.Empty(t, errs)
	assert.True(t, empty.IsEmpty())
	assert.InDelta(t, 100000, empty.RemainingCash, 1e-9)

	zero, _ := a.Allocate(selection("600001"), tradeDate, map[string]float64{"600001": 10}, 0)
	assert.True(t, zero.IsEmpty())
}

func TestNewAllocator_RejectsLotSize(t *testing.T) {
	_, err := NewAllocator(Constraints{LotSize: 0}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrConfiguration))
}
