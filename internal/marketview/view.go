package marketview

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// View answers point-in-time market questions.
// Every read is pinned to a resolved trading day on or before the asked date.
// ⭐ SSOT: look-ahead 없는 시장 조회는 여기서만
type View struct {
	calendar contracts.TradingCalendar
	store    contracts.MarketDataStore
	logger   *logger.Logger
}

var _ contracts.SnapshotProvider = (*View)(nil)

// New creates a view over store resolved through calendar
func New(calendar contracts.TradingCalendar, store contracts.MarketDataStore, log *logger.Logger) *View {
	if log == nil {
		log = logger.Nop()
	}
	return &View{calendar: calendar, store: store, logger: log}
}

// SnapshotAsOf returns every row of the last trading day on or before date.
// No resolvable day yields an empty snapshot with a zero Date.
func (v *View) SnapshotAsOf(ctx context.Context, date time.Time) (*contracts.MarketSnapshot, error) {
	asOf := contracts.Day(date)
	snapshot := &contracts.MarketSnapshot{AsOf: asOf, Rows: []contracts.MarketRow{}}

	day, ok, err := v.calendar.LastTradingDayOnOrBefore(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot day: %w", err)
	}
	if !ok {
		v.logger.WithDate("as_of", asOf).Warn("No trading day resolved for snapshot")
		return snapshot, nil
	}

	rows, err := v.store.RowsForDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("snapshot rows %s: %w", day.Format(contracts.DateLayout), err)
	}

	snapshot.Date = day
	snapshot.Rows = pinned(rows, day)
	return snapshot, nil
}

// OpenPrices returns code → open for rows traded exactly on date
func (v *View) OpenPrices(ctx context.Context, codes []string, date time.Time) (map[string]float64, error) {
	day := contracts.Day(date)
	rows, err := v.store.RowsForInstrumentsOnDate(ctx, codes, day)
	if err != nil {
		return nil, fmt.Errorf("open prices %s: %w", day.Format(contracts.DateLayout), err)
	}

	prices := make(map[string]float64, len(rows))
	for _, row := range pinned(rows, day) {
		prices[row.Code] = row.Open
	}
	return prices, nil
}

// ClosePricesAsOf returns code → close on the last trading day on or before
// date, with that day. ok is false when no day resolves.
func (v *View) ClosePricesAsOf(ctx context.Context, codes []string, date time.Time) (map[string]float64, time.Time, bool, error) {
	day, ok, err := v.calendar.LastTradingDayOnOrBefore(ctx, contracts.Day(date))
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("resolve close day: %w", err)
	}
	if !ok {
		return map[string]float64{}, time.Time{}, false, nil
	}

	rows, err := v.store.RowsForInstrumentsOnDate(ctx, codes, day)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("close prices %s: %w", day.Format(contracts.DateLayout), err)
	}

	prices := make(map[string]float64, len(rows))
	for _, row := range pinned(rows, day) {
		prices[row.Code] = row.Close
	}
	return prices, day, true, nil
}

// pinned drops rows from any other trading day
func pinned(rows []contracts.MarketRow, day time.Time) []contracts.MarketRow {
	out := make([]contracts.MarketRow, 0, len(rows))
	for _, row := range rows {
		if contracts.Day(row.TradeDate).Equal(day) {
			out = append(out, row)
		}
	}
	return out
}
