package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Store 인터페이스 정의는 여기서만
// The core only reads from these; writes belong to the data acquisition side.

// MarketDataStore answers point-in-time market queries
type MarketDataStore interface {
	// RowsForDate returns every instrument row recorded on date
	RowsForDate(ctx context.Context, date time.Time) ([]MarketRow, error)
	// RowsForInstrumentsOnDate returns the rows of codes recorded on date
	RowsForInstrumentsOnDate(ctx context.Context, codes []string, date time.Time) ([]MarketRow, error)
	// TradingDates returns the distinct dates with any row in [start, end], ascending
	TradingDates(ctx context.Context, start, end time.Time) ([]time.Time, error)
	// FirstDateAfter returns the first date strictly after date with any row
	FirstDateAfter(ctx context.Context, date time.Time) (time.Time, bool, error)
}

// FundamentalsStore answers disclosed-indicator queries
type FundamentalsStore interface {
	// Value returns the indicator for one instrument and period
	Value(ctx context.Context, code string, period ReportPeriod, indicator string) (float64, bool, error)
	// Values returns code → period key → value for every present combination
	Values(ctx context.Context, codes []string, periods []ReportPeriod, indicator string) (map[string]map[string]float64, error)
}

// InstrumentStore lists instrument metadata
type InstrumentStore interface {
	Instruments(ctx context.Context) (map[string]Instrument, error)
}

// DataStore bundles the three read interfaces a backtest needs
type DataStore interface {
	MarketDataStore
	FundamentalsStore
	InstrumentStore
}
