package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/internal/calendar"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/portfolio"
	"github.com/wonny/ashare-rotation/internal/s0_data/demo"
	"github.com/wonny/ashare-rotation/internal/s0_data/memstore"
	"github.com/wonny/ashare-rotation/internal/s1_universe"
	"github.com/wonny/ashare-rotation/internal/selection"
)

func d(s string) time.Time {
	t, _ := time.Parse(contracts.DateLayout, s)
	return t
}

type bar struct {
	open, close, cap float64
}

// scenarioStore seeds benchmarks on every weekday in [from, to] and one row per
// instrument per weekday, priced by fn (ok=false leaves the day without a row)
func scenarioStore(from, to time.Time, fn func(code string, day time.Time) (bar, bool)) *memstore.Store {
	store := memstore.New()
	names := map[string]string{"600001": "A", "600002": "B", "600003": "C"}
	for code, name := range names {
		store.AddInstrument(contracts.Instrument{Code: code, Name: name, Board: contracts.BoardOf(code)})
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		for _, code := range calendar.DefaultConfig().Benchmarks {
			store.AddRow(contracts.MarketRow{Code: code, TradeDate: day, Open: 10, Close: 10, TotalMarketCap: 1e10, FloatMarketCap: 1e10})
		}
		for code := range names {
			b, ok := fn(code, day)
			if !ok {
				continue
			}
			store.AddRow(contracts.MarketRow{Code: code, TradeDate: day, Open: b.open, Close: b.close, TotalMarketCap: b.cap, FloatMarketCap: b.cap})
		}
	}
	return store
}

// abcMarket: A price 5 cap 50, B price 12 cap 80, C price 3 cap 30; A closes at 5.50 from Feb 2
func abcMarket(code string, day time.Time) (bar, bool) {
	switch code {
	case "600001":
		if day.After(d("2024-02-01")) {
			return bar{5.5, 5.5, 55}, true
		}
		return bar{5, 5, 50}, true
	case "600002":
		return bar{12, 12, 80}, true
	default:
		return bar{3, 3, 30}, true
	}
}

func scenarioConfig(start, end time.Time) Config {
	return Config{
		Strategy:        "scenario",
		StartDate:       start,
		EndDate:         end,
		InitialCapital:  10000,
		TransactionCost: 0.001,
		Universe: s1_universe.Config{
			Prefixes: []string{"600"},
			MinPrice: 4,
			CapBasis: contracts.CapTotal,
		},
		Selection: selection.Config{
			Metric:    selection.MetricPrice,
			Direction: selection.Ascending,
			Count:     1,
		},
		Constraints: portfolio.DefaultConstraints(),
		Calendar:    calendar.DefaultConfig(),
	}
}

func runEngine(t *testing.T, cfg Config, store contracts.DataStore, opts ...Option) *Result {
	t.Helper()
	engine, err := NewEngine(cfg, store, nil, opts...)
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	return result
}

func assertSeriesInvariants(t *testing.T, nav []contracts.NAVPoint) {
	t.Helper()
	require.NotEmpty(t, nav)
	for i, p := range nav {
		assert.GreaterOrEqual(t, p.NAV, 0.0, p.Date)
		if i > 0 {
			assert.True(t, p.Date.After(nav[i-1].Date), "dates must strictly increase at %d", i)
		}
	}
}

func TestEngine_EndToEndScenario(t *testing.T) {
	store := scenarioStore(d("2024-01-02"), d("2024-02-29"), abcMarket)
	result := runEngine(t, scenarioConfig(d("2024-01-02"), d("2024-02-29")), store)

	require.Len(t, result.Periods, 2)

	first := result.Periods[0]
	assert.Equal(t, d("2024-01-31"), first.SelectionDate)
	require.NotNil(t, first.Selection)
	assert.Equal(t, []string{"600001"}, first.Selection.Codes())
	require.Len(t, first.Instruments, 1)
	assert.Equal(t, "600001", first.Instruments[0].Code)
	assert.Equal(t, "A", first.Instruments[0].Name)
	assert.Equal(t, int64(2000), first.Instruments[0].Shares)
	assert.InDelta(t, 5.0, first.Instruments[0].EntryPrice, 1e-12)
	assert.InDelta(t, 10000, first.Instruments[0].InvestedCapital, 1e-9)
	require.NotNil(t, first.TradeDate)
	assert.Equal(t, d("2024-02-01"), *first.TradeDate)
	assert.False(t, first.Realized)

	second := result.Periods[1]
	assert.Equal(t, d("2024-02-29"), second.SelectionDate)
	assert.True(t, second.Realized)
	assert.InDelta(t, 0.10, second.GrossReturn, 1e-9)
	assert.InDelta(t, 0.099, second.RealizedReturn, 1e-9)
	assert.InDelta(t, 1.099, second.NAVAfter, 1e-9)
	// no trading day after the end date
	assert.Nil(t, second.TradeDate)
	assert.Empty(t, second.Instruments)

	require.Len(t, result.NAV, 3)
	assert.Equal(t, contracts.NAVPoint{Date: d("2024-01-02"), NAV: 1.0}, result.NAV[0])
	assert.Equal(t, d("2024-01-31"), result.NAV[1].Date)
	assert.InDelta(t, 1.0, result.NAV[1].NAV, 1e-12)
	assert.InDelta(t, 1.099, result.NAV[2].NAV, 1e-9)

	assert.Nil(t, result.Liquidation)
	assert.False(t, result.Aborted)
	assert.Empty(t, result.Degradations)
	assert.True(t, result.Summary.Clean())
	assert.InDelta(t, 0.099, result.Summary.TotalReturn, 1e-9)
	assert.InDelta(t, 10990, result.Summary.FinalValue, 1e-6)
	assertSeriesInvariants(t, result.NAV)
}

func TestEngine_ZeroEligibleKeepsNAVFlat(t *testing.T) {
	store := scenarioStore(d("2024-01-02"), d("2024-03-29"), abcMarket)
	cfg := scenarioConfig(d("2024-01-02"), d("2024-03-29"))
	cfg.Universe.MinPrice = 100

	result := runEngine(t, cfg, store)

	require.Len(t, result.Periods, 3)
	for _, p := range result.Periods {
		assert.True(t, p.Degraded)
		assert.Equal(t, "zero eligible instruments", p.DegradeReason)
		assert.Equal(t, 1.0, p.NAVAfter)
	}
	require.Len(t, result.NAV, 4)
	for _, p := range result.NAV {
		assert.Equal(t, 1.0, p.NAV)
	}
	assert.Equal(t, 3, result.Summary.DegradedPeriods)
	assert.False(t, result.Summary.Clean())
	require.Len(t, result.Degradations, 3)
	assert.Equal(t, contracts.DegradeDataGap, result.Degradations[0].Kind)
	assert.Equal(t, contracts.StageUniverse, result.Degradations[0].Stage)
}

type refusingAllocator struct {
	calls int
}

func (a *refusingAllocator) Allocate(selection *contracts.SelectionRecord, tradeDate time.Time, prices map[string]float64, capital float64) (*contracts.Allocation, []error) {
	a.calls++
	return nil, []error{&contracts.MissingPriceError{Code: selection.Codes()[0], Date: tradeDate}}
}

func TestEngine_WithAllocator(t *testing.T) {
	store := scenarioStore(d("2024-01-02"), d("2024-02-29"), abcMarket)
	alloc := &refusingAllocator{}
	result := runEngine(t, scenarioConfig(d("2024-01-02"), d("2024-02-29")), store, WithAllocator(alloc))

	assert.Equal(t, 1, alloc.calls)
	require.Len(t, result.Periods, 2)
	assert.Nil(t, result.Periods[0].TradeDate)
	assert.Empty(t, result.Periods[0].Instruments)
	assert.False(t, result.Periods[1].Realized)
	assert.Equal(t, 1.0, result.Periods[1].NAVAfter)
	require.Len(t, result.Degradations, 1)
	assert.Equal(t, contracts.DegradeMissingPrice, result.Degradations[0].Kind)
	assert.Equal(t, "600001", result.Degradations[0].Code)
}

func TestEngine_GapClosesHoldingWithoutRealizing(t *testing.T) {
	// A collapses below the price floor in February and recovers in March
	market := func(code string, day time.Time) (bar, bool) {
		if code != "600001" {
			return bar{}, false
		}
		if day.Month() == time.February && day.After(d("2024-02-01")) {
			return bar{2, 2, 20}, true
		}
		return bar{5, 5, 50}, true
	}
	store := scenarioStore(d("2024-01-02"), d("2024-03-29"), market)

	result := runEngine(t, scenarioConfig(d("2024-01-02"), d("2024-03-29")), store)

	require.Len(t, result.Periods, 3)
	assert.Len(t, result.Periods[0].Instruments, 1)
	assert.True(t, result.Periods[1].Degraded)
	assert.False(t, result.Periods[1].Realized)
	assert.Equal(t, 1.0, result.Periods[1].NAVAfter)
	// nothing was held through February, so March realizes nothing
	assert.False(t, result.Periods[2].Realized)
	assert.InDelta(t, 1.0, result.FinalNAV(), 1e-12)
	assertSeriesInvariants(t, result.NAV)
}

func TestEngine_MissingExitPriceIsDegradation(t *testing.T) {
	market := func(code string, day time.Time) (bar, bool) {
		switch code {
		case "600001":
			if day.Month() == time.February && day.After(d("2024-02-01")) {
				return bar{}, false
			}
			return bar{5, 5, 50}, true
		case "600002":
			if day.After(d("2024-02-01")) {
				return bar{13.2, 13.2, 80}, true
			}
			return bar{12, 12, 80}, true
		}
		return bar{}, false
	}
	store := scenarioStore(d("2024-01-02"), d("2024-02-29"), market)
	cfg := scenarioConfig(d("2024-01-02"), d("2024-02-29"))
	cfg.Selection.Count = 2
	cfg.TransactionCost = 0
	cfg.InitialCapital = 100000

	result := runEngine(t, cfg, store)

	require.Len(t, result.Periods, 2)
	assert.Len(t, result.Periods[0].Instruments, 2)
	// A has no close on Feb 29 and is left out of the weighting
	assert.True(t, result.Periods[1].Realized)
	assert.InDelta(t, 0.10, result.Periods[1].GrossReturn, 1e-9)
	assert.Equal(t, 1, result.Summary.MissingPrices)

	var found bool
	for _, deg := range result.Degradations {
		if deg.Kind == contracts.DegradeMissingPrice {
			found = true
			assert.Equal(t, "600001", deg.Code)
			assert.Equal(t, contracts.StageRealization, deg.Stage)
		}
	}
	assert.True(t, found)
}

// firstOnlyCalendar rebalances only on the first month end, leaving the rest to liquidation
type firstOnlyCalendar struct {
	*calendar.Calendar
}

func (c firstOnlyCalendar) MonthEndDates(ctx context.Context, start, end time.Time) ([]time.Time, []error, error) {
	dates, gaps, err := c.Calendar.MonthEndDates(ctx, start, end)
	if err != nil || len(dates) == 0 {
		return dates, gaps, err
	}
	return dates[:1], gaps, nil
}

func TestEngine_TerminalLiquidation(t *testing.T) {
	store := scenarioStore(d("2024-01-02"), d("2024-02-29"), abcMarket)
	cal, err := calendar.New(store, calendar.DefaultConfig(), nil)
	require.NoError(t, err)

	result := runEngine(t, scenarioConfig(d("2024-01-02"), d("2024-03-03")), store, WithCalendar(firstOnlyCalendar{cal}))

	require.Len(t, result.Periods, 1)
	require.NotNil(t, result.Liquidation)
	assert.Equal(t, d("2024-02-29"), result.Liquidation.Date)
	assert.InDelta(t, 0.10, result.Liquidation.GrossReturn, 1e-9)
	assert.InDelta(t, 0.099, result.Liquidation.RealizedReturn, 1e-9)
	assert.InDelta(t, 1.099, result.Liquidation.NAVAfter, 1e-9)

	last := result.NAV[len(result.NAV)-1]
	assert.Equal(t, d("2024-02-29"), last.Date)
	assert.InDelta(t, 1.099, last.NAV, 1e-9)
	assert.Equal(t, 1, result.Summary.RealizedPeriods)
}

func TestEngine_ObserverAndCancellation(t *testing.T) {
	store := scenarioStore(d("2024-01-02"), d("2024-03-29"), abcMarket)
	cfg := scenarioConfig(d("2024-01-02"), d("2024-03-29"))

	ctx, cancel := context.WithCancel(context.Background())
	var seen []int
	engine, err := NewEngine(cfg, store, nil, WithObserver(func(r contracts.PeriodRecord) {
		seen = append(seen, r.PeriodIndex)
		if r.PeriodIndex == 0 {
			cancel()
		}
	}))
	require.NoError(t, err)

	result, err := engine.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, result)
	assert.True(t, result.Aborted)
	assert.Equal(t, []int{0}, seen)
	assert.Len(t, result.Periods, 1)
	assert.Len(t, result.NAV, 2)
}

// outageStore fails every benchmark and instrument lookup on one date
type outageStore struct {
	*memstore.Store
	failOn time.Time
}

func (s outageStore) RowsForInstrumentsOnDate(ctx context.Context, codes []string, date time.Time) ([]contracts.MarketRow, error) {
	if date.Equal(s.failOn) {
		return nil, errors.New("read timeout")
	}
	return s.Store.RowsForInstrumentsOnDate(ctx, codes, date)
}

func TestEngine_MonthEndLookupFailureDegradesOnlyThatMonth(t *testing.T) {
	store := outageStore{
		Store:  scenarioStore(d("2024-01-02"), d("2024-03-29"), abcMarket),
		failOn: d("2024-02-29"),
	}
	result := runEngine(t, scenarioConfig(d("2024-01-02"), d("2024-03-31")), store)

	require.Len(t, result.Periods, 3)
	assert.False(t, result.Aborted)

	jan, feb, mar := result.Periods[0], result.Periods[1], result.Periods[2]
	assert.False(t, jan.Degraded)
	require.NotNil(t, jan.TradeDate)
	assert.Equal(t, d("2024-02-01"), *jan.TradeDate)

	assert.True(t, feb.Degraded)
	assert.Equal(t, 1, feb.PeriodIndex)
	assert.Equal(t, d("2024-02-29"), feb.SelectionDate)
	assert.Contains(t, feb.DegradeReason, "read timeout")
	assert.Nil(t, feb.Selection)

	assert.False(t, mar.Degraded)
	assert.Equal(t, d("2024-03-29"), mar.SelectionDate)

	require.Len(t, result.Degradations, 1)
	deg := result.Degradations[0]
	assert.Equal(t, contracts.DegradeDataGap, deg.Kind)
	assert.Equal(t, contracts.StageSnapshot, deg.Stage)
	assert.Equal(t, d("2024-02-29"), deg.Date)

	require.Len(t, result.NAV, 4)
	for _, p := range result.NAV {
		assert.InDelta(t, 1.0, p.NAV, 1e-9)
	}
	assertSeriesInvariants(t, result.NAV)
}

func TestEngine_StartOnMonthEndSharesInitialPoint(t *testing.T) {
	store := scenarioStore(d("2024-01-02"), d("2024-02-29"), abcMarket)
	result := runEngine(t, scenarioConfig(d("2024-01-31"), d("2024-02-29")), store)

	require.Len(t, result.Periods, 2)
	assert.Equal(t, d("2024-01-31"), result.Periods[0].SelectionDate)

	// the first rebalance realizes nothing, so it shares the initial 1.0 point
	require.Len(t, result.NAV, 2)
	assert.Equal(t, d("2024-01-31"), result.NAV[0].Date)
	assert.InDelta(t, 1.0, result.NAV[0].NAV, 1e-9)
	assert.Equal(t, d("2024-02-29"), result.NAV[1].Date)
	assert.InDelta(t, result.Periods[1].NAVAfter, result.NAV[1].NAV, 1e-9)
	assertSeriesInvariants(t, result.NAV)
}

func TestEngine_IdempotentOnFrozenData(t *testing.T) {
	gen := demo.DefaultConfig()
	gen.Start = d("2023-01-01")
	gen.End = d("2023-12-31")
	gen.Instruments = 40

	for _, metric := range []selection.MetricKind{selection.MetricPrice, selection.MetricMarketCap, selection.MetricTTMPE} {
		t.Run(string(metric), func(t *testing.T) {
			cfg := scenarioConfig(gen.Start, gen.End)
			cfg.InitialCapital = 1000000
			cfg.Universe = s1_universe.DefaultConfig()
			cfg.Universe.MinPrice = 2
			cfg.Selection = selection.Config{Metric: metric, Direction: selection.Ascending, Count: 5, CapBasis: contracts.CapFloat}

			storeA, _ := demo.Generate(gen)
			storeB, _ := demo.Generate(gen)
			a := runEngine(t, cfg, storeA)
			b := runEngine(t, cfg, storeB)

			navA, err := json.Marshal(a.NAV)
			require.NoError(t, err)
			navB, err := json.Marshal(b.NAV)
			require.NoError(t, err)
			assert.Equal(t, string(navA), string(navB))

			assert.Len(t, a.Periods, 12)
			assertSeriesInvariants(t, a.NAV)
			for _, p := range a.Periods {
				for _, h := range p.Instruments {
					assert.Zero(t, h.Shares%portfolio.DefaultLotSize)
					assert.GreaterOrEqual(t, h.Shares, portfolio.DefaultLotSize)
				}
			}
		})
	}
}

func TestNewEngine_RejectsConfiguration(t *testing.T) {
	store := memstore.New()
	base := scenarioConfig(d("2024-01-02"), d("2024-02-29"))

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"start after end", func(c *Config) { c.StartDate = d("2024-03-01") }},
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }},
		{"zero count", func(c *Config) { c.Selection.Count = 0 }},
		{"negative cost", func(c *Config) { c.TransactionCost = -0.1 }},
		{"bad lot", func(c *Config) { c.Constraints.LotSize = 0 }},
		{"bad cap basis", func(c *Config) { c.Universe.CapBasis = "free" }},
		{"empty calendar", func(c *Config) { c.Calendar.Benchmarks = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Universe.Prefixes = append([]string(nil), base.Universe.Prefixes...)
			tt.mutate(&cfg)
			_, err := NewEngine(cfg, store, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, contracts.ErrConfiguration), err.Error())
		})
	}
}

func TestEngine_Decide(t *testing.T) {
	store := scenarioStore(d("2024-01-02"), d("2024-02-29"), abcMarket)
	cfg := scenarioConfig(d("2024-01-02"), d("2024-02-29"))
	engine, err := NewEngine(cfg, store, nil)
	require.NoError(t, err)

	decision, err := engine.Decide(context.Background(), d("2024-01-31"))
	require.NoError(t, err)
	assert.Empty(t, decision.GapReason)
	assert.Equal(t, d("2024-01-31"), decision.TradingDay)
	require.NotNil(t, decision.Selection)
	require.Len(t, decision.Selection.Stocks, 1)
	assert.Equal(t, "600001", decision.Selection.Stocks[0].Code)
	require.NotNil(t, decision.TradeDate)
	assert.Equal(t, d("2024-02-01"), *decision.TradeDate)
	assert.Equal(t, 2, decision.Universe.Count())

	cfg.Universe.MinPrice = 100
	engine, err = NewEngine(cfg, store, nil)
	require.NoError(t, err)
	decision, err = engine.Decide(context.Background(), d("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, "zero eligible instruments", decision.GapReason)
	assert.Nil(t, decision.TradeDate)
}
