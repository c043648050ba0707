// Package memstore is an in-memory DataStore used by tests and the demo market
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

var _ contracts.DataStore = (*Store)(nil)

// Store keeps market rows, fundamentals and instruments in maps
type Store struct {
	mu           sync.RWMutex
	rows         map[time.Time]map[string]contracts.MarketRow
	dates        []time.Time // sorted, distinct
	fundamentals map[string]float64
	instruments  map[string]contracts.Instrument
}

// New creates an empty store
func New() *Store {
	return &Store{
		rows:         make(map[time.Time]map[string]contracts.MarketRow),
		fundamentals: make(map[string]float64),
		instruments:  make(map[string]contracts.Instrument),
	}
}

func fundamentalKey(code, period, indicator string) string {
	return code + "|" + period + "|" + indicator
}

// AddRow inserts or replaces one market row
func (s *Store) AddRow(row contracts.MarketRow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row.TradeDate = contracts.Day(row.TradeDate)
	day, ok := s.rows[row.TradeDate]
	if !ok {
		day = make(map[string]contracts.MarketRow)
		s.rows[row.TradeDate] = day

		i := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(row.TradeDate) })
		s.dates = append(s.dates, time.Time{})
		copy(s.dates[i+1:], s.dates[i:])
		s.dates[i] = row.TradeDate
	}
	day[row.Code] = row
}

// AddFundamental inserts or replaces one indicator value
func (s *Store) AddFundamental(rec contracts.FundamentalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fundamentals[fundamentalKey(rec.Code, rec.Period.String(), rec.Indicator)] = rec.Value
}

// AddInstrument inserts or replaces instrument metadata
func (s *Store) AddInstrument(inst contracts.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst.Board == "" {
		inst.Board = contracts.BoardOf(inst.Code)
	}
	s.instruments[inst.Code] = inst
}

// RowsForDate implements contracts.MarketDataStore
func (s *Store) RowsForDate(_ context.Context, date time.Time) ([]contracts.MarketRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := s.rows[contracts.Day(date)]
	rows := make([]contracts.MarketRow, 0, len(day))
	for _, row := range day {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows, nil
}

// RowsForInstrumentsOnDate implements contracts.MarketDataStore
func (s *Store) RowsForInstrumentsOnDate(_ context.Context, codes []string, date time.Time) ([]contracts.MarketRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := s.rows[contracts.Day(date)]
	rows := make([]contracts.MarketRow, 0, len(codes))
	for _, code := range codes {
		if row, ok := day[code]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// TradingDates implements contracts.MarketDataStore
func (s *Store) TradingDates(_ context.Context, start, end time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end = contracts.Day(start), contracts.Day(end)
	dates := make([]time.Time, 0)
	for _, d := range s.dates {
		if d.Before(start) {
			continue
		}
		if d.After(end) {
			break
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// FirstDateAfter implements contracts.MarketDataStore
func (s *Store) FirstDateAfter(_ context.Context, date time.Time) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	date = contracts.Day(date)
	i := sort.Search(len(s.dates), func(i int) bool { return s.dates[i].After(date) })
	if i == len(s.dates) {
		return time.Time{}, false, nil
	}
	return s.dates[i], true, nil
}

// Value implements contracts.FundamentalsStore
func (s *Store) Value(_ context.Context, code string, period contracts.ReportPeriod, indicator string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.fundamentals[fundamentalKey(code, period.String(), indicator)]
	return v, ok, nil
}

// Values implements contracts.FundamentalsStore
func (s *Store) Values(_ context.Context, codes []string, periods []contracts.ReportPeriod, indicator string) (map[string]map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]float64)
	for _, code := range codes {
		for _, period := range periods {
			key := period.String()
			if v, ok := s.fundamentals[fundamentalKey(code, key, indicator)]; ok {
				if out[code] == nil {
					out[code] = make(map[string]float64)
				}
				out[code][key] = v
			}
		}
	}
	return out, nil
}

// Instruments implements contracts.InstrumentStore
func (s *Store) Instruments(_ context.Context) (map[string]contracts.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]contracts.Instrument, len(s.instruments))
	for code, inst := range s.instruments {
		out[code] = inst
	}
	return out, nil
}

// Stats returns row, date and instrument counts
func (s *Store) Stats() (rows, dates, instruments int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, day := range s.rows {
		rows += len(day)
	}
	return rows, len(s.dates), len(s.instruments)
}
