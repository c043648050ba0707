// Package cache layers an in-process LRU and the shared Redis cache over a DataStore.
// Market data is append-only: a date is settled once a later date has data, and only
// settled dates are cached, so entries are never invalidated.
package cache

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
	"github.com/wonny/ashare-rotation/pkg/redis"
)

var _ contracts.DataStore = (*Store)(nil)

// Store decorates a DataStore with two cache tiers
type Store struct {
	inner  contracts.DataStore
	local  *lru.Cache
	shared *redis.Cache // nil or disabled = local tier only
	logger *logger.Logger
}

type fundamentalValue struct {
	Value float64 `json:"value"`
	OK    bool    `json:"ok"`
}

type firstDate struct {
	Date time.Time `json:"date"`
	OK   bool      `json:"ok"`
}

// New wraps inner; size is the LRU entry count
func New(inner contracts.DataStore, size int, shared *redis.Cache, log *logger.Logger) (*Store, error) {
	if size <= 0 {
		return nil, &contracts.ConfigurationError{Field: "cache_size", Message: "must be > 0"}
	}
	local, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{inner: inner, local: local, shared: shared, logger: log}, nil
}

// Len returns the number of locally cached entries
func (s *Store) Len() int {
	return s.local.Len()
}

func (s *Store) sharedEnabled() bool {
	return s.shared != nil && s.shared.Enabled()
}

// lookup tries the local tier, then the shared tier
func (s *Store) lookup(ctx context.Context, key string, dest interface{}, assign func(v interface{})) bool {
	if v, ok := s.local.Get(key); ok {
		assign(v)
		return true
	}
	if !s.sharedEnabled() {
		return false
	}
	found, err := s.shared.Get(ctx, key, dest)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Shared cache read failed")
		return false
	}
	if found {
		s.local.Add(key, reflect.ValueOf(dest).Elem().Interface())
	}
	return found
}

func (s *Store) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	s.local.Add(key, value)
	if !s.sharedEnabled() {
		return
	}
	if err := s.shared.Set(ctx, key, value, ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Shared cache write failed")
	}
}

// settled reports whether a later date already has data, so date's rows can no longer change
func (s *Store) settled(ctx context.Context, date time.Time) bool {
	_, ok, err := s.FirstDateAfter(ctx, date)
	return err == nil && ok
}

func copyRows(rows []contracts.MarketRow) []contracts.MarketRow {
	out := make([]contracts.MarketRow, len(rows))
	copy(out, rows)
	return out
}

func dateKey(t time.Time) string {
	return contracts.Day(t).Format(contracts.DateLayout)
}

// RowsForDate implements contracts.MarketDataStore
func (s *Store) RowsForDate(ctx context.Context, date time.Time) ([]contracts.MarketRow, error) {
	key := redis.RowsKey(dateKey(date))

	var rows []contracts.MarketRow
	if s.lookup(ctx, key, &rows, func(v interface{}) { rows = v.([]contracts.MarketRow) }) {
		return copyRows(rows), nil
	}

	rows, err := s.inner.RowsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if s.settled(ctx, date) {
		s.store(ctx, key, rows, redis.TTLMarketData)
	}
	return copyRows(rows), nil
}

// RowsForInstrumentsOnDate implements contracts.MarketDataStore
func (s *Store) RowsForInstrumentsOnDate(ctx context.Context, codes []string, date time.Time) ([]contracts.MarketRow, error) {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)
	key := redis.RowsForCodesKey(dateKey(date), sorted)

	var rows []contracts.MarketRow
	if s.lookup(ctx, key, &rows, func(v interface{}) { rows = v.([]contracts.MarketRow) }) {
		return copyRows(rows), nil
	}

	rows, err := s.inner.RowsForInstrumentsOnDate(ctx, codes, date)
	if err != nil {
		return nil, err
	}
	if s.settled(ctx, date) {
		s.store(ctx, key, rows, redis.TTLMarketData)
	}
	return copyRows(rows), nil
}

// TradingDates implements contracts.MarketDataStore
func (s *Store) TradingDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	key := redis.TradingDatesKey(dateKey(start), dateKey(end))

	var dates []time.Time
	if s.lookup(ctx, key, &dates, func(v interface{}) { dates = v.([]time.Time) }) {
		return append([]time.Time(nil), dates...), nil
	}

	dates, err := s.inner.TradingDates(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if s.settled(ctx, end) {
		s.store(ctx, key, dates, redis.TTLMarketData)
	}
	return append([]time.Time(nil), dates...), nil
}

// FirstDateAfter implements contracts.MarketDataStore.
// Only the local tier is used and only found dates are kept: a later import can add dates.
func (s *Store) FirstDateAfter(ctx context.Context, date time.Time) (time.Time, bool, error) {
	key := "first_after:" + dateKey(date)
	if v, ok := s.local.Get(key); ok {
		fd := v.(firstDate)
		return fd.Date, fd.OK, nil
	}

	next, ok, err := s.inner.FirstDateAfter(ctx, date)
	if err != nil {
		return time.Time{}, false, err
	}
	if ok {
		s.local.Add(key, firstDate{Date: next, OK: ok})
	}
	return next, ok, nil
}

// Value implements contracts.FundamentalsStore
func (s *Store) Value(ctx context.Context, code string, period contracts.ReportPeriod, indicator string) (float64, bool, error) {
	key := redis.FundamentalKey(code, period.String(), indicator)

	var fv fundamentalValue
	if s.lookup(ctx, key, &fv, func(v interface{}) { fv = v.(fundamentalValue) }) {
		return fv.Value, fv.OK, nil
	}

	v, ok, err := s.inner.Value(ctx, code, period, indicator)
	if err != nil {
		return 0, false, err
	}
	s.store(ctx, key, fundamentalValue{Value: v, OK: ok}, redis.TTLMaster)
	return v, ok, nil
}

// Values implements contracts.FundamentalsStore (local tier only)
func (s *Store) Values(ctx context.Context, codes []string, periods []contracts.ReportPeriod, indicator string) (map[string]map[string]float64, error) {
	sortedCodes := append([]string(nil), codes...)
	sort.Strings(sortedCodes)
	keys := make([]string, len(periods))
	for i, p := range periods {
		keys[i] = p.String()
	}
	key := fmt.Sprintf("fundamentals:%s:%s:%s", indicator, strings.Join(keys, ","), strings.Join(sortedCodes, ","))

	if v, ok := s.local.Get(key); ok {
		return copyValues(v.(map[string]map[string]float64)), nil
	}

	values, err := s.inner.Values(ctx, codes, periods, indicator)
	if err != nil {
		return nil, err
	}
	s.local.Add(key, values)
	return copyValues(values), nil
}

func copyValues(in map[string]map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(in))
	for code, byPeriod := range in {
		inner := make(map[string]float64, len(byPeriod))
		for k, v := range byPeriod {
			inner[k] = v
		}
		out[code] = inner
	}
	return out
}

// Instruments implements contracts.InstrumentStore
func (s *Store) Instruments(ctx context.Context) (map[string]contracts.Instrument, error) {
	const key = "instruments"

	var instruments map[string]contracts.Instrument
	if s.lookup(ctx, key, &instruments, func(v interface{}) { instruments = v.(map[string]contracts.Instrument) }) {
		return copyInstruments(instruments), nil
	}

	instruments, err := s.inner.Instruments(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, instruments, redis.TTLMaster)
	return copyInstruments(instruments), nil
}

func copyInstruments(in map[string]contracts.Instrument) map[string]contracts.Instrument {
	out := make(map[string]contracts.Instrument, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
