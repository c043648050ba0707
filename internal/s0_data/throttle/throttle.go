// Package throttle paces reads against a shared DataStore
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

var _ contracts.DataStore = (*Store)(nil)

// Store waits on a token bucket before every inner call
type Store struct {
	inner   contracts.DataStore
	limiter *rate.Limiter
}

// New wraps inner with rps requests per second and the given burst.
// rps <= 0 disables pacing.
func New(inner contracts.DataStore, rps float64, burst int) *Store {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Store{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

// Limiter exposes the shared limiter (sweep runs share one)
func (s *Store) Limiter() *rate.Limiter {
	return s.limiter
}

// RowsForDate implements contracts.MarketDataStore
func (s *Store) RowsForDate(ctx context.Context, date time.Time) ([]contracts.MarketRow, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.RowsForDate(ctx, date)
}

// RowsForInstrumentsOnDate implements contracts.MarketDataStore
func (s *Store) RowsForInstrumentsOnDate(ctx context.Context, codes []string, date time.Time) ([]contracts.MarketRow, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.RowsForInstrumentsOnDate(ctx, codes, date)
}

// TradingDates implements contracts.MarketDataStore
func (s *Store) TradingDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.TradingDates(ctx, start, end)
}

// FirstDateAfter implements contracts.MarketDataStore
func (s *Store) FirstDateAfter(ctx context.Context, date time.Time) (time.Time, bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return time.Time{}, false, err
	}
	return s.inner.FirstDateAfter(ctx, date)
}

// Value implements contracts.FundamentalsStore
func (s *Store) Value(ctx context.Context, code string, period contracts.ReportPeriod, indicator string) (float64, bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, false, err
	}
	return s.inner.Value(ctx, code, period, indicator)
}

// Values implements contracts.FundamentalsStore
func (s *Store) Values(ctx context.Context, codes []string, periods []contracts.ReportPeriod, indicator string) (map[string]map[string]float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.Values(ctx, codes, periods, indicator)
}

// Instruments implements contracts.InstrumentStore
func (s *Store) Instruments(ctx context.Context) (map[string]contracts.Instrument, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.Instruments(ctx)
}
