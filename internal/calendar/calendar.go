package calendar

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// Config holds the benchmark-quorum parameters
type Config struct {
	Benchmarks   []string `yaml:"benchmarks" json:"benchmarks"`
	Quorum       float64  `yaml:"quorum" json:"quorum"`               // fraction of benchmarks that must have a row
	LookbackDays int      `yaml:"lookback_days" json:"lookback_days"` // calendar days searched backward
	CacheSize    int      `yaml:"-" json:"-"`
}

// DefaultConfig returns the basket of large, long-listed Shenzhen names
func DefaultConfig() Config {
	return Config{
		Benchmarks:   []string{"000001", "000002", "000027", "000006", "000026"},
		Quorum:       0.6,
		LookbackDays: 15,
		CacheSize:    4096,
	}
}

var _ contracts.TradingCalendar = (*Calendar)(nil)

// Calendar resolves trading days from market data
// ⭐ SSOT: 거래일 판정은 여기서만 (benchmark quorum)
type Calendar struct {
	store    contracts.MarketDataStore
	cfg      Config
	required int
	memo     *lru.Cache
	logger   *logger.Logger
}

// New creates a calendar over store
func New(store contracts.MarketDataStore, cfg Config, log *logger.Logger) (*Calendar, error) {
	if len(cfg.Benchmarks) == 0 {
		return nil, &contracts.ConfigurationError{Field: "calendar.benchmarks", Message: "required"}
	}
	if cfg.Quorum <= 0 || cfg.Quorum > 1 {
		return nil, &contracts.ConfigurationError{Field: "calendar.quorum", Message: "must be in (0, 1]"}
	}
	if cfg.LookbackDays <= 0 {
		return nil, &contracts.ConfigurationError{Field: "calendar.lookback_days", Message: "must be > 0"}
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if log == nil {
		log = logger.Nop()
	}

	memo, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create calendar cache: %w", err)
	}

	required := int(float64(len(cfg.Benchmarks)) * cfg.Quorum)
	if required < 1 {
		required = 1
	}

	return &Calendar{
		store:    store,
		cfg:      cfg,
		required: required,
		memo:     memo,
		logger:   log,
	}, nil
}

// RequiredCount returns how many benchmarks must trade on a day
func (c *Calendar) RequiredCount() int {
	return c.required
}

// IsTradingDay applies the benchmark quorum to one calendar date
func (c *Calendar) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	date = contracts.Day(date)
	if v, ok := c.memo.Get(date); ok {
		return v.(bool), nil
	}

	rows, err := c.store.RowsForInstrumentsOnDate(ctx, c.cfg.Benchmarks, date)
	if err != nil {
		return false, fmt.Errorf("query benchmarks on %s: %w", date.Format(contracts.DateLayout), err)
	}

	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		seen[row.Code] = struct{}{}
	}
	trading := len(seen) >= c.required

	// 이후 데이터가 없는 날의 false 는 아직 import 전일 수 있음
	if !trading {
		if _, later, err := c.store.FirstDateAfter(ctx, date); err != nil || !later {
			return false, nil
		}
	}
	c.memo.Add(date, trading)
	return trading, nil
}

// LastTradingDayOnOrBefore searches backward within the lookback window.
// Not finding a day is (zero, false, nil); callers skip the period.
func (c *Calendar) LastTradingDayOnOrBefore(ctx context.Context, date time.Time) (time.Time, bool, error) {
	date = contracts.Day(date)
	for i := 0; i < c.cfg.LookbackDays; i++ {
		candidate := date.AddDate(0, 0, -i)
		ok, err := c.IsTradingDay(ctx, candidate)
		if err != nil {
			return time.Time{}, false, err
		}
		if ok {
			return candidate, true, nil
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"date":     date.Format(contracts.DateLayout),
		"lookback": c.cfg.LookbackDays,
	}).Debug("No trading day within lookback window")

	return time.Time{}, false, nil
}

// FirstTradingDayAfter returns the first date with data strictly after date
func (c *Calendar) FirstTradingDayAfter(ctx context.Context, date time.Time) (time.Time, bool, error) {
	next, ok, err := c.store.FirstDateAfter(ctx, contracts.Day(date))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("first date after %s: %w", date.Format(contracts.DateLayout), err)
	}
	return next, ok, nil
}

// TradingDaysInRange returns the distinct dates with data in [start, end]
func (c *Calendar) TradingDaysInRange(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	dates, err := c.store.TradingDates(ctx, contracts.Day(start), contracts.Day(end))
	if err != nil {
		return nil, fmt.Errorf("trading dates: %w", err)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%s ~ %s: %w", start.Format(contracts.DateLayout), end.Format(contracts.DateLayout), contracts.ErrNoData)
	}
	return dates, nil
}

// MonthEndDates returns the last trading day of every month touching [start, end].
// The final month is cut at end; the first partial month is included.
// A month whose lookup fails is skipped and reported as a *contracts.DataGapError
// dated at its (cut) last day; only context cancellation aborts the walk.
func (c *Calendar) MonthEndDates(ctx context.Context, start, end time.Time) ([]time.Time, []error, error) {
	start, end = contracts.Day(start), contracts.Day(end)
	dates := make([]time.Time, 0)
	var gaps []error
	if start.After(end) {
		return dates, nil, nil
	}

	month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !month.After(end) {
		last := month.AddDate(0, 1, -1)
		if last.After(end) {
			last = end
		}

		day, ok, err := c.LastTradingDayOnOrBefore(ctx, last)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			c.logger.WithError(err).WithField("month", month.Format("2006-01")).Warn("Month-end lookup failed, skipping month")
			gaps = append(gaps, &contracts.DataGapError{Date: last, Reason: err.Error()})
			month = month.AddDate(0, 1, 0)
			continue
		}
		if ok && !day.Before(start) && (len(dates) == 0 || day.After(dates[len(dates)-1])) {
			dates = append(dates, day)
		}

		month = month.AddDate(0, 1, 0)
	}

	return dates, gaps, nil
}
