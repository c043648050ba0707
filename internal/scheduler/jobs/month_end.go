package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// DefaultMonthEndSchedule is weekdays at 17:30, after the close and the daily import
const DefaultMonthEndSchedule = "0 30 17 * * 1-5"

// TradingDays is the calendar surface the job needs
type TradingDays interface {
	IsTradingDay(ctx context.Context, date time.Time) (bool, error)
	LastTradingDayOnOrBefore(ctx context.Context, date time.Time) (time.Time, bool, error)
}

// SelectionStore persists live selections
type SelectionStore interface {
	SaveSelection(ctx context.Context, strategy string, record *contracts.SelectionRecord) error
	LatestSelectionDate(ctx context.Context, strategy string) (time.Time, bool, error)
}

// UniverseStore persists the eligible set behind a selection
type UniverseStore interface {
	SaveUniverse(ctx context.Context, strategy string, universe *contracts.Universe) error
}

// MonthEndSelectionJob records a strategy's selection on the month's final trading day.
// The record is a signal list for the next month, not an order.
// ⭐ SSOT: 월말 선정 스케줄은 이 Job에서만
type MonthEndSelectionJob struct {
	strategy   string
	engine     *backtest.Engine
	calendar   TradingDays
	selections SelectionStore
	universes  UniverseStore
	schedule   string
	logger     *logger.Logger
	now        func() time.Time
}

// MonthEndOption configures a MonthEndSelectionJob
type MonthEndOption func(*MonthEndSelectionJob)

// WithUniverseStore also stores the eligible universe
func WithUniverseStore(u UniverseStore) MonthEndOption {
	return func(j *MonthEndSelectionJob) { j.universes = u }
}

// WithSchedule overrides DefaultMonthEndSchedule
func WithSchedule(spec string) MonthEndOption {
	return func(j *MonthEndSelectionJob) { j.schedule = spec }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) MonthEndOption {
	return func(j *MonthEndSelectionJob) { j.now = now }
}

// NewMonthEndSelectionJob creates the job for one strategy
func NewMonthEndSelectionJob(strategy string, engine *backtest.Engine, cal TradingDays, selections SelectionStore, log *logger.Logger, opts ...MonthEndOption) *MonthEndSelectionJob {
	if log == nil {
		log = logger.Nop()
	}
	j := &MonthEndSelectionJob{
		strategy:   strategy,
		engine:     engine,
		calendar:   cal,
		selections: selections,
		schedule:   DefaultMonthEndSchedule,
		logger:     log.WithField("strategy", strategy),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name returns the job name
func (j *MonthEndSelectionJob) Name() string {
	return "month_end_selection:" + j.strategy
}

// Schedule returns the cron schedule
func (j *MonthEndSelectionJob) Schedule() string {
	return j.schedule
}

// Run records the previous month-end if it was missed, then today if it is the month-end
func (j *MonthEndSelectionJob) Run(ctx context.Context) error {
	today := contracts.Day(j.now())

	trading, err := j.calendar.IsTradingDay(ctx, today)
	if err != nil {
		return fmt.Errorf("trading day check: %w", err)
	}
	if !trading {
		j.logger.WithDate("date", today).Debug("Not a trading day (or data not imported yet)")
		return nil
	}

	if err := j.catchUp(ctx, today); err != nil {
		return err
	}

	if !LastWeekdayOfMonth(today) {
		return nil
	}
	return j.record(ctx, today)
}

// 휴장으로 월말 실행을 놓친 경우 전월 마지막 거래일을 보충
func (j *MonthEndSelectionJob) catchUp(ctx context.Context, today time.Time) error {
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevEnd, ok, err := j.calendar.LastTradingDayOnOrBefore(ctx, firstOfMonth.AddDate(0, 0, -1))
	if err != nil {
		return fmt.Errorf("previous month-end: %w", err)
	}
	if !ok {
		return nil
	}

	latest, found, err := j.selections.LatestSelectionDate(ctx, j.strategy)
	if err != nil {
		return err
	}
	if found && !latest.Before(prevEnd) {
		return nil
	}

	j.logger.WithDate("date", prevEnd).Info("Recording missed month-end selection")
	return j.record(ctx, prevEnd)
}

func (j *MonthEndSelectionJob) record(ctx context.Context, date time.Time) error {
	decision, err := j.engine.Decide(ctx, date)
	if err != nil {
		return fmt.Errorf("decide %s: %w", date.Format(contracts.DateLayout), err)
	}
	log := j.logger.WithDate("date", decision.TradingDay)

	if decision.GapReason != "" {
		log.WithField("reason", decision.GapReason).Warn("No selection recorded")
		return nil
	}

	if j.universes != nil {
		if err := j.universes.SaveUniverse(ctx, j.strategy, decision.Universe); err != nil {
			return fmt.Errorf("save universe: %w", err)
		}
	}
	if err := j.selections.SaveSelection(ctx, j.strategy, decision.Selection); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"selected":     len(decision.Selection.Stocks),
		"degradations": len(decision.Degradations),
	}).Info("Month-end selection recorded")
	return nil
}

// LastWeekdayOfMonth reports whether no weekday follows date in its month
func LastWeekdayOfMonth(date time.Time) bool {
	for d := date.AddDate(0, 0, 1); d.Month() == date.Month(); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			return false
		}
	}
	return true
}
