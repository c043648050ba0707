package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/ashare-rotation/internal/calendar"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/fundamentals"
	"github.com/wonny/ashare-rotation/internal/marketview"
	"github.com/wonny/ashare-rotation/internal/portfolio"
	"github.com/wonny/ashare-rotation/internal/s1_universe"
	"github.com/wonny/ashare-rotation/internal/selection"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// Engine runs one monthly rotation backtest
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	config    Config
	calendar  contracts.TradingCalendar
	view      *marketview.View
	universe  contracts.UniverseBuilder
	selector  contracts.StockSelector
	allocator contracts.PositionAllocator
	returns   *ReturnCalculator
	observer  Observer
	logger    *logger.Logger
}

// Config holds backtest configuration
type Config struct {
	Strategy        string
	StartDate       time.Time
	EndDate         time.Time
	InitialCapital  float64
	TransactionCost float64 // round-trip cost rate charged once per realized period
	RiskFreeRate    float64 // annual, used by Sharpe and Sortino
	Universe        s1_universe.Config
	Selection       selection.Config
	Constraints     portfolio.Constraints
	Calendar        calendar.Config
}

// Validate rejects configurations before any period is processed
func (c Config) Validate() error {
	switch {
	case c.StartDate.IsZero() || c.EndDate.IsZero():
		return &contracts.ConfigurationError{Field: "dates", Message: "start and end date are required"}
	case c.StartDate.After(c.EndDate):
		return &contracts.ConfigurationError{Field: "dates", Message: "start date after end date"}
	case c.InitialCapital <= 0:
		return &contracts.ConfigurationError{Field: "initial_capital", Message: "must be positive"}
	case c.TransactionCost < 0 || c.TransactionCost >= 1:
		return &contracts.ConfigurationError{Field: "transaction_cost", Message: "must be in [0, 1)"}
	}
	if err := c.Universe.Validate(); err != nil {
		return err
	}
	if err := c.Selection.Validate(); err != nil {
		return err
	}
	return c.Constraints.Validate()
}

// Result holds backtest results
type Result struct {
	Config       Config
	NAV          []contracts.NAVPoint
	Periods      []contracts.PeriodRecord
	Liquidation  *contracts.Liquidation
	Summary      contracts.Summary
	Degradations []contracts.Degradation
	Aborted      bool
	Duration     time.Duration
}

// FinalNAV returns the last NAV value
func (r *Result) FinalNAV() float64 {
	if r == nil || len(r.NAV) == 0 {
		return 1.0
	}
	return r.NAV[len(r.NAV)-1].NAV
}

// Observer receives every period record as soon as it is final
type Observer func(record contracts.PeriodRecord)

// Option customizes an Engine
type Option func(*Engine)

// WithObserver registers a per-period callback
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithCalendar replaces the quorum calendar built from the store
func WithCalendar(cal contracts.TradingCalendar) Option {
	return func(e *Engine) { e.calendar = cal }
}

// WithAllocator replaces the lot allocator
func WithAllocator(a contracts.PositionAllocator) Option {
	return func(e *Engine) { e.allocator = a }
}

// NewEngine wires one independent pipeline over store
func NewEngine(config Config, store contracts.DataStore, log *logger.Logger, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	e := &Engine{config: config, logger: log}
	for _, opt := range opts {
		opt(e)
	}

	if e.calendar == nil {
		cal, err := calendar.New(store, config.Calendar, log)
		if err != nil {
			return nil, err
		}
		e.calendar = cal
	}

	builder, err := s1_universe.NewBuilder(store, config.Universe, log)
	if err != nil {
		return nil, err
	}
	e.universe = builder

	resolver := fundamentals.NewResolver(store, log)
	metric, err := selection.NewMetric(config.Selection.Metric, config.Selection.CapBasis, resolver, config.Selection.Indicator)
	if err != nil {
		return nil, err
	}
	ranker, err := selection.NewRanker(config.Selection, metric, store, log)
	if err != nil {
		return nil, err
	}
	e.selector = ranker

	if e.allocator == nil {
		allocator, err := portfolio.NewAllocator(config.Constraints, log)
		if err != nil {
			return nil, err
		}
		e.allocator = allocator
	}

	e.view = marketview.New(e.calendar, store, log)
	e.returns = NewReturnCalculator(e.view, log)
	return e, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// run holds the mutable state of one Run
type run struct {
	nav          float64
	holding      *contracts.Allocation
	heldSince    time.Time
	lastRebal    time.Time
	result       *Result
	degradations []contracts.Degradation
}

// Run executes the backtest. Instrument and period problems degrade the run
// and never abort it. Cancellation is checked between periods; the partial
// result is returned with Aborted set together with the context error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	cfg := e.config
	start, end := contracts.Day(cfg.StartDate), contracts.Day(cfg.EndDate)
	log := e.logger.WithFields(map[string]interface{}{
		"strategy": cfg.Strategy,
		"metric":   cfg.Selection.Metric,
	})

	log.WithFields(map[string]interface{}{
		"start_date":      start.Format(contracts.DateLayout),
		"end_date":        end.Format(contracts.DateLayout),
		"initial_capital": cfg.InitialCapital,
		"count":           cfg.Selection.Count,
	}).Info("Starting backtest")

	startTime := time.Now()
	st := &run{
		nav: 1.0,
		result: &Result{
			Config:       cfg,
			NAV:          []contracts.NAVPoint{{Date: start, NAV: 1.0}},
			Periods:      make([]contracts.PeriodRecord, 0),
			Degradations: make([]contracts.Degradation, 0),
		},
	}

	dates, gaps, err := e.calendar.MonthEndDates(ctx, start, end)
	if err != nil {
		st.result.Aborted = true
		e.finish(st, startTime)
		return st.result, fmt.Errorf("rebalance dates: %w", err)
	}

	for i, sl := range rebalanceSlots(dates, gaps) {
		if err := ctx.Err(); err != nil {
			st.result.Aborted = true
			e.finish(st, startTime)
			log.WithError(err).Warnf("Backtest aborted after %d periods", len(st.result.Periods))
			return st.result, err
		}
		var record contracts.PeriodRecord
		if sl.gap != nil {
			record = e.skipMonth(st, i, sl.gap)
		} else {
			record = e.rebalance(ctx, st, i, sl.date)
		}
		st.result.Periods = append(st.result.Periods, record)
		if e.observer != nil {
			e.observer(record)
		}
	}

	e.liquidate(ctx, st, end)
	e.finish(st, startTime)

	s := st.result.Summary
	log.WithFields(map[string]interface{}{
		"duration":     st.result.Duration.Seconds(),
		"periods":      s.Periods,
		"degraded":     s.DegradedPeriods,
		"total_return": fmt.Sprintf("%.2f%%", s.TotalReturn*100),
		"sharpe_ratio": fmt.Sprintf("%.2f", s.SharpeRatio),
		"max_drawdown": fmt.Sprintf("%.2f%%", s.MaxDrawdown*100),
	}).Info("Backtest completed")

	return st.result, nil
}

// rebalance processes one rebalancing date: realize, select, allocate
func (e *Engine) rebalance(ctx context.Context, st *run, index int, date time.Time) contracts.PeriodRecord {
	record := contracts.PeriodRecord{
		PeriodIndex:   index,
		SelectionDate: date,
		Instruments:   make([]contracts.HeldInstrument, 0),
	}
	defer func() { st.lastRebal = date }()

	p := e.selectAt(ctx, date, st.degrade)
	stage, reason, selected := p.stage, p.reason, p.selection
	if reason != "" {
		e.noop(st, &record, stage, &contracts.DataGapError{Date: date, Reason: reason})
		return record
	}
	record.Selection = selected

	if st.holding != nil {
		pr, ok := e.realize(ctx, st, st.heldSince, date)
		record.GrossReturn = pr.Gross
		record.RealizedReturn = pr.Net
		record.Realized = ok
	}
	st.holding = nil

	if st.nav > 0 {
		e.allocate(ctx, st, &record, selected, date)
	}

	record.NAVAfter = st.nav
	st.appendNAV(date)

	e.logger.WithFields(map[string]interface{}{
		"period":   index,
		"date":     date.Format(contracts.DateLayout),
		"selected": len(selected.Stocks),
		"held":     len(record.Instruments),
		"nav":      st.nav,
	}).Debug("Period completed")
	return record
}

// skipMonth records a month whose rebalance date could not be resolved
func (e *Engine) skipMonth(st *run, index int, gap *contracts.DataGapError) contracts.PeriodRecord {
	record := contracts.PeriodRecord{
		PeriodIndex:   index,
		SelectionDate: gap.Date,
		Instruments:   make([]contracts.HeldInstrument, 0),
	}
	e.noop(st, &record, contracts.StageSnapshot, gap)
	st.lastRebal = gap.Date
	return record
}

// noop degrades a period: NAV 유지, 보유 종목은 실현 없이 청산
func (e *Engine) noop(st *run, record *contracts.PeriodRecord, stage contracts.Stage, gap *contracts.DataGapError) {
	st.degrade(contracts.NewDegradation(stage, gap.Date, gap))
	st.holding = nil
	record.Degraded = true
	record.DegradeReason = gap.Reason
	record.NAVAfter = st.nav
	st.appendNAV(gap.Date)
	e.logger.WithFields(map[string]interface{}{
		"stage":  stage.ShortName(),
		"date":   gap.Date.Format(contracts.DateLayout),
		"reason": gap.Reason,
		"nav":    st.nav,
	}).Warn("Period degraded to no-op")
}

// slot is one month of the rebalance schedule; gap marks a month that failed to resolve
type slot struct {
	date time.Time
	gap  *contracts.DataGapError
}

// rebalanceSlots merges resolved month ends and failed months in date order
func rebalanceSlots(dates []time.Time, gaps []error) []slot {
	slots := make([]slot, 0, len(dates)+len(gaps))
	for _, date := range dates {
		slots = append(slots, slot{date: date})
	}
	for _, err := range gaps {
		var gap *contracts.DataGapError
		if !errors.As(err, &gap) {
			continue
		}
		slots = append(slots, slot{date: gap.Date, gap: gap})
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].date.Before(slots[j].date) })
	return slots
}

// pick is the outcome of snapshot → universe → selection on one date
type pick struct {
	day       time.Time
	universe  *contracts.Universe
	selection *contracts.SelectionRecord
	stage     contracts.Stage
	reason    string // non-empty marks a gap
}

// selectAt runs snapshot → universe → selection
func (e *Engine) selectAt(ctx context.Context, date time.Time, degrade func(contracts.Degradation)) pick {
	snapshot, err := e.view.SnapshotAsOf(ctx, date)
	if err != nil {
		return pick{stage: contracts.StageSnapshot, reason: err.Error()}
	}
	if snapshot.Date.IsZero() {
		return pick{stage: contracts.StageSnapshot, reason: "no trading day resolved"}
	}
	p := pick{day: snapshot.Date}

	universe, err := e.universe.Build(ctx, snapshot)
	if err != nil {
		p.stage, p.reason = contracts.StageUniverse, err.Error()
		return p
	}
	p.universe = universe
	if universe.Count() == 0 {
		p.stage, p.reason = contracts.StageUniverse, "zero eligible instruments"
		return p
	}

	selected, errs, err := e.selector.Select(ctx, snapshot, universe)
	if err != nil {
		p.stage, p.reason = contracts.StageSelection, err.Error()
		return p
	}
	for _, derr := range errs {
		degrade(contracts.NewDegradation(contracts.StageMetric, snapshot.Date, derr))
	}
	p.selection = selected
	if len(selected.Stocks) == 0 {
		p.stage, p.reason = contracts.StageSelection, "no instrument could be ranked"
	}
	return p
}

// realize prices out the current holding and compounds NAV
func (e *Engine) realize(ctx context.Context, st *run, from, to time.Time) (PeriodReturn, bool) {
	pr, errs, err := e.returns.PeriodReturn(ctx, st.holding.Positions, from, to, e.config.TransactionCost)
	if err != nil {
		st.degrade(contracts.NewDegradation(contracts.StageRealization, to, err))
		e.logger.WithError(err).WithDate("date", to).Warn("Period return failed")
		return pr, false
	}
	for _, perr := range errs {
		st.degrade(contracts.NewDegradation(contracts.StageRealization, to, perr))
	}
	if !pr.Realized {
		return pr, false
	}

	st.nav *= 1 + pr.Net
	if st.nav < 0 {
		st.nav = 0
	}
	return pr, true
}

// allocate sizes the selection at the open of the next trading day, if within the backtest
func (e *Engine) allocate(ctx context.Context, st *run, record *contracts.PeriodRecord, selected *contracts.SelectionRecord, date time.Time) {
	tradeDate, ok, err := e.calendar.FirstTradingDayAfter(ctx, date)
	if err != nil {
		st.degrade(contracts.NewDegradation(contracts.StageAllocation, date, err))
		return
	}
	if !ok || tradeDate.After(contracts.Day(e.config.EndDate)) {
		return
	}

	prices, err := e.view.OpenPrices(ctx, selected.Codes(), tradeDate)
	if err != nil {
		st.degrade(contracts.NewDegradation(contracts.StageAllocation, tradeDate, err))
		return
	}

	alloc, errs := e.allocator.Allocate(selected, tradeDate, prices, st.nav*e.config.InitialCapital)
	for _, aerr := range errs {
		st.degrade(contracts.NewDegradation(contracts.StageAllocation, tradeDate, aerr))
	}
	if alloc.IsEmpty() {
		return
	}

	st.holding = alloc
	st.heldSince = date
	td := tradeDate
	record.TradeDate = &td
	for _, p := range alloc.Positions {
		record.Instruments = append(record.Instruments, contracts.HeldInstrument{
			Code:            p.Code,
			Name:            p.Name,
			RankMetric:      p.RankMetric,
			Shares:          p.Shares,
			EntryPrice:      p.EntryPrice,
			InvestedCapital: p.InvestedCapital,
		})
	}
}

// liquidate realizes the last holding at the end date unless end resolves to the last rebalance day
func (e *Engine) liquidate(ctx context.Context, st *run, end time.Time) {
	if st.holding == nil {
		return
	}
	endDay, ok, err := e.calendar.LastTradingDayOnOrBefore(ctx, end)
	if err != nil {
		st.degrade(contracts.NewDegradation(contracts.StageRealization, end, err))
		return
	}
	if !ok || !endDay.After(st.lastRebal) {
		return
	}

	pr, realized := e.realize(ctx, st, st.heldSince, endDay)
	st.holding = nil
	if !realized {
		return
	}
	st.result.Liquidation = &contracts.Liquidation{
		Date:           endDay,
		GrossReturn:    pr.Gross,
		RealizedReturn: pr.Net,
		NAVAfter:       st.nav,
	}
	st.appendNAV(endDay)
}

func (e *Engine) finish(st *run, startTime time.Time) {
	st.result.Degradations = st.degradations
	if st.result.Degradations == nil {
		st.result.Degradations = make([]contracts.Degradation, 0)
	}
	st.result.Duration = time.Since(startTime)
	st.result.Summary = ComputeSummary(st.result)
}

func (st *run) degrade(d contracts.Degradation) {
	st.degradations = append(st.degradations, d)
}

// appendNAV appends a point unless it would not advance the date
func (st *run) appendNAV(date time.Time) {
	last := st.result.NAV[len(st.result.NAV)-1]
	if !date.After(last.Date) {
		return
	}
	st.result.NAV = append(st.result.NAV, contracts.NAVPoint{Date: date, NAV: st.nav})
}
