package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// Decision is the selection the strategy would make on one date, outside a run
type Decision struct {
	Strategy     string                     `json:"strategy"`
	AsOf         time.Time                  `json:"as_of"`
	TradingDay   time.Time                  `json:"trading_day"`
	TradeDate    *time.Time                 `json:"trade_date,omitempty"` // set once the store has the next session
	Universe     *contracts.Universe        `json:"universe,omitempty"`
	Selection    *contracts.SelectionRecord `json:"selection,omitempty"`
	Degradations []contracts.Degradation    `json:"degradations"`
	GapReason    string                     `json:"gap_reason,omitempty"`
}

// Decide runs the selection pipeline for date with the engine's configuration.
// A data gap is reported in GapReason; only infrastructure failures are errors.
func (e *Engine) Decide(ctx context.Context, date time.Time) (*Decision, error) {
	date = contracts.Day(date)
	d := &Decision{
		Strategy:     e.config.Strategy,
		AsOf:         date,
		Degradations: make([]contracts.Degradation, 0),
	}
	degrade := func(deg contracts.Degradation) { d.Degradations = append(d.Degradations, deg) }

	p := e.selectAt(ctx, date, degrade)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.TradingDay, d.Universe, d.Selection, d.GapReason = p.day, p.universe, p.selection, p.reason
	if p.reason != "" {
		return d, nil
	}

	next, ok, err := e.calendar.FirstTradingDayAfter(ctx, p.day)
	if err != nil {
		return nil, fmt.Errorf("next trading day: %w", err)
	}
	if ok {
		d.TradeDate = &next
	}

	e.logger.WithFields(map[string]interface{}{
		"strategy":    e.config.Strategy,
		"trading_day": p.day.Format(contracts.DateLayout),
		"eligible":    p.universe.Count(),
		"selected":    len(p.selection.Stocks),
	}).Info("Selection decided")
	return d, nil
}
