package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// ClosePricer resolves close prices on the last trading day on or before a date
type ClosePricer interface {
	ClosePricesAsOf(ctx context.Context, codes []string, date time.Time) (map[string]float64, time.Time, bool, error)
}

// PeriodReturn is the realized outcome of one holding period
type PeriodReturn struct {
	Start    time.Time
	End      time.Time // resolved close day, zero when unresolved
	Gross    float64
	Net      float64
	Invested float64 // capital of the priced positions
	Priced   int
	Missing  int
	Realized bool // at least one position was priced out
}

// ReturnCalculator implements S5: capital-weighted period returns
// ⭐ SSOT: S5 수익률 실현 로직은 여기서만
type ReturnCalculator struct {
	prices ClosePricer
	logger *logger.Logger
}

// NewReturnCalculator creates a new return calculator
func NewReturnCalculator(prices ClosePricer, log *logger.Logger) *ReturnCalculator {
	if log == nil {
		log = logger.Nop()
	}
	return &ReturnCalculator{prices: prices, logger: log}
}

// PeriodReturn prices positions out at the close of end (resolved backward).
// Net = Gross − cost. A position without an exit price is left out of both
// numerator and denominator and reported as a MissingPriceError.
func (c *ReturnCalculator) PeriodReturn(ctx context.Context, positions []contracts.PositionAllocation, start, end time.Time, cost float64) (PeriodReturn, []error, error) {
	pr := PeriodReturn{Start: start}
	if len(positions) == 0 {
		return pr, nil, nil
	}

	codes := make([]string, len(positions))
	for i, p := range positions {
		codes[i] = p.Code
	}

	closes, day, ok, err := c.prices.ClosePricesAsOf(ctx, codes, end)
	if err != nil {
		return pr, nil, fmt.Errorf("period return: %w", err)
	}
	exitDate := end
	if ok {
		pr.End = day
		exitDate = day
	}

	gross, invested, missing := WeightedReturn(positions, closes)
	pr.Invested = invested
	pr.Missing = len(missing)
	pr.Priced = len(positions) - len(missing)

	var errs []error
	for _, code := range missing {
		errs = append(errs, &contracts.MissingPriceError{Code: code, Date: exitDate, Side: contracts.PriceExit})
	}

	if pr.Priced == 0 {
		c.logger.WithFields(map[string]interface{}{
			"stage":     contracts.StageRealization.ShortName(),
			"start":     start.Format(contracts.DateLayout),
			"end":       end.Format(contracts.DateLayout),
			"positions": len(positions),
		}).Warn("No position could be priced out")
		return pr, errs, nil
	}

	pr.Gross = gross
	pr.Net = gross - cost
	pr.Realized = true
	return pr, errs, nil
}

// WeightedReturn returns Σ(invested·r) / Σ(invested) over positions with a
// positive entry and exit price, with the invested capital of those positions
// and the codes that could not be priced.
func WeightedReturn(positions []contracts.PositionAllocation, closes map[string]float64) (float64, float64, []string) {
	var weighted, invested float64
	var missing []string

	for _, p := range positions {
		exit, ok := closes[p.Code]
		if !ok || exit <= 0 || p.EntryPrice <= 0 || p.InvestedCapital <= 0 {
			missing = append(missing, p.Code)
			continue
		}
		r := exit/p.EntryPrice - 1
		weighted += p.InvestedCapital * r
		invested += p.InvestedCapital
	}

	if invested == 0 {
		return 0, 0, missing
	}
	return weighted / invested, invested, missing
}
