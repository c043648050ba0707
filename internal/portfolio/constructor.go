package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

var _ contracts.PositionAllocator = (*Allocator)(nil)

// Allocator implements S4: equal-budget lot sizing
// ⭐ SSOT: S4 포지션 사이징 로직은 여기서만
type Allocator struct {
	constraints Constraints
	logger      *logger.Logger
}

// NewAllocator creates a new position allocator
func NewAllocator(constraints Constraints, log *logger.Logger) (*Allocator, error) {
	if err := constraints.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Allocator{constraints: constraints, logger: log}, nil
}

// Constraints returns the active constraints
func (a *Allocator) Constraints() Constraints {
	return a.constraints
}

// Allocate sizes every selected stock against an equal share of capital.
// Instruments without a positive entry price are skipped with a MissingPriceError.
// RemainingCash goes negative when forced lots overspend the budget.
func (a *Allocator) Allocate(selection *contracts.SelectionRecord, tradeDate time.Time, prices map[string]float64, capital float64) (*contracts.Allocation, []error) {
	alloc := &contracts.Allocation{
		TradeDate:     tradeDate,
		Capital:       capital,
		Positions:     make([]contracts.PositionAllocation, 0),
		RemainingCash: capital,
	}
	if selection == nil {
		return alloc, nil
	}
	alloc.SelectionDate = selection.Date

	stocks := make([]contracts.SelectedStock, 0, len(selection.Stocks))
	for _, s := range selection.Stocks {
		if a.constraints.IsBlackListed(s.Code) {
			alloc.Skipped = append(alloc.Skipped, s.Code)
			continue
		}
		stocks = append(stocks, s)
	}
	if len(stocks) == 0 || capital <= 0 {
		return alloc, nil
	}

	total := decimal.NewFromFloat(capital)
	budget := total.Div(decimal.NewFromInt(int64(len(stocks))))
	lot := decimal.NewFromInt(a.constraints.LotSize)
	invested := decimal.Zero

	var errs []error
	for _, s := range stocks {
		price, ok := prices[s.Code]
		if !ok || price <= 0 {
			errs = append(errs, &contracts.MissingPriceError{Code: s.Code, Date: tradeDate, Side: contracts.PriceEntry})
			alloc.Skipped = append(alloc.Skipped, s.Code)
			continue
		}

		p := decimal.NewFromFloat(price)
		lots := budget.Div(p).Div(lot).Floor()
		if lots.IsZero() {
			if !a.constraints.ForceMinimumLot {
				alloc.Skipped = append(alloc.Skipped, s.Code)
				continue
			}
			lots = decimal.NewFromInt(1)
		}
		shares := lots.Mul(lot)
		cost := shares.Mul(p)
		invested = invested.Add(cost)

		alloc.Positions = append(alloc.Positions, contracts.PositionAllocation{
			Code:            s.Code,
			Name:            s.Name,
			RankMetric:      s.MetricValue,
			Shares:          shares.IntPart(),
			EntryPrice:      price,
			InvestedCapital: cost.InexactFloat64(),
			Budget:          budget.InexactFloat64(),
			TradeDate:       tradeDate,
		})
	}

	alloc.Invested = invested.InexactFloat64()
	alloc.RemainingCash = total.Sub(invested).InexactFloat64()

	if alloc.RemainingCash < 0 {
		a.logger.WithFields(map[string]interface{}{
			"trade_date": tradeDate.Format(contracts.DateLayout),
			"remaining":  alloc.RemainingCash,
		}).Warn("Forced lots exceed capital")
	}

	return alloc, errs
}
