package contracts

import (
	"time"

	"github.com/goccy/go-json"
)

// NAVPoint is one point of the cumulative-return index
type NAVPoint struct {
	Date time.Time `json:"-"`
	NAV  float64   `json:"nav"`
}

// MarshalJSON renders the date as an ISO-8601 date string
func (p NAVPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date string  `json:"date"`
		NAV  float64 `json:"nav"`
	}{p.Date.Format(DateLayout), p.NAV})
}

// UnmarshalJSON parses the ISO-8601 date string form
func (p *NAVPoint) UnmarshalJSON(data []byte) error {
	var raw struct {
		Date string  `json:"date"`
		NAV  float64 `json:"nav"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	date, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return err
	}
	p.Date, p.NAV = date, raw.NAV
	return nil
}

// HeldInstrument is one line of a period record
type HeldInstrument struct {
	Code            string  `json:"code"`
	Name            string  `json:"name"`
	RankMetric      float64 `json:"rank_metric"`
	Shares          int64   `json:"shares"`
	EntryPrice      float64 `json:"entry_price"`
	InvestedCapital float64 `json:"invested_capital"`
}

// PeriodRecord describes one rebalancing date
type PeriodRecord struct {
	PeriodIndex    int              `json:"period_index"`
	SelectionDate  time.Time        `json:"selection_date"`
	TradeDate      *time.Time       `json:"trade_date,omitempty"`
	Selection      *SelectionRecord `json:"selection,omitempty"`
	Instruments    []HeldInstrument `json:"instruments"`
	GrossReturn    float64          `json:"gross_return"`    // prior holding, before cost
	RealizedReturn float64          `json:"realized_return"` // prior holding, net of cost
	Realized       bool             `json:"realized"`        // a prior holding was priced out
	NAVAfter       float64          `json:"nav_after"`
	Degraded       bool             `json:"degraded"`
	DegradeReason  string           `json:"degrade_reason,omitempty"`
}

// Liquidation is the terminal realization from the last rebalance to the end date
type Liquidation struct {
	Date           time.Time `json:"date"`
	GrossReturn    float64   `json:"gross_return"`
	RealizedReturn float64   `json:"realized_return"`
	NAVAfter       float64   `json:"nav_after"`
}

// Summary holds the named performance statistics of one run
type Summary struct {
	Periods             int     `json:"periods"`
	RealizedPeriods     int     `json:"realized_periods"`
	TotalReturn         float64 `json:"total_return"`
	AnnualizedReturn    float64 `json:"annualized_return"`
	Volatility          float64 `json:"volatility"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	WinRate             float64 `json:"win_rate"`
	BestPeriod          float64 `json:"best_period"`
	WorstPeriod         float64 `json:"worst_period"`
	FinalNAV            float64 `json:"final_nav"`
	FinalValue          float64 `json:"final_value"`
	DegradedPeriods     int     `json:"degraded_periods"`
	MissingFundamentals int     `json:"missing_fundamentals"`
	MissingPrices       int     `json:"missing_prices"`
}

// Clean reports whether the run finished without any degradation
func (s Summary) Clean() bool {
	return s.DegradedPeriods == 0 && s.MissingFundamentals == 0 && s.MissingPrices == 0
}
