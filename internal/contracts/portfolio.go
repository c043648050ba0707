package contracts

import "time"

// PositionAllocation is one lot-sized holding for one period
// ⭐ 계약: Shares는 항상 lot size의 배수, 생성 후 변경 금지
type PositionAllocation struct {
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	RankMetric      float64   `json:"rank_metric"`
	Shares          int64     `json:"shares"`
	EntryPrice      float64   `json:"entry_price"` // open on TradeDate
	InvestedCapital float64   `json:"invested_capital"`
	Budget          float64   `json:"budget"` // equal-weight budget before lot rounding
	TradeDate       time.Time `json:"trade_date"`
}

// Allocation is the sized portfolio of one rebalancing date
// ⭐ SSOT: S3 → Engine 포지션 전달
type Allocation struct {
	SelectionDate time.Time            `json:"selection_date"`
	TradeDate     time.Time            `json:"trade_date"`
	Capital       float64              `json:"capital"`
	Positions     []PositionAllocation `json:"positions"`
	Invested      float64              `json:"invested"`
	RemainingCash float64              `json:"remaining_cash"` // negative when forced lots overspend
	Skipped       []string             `json:"skipped,omitempty"`
}

// Count returns the number of sized positions
func (a *Allocation) Count() int {
	if a == nil {
		return 0
	}
	return len(a.Positions)
}

// IsEmpty reports whether nothing was bought
func (a *Allocation) IsEmpty() bool {
	return a.Count() == 0
}

// Codes returns the held codes in allocation order
func (a *Allocation) Codes() []string {
	if a == nil {
		return nil
	}
	codes := make([]string, len(a.Positions))
	for i, p := range a.Positions {
		codes[i] = p.Code
	}
	return codes
}
