package contracts

import "time"

// SelectedStock is one ranked pick of a rebalancing decision
// ⭐ SSOT: S2 → S3 선정 결과 전달
type SelectedStock struct {
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	Rank        int                `json:"rank"`   // 1-based ranking
	MetricValue float64            `json:"metric"` // value the ranking sorted on
	Inputs      map[string]float64 `json:"inputs"` // raw inputs (close, market_cap, ttm_eps...)
}

// SelectionRecord is the immutable output of one rebalancing decision
type SelectionRecord struct {
	Date   time.Time       `json:"date"`
	Metric string          `json:"metric"`
	Stocks []SelectedStock `json:"stocks"`
}

// Codes returns the selected codes in rank order
func (s *SelectionRecord) Codes() []string {
	codes := make([]string, len(s.Stocks))
	for i, stock := range s.Stocks {
		codes[i] = stock.Code
	}
	return codes
}
