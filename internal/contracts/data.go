package contracts

import "time"

// MarketSnapshot is the market view at a selection date
// ⭐ SSOT: S0 → S1 시장 스냅샷 전달
type MarketSnapshot struct {
	AsOf time.Time   `json:"as_of"` // requested date
	Date time.Time   `json:"date"`  // resolved trading day (<= AsOf)
	Rows []MarketRow `json:"rows"`
}

// Count returns the number of rows in the snapshot
func (s *MarketSnapshot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// Codes returns the instrument codes in row order
func (s *MarketSnapshot) Codes() []string {
	if s == nil {
		return nil
	}
	codes := make([]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		codes = append(codes, row.Code)
	}
	return codes
}

// DataQualitySnapshot summarizes store coverage for one trading day
type DataQualitySnapshot struct {
	Date         time.Time          `json:"date"`
	TotalStocks  int                `json:"total_stocks"`
	ValidStocks  int                `json:"valid_stocks"`
	Coverage     map[string]float64 `json:"coverage"`      // 데이터별 커버리지
	QualityScore float64            `json:"quality_score"` // 0.0 ~ 1.0
	Passed       bool               `json:"passed"`        // 품질 검증 통과 여부
}

// Row returns the row for code, if present
func (s *MarketSnapshot) Row(code string) (MarketRow, bool) {
	if s == nil {
		return MarketRow{}, false
	}
	for _, row := range s.Rows {
		if row.Code == code {
			return row, true
		}
	}
	return MarketRow{}, false
}

