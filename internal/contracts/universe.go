package contracts

import (
	"strings"
	"time"
)

// Universe represents the eligible instruments of one snapshot
// ⭐ SSOT: S1 → S2 투자 가능 종목 전달
type Universe struct {
	Date       time.Time         `json:"date"`
	Stocks     []string          `json:"stocks"`                // eligible codes, snapshot order
	Excluded   map[string]string `json:"excluded"`              // code → reason
	TotalCount int               `json:"total_count,omitempty"` // rows inspected
}

// ExclusionCounts groups excluded codes by reason, dropping the "(value)" detail
func (u *Universe) ExclusionCounts() map[string]int {
	counts := make(map[string]int)
	for _, reason := range u.Excluded {
		if i := strings.Index(reason, " ("); i > 0 {
			reason = reason[:i]
		}
		counts[reason]++
	}
	return counts
}

// IsExcluded checks if a stock code is excluded with reason
func (u *Universe) IsExcluded(code string) (bool, string) {
	reason, exists := u.Excluded[code]
	return exists, reason
}

// Count returns the number of eligible stocks
func (u *Universe) Count() int {
	return len(u.Stocks)
}
