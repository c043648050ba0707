package portfolio

import (
	"slices"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// DefaultLotSize is the A-share board lot
const DefaultLotSize int64 = 100

// Constraints defines allocation constraints
// ⭐ SSOT: 포지션 사이징 제약조건은 여기서만
type Constraints struct {
	LotSize         int64    `yaml:"lot_size"`          // 최소 매매 단위
	ForceMinimumLot bool     `yaml:"force_minimum_lot"` // 예산 부족 시에도 1 lot 매수
	BlackList       []string `yaml:"black_list"`        // 제외 종목 리스트
}

// IsBlackListed checks if a stock code is in the blacklist
func (c *Constraints) IsBlackListed(code string) bool {
	return slices.Contains(c.BlackList, code)
}

// Validate rejects constraints that cannot size a position
func (c *Constraints) Validate() error {
	if c.LotSize <= 0 {
		return &contracts.ConfigurationError{Field: "lot_size", Message: "must be positive"}
	}
	return nil
}

// DefaultConstraints returns default constraint configuration
func DefaultConstraints() Constraints {
	return Constraints{
		LotSize:         DefaultLotSize,
		ForceMinimumLot: true,
		BlackList:       []string{},
	}
}
